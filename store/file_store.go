package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gofrs/flock"
	"github.com/josephgoksu/TrackWing/idmap"
	"github.com/josephgoksu/TrackWing/internal/util"
	"github.com/josephgoksu/TrackWing/models"
	"github.com/josephgoksu/TrackWing/tree"
	yaml "gopkg.in/yaml.v3"
)

const (
	defaultDataFile   = "tasks.json"
	dataFileKey       = "dataFile"
	dataFileFormatKey = "dataFileFormat"
	defaultDataFormat = "json"
	formatJSON        = "json"
	formatYAML        = "yaml"
	formatTOML        = "toml"
	checksumSuffix    = ".checksum"
)

// document is the on-disk shape: the full task set plus the dependency
// edge set, in one file.
type document struct {
	Tasks        []models.Task       `json:"tasks" yaml:"tasks" toml:"tasks"`
	Dependencies []models.Dependency `json:"dependencies,omitempty" yaml:"dependencies,omitempty" toml:"dependencies,omitempty"`
	TotalCount   int                 `json:"totalCount" yaml:"totalCount" toml:"totalCount"`
}

// FileTaskStore implements TaskStore on a single data file. It supports
// JSON, YAML, and TOML formats, guards cross-process access with a file
// lock, and keeps a SHA256 checksum sidecar to detect corruption.
type FileTaskStore struct {
	filePath string
	format   string
	flk      *flock.Flock
	tasks    map[string]models.Task
	order    []string // task ids in load/insert order, for stable listings
	edges    []models.Dependency
}

// NewFileTaskStore creates a new instance; Initialize must be called before
// use.
func NewFileTaskStore() *FileTaskStore {
	return &FileTaskStore{tasks: make(map[string]models.Task)}
}

// Initialize configures the store. It expects a 'dataFile' key in the
// config map specifying the path to the data file, defaulting to
// 'tasks.json' in the current working directory, and an optional
// 'dataFileFormat' of json, yaml, or toml.
func (s *FileTaskStore) Initialize(config map[string]string) error {
	if val, ok := config[dataFileKey]; ok && val != "" {
		s.filePath = val
	} else {
		s.filePath = defaultDataFile
	}

	if val, ok := config[dataFileFormatKey]; ok && val != "" {
		formatLower := strings.ToLower(val)
		switch formatLower {
		case formatJSON, formatYAML, formatTOML:
			s.format = formatLower
		default:
			return fmt.Errorf("unsupported dataFileFormat: %s. Supported formats are json, yaml, toml", val)
		}
	} else {
		s.format = defaultDataFormat
	}

	if s.filePath == defaultDataFile && s.format != formatJSON {
		ext := filepath.Ext(s.filePath)
		s.filePath = strings.TrimSuffix(s.filePath, ext) + "." + s.format
	}

	dir := filepath.Dir(s.filePath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	s.flk = flock.New(s.filePath)

	locked, err := s.flk.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire initial lock for %s: %w", s.filePath, err)
	}
	if !locked {
		if err := s.flk.Lock(); err != nil {
			return fmt.Errorf("failed to acquire blocking initial lock for %s: %w", s.filePath, err)
		}
	}
	defer func() { _ = s.flk.Unlock() }()

	return s.loadInternal()
}

func calculateChecksum(data []byte) string {
	hasher := sha256.New()
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil))
}

// loadInternal reads the data file, verifies the checksum sidecar, and
// unmarshals. Callers must hold the file lock.
func (s *FileTaskStore) loadInternal() error {
	checksumFilePath := s.filePath + checksumSuffix

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.resetState(nil, nil)
			_ = os.Remove(checksumFilePath)
			f, createErr := os.OpenFile(s.filePath, os.O_CREATE|os.O_RDWR, 0o644)
			if createErr != nil {
				return fmt.Errorf("failed to create data file %s: %w", s.filePath, createErr)
			}
			_ = f.Close()
			_ = os.WriteFile(checksumFilePath, []byte(calculateChecksum([]byte{})), 0o644)
			return nil
		}
		return fmt.Errorf("failed to read data file %s: %w", s.filePath, err)
	}

	if _, err := os.Stat(checksumFilePath); err == nil {
		expectedChecksumBytes, readErr := os.ReadFile(checksumFilePath)
		if readErr != nil {
			return fmt.Errorf("failed to read checksum file %s: %w", checksumFilePath, readErr)
		}
		expectedChecksum := strings.TrimSpace(string(expectedChecksumBytes))
		if actual := calculateChecksum(data); actual != expectedChecksum {
			return fmt.Errorf("checksum mismatch for %s - expected %s, got %s - file is corrupt or tampered", s.filePath, expectedChecksum, actual)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("error checking checksum file %s: %w", checksumFilePath, err)
	}

	if len(data) == 0 {
		_ = os.WriteFile(checksumFilePath, []byte(calculateChecksum([]byte{})), 0o644)
		s.resetState(nil, nil)
		return nil
	}

	var doc document
	switch s.format {
	case formatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to unmarshal JSON from %s: %w", s.filePath, err)
		}
	case formatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to unmarshal YAML from %s: %w", s.filePath, err)
		}
	case formatTOML:
		if err := toml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to unmarshal TOML from %s: %w", s.filePath, err)
		}
	default:
		return fmt.Errorf("unsupported data format for loading: %s", s.format)
	}

	s.resetState(doc.Tasks, doc.Dependencies)
	return nil
}

func (s *FileTaskStore) resetState(tasks []models.Task, edges []models.Dependency) {
	s.tasks = make(map[string]models.Task, len(tasks))
	s.order = s.order[:0]
	for _, task := range tasks {
		s.tasks[task.ID] = task
		s.order = append(s.order, task.ID)
	}
	s.edges = append([]models.Dependency(nil), edges...)
}

// saveInternal writes the document to a temp file, then its checksum, and
// renames both into place. Callers must hold the file lock.
func (s *FileTaskStore) saveInternal() error {
	doc := document{
		Tasks:        s.listInOrder(),
		Dependencies: s.edges,
		TotalCount:   len(s.tasks),
	}

	var marshaledData []byte
	var err error
	switch s.format {
	case formatJSON:
		marshaledData, err = json.MarshalIndent(doc, "", "  ")
	case formatYAML:
		marshaledData, err = yaml.Marshal(doc)
	case formatTOML:
		buf := new(bytes.Buffer)
		if encodeErr := toml.NewEncoder(buf).Encode(doc); encodeErr == nil {
			marshaledData = buf.Bytes()
		} else {
			err = fmt.Errorf("failed to marshal TOML: %w", encodeErr)
		}
	default:
		return fmt.Errorf("unsupported data format for saving: %s", s.format)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal tasks to %s: %w", s.format, err)
	}

	tempFilePath := s.filePath + ".tmp"
	checksumFilePath := s.filePath + checksumSuffix
	tempChecksumFilePath := checksumFilePath + ".tmp"

	defer func() { _ = os.Remove(tempFilePath) }()
	defer func() { _ = os.Remove(tempChecksumFilePath) }()

	if err := os.WriteFile(tempFilePath, marshaledData, 0o644); err != nil {
		return fmt.Errorf("failed to write to temporary data file %s: %w", tempFilePath, err)
	}
	if err := os.WriteFile(tempChecksumFilePath, []byte(calculateChecksum(marshaledData)), 0o644); err != nil {
		return fmt.Errorf("failed to write to temporary checksum file %s: %w", tempChecksumFilePath, err)
	}
	if err := os.Rename(tempFilePath, s.filePath); err != nil {
		return fmt.Errorf("failed to rename temporary data file %s to %s: %w", tempFilePath, s.filePath, err)
	}
	if err := os.Rename(tempChecksumFilePath, checksumFilePath); err != nil {
		return fmt.Errorf("CRITICAL: data file %s updated, but failed to update checksum file %s: %w - store may be inconsistent", s.filePath, checksumFilePath, err)
	}
	return nil
}

func (s *FileTaskStore) listInOrder() []models.Task {
	out := make([]models.Task, 0, len(s.tasks))
	for _, id := range s.order {
		if task, ok := s.tasks[id]; ok {
			out = append(out, task)
		}
	}
	return out
}

// ApplyOperations applies an ordered batch of pending task operations.
// Temporary identities introduced by a creation are assigned durable ones
// and resolved in every later operation of the same batch. A failed
// operation is reported in its result; the batch continues.
func (s *FileTaskStore) ApplyOperations(ctx context.Context, ops []models.TaskOperation) ([]OperationResult, error) {
	if err := s.flk.Lock(); err != nil {
		return nil, fmt.Errorf("could not lock file for apply: %w", err)
	}
	defer func() { _ = s.flk.Unlock() }()

	if err := s.loadInternal(); err != nil {
		return nil, fmt.Errorf("failed to reload tasks before apply: %w", err)
	}

	mapper := idmap.NewMapper()
	results := make([]OperationResult, 0, len(ops))
	dirty := false

	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			results = append(results, OperationResult{Err: err})
			continue
		}
		resolved := mapper.ApplyToTaskOperation(op)
		assigned, err := s.applyTaskOperation(resolved)
		if err == nil {
			dirty = true
			if err := mapper.AddAll(assigned); err != nil {
				return nil, err
			}
		}
		results = append(results, OperationResult{AssignedIDs: assigned, Err: err})
	}

	if dirty {
		if err := s.saveInternal(); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// applyTaskOperation mutates the in-memory state for one operation. For
// insert-child it returns the temp -> durable assignments it made.
func (s *FileTaskStore) applyTaskOperation(op models.TaskOperation) (map[string]string, error) {
	switch op.Type {
	case models.OpInsertChild:
		return s.insertSubtree(op)
	case models.OpUpdate:
		return nil, s.updateTask(op)
	case models.OpRemoveChild:
		return nil, s.removeChild(op)
	default:
		return nil, fmt.Errorf("unknown task operation type %q", op.Type)
	}
}

func (s *FileTaskStore) insertSubtree(op models.TaskOperation) (map[string]string, error) {
	if op.Subtree == nil {
		return nil, fmt.Errorf("insert-child operation carries no subtree")
	}
	if op.ParentID != "" {
		if _, ok := s.tasks[op.ParentID]; !ok {
			return nil, fmt.Errorf("parent task %s: %w", op.ParentID, ErrTaskNotFound)
		}
	}

	// First pass: assign durable identities for every temporary one in the
	// payload, and reject collisions with existing tasks.
	assigned := make(map[string]string)
	for _, id := range op.Subtree.IDs() {
		durable := id
		if util.IsTempID(id) {
			durable = util.NewTaskID()
			assigned[id] = durable
		}
		if _, exists := s.tasks[durable]; exists {
			return nil, fmt.Errorf("task with ID '%s' already exists", durable)
		}
	}

	mapper := idmap.NewMapper()
	if err := mapper.AddAll(assigned); err != nil {
		return nil, err
	}
	node := mapper.ApplyToNode(op.Subtree)

	parentID := op.ParentID
	now := time.Now().UTC()
	var insert func(n *models.TaskNode, parent string) error
	insert = func(n *models.TaskNode, parent string) error {
		task := n.Task
		if parent != "" {
			task.ParentID = &parent
		} else {
			task.ParentID = nil
		}
		task.CreatedAt = now
		task.UpdatedAt = now
		if err := models.ValidateStruct(task); err != nil {
			return fmt.Errorf("validation failed for new task: %w", err)
		}
		s.tasks[task.ID] = task
		s.order = append(s.order, task.ID)
		for _, c := range n.Children {
			if err := insert(c, task.ID); err != nil {
				return err
			}
		}
		return nil
	}
	if err := insert(node, parentID); err != nil {
		// Roll the partial insert back so a failed operation leaves no trace.
		for _, id := range node.IDs() {
			s.deleteTask(id)
		}
		return nil, err
	}
	return assigned, nil
}

func (s *FileTaskStore) updateTask(op models.TaskOperation) error {
	task, ok := s.tasks[op.TaskID]
	if !ok {
		return fmt.Errorf("task %s: %w", op.TaskID, ErrTaskNotFound)
	}
	if ch, hasParent := op.Changes[models.FieldParentID]; hasParent && ch.To != nil {
		if _, ok := s.tasks[*ch.To]; !ok {
			return fmt.Errorf("new parent task %s: %w", *ch.To, ErrTaskNotFound)
		}
	}
	updated := tree.ApplyChanges(task, op.Changes)
	if err := models.ValidateStruct(updated); err != nil {
		return fmt.Errorf("validation failed for updated task: %w", err)
	}
	s.tasks[op.TaskID] = updated
	return nil
}

func (s *FileTaskStore) removeChild(op models.TaskOperation) error {
	task, ok := s.tasks[op.TaskID]
	if !ok {
		return fmt.Errorf("task %s: %w", op.TaskID, ErrTaskNotFound)
	}
	if op.ParentID != "" {
		if task.ParentID == nil || *task.ParentID != op.ParentID {
			return fmt.Errorf("task %s is not a child of %s", op.TaskID, op.ParentID)
		}
	}
	for _, id := range s.descendants(op.TaskID) {
		s.deleteTask(id)
	}
	s.deleteTask(op.TaskID)
	return nil
}

// descendants returns every transitive child of the given task.
func (s *FileTaskStore) descendants(id string) []string {
	var out []string
	for _, candidate := range s.order {
		task, ok := s.tasks[candidate]
		if !ok || task.ParentID == nil {
			continue
		}
		if *task.ParentID == id {
			out = append(out, candidate)
			out = append(out, s.descendants(candidate)...)
		}
	}
	return out
}

func (s *FileTaskStore) deleteTask(id string) {
	delete(s.tasks, id)
	kept := s.edges[:0]
	for _, e := range s.edges {
		if e.DependentID != id && e.DependencyID != id {
			kept = append(kept, e)
		}
	}
	s.edges = kept
}

// ApplyDependencyOperations applies an ordered batch of pending edge
// operations.
func (s *FileTaskStore) ApplyDependencyOperations(ctx context.Context, ops []models.DependencyOperation) ([]OperationResult, error) {
	if err := s.flk.Lock(); err != nil {
		return nil, fmt.Errorf("could not lock file for apply: %w", err)
	}
	defer func() { _ = s.flk.Unlock() }()

	if err := s.loadInternal(); err != nil {
		return nil, fmt.Errorf("failed to reload tasks before apply: %w", err)
	}

	results := make([]OperationResult, 0, len(ops))
	dirty := false
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			results = append(results, OperationResult{Err: err})
			continue
		}
		err := s.applyDependencyOperation(op)
		if err == nil {
			dirty = true
		}
		results = append(results, OperationResult{Err: err})
	}

	if dirty {
		if err := s.saveInternal(); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (s *FileTaskStore) applyDependencyOperation(op models.DependencyOperation) error {
	edge := op.Edge
	switch op.Type {
	case models.OpAddEdge:
		if edge.DependentID == edge.DependencyID {
			return fmt.Errorf("task %s cannot depend on itself", edge.DependentID)
		}
		for _, id := range []string{edge.DependentID, edge.DependencyID} {
			if _, ok := s.tasks[id]; !ok {
				return fmt.Errorf("task %s: %w", id, ErrTaskNotFound)
			}
		}
		for _, existing := range s.edges {
			if existing == edge {
				return fmt.Errorf("dependency %s -> %s already exists", edge.DependentID, edge.DependencyID)
			}
		}
		s.edges = append(s.edges, edge)
		return nil
	case models.OpRemoveEdge:
		for i, existing := range s.edges {
			if existing == edge {
				s.edges = append(s.edges[:i], s.edges[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("dependency %s -> %s does not exist", edge.DependentID, edge.DependencyID)
	default:
		return fmt.Errorf("unknown dependency operation type %q", op.Type)
	}
}

// GetTask retrieves a task by ID.
func (s *FileTaskStore) GetTask(id string) (models.Task, error) {
	if err := s.flk.RLock(); err != nil {
		return models.Task{}, fmt.Errorf("could not lock file for get: %w", err)
	}
	defer func() { _ = s.flk.Unlock() }()

	if err := s.loadInternal(); err != nil {
		return models.Task{}, fmt.Errorf("failed to reload tasks before get: %w", err)
	}
	task, ok := s.tasks[id]
	if !ok {
		return models.Task{}, fmt.Errorf("task %s: %w", id, ErrTaskNotFound)
	}
	return task, nil
}

// ListTasks retrieves tasks, optionally filtered and sorted.
func (s *FileTaskStore) ListTasks(filterFn func(models.Task) bool, sortFn func([]models.Task) []models.Task) ([]models.Task, error) {
	if err := s.flk.RLock(); err != nil {
		return nil, fmt.Errorf("could not lock file for list: %w", err)
	}
	defer func() { _ = s.flk.Unlock() }()

	if err := s.loadInternal(); err != nil {
		return nil, fmt.Errorf("failed to reload tasks before list: %w", err)
	}

	tasks := s.listInOrder()
	if filterFn != nil {
		filtered := make([]models.Task, 0, len(tasks))
		for _, task := range tasks {
			if filterFn(task) {
				filtered = append(filtered, task)
			}
		}
		tasks = filtered
	}
	if sortFn != nil {
		tasks = sortFn(tasks)
	}
	return tasks, nil
}

// ListDependencies returns every dependency edge in the store.
func (s *FileTaskStore) ListDependencies() ([]models.Dependency, error) {
	if err := s.flk.RLock(); err != nil {
		return nil, fmt.Errorf("could not lock file for list: %w", err)
	}
	defer func() { _ = s.flk.Unlock() }()

	if err := s.loadInternal(); err != nil {
		return nil, fmt.Errorf("failed to reload tasks before list: %w", err)
	}
	return append([]models.Dependency(nil), s.edges...), nil
}

// Close releases the file lock.
func (s *FileTaskStore) Close() error {
	if s.flk != nil {
		return s.flk.Unlock()
	}
	return nil
}
