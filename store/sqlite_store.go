package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/josephgoksu/TrackWing/idmap"
	"github.com/josephgoksu/TrackWing/internal/util"
	"github.com/josephgoksu/TrackWing/models"
	"github.com/josephgoksu/TrackWing/tree"
	_ "modernc.org/sqlite"
)

const dbPathKey = "dbPath"

// SQLiteTaskStore implements TaskStore on a SQLite database. Each
// operation of a batch runs in its own transaction, so a failed operation
// rolls back alone and the batch continues.
type SQLiteTaskStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteTaskStore creates a new instance; Initialize must be called
// before use.
func NewSQLiteTaskStore() *SQLiteTaskStore {
	return &SQLiteTaskStore{}
}

// Initialize opens (or creates) the database. It expects a 'dbPath' key in
// the config map; ':memory:' is accepted for tests.
func (s *SQLiteTaskStore) Initialize(config map[string]string) error {
	dbPath, ok := config[dbPathKey]
	if !ok || dbPath == "" {
		return fmt.Errorf("sqlite store requires a %q config entry", dbPathKey)
	}
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("enable foreign keys: %w", err)
	}

	s.db = db
	s.dbPath = dbPath
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// initSchema creates the tables if they don't exist.
func (s *SQLiteTaskStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		parent_id TEXT REFERENCES tasks(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		priority TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		completed_at TEXT,
		seq INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS dependencies (
		dependent_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		dependency_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		created_at TEXT NOT NULL,
		UNIQUE(dependent_id, dependency_id)
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_dependencies_dependent ON dependencies(dependent_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ApplyOperations applies an ordered batch of pending task operations,
// resolving temporary identities against assignments made earlier in the
// same batch.
func (s *SQLiteTaskStore) ApplyOperations(ctx context.Context, ops []models.TaskOperation) ([]OperationResult, error) {
	mapper := idmap.NewMapper()
	results := make([]OperationResult, 0, len(ops))
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			results = append(results, OperationResult{Err: err})
			continue
		}
		resolved := mapper.ApplyToTaskOperation(op)
		assigned, err := s.applyTaskOperation(ctx, resolved)
		if err == nil {
			if err := mapper.AddAll(assigned); err != nil {
				return nil, err
			}
		}
		results = append(results, OperationResult{AssignedIDs: assigned, Err: err})
	}
	return results, nil
}

func (s *SQLiteTaskStore) applyTaskOperation(ctx context.Context, op models.TaskOperation) (map[string]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	var assigned map[string]string
	switch op.Type {
	case models.OpInsertChild:
		assigned, err = s.insertSubtreeTx(ctx, tx, op)
	case models.OpUpdate:
		err = s.updateTaskTx(ctx, tx, op)
	case models.OpRemoveChild:
		err = s.removeChildTx(ctx, tx, op)
	default:
		err = fmt.Errorf("unknown task operation type %q", op.Type)
	}
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return assigned, nil
}

func (s *SQLiteTaskStore) insertSubtreeTx(ctx context.Context, tx *sql.Tx, op models.TaskOperation) (map[string]string, error) {
	if op.Subtree == nil {
		return nil, fmt.Errorf("insert-child operation carries no subtree")
	}
	if op.ParentID != "" {
		if err := s.taskExistsTx(ctx, tx, op.ParentID); err != nil {
			return nil, err
		}
	}

	assigned := make(map[string]string)
	for _, id := range op.Subtree.IDs() {
		if util.IsTempID(id) {
			assigned[id] = util.NewTaskID()
		}
	}
	mapper := idmap.NewMapper()
	if err := mapper.AddAll(assigned); err != nil {
		return nil, err
	}
	node := mapper.ApplyToNode(op.Subtree)

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
		if err := s.insertTaskTx(ctx, tx, task); err != nil {
			return err
		}
		for _, c := range n.Children {
			if err := insert(c, task.ID); err != nil {
				return err
			}
		}
		return nil
	}
	if err := insert(node, op.ParentID); err != nil {
		return nil, err
	}
	return assigned, nil
}

func (s *SQLiteTaskStore) insertTaskTx(ctx context.Context, tx *sql.Tx, task models.Task) error {
	var completedAt any
	if task.CompletedAt != nil {
		completedAt = task.CompletedAt.Format(time.RFC3339Nano)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO tasks (id, parent_id, title, description, status, priority, created_at, updated_at, completed_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM tasks))`,
		task.ID, task.ParentID, task.Title, task.Description, string(task.Status), string(task.Priority),
		task.CreatedAt.Format(time.RFC3339Nano), task.UpdatedAt.Format(time.RFC3339Nano), completedAt)
	if err != nil {
		return fmt.Errorf("insert task %s: %w", task.ID, err)
	}
	return nil
}

func (s *SQLiteTaskStore) updateTaskTx(ctx context.Context, tx *sql.Tx, op models.TaskOperation) error {
	task, err := s.getTaskTx(ctx, tx, op.TaskID)
	if err != nil {
		return err
	}
	if ch, hasParent := op.Changes[models.FieldParentID]; hasParent && ch.To != nil {
		if err := s.taskExistsTx(ctx, tx, *ch.To); err != nil {
			return fmt.Errorf("new parent: %w", err)
		}
	}
	updated := tree.ApplyChanges(task, op.Changes)
	if err := models.ValidateStruct(updated); err != nil {
		return fmt.Errorf("validation failed for updated task: %w", err)
	}

	var completedAt any
	if updated.CompletedAt != nil {
		completedAt = updated.CompletedAt.Format(time.RFC3339Nano)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE tasks SET parent_id = ?, title = ?, description = ?, status = ?, priority = ?, updated_at = ?, completed_at = ?
		WHERE id = ?`,
		updated.ParentID, updated.Title, updated.Description, string(updated.Status), string(updated.Priority),
		updated.UpdatedAt.Format(time.RFC3339Nano), completedAt, updated.ID)
	if err != nil {
		return fmt.Errorf("update task %s: %w", op.TaskID, err)
	}
	return nil
}

func (s *SQLiteTaskStore) removeChildTx(ctx context.Context, tx *sql.Tx, op models.TaskOperation) error {
	task, err := s.getTaskTx(ctx, tx, op.TaskID)
	if err != nil {
		return err
	}
	if op.ParentID != "" {
		if task.ParentID == nil || *task.ParentID != op.ParentID {
			return fmt.Errorf("task %s is not a child of %s", op.TaskID, op.ParentID)
		}
	}
	// Descendants and touching edges go with it via ON DELETE CASCADE.
	if _, err := tx.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", op.TaskID); err != nil {
		return fmt.Errorf("delete task %s: %w", op.TaskID, err)
	}
	return nil
}

func (s *SQLiteTaskStore) getTaskTx(ctx context.Context, tx *sql.Tx, id string) (models.Task, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, parent_id, title, description, status, priority, created_at, updated_at, completed_at
		FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Task{}, fmt.Errorf("task %s: %w", id, ErrTaskNotFound)
	}
	return task, err
}

func (s *SQLiteTaskStore) taskExistsTx(ctx context.Context, tx *sql.Tx, id string) error {
	var one int
	err := tx.QueryRowContext(ctx, "SELECT 1 FROM tasks WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("task %s: %w", id, ErrTaskNotFound)
	}
	return err
}

// ApplyDependencyOperations applies an ordered batch of pending edge
// operations.
func (s *SQLiteTaskStore) ApplyDependencyOperations(ctx context.Context, ops []models.DependencyOperation) ([]OperationResult, error) {
	results := make([]OperationResult, 0, len(ops))
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			results = append(results, OperationResult{Err: err})
			continue
		}
		results = append(results, OperationResult{Err: s.applyDependencyOperation(ctx, op)})
	}
	return results, nil
}

func (s *SQLiteTaskStore) applyDependencyOperation(ctx context.Context, op models.DependencyOperation) error {
	edge := op.Edge
	switch op.Type {
	case models.OpAddEdge:
		if edge.DependentID == edge.DependencyID {
			return fmt.Errorf("task %s cannot depend on itself", edge.DependentID)
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		for _, id := range []string{edge.DependentID, edge.DependencyID} {
			if err := s.taskExistsTx(ctx, tx, id); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO dependencies (dependent_id, dependency_id, created_at) VALUES (?, ?, ?)",
			edge.DependentID, edge.DependencyID, time.Now().UTC().Format(time.RFC3339Nano))
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("add dependency %s -> %s: %w", edge.DependentID, edge.DependencyID, err)
		}
		return tx.Commit()
	case models.OpRemoveEdge:
		res, err := s.db.ExecContext(ctx,
			"DELETE FROM dependencies WHERE dependent_id = ? AND dependency_id = ?",
			edge.DependentID, edge.DependencyID)
		if err != nil {
			return fmt.Errorf("remove dependency %s -> %s: %w", edge.DependentID, edge.DependencyID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("dependency %s -> %s does not exist", edge.DependentID, edge.DependencyID)
		}
		return nil
	default:
		return fmt.Errorf("unknown dependency operation type %q", op.Type)
	}
}

// GetTask retrieves a task by ID.
func (s *SQLiteTaskStore) GetTask(id string) (models.Task, error) {
	row := s.db.QueryRow(`
		SELECT id, parent_id, title, description, status, priority, created_at, updated_at, completed_at
		FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Task{}, fmt.Errorf("task %s: %w", id, ErrTaskNotFound)
	}
	return task, err
}

// ListTasks retrieves tasks, optionally filtered and sorted. Natural order
// is insertion order.
func (s *SQLiteTaskStore) ListTasks(filterFn func(models.Task) bool, sortFn func([]models.Task) []models.Task) ([]models.Task, error) {
	rows, err := s.db.Query(`
		SELECT id, parent_id, title, description, status, priority, created_at, updated_at, completed_at
		FROM tasks ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		if filterFn == nil || filterFn(task) {
			tasks = append(tasks, task)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if sortFn != nil {
		tasks = sortFn(tasks)
	}
	return tasks, nil
}

// ListDependencies returns every dependency edge in the store.
func (s *SQLiteTaskStore) ListDependencies() ([]models.Dependency, error) {
	rows, err := s.db.Query("SELECT dependent_id, dependency_id FROM dependencies ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("list dependencies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var edges []models.Dependency
	for rows.Next() {
		var e models.Dependency
		if err := rows.Scan(&e.DependentID, &e.DependencyID); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteTaskStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (models.Task, error) {
	var (
		task        models.Task
		parentID    sql.NullString
		status      string
		priority    string
		createdAt   string
		updatedAt   string
		completedAt sql.NullString
	)
	err := row.Scan(&task.ID, &parentID, &task.Title, &task.Description, &status, &priority, &createdAt, &updatedAt, &completedAt)
	if err != nil {
		return models.Task{}, err
	}
	if parentID.Valid {
		task.ParentID = &parentID.String
	}
	task.Status = models.TaskStatus(status)
	task.Priority = models.TaskPriority(priority)
	if task.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return models.Task{}, fmt.Errorf("parse created_at for %s: %w", task.ID, err)
	}
	if task.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return models.Task{}, fmt.Errorf("parse updated_at for %s: %w", task.ID, err)
	}
	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err != nil {
			return models.Task{}, fmt.Errorf("parse completed_at for %s: %w", task.ID, err)
		}
		task.CompletedAt = &t
	}
	return task, nil
}
