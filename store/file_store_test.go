package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/josephgoksu/TrackWing/internal/util"
	"github.com/josephgoksu/TrackWing/models"
)

func setupTestStore(t *testing.T) *FileTaskStore {
	t.Helper()
	return setupTestStoreWithFormat(t, "json")
}

func setupTestStoreWithFormat(t *testing.T, format string) *FileTaskStore {
	t.Helper()

	tempDir := t.TempDir()
	filePath := filepath.Join(tempDir, "tasks."+format)

	s := NewFileTaskStore()
	config := map[string]string{
		"dataFile":       filePath,
		"dataFileFormat": format,
	}
	if err := s.Initialize(config); err != nil {
		t.Fatalf("Failed to initialize store: %v", err)
	}
	return s
}

func insertOp(parentID string, node *models.TaskNode) models.TaskOperation {
	return models.TaskOperation{Type: models.OpInsertChild, ParentID: parentID, Subtree: node}
}

func seedRoot(t *testing.T, s TaskStore) string {
	t.Helper()
	results, err := s.ApplyOperations(context.Background(),
		[]models.TaskOperation{insertOp("", models.NewTaskNode(*models.NewTask("temp-root", "Root")))})
	if err != nil {
		t.Fatalf("seed ApplyOperations failed: %v", err)
	}
	if results[0].Err != nil {
		t.Fatalf("seed operation failed: %v", results[0].Err)
	}
	return results[0].AssignedIDs["temp-root"]
}

func TestApplyOperations_InsertAssignsDurableIDs(t *testing.T) {
	s := setupTestStore(t)
	defer func() { _ = s.Close() }()

	child := models.NewTaskNode(*models.NewTask("temp-2", "Child"))
	root := models.NewTaskNode(*models.NewTask("temp-1", "Root"), child)

	results, err := s.ApplyOperations(context.Background(), []models.TaskOperation{insertOp("", root)})
	if err != nil {
		t.Fatalf("ApplyOperations failed: %v", err)
	}
	if results[0].Err != nil {
		t.Fatalf("operation failed: %v", results[0].Err)
	}

	assigned := results[0].AssignedIDs
	if len(assigned) != 2 {
		t.Fatalf("assigned = %v, want ids for temp-1 and temp-2", assigned)
	}
	for tempID, durable := range assigned {
		if util.IsTempID(durable) {
			t.Errorf("assigned id for %s is still temporary: %s", tempID, durable)
		}
		if _, err := s.GetTask(durable); err != nil {
			t.Errorf("GetTask(%s) failed: %v", durable, err)
		}
	}

	// The child's parent reference was rewritten to the root's durable id.
	childTask, err := s.GetTask(assigned["temp-2"])
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if childTask.ParentID == nil || *childTask.ParentID != assigned["temp-1"] {
		t.Errorf("child parent = %v, want %s", childTask.ParentID, assigned["temp-1"])
	}
}

func TestApplyOperations_LaterOpsSeeEarlierCreations(t *testing.T) {
	s := setupTestStore(t)
	defer func() { _ = s.Close() }()

	ops := []models.TaskOperation{
		insertOp("", models.NewTaskNode(*models.NewTask("temp-1", "Root"))),
		insertOp("temp-1", models.NewTaskNode(*models.NewTask("temp-2", "Child"))),
	}
	results, err := s.ApplyOperations(context.Background(), ops)
	if err != nil {
		t.Fatalf("ApplyOperations failed: %v", err)
	}
	for i, res := range results {
		if res.Err != nil {
			t.Fatalf("operation %d failed: %v", i, res.Err)
		}
	}

	rootID := results[0].AssignedIDs["temp-1"]
	children, err := s.ListTasks(FilterByParent(rootID), nil)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(children) != 1 {
		t.Fatalf("children of %s = %d, want 1", rootID, len(children))
	}
}

func TestApplyOperations_FailureDoesNotAbortBatch(t *testing.T) {
	s := setupTestStore(t)
	defer func() { _ = s.Close() }()

	ops := []models.TaskOperation{
		{Type: models.OpUpdate, TaskID: "task-missing", Changes: models.TaskUpdate{
			models.FieldTitle: {To: strPtr("nope")},
		}},
		insertOp("", models.NewTaskNode(*models.NewTask("temp-1", "Root"))),
	}
	results, err := s.ApplyOperations(context.Background(), ops)
	if err != nil {
		t.Fatalf("ApplyOperations failed: %v", err)
	}
	if !errors.Is(results[0].Err, ErrTaskNotFound) {
		t.Errorf("first result = %v, want ErrTaskNotFound", results[0].Err)
	}
	if results[1].Err != nil {
		t.Errorf("second operation should still commit, got %v", results[1].Err)
	}
}

func TestApplyOperations_UpdateAndRemove(t *testing.T) {
	s := setupTestStore(t)
	defer func() { _ = s.Close() }()
	rootID := seedRoot(t, s)

	// Add a child subtree, update it, then remove it with descendants.
	results, err := s.ApplyOperations(context.Background(), []models.TaskOperation{
		insertOp(rootID, models.NewTaskNode(*models.NewTask("temp-c", "Child"),
			models.NewTaskNode(*models.NewTask("temp-g", "Grandchild")))),
	})
	if err != nil {
		t.Fatalf("ApplyOperations failed: %v", err)
	}
	childID := results[0].AssignedIDs["temp-c"]
	grandchildID := results[0].AssignedIDs["temp-g"]

	results, err = s.ApplyOperations(context.Background(), []models.TaskOperation{
		{Type: models.OpUpdate, TaskID: childID, Changes: models.TaskUpdate{
			models.FieldStatus: {To: strPtr("done")},
		}},
	})
	if err != nil || results[0].Err != nil {
		t.Fatalf("update failed: %v / %v", err, results[0].Err)
	}
	updated, err := s.GetTask(childID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if updated.Status != models.StatusDone {
		t.Errorf("status = %s, want done", updated.Status)
	}
	if updated.CompletedAt == nil {
		t.Error("completing a task should stamp CompletedAt")
	}

	results, err = s.ApplyOperations(context.Background(), []models.TaskOperation{
		{Type: models.OpRemoveChild, ParentID: rootID, TaskID: childID},
	})
	if err != nil || results[0].Err != nil {
		t.Fatalf("remove failed: %v / %v", err, results[0].Err)
	}
	if _, err := s.GetTask(childID); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("child should be gone, got %v", err)
	}
	if _, err := s.GetTask(grandchildID); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("grandchild should be gone with its parent, got %v", err)
	}
}

func TestApplyDependencyOperations(t *testing.T) {
	s := setupTestStore(t)
	defer func() { _ = s.Close() }()

	results, err := s.ApplyOperations(context.Background(), []models.TaskOperation{
		insertOp("", models.NewTaskNode(*models.NewTask("temp-a", "A"))),
		insertOp("", models.NewTaskNode(*models.NewTask("temp-b", "B"))),
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	a := results[0].AssignedIDs["temp-a"]
	b := results[1].AssignedIDs["temp-b"]

	edge := models.Dependency{DependentID: a, DependencyID: b}
	depResults, err := s.ApplyDependencyOperations(context.Background(), []models.DependencyOperation{
		{Type: models.OpAddEdge, Edge: edge},
		{Type: models.OpAddEdge, Edge: edge}, // duplicate
		{Type: models.OpAddEdge, Edge: models.Dependency{DependentID: a, DependencyID: a}}, // self
	})
	if err != nil {
		t.Fatalf("ApplyDependencyOperations failed: %v", err)
	}
	if depResults[0].Err != nil {
		t.Errorf("adding the edge failed: %v", depResults[0].Err)
	}
	if depResults[1].Err == nil {
		t.Error("duplicate edge should fail")
	}
	if depResults[2].Err == nil {
		t.Error("self edge should fail")
	}

	edges, err := s.ListDependencies()
	if err != nil {
		t.Fatalf("ListDependencies failed: %v", err)
	}
	if len(edges) != 1 || edges[0] != edge {
		t.Fatalf("edges = %v, want just %v", edges, edge)
	}

	depResults, err = s.ApplyDependencyOperations(context.Background(), []models.DependencyOperation{
		{Type: models.OpRemoveEdge, Edge: edge},
		{Type: models.OpRemoveEdge, Edge: edge}, // already gone
	})
	if err != nil {
		t.Fatalf("ApplyDependencyOperations failed: %v", err)
	}
	if depResults[0].Err != nil {
		t.Errorf("removing the edge failed: %v", depResults[0].Err)
	}
	if depResults[1].Err == nil {
		t.Error("removing a missing edge should fail")
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	tempDir := t.TempDir()
	filePath := filepath.Join(tempDir, "tasks.json")
	config := map[string]string{"dataFile": filePath, "dataFileFormat": "json"}

	s := NewFileTaskStore()
	if err := s.Initialize(config); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	rootID := seedRoot(t, s)
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := NewFileTaskStore()
	if err := reopened.Initialize(config); err != nil {
		t.Fatalf("re-Initialize failed: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	if _, err := reopened.GetTask(rootID); err != nil {
		t.Errorf("task did not survive reopen: %v", err)
	}
}

func TestAlternateFormats(t *testing.T) {
	for _, format := range []string{"yaml", "toml"} {
		t.Run(format, func(t *testing.T) {
			s := setupTestStoreWithFormat(t, format)
			defer func() { _ = s.Close() }()

			rootID := seedRoot(t, s)
			task, err := s.GetTask(rootID)
			if err != nil {
				t.Fatalf("GetTask failed: %v", err)
			}
			if task.Title != "Root" {
				t.Errorf("title = %q, want Root", task.Title)
			}
		})
	}
}

func TestChecksumMismatchDetected(t *testing.T) {
	tempDir := t.TempDir()
	filePath := filepath.Join(tempDir, "tasks.json")
	config := map[string]string{"dataFile": filePath, "dataFileFormat": "json"}

	s := NewFileTaskStore()
	if err := s.Initialize(config); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	seedRoot(t, s)
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Tamper with the data file behind the store's back.
	data, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if err := os.WriteFile(filePath, append(data, '\n', ' '), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	tampered := NewFileTaskStore()
	if err := tampered.Initialize(config); err == nil {
		t.Fatal("expected checksum mismatch on tampered file")
	}
}

func TestGetTask_NotFound(t *testing.T) {
	s := setupTestStore(t)
	defer func() { _ = s.Close() }()

	if _, err := s.GetTask("task-missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func strPtr(s string) *string { return &s }
