package tracking

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/josephgoksu/TrackWing/graph"
	"github.com/josephgoksu/TrackWing/models"
	"github.com/josephgoksu/TrackWing/store"
	"github.com/josephgoksu/TrackWing/types"
)

func newSessionGraph(t *testing.T, ids ...string) *Graph {
	t.Helper()
	tasks := make([]models.Task, len(ids))
	for i, id := range ids {
		tasks[i] = *models.NewTask(id, "Task "+id)
	}
	g, err := graph.New(tasks, nil)
	if err != nil {
		t.Fatalf("graph.New failed: %v", err)
	}
	return NewGraph(g)
}

func TestAddDependency_AppliesAndQueues(t *testing.T) {
	tg := newSessionGraph(t, "A", "B")

	tg2, err := tg.AddDependency("A", "B")
	if err != nil {
		t.Fatalf("AddDependency failed: %v", err)
	}
	if !tg2.Snapshot().HasEdge("A", "B") {
		t.Error("edge missing from snapshot")
	}
	if len(tg2.Pending()) != 1 {
		t.Fatalf("pending = %d ops, want 1", len(tg2.Pending()))
	}
	if tg.HasPending() {
		t.Error("mutation leaked into the original value")
	}
}

func TestAddDependency_RejectsCycle(t *testing.T) {
	tg := newSessionGraph(t, "A", "B", "C")
	tg, _ = tg.AddDependency("A", "B")
	tg, _ = tg.AddDependency("B", "C")

	_, err := tg.AddDependency("C", "A")
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if !errors.Is(err, types.ErrStructuralViolation) {
		t.Fatalf("expected structural violation, got %v", err)
	}
	// The rejected edge never reached the log.
	if len(tg.Pending()) != 2 {
		t.Errorf("pending = %d ops, want 2", len(tg.Pending()))
	}
}

func TestDependencyOps_CancelOut(t *testing.T) {
	tg := newSessionGraph(t, "A", "B")

	tg, err := tg.AddDependency("A", "B")
	if err != nil {
		t.Fatalf("AddDependency failed: %v", err)
	}
	tg, err = tg.RemoveDependency("A", "B")
	if err != nil {
		t.Fatalf("RemoveDependency failed: %v", err)
	}
	if tg.HasPending() {
		t.Errorf("pending = %v, want empty; add and remove cancel", tg.Pending())
	}
	if tg.Snapshot().HasEdge("A", "B") {
		t.Error("edge still in snapshot")
	}
}

func TestRemoveThenReAdd_CancelsQueuedRemoval(t *testing.T) {
	base, err := graph.New(
		[]models.Task{*models.NewTask("A", "A"), *models.NewTask("B", "B")},
		[]models.Dependency{{DependentID: "A", DependencyID: "B"}},
	)
	if err != nil {
		t.Fatalf("graph.New failed: %v", err)
	}
	tg := NewGraph(base)

	tg, err = tg.RemoveDependency("A", "B")
	if err != nil {
		t.Fatalf("RemoveDependency failed: %v", err)
	}
	tg, err = tg.AddDependency("A", "B")
	if err != nil {
		t.Fatalf("AddDependency failed: %v", err)
	}
	if tg.HasPending() {
		t.Errorf("pending = %v, want empty; the edge is back where it started", tg.Pending())
	}
}

func TestGraphApplyIdentityMappings(t *testing.T) {
	tg := newSessionGraph(t, "temp-1", "task-b")
	tg, err := tg.AddDependency("temp-1", "task-b")
	if err != nil {
		t.Fatalf("AddDependency failed: %v", err)
	}

	mapped, err := tg.ApplyIdentityMappings(map[string]string{"temp-1": "A"})
	if err != nil {
		t.Fatalf("ApplyIdentityMappings failed: %v", err)
	}
	if !mapped.Snapshot().HasTask("A") || mapped.Snapshot().HasTask("temp-1") {
		t.Error("snapshot identity was not rewritten")
	}
	pending := mapped.Pending()
	if pending[0].Edge.DependentID != "A" {
		t.Errorf("pending endpoint = %s, want A", pending[0].Edge.DependentID)
	}
	if ids := mapped.RequiredTempIDs(); len(ids) != 0 {
		t.Errorf("temp ids after mapping = %v, want none", ids)
	}
}

func TestGraphSerializeState_RoundTrip(t *testing.T) {
	tg := newSessionGraph(t, "A", "B", "C")
	tg, _ = tg.AddDependency("A", "B")
	tg, _ = tg.AddDependency("B", "C")

	data, err := tg.SerializeState()
	if err != nil {
		t.Fatalf("SerializeState failed: %v", err)
	}
	restored, err := DeserializeGraphState(data)
	if err != nil {
		t.Fatalf("DeserializeGraphState failed: %v", err)
	}

	if !reflect.DeepEqual(restored.Pending(), tg.Pending()) {
		t.Error("pending log did not survive the round trip")
	}
	if !reflect.DeepEqual(restored.Snapshot().Edges(), tg.Snapshot().Edges()) {
		t.Error("edge set did not survive the round trip")
	}
	if !reflect.DeepEqual(restored.Snapshot().Tasks(), tg.Snapshot().Tasks()) {
		t.Error("task set did not survive the round trip")
	}
}

func TestGraphFlush_RejectsUnmappedTempIDs(t *testing.T) {
	tg := newSessionGraph(t, "temp-1", "task-b")
	tg, _ = tg.AddDependency("temp-1", "task-b")

	_, err := tg.Flush(context.Background(), &fakeStore{})
	if err == nil {
		t.Fatal("expected mapping error")
	}
	if !errors.Is(err, types.ErrUnmappedIdentities) {
		t.Fatalf("expected ErrUnmappedIdentities, got %v", err)
	}
}

func TestGraphFlush_PartialFailure(t *testing.T) {
	tg := newSessionGraph(t, "A", "B", "C")
	tg, _ = tg.AddDependency("A", "B")
	tg, _ = tg.AddDependency("B", "C")

	st := &fakeStore{
		depFn: func(ops []models.DependencyOperation) ([]store.OperationResult, error) {
			results := make([]store.OperationResult, len(ops))
			results[1] = store.OperationResult{Err: errors.New("edge rejected")}
			return results, nil
		},
	}

	out, err := tg.Flush(context.Background(), st)
	if err == nil {
		t.Fatal("expected reconciliation error")
	}
	var re *types.ReconciliationError
	if !errors.As(err, &re) {
		t.Fatalf("expected ReconciliationError, got %T", err)
	}
	if len(re.Failed) != 1 || len(re.Succeeded) != 1 {
		t.Fatalf("split = %d failed / %d succeeded, want 1 / 1", len(re.Failed), len(re.Succeeded))
	}

	remaining := out.Pending()
	if len(remaining) != 1 || remaining[0].Edge.DependentID != "B" {
		t.Fatalf("remaining = %v, want only the B -> C op", remaining)
	}
}

func TestGraphFlush_FullSuccess(t *testing.T) {
	tg := newSessionGraph(t, "A", "B")
	tg, _ = tg.AddDependency("A", "B")

	st := &fakeStore{
		depFn: func(ops []models.DependencyOperation) ([]store.OperationResult, error) {
			return make([]store.OperationResult, len(ops)), nil
		},
	}
	out, err := tg.Flush(context.Background(), st)
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if out.HasPending() {
		t.Errorf("pending after full success = %v, want empty", out.Pending())
	}
}
