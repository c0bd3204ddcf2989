package idmap

import (
	"errors"
	"testing"

	"github.com/josephgoksu/TrackWing/models"
	"github.com/josephgoksu/TrackWing/types"
)

func TestAddMapping_RejectsEmptyIdentities(t *testing.T) {
	m := NewMapper()

	tests := []struct {
		name    string
		tempID  string
		realID  string
		wantErr bool
	}{
		{"valid", "temp-1", "task-abcdef12", false},
		{"empty temp", "", "task-abcdef12", true},
		{"empty real", "temp-1", "", true},
		{"both empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.AddMapping(tt.tempID, tt.realID)
			if (err != nil) != tt.wantErr {
				t.Errorf("AddMapping() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolve_FallsThroughWhenUnmapped(t *testing.T) {
	m := NewMapper()
	if err := m.AddMapping("temp-1", "A"); err != nil {
		t.Fatalf("AddMapping failed: %v", err)
	}

	if got := m.Resolve("temp-1"); got != "A" {
		t.Errorf("Resolve(temp-1) = %s, want A", got)
	}
	// Unmapped identities are treated as already durable.
	if got := m.Resolve("task-abcdef12"); got != "task-abcdef12" {
		t.Errorf("Resolve passthrough = %s", got)
	}
}

func TestApplyToTaskOperation_RewritesNestedSubtree(t *testing.T) {
	m := NewMapper()
	_ = m.AddMapping("temp-1", "A")
	_ = m.AddMapping("temp-2", "A-BCDE")

	parent := "temp-1"
	child := *models.NewTask("temp-2", "Child")
	child.ParentID = &parent
	grandchild := *models.NewTask("temp-3", "Grandchild")
	tmp2 := "temp-2"
	grandchild.ParentID = &tmp2

	op := models.TaskOperation{
		Type:     models.OpInsertChild,
		ParentID: "temp-1",
		Subtree:  models.NewTaskNode(child, models.NewTaskNode(grandchild)),
	}

	out := m.ApplyToTaskOperation(op)

	if out.ParentID != "A" {
		t.Errorf("ParentID = %s, want A", out.ParentID)
	}
	if out.Subtree.Task.ID != "A-BCDE" {
		t.Errorf("subtree root id = %s, want A-BCDE", out.Subtree.Task.ID)
	}
	if *out.Subtree.Task.ParentID != "A" {
		t.Errorf("subtree root parent = %s, want A", *out.Subtree.Task.ParentID)
	}
	gc := out.Subtree.Children[0]
	if gc.Task.ID != "temp-3" {
		t.Errorf("unmapped grandchild id = %s, want temp-3 (unchanged)", gc.Task.ID)
	}
	if *gc.Task.ParentID != "A-BCDE" {
		t.Errorf("grandchild parent = %s, want A-BCDE", *gc.Task.ParentID)
	}

	// The input operation is untouched.
	if op.Subtree.Task.ID != "temp-2" {
		t.Error("ApplyToTaskOperation mutated its input")
	}
}

func TestApplyToTaskOperation_RewritesUpdateChanges(t *testing.T) {
	m := NewMapper()
	_ = m.AddMapping("temp-1", "A")
	_ = m.AddMapping("temp-9", "B")

	from := "temp-1"
	to := "temp-9"
	op := models.TaskOperation{
		Type:   models.OpUpdate,
		TaskID: "temp-1",
		Changes: models.TaskUpdate{
			models.FieldParentID: {From: &from, To: &to},
		},
	}

	out := m.ApplyToTaskOperation(op)
	if out.TaskID != "A" {
		t.Errorf("TaskID = %s, want A", out.TaskID)
	}
	ch := out.Changes[models.FieldParentID]
	if *ch.From != "A" || *ch.To != "B" {
		t.Errorf("parentId change = %v -> %v, want A -> B", *ch.From, *ch.To)
	}
}

func TestApplyToDependencyOperation(t *testing.T) {
	m := NewMapper()
	_ = m.AddMapping("temp-1", "A")

	op := models.DependencyOperation{
		Type: models.OpAddEdge,
		Edge: models.Dependency{DependentID: "temp-1", DependencyID: "task-abcdef12"},
	}

	out := m.ApplyToDependencyOperation(op)
	if out.Edge.DependentID != "A" {
		t.Errorf("DependentID = %s, want A", out.Edge.DependentID)
	}
	if out.Edge.DependencyID != "task-abcdef12" {
		t.Errorf("DependencyID = %s, want task-abcdef12", out.Edge.DependencyID)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	m := NewMapper()
	_ = m.AddMapping("temp-1", "A")

	op := models.TaskOperation{Type: models.OpUpdate, TaskID: "temp-1"}
	once := m.ApplyToTaskOperation(op)
	twice := m.ApplyToTaskOperation(once)
	if once.TaskID != "A" || twice.TaskID != "A" {
		t.Errorf("re-applying the mapping changed the result: %s then %s", once.TaskID, twice.TaskID)
	}
}

func TestValidateMappings(t *testing.T) {
	m := NewMapper()
	_ = m.AddMapping("temp-1", "A")

	// Durable-looking identities pass without a mapping.
	if err := m.ValidateMappings([]string{"temp-1", "task-abcdef12", "A-BCDE"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	err := m.ValidateMappings([]string{"temp-1", "temp-2", "temp-3", "temp-2"})
	if err == nil {
		t.Fatal("expected IDMappingError")
	}
	if !errors.Is(err, types.ErrUnmappedIdentities) {
		t.Fatalf("expected ErrUnmappedIdentities, got %v", err)
	}
	var me *types.IDMappingError
	if !errors.As(err, &me) {
		t.Fatalf("expected IDMappingError, got %T", err)
	}
	if len(me.Unmapped) != 2 {
		t.Errorf("unmapped = %v, want temp-2 and temp-3 once each", me.Unmapped)
	}
	if me.Known["temp-1"] != "A" {
		t.Error("error should carry the mappings known so far")
	}
}
