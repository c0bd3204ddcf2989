package models

import "fmt"

// TaskOperationType tags a pending task-side operation.
type TaskOperationType string

const (
	OpUpdate      TaskOperationType = "update"
	OpInsertChild TaskOperationType = "insert-child"
	OpRemoveChild TaskOperationType = "remove-child"
)

// DependencyOperationType tags a pending dependency-side operation.
type DependencyOperationType string

const (
	OpAddEdge    DependencyOperationType = "add-edge"
	OpRemoveEdge DependencyOperationType = "remove-edge"
)

// Updatable task field names, used as TaskUpdate keys and by the store's
// update contract.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldStatus      = "status"
	FieldPriority    = "priority"
	FieldParentID    = "parentId"
)

// FieldChange records one pending field change. From is the value the
// client observed before making the change; it is what consolidation
// compares against to detect conflicting edits. A nil From or To stands
// for an absent value (only parentId can be absent).
type FieldChange struct {
	From *string `json:"from,omitempty"`
	To   *string `json:"to,omitempty"`
}

// TaskUpdate is a partial set of field changes keyed by field name.
type TaskUpdate map[string]FieldChange

// Clone returns a copy of the update map.
func (u TaskUpdate) Clone() TaskUpdate {
	if u == nil {
		return nil
	}
	out := make(TaskUpdate, len(u))
	for k, v := range u {
		out[k] = v
	}
	return out
}

// TaskOperation is one pending task-side change awaiting reconciliation.
//
// Field usage by type:
//   - update:       TaskID + Changes
//   - insert-child: ParentID + Subtree (empty ParentID inserts a new root)
//   - remove-child: ParentID + TaskID (the child being removed)
type TaskOperation struct {
	Type     TaskOperationType `json:"type"`
	TaskID   string            `json:"taskId,omitempty"`
	ParentID string            `json:"parentId,omitempty"`
	Changes  TaskUpdate        `json:"changes,omitempty"`
	Subtree  *TaskNode         `json:"subtree,omitempty"`
}

// IsCreation reports whether replaying the operation creates tasks.
func (op TaskOperation) IsCreation() bool {
	return op.Type == OpInsertChild
}

// CreatedIDs returns the identities the operation introduces, parent
// before children. Empty for non-creations.
func (op TaskOperation) CreatedIDs() []string {
	if op.Type != OpInsertChild || op.Subtree == nil {
		return nil
	}
	return op.Subtree.IDs()
}

// ReferencedIDs returns every identity the operation mentions, excluding
// the ones it creates itself.
func (op TaskOperation) ReferencedIDs() []string {
	var ids []string
	switch op.Type {
	case OpUpdate:
		ids = append(ids, op.TaskID)
		if ch, ok := op.Changes[FieldParentID]; ok && ch.To != nil {
			ids = append(ids, *ch.To)
		}
	case OpInsertChild:
		if op.ParentID != "" {
			ids = append(ids, op.ParentID)
		}
	case OpRemoveChild:
		ids = append(ids, op.ParentID, op.TaskID)
	}
	return ids
}

func (op TaskOperation) String() string {
	switch op.Type {
	case OpUpdate:
		return fmt.Sprintf("update(%s)", op.TaskID)
	case OpInsertChild:
		id := ""
		if op.Subtree != nil {
			id = op.Subtree.Task.ID
		}
		return fmt.Sprintf("insert-child(%s under %s)", id, op.ParentID)
	case OpRemoveChild:
		return fmt.Sprintf("remove-child(%s from %s)", op.TaskID, op.ParentID)
	}
	return string(op.Type)
}

// DependencyOperation is one pending dependency-edge change.
type DependencyOperation struct {
	Type DependencyOperationType `json:"type"`
	Edge Dependency              `json:"edge"`
}

func (op DependencyOperation) String() string {
	return fmt.Sprintf("%s(%s -> %s)", op.Type, op.Edge.DependentID, op.Edge.DependencyID)
}
