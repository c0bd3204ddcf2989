package tree

import (
	"time"

	"github.com/josephgoksu/TrackWing/models"
	"github.com/josephgoksu/TrackWing/types"
)

// BatchUpdateType tags one entry of a batch update.
type BatchUpdateType string

const (
	BatchUpdate           BatchUpdateType = "update"
	BatchBulkStatusUpdate BatchUpdateType = "bulk-status-update"
)

// BatchOperation is one functional update applied by ApplyBatch.
//
// Field usage by type:
//   - update:             TaskID + Changes
//   - bulk-status-update: TaskIDs + Status
type BatchOperation struct {
	Type    BatchUpdateType   `json:"type"`
	TaskID  string            `json:"taskId,omitempty"`
	Changes models.TaskUpdate `json:"changes,omitempty"`
	TaskIDs []string          `json:"taskIds,omitempty"`
	Status  models.TaskStatus `json:"status,omitempty"`
}

// ApplyBatch applies the operations in order and returns a new tree. The
// operation order is the application order, so later operations on the
// same identity win. Parent changes are not allowed here; restructuring
// goes through Move.
func (t *Tree) ApplyBatch(ops []BatchOperation) (*Tree, error) {
	out := t
	var err error
	for _, op := range ops {
		switch op.Type {
		case BatchUpdate:
			if _, ok := op.Changes[models.FieldParentID]; ok {
				return nil, types.Structuralf("batch update of %s: parent changes require a move", op.TaskID)
			}
			out, err = out.Update(op.TaskID, func(task models.Task) models.Task {
				return ApplyChanges(task, op.Changes)
			})
			if err != nil {
				return nil, err
			}
		case BatchBulkStatusUpdate:
			for _, id := range op.TaskIDs {
				out, err = out.Update(id, func(task models.Task) models.Task {
					task.Status = op.Status
					task.UpdatedAt = time.Now().UTC()
					return task
				})
				if err != nil {
					return nil, err
				}
			}
		default:
			return nil, types.Structuralf("unknown batch operation type %q", op.Type)
		}
	}
	return out, nil
}

// ApplyChanges returns the task with the field changes applied. Unknown
// fields are ignored; the identity is never touched here.
func ApplyChanges(task models.Task, changes models.TaskUpdate) models.Task {
	for field, ch := range changes {
		switch field {
		case models.FieldTitle:
			if ch.To != nil {
				task.Title = *ch.To
			}
		case models.FieldDescription:
			if ch.To != nil {
				task.Description = *ch.To
			} else {
				task.Description = ""
			}
		case models.FieldStatus:
			if ch.To != nil {
				task.Status = models.TaskStatus(*ch.To)
				if task.Status == models.StatusDone && task.CompletedAt == nil {
					now := time.Now().UTC()
					task.CompletedAt = &now
				}
			}
		case models.FieldPriority:
			if ch.To != nil {
				task.Priority = models.TaskPriority(*ch.To)
			}
		case models.FieldParentID:
			task.ParentID = ch.To
		}
	}
	task.UpdatedAt = time.Now().UTC()
	return task
}
