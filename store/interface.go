package store

import (
	"context"
	"errors"

	"github.com/josephgoksu/TrackWing/models"
)

// ErrTaskNotFound is returned by lookups for identities the store does not
// hold.
var ErrTaskNotFound = errors.New("task not found")

// OperationResult reports the outcome of one applied operation. A creation
// that succeeds carries the durable identity assigned to every temporary
// identity the operation introduced.
type OperationResult struct {
	// AssignedIDs maps temporary identity -> durable identity for
	// creations. Nil for non-creations.
	AssignedIDs map[string]string

	// Err is nil when the operation was committed.
	Err error
}

// TaskStore defines the persistence contract the reconciliation engine
// flushes pending operations against.
//
// Apply batches are ordered: operations must be applied in the given order,
// and identities assigned by a creation must be visible to every later
// operation in the same batch (the store resolves temporary references
// against its own assignments as it goes). One failed operation does not
// abort the batch; its failure is reported in the matching result and the
// remaining operations are still attempted.
type TaskStore interface {
	// Initialize configures the store with backend-specific settings
	// (file path, data format). It must be called before any other store
	// operation.
	Initialize(config map[string]string) error

	// ApplyOperations applies an ordered batch of pending task operations.
	// The returned slice has one result per input operation, in order. The
	// error is non-nil only for batch-level failures (lock, I/O), in which
	// case no operation was committed.
	ApplyOperations(ctx context.Context, ops []models.TaskOperation) ([]OperationResult, error)

	// ApplyDependencyOperations applies an ordered batch of pending
	// dependency-edge operations, with the same per-result contract as
	// ApplyOperations.
	ApplyDependencyOperations(ctx context.Context, ops []models.DependencyOperation) ([]OperationResult, error)

	// GetTask retrieves a task by its durable identity. Returns an error
	// wrapping ErrTaskNotFound if the identity is unknown.
	GetTask(id string) (models.Task, error)

	// ListTasks retrieves tasks, optionally filtered and sorted. A nil
	// filterFn returns all tasks; a nil sortFn leaves them in natural
	// store order.
	ListTasks(filterFn func(models.Task) bool, sortFn func([]models.Task) []models.Task) ([]models.Task, error)

	// ListDependencies returns every dependency edge in the store.
	ListDependencies() ([]models.Dependency, error)

	// Close releases resources held by the store, such as file locks or
	// database connections.
	Close() error
}

// FilterByParent returns a filter matching tasks whose parent is parentID.
func FilterByParent(parentID string) func(models.Task) bool {
	return func(t models.Task) bool {
		return t.ParentID != nil && *t.ParentID == parentID
	}
}

// FilterByStatus returns a filter matching tasks in the given status.
func FilterByStatus(status models.TaskStatus) func(models.Task) bool {
	return func(t models.Task) bool {
		return t.Status == status
	}
}
