/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/josephgoksu/TrackWing/models"
)

// Sentinel kinds for the reconciliation error taxonomy. Callers match with
// errors.Is; the concrete types below carry the structured detail.
var (
	ErrReconciliationFailed  = errors.New("reconciliation failed")
	ErrConflictingOperations = errors.New("conflicting pending operations")
	ErrUnmappedIdentities    = errors.New("unmapped temporary identities")
	ErrStructuralViolation   = errors.New("structural invariant violated")
)

// OperationRef points at one pending operation of either kind. Exactly one
// of TaskOp / DepOp is set.
type OperationRef struct {
	TaskOp *models.TaskOperation       `json:"taskOp,omitempty"`
	DepOp  *models.DependencyOperation `json:"depOp,omitempty"`
}

func (r OperationRef) String() string {
	if r.TaskOp != nil {
		return r.TaskOp.String()
	}
	if r.DepOp != nil {
		return r.DepOp.String()
	}
	return "<empty>"
}

// FailedOperation is an operation the persistence collaborator rejected.
type FailedOperation struct {
	Op     OperationRef `json:"op"`
	Reason string       `json:"reason"`
}

// SucceededOperation is an operation the collaborator confirmed, with any
// durable identities it assigned (temp id -> durable id).
type SucceededOperation struct {
	Op          OperationRef      `json:"op"`
	AssignedIDs map[string]string `json:"assignedIds,omitempty"`
}

// ReconciliationError reports a flush attempt where at least one operation
// failed. It carries both halves so the caller can absorb the successful
// identity assignments while deciding whether to retry the failures.
// Recoverable: retry the failed subset.
type ReconciliationError struct {
	Failed    []FailedOperation
	Succeeded []SucceededOperation
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("%s: %d of %d operations failed",
		ErrReconciliationFailed.Error(), len(e.Failed), len(e.Failed)+len(e.Succeeded))
}

func (e *ReconciliationError) Unwrap() error { return ErrReconciliationFailed }

// OperationConsolidationError reports two pending operations on the same
// entity that cannot be merged without silently dropping information.
// Recoverable: the caller must pick a winner or split the edit.
type OperationConsolidationError struct {
	Existing models.TaskOperation
	Incoming models.TaskOperation
	Field    string
}

func (e *OperationConsolidationError) Error() string {
	return fmt.Sprintf("%s: field %q of %s conflicts with queued %s",
		ErrConflictingOperations.Error(), e.Field, e.Incoming.String(), e.Existing.String())
}

func (e *OperationConsolidationError) Unwrap() error { return ErrConflictingOperations }

// IDMappingError reports a plan that references identities with no known
// mapping and no durable form. Fatal for the flush attempt: it means a
// prior creation failed or was skipped.
type IDMappingError struct {
	Unmapped []string
	Known    map[string]string
}

func (e *IDMappingError) Error() string {
	return fmt.Sprintf("%s: %s (%d mappings known)",
		ErrUnmappedIdentities.Error(), strings.Join(e.Unmapped, ", "), len(e.Known))
}

func (e *IDMappingError) Unwrap() error { return ErrUnmappedIdentities }

// StructuralValidationError reports a snapshot or graph that violates an
// invariant upstream validation should have prevented. Fatal: it indicates
// a bug in the calling sequence, not a transient condition.
type StructuralValidationError struct {
	Msg   string
	Path  []string // offending root-to-node chain, if any
	Cycle []string // offending cycle, if any
}

func (e *StructuralValidationError) Error() string {
	msg := ErrStructuralViolation.Error()
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if len(e.Cycle) > 0 {
		msg += ": " + strings.Join(e.Cycle, " -> ")
	} else if len(e.Path) > 0 {
		msg += " at " + strings.Join(e.Path, "/")
	}
	return msg
}

func (e *StructuralValidationError) Unwrap() error { return ErrStructuralViolation }

// Structuralf builds a StructuralValidationError from a format string.
func Structuralf(format string, args ...any) *StructuralValidationError {
	return &StructuralValidationError{Msg: fmt.Sprintf(format, args...)}
}
