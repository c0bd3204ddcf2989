// Package tracking pairs immutable snapshots with append-only logs of
// not-yet-committed changes. A tracking value is built from a snapshot at
// the start of an editing session, accumulates pending operations as the
// caller edits, and reconciles the log against a durable store, absorbing
// the identity assignments the store reports back.
package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/josephgoksu/TrackWing/idmap"
	"github.com/josephgoksu/TrackWing/internal/util"
	"github.com/josephgoksu/TrackWing/models"
	"github.com/josephgoksu/TrackWing/store"
	"github.com/josephgoksu/TrackWing/tree"
	"github.com/josephgoksu/TrackWing/types"
)

// Tree wraps a tree.Tree snapshot with a pending-operation log. Every
// mutation applies functionally to the snapshot, so subsequent reads see
// the new state immediately, and appends a consolidated pending operation
// for later replay. Mutators return new Tree values.
type Tree struct {
	snapshot *tree.Tree
	pending  []models.TaskOperation

	// Guards against a second Flush on the same value while one is in
	// flight. Not copied into derived values; each carries its own flag.
	inFlight atomic.Bool
}

// NewTree starts a tracking session over an existing snapshot.
func NewTree(snapshot *tree.Tree) *Tree {
	return &Tree{snapshot: snapshot}
}

// NewRootedTree starts a session for a tree that does not exist durably
// yet: the given task becomes the root of the snapshot and a creation
// operation for it is queued. An empty identity gets a temporary one.
func NewRootedTree(task models.Task) *Tree {
	if task.ID == "" {
		task.ID = util.NewTempID()
	}
	node := models.NewTaskNode(task)
	return &Tree{
		snapshot: tree.New(node.Clone()),
		pending: []models.TaskOperation{
			{Type: models.OpInsertChild, Subtree: node},
		},
	}
}

// Snapshot returns the current in-memory snapshot, including all pending
// edits.
func (t *Tree) Snapshot() *tree.Tree { return t.snapshot }

// Pending returns a copy of the pending-operation log in append order.
func (t *Tree) Pending() []models.TaskOperation {
	return append([]models.TaskOperation(nil), t.pending...)
}

// HasPending reports whether any operation awaits reconciliation.
func (t *Tree) HasPending() bool { return len(t.pending) > 0 }

func (t *Tree) derive(snapshot *tree.Tree, pending []models.TaskOperation) *Tree {
	return &Tree{snapshot: snapshot, pending: pending}
}

// UpdateTask applies a partial field change set to the task and queues a
// matching update operation. Two consecutive updates against the same
// identity merge into one representing the net change; if an overlapping
// field's observed base does not match the queued target the edits are
// conflicting and an OperationConsolidationError is returned. Parent
// changes go through Move.
func (t *Tree) UpdateTask(id string, changes models.TaskUpdate) (*Tree, error) {
	if len(changes) == 0 {
		return t, nil
	}
	if _, ok := changes[models.FieldParentID]; ok {
		return nil, types.Structuralf("update of %s: parent changes require a move", id)
	}
	return t.applyUpdate(id, changes)
}

func (t *Tree) applyUpdate(id string, changes models.TaskUpdate) (*Tree, error) {
	snapshot, err := t.snapshot.Update(id, func(task models.Task) models.Task {
		return tree.ApplyChanges(task, changes)
	})
	if err != nil {
		return nil, err
	}

	op := models.TaskOperation{Type: models.OpUpdate, TaskID: id, Changes: changes.Clone()}
	pending, err := consolidate(t.pending, op)
	if err != nil {
		return nil, err
	}
	return t.derive(snapshot, pending), nil
}

// consolidate appends an update operation, merging it into the most recent
// queued update on the same identity when possible.
func consolidate(pending []models.TaskOperation, op models.TaskOperation) ([]models.TaskOperation, error) {
	idx := -1
	for i := len(pending) - 1; i >= 0; i-- {
		if touches(pending[i], op.TaskID) {
			idx = i
			break
		}
	}
	if idx >= 0 && pending[idx].Type == models.OpUpdate && pending[idx].TaskID == op.TaskID {
		merged, err := mergeUpdates(pending[idx], op)
		if err != nil {
			return nil, err
		}
		out := append([]models.TaskOperation(nil), pending...)
		out[idx] = merged
		return out, nil
	}
	return append(append([]models.TaskOperation(nil), pending...), op), nil
}

func touches(op models.TaskOperation, id string) bool {
	if op.TaskID == id || op.ParentID == id {
		return true
	}
	for _, created := range op.CreatedIDs() {
		if created == id {
			return true
		}
	}
	return false
}

// mergeUpdates folds incoming into existing. A field present in both
// merges only when the incoming change's observed base equals the queued
// target, meaning the caller edited on top of the queued state; anything
// else is two edits racing for the same field and fails loudly.
func mergeUpdates(existing, incoming models.TaskOperation) (models.TaskOperation, error) {
	changes := existing.Changes.Clone()
	if changes == nil {
		changes = models.TaskUpdate{}
	}
	for field, in := range incoming.Changes {
		queued, ok := changes[field]
		if !ok {
			changes[field] = in
			continue
		}
		if !eqStrPtr(in.From, queued.To) {
			return models.TaskOperation{}, &types.OperationConsolidationError{
				Existing: existing,
				Incoming: incoming,
				Field:    field,
			}
		}
		changes[field] = models.FieldChange{From: queued.From, To: in.To}
	}
	existing.Changes = changes
	return existing, nil
}

func eqStrPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// AddChild inserts the subtree under parentID and queues a creation
// operation for it. Tasks without an identity get temporary ones; parent
// references inside the payload are rewritten to match the structure.
func (t *Tree) AddChild(parentID string, node *models.TaskNode) (*Tree, error) {
	prepared := prepareSubtree(node, parentID)
	snapshot, err := t.snapshot.Insert(parentID, prepared)
	if err != nil {
		return nil, err
	}
	op := models.TaskOperation{Type: models.OpInsertChild, ParentID: parentID, Subtree: prepared}
	return t.derive(snapshot, append(t.Pending(), op)), nil
}

// prepareSubtree deep-copies the payload, assigns temporary identities
// where missing and aligns every stored parent reference.
func prepareSubtree(node *models.TaskNode, parentID string) *models.TaskNode {
	out := node.Clone()
	var fix func(n *models.TaskNode, parent string)
	fix = func(n *models.TaskNode, parent string) {
		if n.Task.ID == "" {
			n.Task.ID = util.NewTempID()
		}
		if parent != "" {
			pid := parent
			n.Task.ParentID = &pid
		} else {
			n.Task.ParentID = nil
		}
		for _, c := range n.Children {
			fix(c, n.Task.ID)
		}
	}
	fix(out, parentID)
	return out
}

// RemoveChild detaches the named child of parentID and queues a removal.
// If the child was created earlier in this session and never flushed, the
// queued creation is cancelled instead, along with every queued operation
// touching the now-gone subtree, so the store never hears about it.
func (t *Tree) RemoveChild(parentID, childID string) (*Tree, error) {
	snapshot, _, err := t.snapshot.Remove(parentID, childID)
	if err != nil {
		return nil, err
	}

	if pending, cancelled := cancelPendingInsert(t.pending, childID); cancelled {
		return t.derive(snapshot, pending), nil
	}

	op := models.TaskOperation{Type: models.OpRemoveChild, ParentID: parentID, TaskID: childID}
	return t.derive(snapshot, append(t.Pending(), op)), nil
}

// cancelPendingInsert drops the queued creation of childID, if any, plus
// every later queued operation referencing the identities that creation
// introduced.
func cancelPendingInsert(pending []models.TaskOperation, childID string) ([]models.TaskOperation, bool) {
	idx := -1
	for i, op := range pending {
		if op.Type == models.OpInsertChild && op.Subtree != nil && op.Subtree.Task.ID == childID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}

	gone := make(map[string]bool)
	for _, id := range pending[idx].CreatedIDs() {
		gone[id] = true
	}

	out := append([]models.TaskOperation(nil), pending[:idx]...)
	for _, op := range pending[idx+1:] {
		dropped := false
		for _, id := range append(op.ReferencedIDs(), op.CreatedIDs()...) {
			if gone[id] {
				dropped = true
				break
			}
		}
		if dropped {
			// Anything this operation would have created is gone with it.
			for _, id := range op.CreatedIDs() {
				gone[id] = true
			}
			continue
		}
		out = append(out, op)
	}
	return out, true
}

// Move re-attaches the subtree under a new parent and queues the parent
// change as an update operation; the store's update contract handles
// re-parenting.
func (t *Tree) Move(id, newParentID string) (*Tree, error) {
	cur := t.snapshot.At(id)
	if cur == nil {
		return nil, types.Structuralf("move: %s not in tree", id)
	}
	var oldParent *string
	if p := cur.Parent(); p != nil {
		pid := p.Task.ID
		oldParent = &pid
	}

	snapshot, err := t.snapshot.Move(id, newParentID)
	if err != nil {
		return nil, err
	}

	newPID := newParentID
	op := models.TaskOperation{
		Type:    models.OpUpdate,
		TaskID:  id,
		Changes: models.TaskUpdate{models.FieldParentID: {From: oldParent, To: &newPID}},
	}
	pending, err := consolidate(t.pending, op)
	if err != nil {
		return nil, err
	}
	return t.derive(snapshot, pending), nil
}

// PlanStep is one entry of a reconciliation plan.
type PlanStep struct {
	Op models.TaskOperation `json:"op"`

	// Creates lists the temporary identities the step introduces, parent
	// before children. Empty for non-creations.
	Creates []string `json:"creates,omitempty"`
}

// Plan is an ordered reconciliation plan: pending operations in append
// order, with creation metadata so the persistence collaborator can apply
// them safely and report identity assignments back. A task's creation
// always precedes operations referencing it as a parent, which holds by
// construction since a child cannot be added before its parent exists in
// the snapshot.
type Plan struct {
	Steps []PlanStep `json:"steps"`
}

// Operations returns the plan's operations in order.
func (p Plan) Operations() []models.TaskOperation {
	out := make([]models.TaskOperation, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.Op
	}
	return out
}

// RequiredIDs returns the identities that must already be resolvable
// before the plan is applied: everything referenced by a step and not
// created by an earlier one.
func (p Plan) RequiredIDs() []string {
	created := make(map[string]bool)
	seen := make(map[string]bool)
	var out []string
	for _, s := range p.Steps {
		for _, id := range s.Op.ReferencedIDs() {
			if id == "" || created[id] || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
		for _, id := range s.Creates {
			created[id] = true
		}
	}
	return out
}

// Plan returns the current reconciliation plan.
func (t *Tree) Plan() Plan {
	steps := make([]PlanStep, len(t.pending))
	for i, op := range t.pending {
		steps[i] = PlanStep{Op: op}
		if op.IsCreation() {
			for _, id := range op.CreatedIDs() {
				if util.IsTempID(id) {
					steps[i].Creates = append(steps[i].Creates, id)
				}
			}
		}
	}
	return Plan{Steps: steps}
}

// ApplyIdentityMappings rewrites the snapshot and every pending operation
// with the given temporary -> durable assignments. Re-applying the same
// mapping is a no-op beyond the first application.
func (t *Tree) ApplyIdentityMappings(mappings map[string]string) (*Tree, error) {
	mapper := idmap.NewMapper()
	if err := mapper.AddAll(mappings); err != nil {
		return nil, err
	}
	return t.remap(mapper), nil
}

func (t *Tree) remap(mapper *idmap.Mapper) *Tree {
	snapshot := tree.New(mapper.ApplyToNode(t.snapshot.Root()))
	pending := make([]models.TaskOperation, len(t.pending))
	for i, op := range t.pending {
		pending[i] = mapper.ApplyToTaskOperation(op)
	}
	return t.derive(snapshot, pending)
}

// treeState is the serialized session form: snapshot plus operation log.
type treeState struct {
	Snapshot *models.TaskNode       `json:"snapshot"`
	Pending  []models.TaskOperation `json:"pending,omitempty"`
}

// SerializeState produces a plain document sufficient to resume the
// session in a new process: the snapshot and the ordered operation log.
func (t *Tree) SerializeState() ([]byte, error) {
	data, err := json.Marshal(treeState{Snapshot: t.snapshot.Root(), Pending: t.pending})
	if err != nil {
		return nil, fmt.Errorf("serialize tracking state: %w", err)
	}
	return data, nil
}

// DeserializeTreeState reconstructs a tracking tree from SerializeState
// output. The round-trip is exact: snapshot shape, operation order and
// content all survive.
func DeserializeTreeState(data []byte) (*Tree, error) {
	var state treeState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("deserialize tracking state: %w", err)
	}
	if state.Snapshot == nil {
		return nil, types.Structuralf("tracking state has no snapshot")
	}
	return &Tree{snapshot: tree.New(state.Snapshot), pending: state.Pending}, nil
}

// Flush replays the pending-operation log against the store. On full
// success the returned tree has an empty log and a snapshot rewritten with
// the durable identities the store assigned. On partial failure the failed
// operations remain queued (with successful assignments already applied)
// and a ReconciliationError carries the failed/succeeded split. A
// cancelled context leaves the log reduced to exactly the unconfirmed
// tail. Flush must not be invoked concurrently on the same value.
func (t *Tree) Flush(ctx context.Context, st store.TaskStore) (*Tree, error) {
	if !t.inFlight.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("flush already in flight for this tracking tree")
	}
	defer t.inFlight.Store(false)

	plan := t.Plan()
	if len(plan.Steps) == 0 {
		return t, nil
	}
	if err := idmap.NewMapper().ValidateMappings(plan.RequiredIDs()); err != nil {
		return nil, err
	}

	ops := plan.Operations()
	slog.Debug("flushing tracking tree", "operations", len(ops))

	results, err := st.ApplyOperations(ctx, ops)
	if err != nil {
		// Batch-level failure: nothing was committed, the log stands.
		return t, fmt.Errorf("flush: %w", err)
	}

	mapper := idmap.NewMapper()
	var failed []types.FailedOperation
	var succeeded []types.SucceededOperation
	var remaining []models.TaskOperation

	for i := range ops {
		op := ops[i]
		if i >= len(results) {
			failed = append(failed, types.FailedOperation{
				Op:     types.OperationRef{TaskOp: &op},
				Reason: "no result reported by store",
			})
			remaining = append(remaining, op)
			continue
		}
		res := results[i]
		if res.Err != nil {
			failed = append(failed, types.FailedOperation{
				Op:     types.OperationRef{TaskOp: &op},
				Reason: res.Err.Error(),
			})
			remaining = append(remaining, op)
			continue
		}
		if err := mapper.AddAll(res.AssignedIDs); err != nil {
			return nil, err
		}
		succeeded = append(succeeded, types.SucceededOperation{
			Op:          types.OperationRef{TaskOp: &op},
			AssignedIDs: res.AssignedIDs,
		})
	}

	out := t.derive(t.snapshot, remaining).remap(mapper)
	if len(failed) > 0 {
		slog.Debug("flush partially failed", "failed", len(failed), "succeeded", len(succeeded))
		return out, &types.ReconciliationError{Failed: failed, Succeeded: succeeded}
	}
	return out, nil
}
