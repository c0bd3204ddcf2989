package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/josephgoksu/TrackWing/graph"
	"github.com/josephgoksu/TrackWing/idmap"
	"github.com/josephgoksu/TrackWing/internal/util"
	"github.com/josephgoksu/TrackWing/models"
	"github.com/josephgoksu/TrackWing/store"
	"github.com/josephgoksu/TrackWing/types"
)

// Graph is the dependency-edge analogue of Tree: a graph.Graph snapshot
// with a pending add-edge/remove-edge log. Cycle safety is enforced at
// mutation time through the snapshot, so the log never carries a
// cycle-unsafe edge.
//
// Edge operations have no ordering constraint among themselves, but an
// edge referencing a temporary task identity must be flushed after that
// task's creation has been reconciled on the tree side; sequencing the two
// structures is the caller's job.
type Graph struct {
	snapshot *graph.Graph
	pending  []models.DependencyOperation

	inFlight atomic.Bool
}

// NewGraph starts a tracking session over an existing dependency snapshot.
func NewGraph(snapshot *graph.Graph) *Graph {
	return &Graph{snapshot: snapshot}
}

// Snapshot returns the current in-memory snapshot, including all pending
// edits.
func (g *Graph) Snapshot() *graph.Graph { return g.snapshot }

// Pending returns a copy of the pending-operation log in append order.
func (g *Graph) Pending() []models.DependencyOperation {
	return append([]models.DependencyOperation(nil), g.pending...)
}

// HasPending reports whether any operation awaits reconciliation.
func (g *Graph) HasPending() bool { return len(g.pending) > 0 }

func (g *Graph) derive(snapshot *graph.Graph, pending []models.DependencyOperation) *Graph {
	return &Graph{snapshot: snapshot, pending: pending}
}

// AddDependency records that dependent cannot proceed until dependency is
// done. The edge is checked for cycle safety before being accepted. A
// queued removal of the same edge cancels out instead of queueing the
// re-add.
func (g *Graph) AddDependency(dependentID, dependencyID string) (*Graph, error) {
	snapshot, err := g.snapshot.WithEdge(dependentID, dependencyID)
	if err != nil {
		return nil, err
	}

	edge := models.Dependency{DependentID: dependentID, DependencyID: dependencyID}
	if pending, cancelled := cancelPendingEdgeOp(g.pending, models.OpRemoveEdge, edge); cancelled {
		return g.derive(snapshot, pending), nil
	}
	op := models.DependencyOperation{Type: models.OpAddEdge, Edge: edge}
	return g.derive(snapshot, append(g.Pending(), op)), nil
}

// RemoveDependency removes the edge. Removing an edge added earlier in
// this session cancels the queued add instead.
func (g *Graph) RemoveDependency(dependentID, dependencyID string) (*Graph, error) {
	snapshot, err := g.snapshot.WithoutEdge(dependentID, dependencyID)
	if err != nil {
		return nil, err
	}

	edge := models.Dependency{DependentID: dependentID, DependencyID: dependencyID}
	if pending, cancelled := cancelPendingEdgeOp(g.pending, models.OpAddEdge, edge); cancelled {
		return g.derive(snapshot, pending), nil
	}
	op := models.DependencyOperation{Type: models.OpRemoveEdge, Edge: edge}
	return g.derive(snapshot, append(g.Pending(), op)), nil
}

// cancelPendingEdgeOp drops the queued operation of the given type on the
// exact edge, if present.
func cancelPendingEdgeOp(pending []models.DependencyOperation, typ models.DependencyOperationType, edge models.Dependency) ([]models.DependencyOperation, bool) {
	for i, op := range pending {
		if op.Type == typ && op.Edge == edge {
			out := append([]models.DependencyOperation(nil), pending[:i]...)
			return append(out, pending[i+1:]...), true
		}
	}
	return nil, false
}

// Plan returns the pending edge operations in append order.
func (g *Graph) Plan() []models.DependencyOperation {
	return g.Pending()
}

// RequiredIDs returns every task identity the pending operations touch.
// Edge operations never create identities, so all of them must be
// resolvable before a flush.
func (g *Graph) RequiredIDs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, op := range g.pending {
		for _, id := range []string{op.Edge.DependentID, op.Edge.DependencyID} {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// ApplyIdentityMappings rewrites both endpoints of every pending operation
// and the snapshot itself. Re-applying the same mapping is a no-op beyond
// the first application.
func (g *Graph) ApplyIdentityMappings(mappings map[string]string) (*Graph, error) {
	mapper := idmap.NewMapper()
	if err := mapper.AddAll(mappings); err != nil {
		return nil, err
	}
	return g.remap(mapper)
}

func (g *Graph) remap(mapper *idmap.Mapper) (*Graph, error) {
	tasks := g.snapshot.Tasks()
	for i := range tasks {
		tasks[i].ID = mapper.Resolve(tasks[i].ID)
		if tasks[i].ParentID != nil {
			resolved := mapper.Resolve(*tasks[i].ParentID)
			tasks[i].ParentID = &resolved
		}
	}
	edges := g.snapshot.Edges()
	for i := range edges {
		edges[i].DependentID = mapper.Resolve(edges[i].DependentID)
		edges[i].DependencyID = mapper.Resolve(edges[i].DependencyID)
	}
	snapshot, err := graph.New(tasks, edges)
	if err != nil {
		return nil, err
	}

	pending := make([]models.DependencyOperation, len(g.pending))
	for i, op := range g.pending {
		pending[i] = mapper.ApplyToDependencyOperation(op)
	}
	return g.derive(snapshot, pending), nil
}

// graphState is the serialized session form: snapshot plus operation log.
type graphState struct {
	Tasks   []models.Task                `json:"tasks"`
	Edges   []models.Dependency          `json:"edges,omitempty"`
	Pending []models.DependencyOperation `json:"pending,omitempty"`
}

// SerializeState produces a plain document sufficient to resume the
// session in a new process.
func (g *Graph) SerializeState() ([]byte, error) {
	data, err := json.Marshal(graphState{
		Tasks:   g.snapshot.Tasks(),
		Edges:   g.snapshot.Edges(),
		Pending: g.pending,
	})
	if err != nil {
		return nil, fmt.Errorf("serialize tracking state: %w", err)
	}
	return data, nil
}

// DeserializeGraphState reconstructs a tracking graph from SerializeState
// output.
func DeserializeGraphState(data []byte) (*Graph, error) {
	var state graphState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("deserialize tracking state: %w", err)
	}
	snapshot, err := graph.New(state.Tasks, state.Edges)
	if err != nil {
		return nil, err
	}
	return &Graph{snapshot: snapshot, pending: state.Pending}, nil
}

// Flush replays the pending edge operations against the store, with the
// same success/partial-failure contract as Tree.Flush. Temporary
// identities must have been remapped before flushing; edges never create
// identities of their own.
func (g *Graph) Flush(ctx context.Context, st store.TaskStore) (*Graph, error) {
	if !g.inFlight.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("flush already in flight for this tracking graph")
	}
	defer g.inFlight.Store(false)

	if len(g.pending) == 0 {
		return g, nil
	}
	if err := idmap.NewMapper().ValidateMappings(g.RequiredIDs()); err != nil {
		return nil, err
	}

	ops := g.Pending()
	slog.Debug("flushing tracking graph", "operations", len(ops))

	results, err := st.ApplyDependencyOperations(ctx, ops)
	if err != nil {
		return g, fmt.Errorf("flush: %w", err)
	}

	var failed []types.FailedOperation
	var succeeded []types.SucceededOperation
	var remaining []models.DependencyOperation

	for i := range ops {
		op := ops[i]
		if i >= len(results) {
			failed = append(failed, types.FailedOperation{
				Op:     types.OperationRef{DepOp: &op},
				Reason: "no result reported by store",
			})
			remaining = append(remaining, op)
			continue
		}
		if res := results[i]; res.Err != nil {
			failed = append(failed, types.FailedOperation{
				Op:     types.OperationRef{DepOp: &op},
				Reason: res.Err.Error(),
			})
			remaining = append(remaining, op)
			continue
		}
		succeeded = append(succeeded, types.SucceededOperation{Op: types.OperationRef{DepOp: &op}})
	}

	out := g.derive(g.snapshot, remaining)
	if len(failed) > 0 {
		slog.Debug("flush partially failed", "failed", len(failed), "succeeded", len(succeeded))
		return out, &types.ReconciliationError{Failed: failed, Succeeded: succeeded}
	}
	return out, nil
}

// RequiredTempIDs returns only the temporary identities among RequiredIDs,
// handy for callers sequencing the tree and graph flushes.
func (g *Graph) RequiredTempIDs() []string {
	var out []string
	for _, id := range g.RequiredIDs() {
		if util.IsTempID(id) {
			out = append(out, id)
		}
	}
	return out
}
