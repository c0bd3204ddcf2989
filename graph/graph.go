// Package graph provides an immutable snapshot of tasks and the dependency
// edges between them: cycle safety, topological ordering and
// blocked/executable queries.
//
// The graph is an adjacency map keyed by identity rather than a web of
// object references, which keeps it trivially serializable and makes cycle
// detection a plain two-color depth-first search.
package graph

import (
	"github.com/josephgoksu/TrackWing/models"
	"github.com/josephgoksu/TrackWing/types"
)

// Graph is an immutable snapshot of tasks and dependency edges.
type Graph struct {
	tasks map[string]models.Task
	order []string // task ids in stable input order

	// dependsOn maps a dependent to its dependencies; dependents is the
	// reverse adjacency.
	dependsOn  map[string][]string
	dependents map[string][]string

	edges   map[models.Dependency]bool
	edgeSeq []models.Dependency // edges in stable input order
}

// New builds a graph from a task list and an edge list. Self-edges,
// duplicate edges, duplicate tasks and edges touching unknown tasks are
// rejected with explicit errors rather than silently dropped.
func New(tasks []models.Task, edges []models.Dependency) (*Graph, error) {
	g := &Graph{
		tasks:      make(map[string]models.Task, len(tasks)),
		dependsOn:  make(map[string][]string),
		dependents: make(map[string][]string),
		edges:      make(map[models.Dependency]bool, len(edges)),
	}

	for _, task := range tasks {
		if _, dup := g.tasks[task.ID]; dup {
			return nil, types.Structuralf("duplicate task %s", task.ID)
		}
		g.tasks[task.ID] = task
		g.order = append(g.order, task.ID)
	}

	for _, e := range edges {
		if err := g.addEdge(e); err != nil {
			return nil, err
		}
	}

	if cycles := g.FindCycles(); len(cycles) > 0 {
		return nil, &types.StructuralValidationError{
			Msg:   "dependency graph contains a cycle",
			Cycle: cycles[0],
		}
	}

	return g, nil
}

// addEdge validates and wires one edge in place. Only used while building
// a not-yet-shared graph value.
func (g *Graph) addEdge(e models.Dependency) error {
	if e.DependentID == e.DependencyID {
		return types.Structuralf("task %s cannot depend on itself", e.DependentID)
	}
	if _, ok := g.tasks[e.DependentID]; !ok {
		return types.Structuralf("edge references unknown task %s", e.DependentID)
	}
	if _, ok := g.tasks[e.DependencyID]; !ok {
		return types.Structuralf("edge references unknown task %s", e.DependencyID)
	}
	if g.edges[e] {
		return types.Structuralf("duplicate edge %s -> %s", e.DependentID, e.DependencyID)
	}
	g.edges[e] = true
	g.edgeSeq = append(g.edgeSeq, e)
	g.dependsOn[e.DependentID] = append(g.dependsOn[e.DependentID], e.DependencyID)
	g.dependents[e.DependencyID] = append(g.dependents[e.DependencyID], e.DependentID)
	return nil
}

// clone returns a mutable deep copy sharing no state with the receiver.
func (g *Graph) clone() *Graph {
	out := &Graph{
		tasks:      make(map[string]models.Task, len(g.tasks)),
		order:      append([]string(nil), g.order...),
		dependsOn:  make(map[string][]string, len(g.dependsOn)),
		dependents: make(map[string][]string, len(g.dependents)),
		edges:      make(map[models.Dependency]bool, len(g.edges)),
		edgeSeq:    append([]models.Dependency(nil), g.edgeSeq...),
	}
	for id, task := range g.tasks {
		out.tasks[id] = task
	}
	for id, deps := range g.dependsOn {
		out.dependsOn[id] = append([]string(nil), deps...)
	}
	for id, deps := range g.dependents {
		out.dependents[id] = append([]string(nil), deps...)
	}
	for e := range g.edges {
		out.edges[e] = true
	}
	return out
}

// WithTask returns a new graph that also contains the given task. Updating
// an existing identity replaces its task data and keeps its edges.
func (g *Graph) WithTask(task models.Task) *Graph {
	out := g.clone()
	if _, exists := out.tasks[task.ID]; !exists {
		out.order = append(out.order, task.ID)
	}
	out.tasks[task.ID] = task
	return out
}

// WithEdge returns a new graph containing the edge. The edge must be
// cycle-safe: WouldCreateCycle is consulted before the mutation is
// accepted.
func (g *Graph) WithEdge(dependentID, dependencyID string) (*Graph, error) {
	e := models.Dependency{DependentID: dependentID, DependencyID: dependencyID}
	if has, cycle := g.WouldCreateCycle(dependentID, dependencyID); has {
		return nil, &types.StructuralValidationError{
			Msg:   "adding edge would create a cycle",
			Cycle: cycle,
		}
	}
	out := g.clone()
	if err := out.addEdge(e); err != nil {
		return nil, err
	}
	return out, nil
}

// WithoutEdge returns a new graph without the edge. Removing an edge that
// is not present is an explicit error.
func (g *Graph) WithoutEdge(dependentID, dependencyID string) (*Graph, error) {
	e := models.Dependency{DependentID: dependentID, DependencyID: dependencyID}
	if !g.edges[e] {
		return nil, types.Structuralf("no edge %s -> %s", dependentID, dependencyID)
	}
	out := g.clone()
	delete(out.edges, e)
	out.edgeSeq = removeEdge(out.edgeSeq, e)
	out.dependsOn[dependentID] = removeID(out.dependsOn[dependentID], dependencyID)
	out.dependents[dependencyID] = removeID(out.dependents[dependencyID], dependentID)
	return out, nil
}

func removeEdge(edges []models.Dependency, e models.Dependency) []models.Dependency {
	out := make([]models.Dependency, 0, len(edges))
	for _, x := range edges {
		if x != e {
			out = append(out, x)
		}
	}
	return out
}

func removeID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

// Task returns the task for an identity.
func (g *Graph) Task(id string) (models.Task, bool) {
	task, ok := g.tasks[id]
	return task, ok
}

// HasTask reports whether the identity is in the graph.
func (g *Graph) HasTask(id string) bool {
	_, ok := g.tasks[id]
	return ok
}

// Tasks returns every task in stable input order.
func (g *Graph) Tasks() []models.Task {
	out := make([]models.Task, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.tasks[id])
	}
	return out
}

// Edges returns every edge in stable input order.
func (g *Graph) Edges() []models.Dependency {
	return append([]models.Dependency(nil), g.edgeSeq...)
}

// HasEdge reports whether the exact edge is present.
func (g *Graph) HasEdge(dependentID, dependencyID string) bool {
	return g.edges[models.Dependency{DependentID: dependentID, DependencyID: dependencyID}]
}

// Dependencies returns what the task depends on.
func (g *Graph) Dependencies(id string) []string {
	return append([]string(nil), g.dependsOn[id]...)
}

// Dependents returns the tasks depending on the given task.
func (g *Graph) Dependents(id string) []string {
	return append([]string(nil), g.dependents[id]...)
}
