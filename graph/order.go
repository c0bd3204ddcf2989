package graph

import (
	"container/heap"

	"github.com/josephgoksu/TrackWing/types"
)

// TopologicalOrder returns the requested identities ordered so that every
// dependency precedes its dependents, using Kahn's algorithm restricted to
// the subset. Ties are broken by stable input order. Identities not in the
// graph and edges leaving the subset are ignored.
//
// A cycle inside the subset is a structural error; it should not happen if
// edges were validated at insertion time.
func (g *Graph) TopologicalOrder(subset []string) ([]string, error) {
	inSubset := make(map[string]bool, len(subset))
	for _, id := range subset {
		if g.HasTask(id) {
			inSubset[id] = true
		}
	}

	// Rank by stable input order for deterministic tie-breaking.
	rank := make(map[string]int, len(g.order))
	for i, id := range g.order {
		rank[id] = i
	}

	indeg := make(map[string]int, len(inSubset))
	for id := range inSubset {
		for _, dep := range g.dependsOn[id] {
			if inSubset[dep] {
				indeg[id]++
			}
		}
	}

	ready := &rankHeap{rank: rank}
	heap.Init(ready)
	for id := range inSubset {
		if indeg[id] == 0 {
			heap.Push(ready, id)
		}
	}

	out := make([]string, 0, len(inSubset))
	for ready.Len() > 0 {
		id := heap.Pop(ready).(string)
		out = append(out, id)
		for _, dependent := range g.dependents[id] {
			if !inSubset[dependent] {
				continue
			}
			indeg[dependent]--
			if indeg[dependent] == 0 {
				heap.Push(ready, dependent)
			}
		}
	}

	if len(out) != len(inSubset) {
		err := &types.StructuralValidationError{Msg: "topological order requested for a cyclic subset"}
		if cycles := g.FindCycles(); len(cycles) > 0 {
			err.Cycle = cycles[0]
		}
		return nil, err
	}
	return out, nil
}

// rankHeap is a min-heap of identities ordered by input rank.
type rankHeap struct {
	ids  []string
	rank map[string]int
}

func (h *rankHeap) Len() int           { return len(h.ids) }
func (h *rankHeap) Less(i, j int) bool { return h.rank[h.ids[i]] < h.rank[h.ids[j]] }
func (h *rankHeap) Swap(i, j int)      { h.ids[i], h.ids[j] = h.ids[j], h.ids[i] }
func (h *rankHeap) Push(x any)         { h.ids = append(h.ids, x.(string)) }
func (h *rankHeap) Pop() any {
	old := h.ids
	n := len(old)
	x := old[n-1]
	h.ids = old[:n-1]
	return x
}
