package graph

// Cycle detection walks depends-on edges, so a reported cycle reads
// "d depends on q depends on ... depends on d".

// WouldCreateCycle simulates adding the edge (dependent depends on
// dependency) and reports whether a cycle would form. If so, the offending
// cycle is returned as an ordered identity list starting and ending at the
// dependent. Detection is restricted to the component reachable from the
// new dependency; the rest of the graph is untouched.
//
// Must be consulted before accepting any edge mutation.
func (g *Graph) WouldCreateCycle(dependentID, dependencyID string) (bool, []string) {
	if dependentID == dependencyID {
		return true, []string{dependentID, dependencyID}
	}
	// A cycle forms exactly when the dependency already reaches the
	// dependent through its own dependency chain.
	path := g.dependsOnPath(dependencyID, dependentID)
	if path == nil {
		return false, nil
	}
	return true, append([]string{dependentID}, path...)
}

// dependsOnPath returns the chain from -> ... -> to along depends-on
// edges, or nil if none exists.
func (g *Graph) dependsOnPath(from, to string) []string {
	visited := make(map[string]bool)

	var dfs func(id string, prefix []string) []string
	dfs = func(id string, prefix []string) []string {
		visited[id] = true
		path := append(prefix, id)
		if id == to {
			out := make([]string, len(path))
			copy(out, path)
			return out
		}
		for _, dep := range g.dependsOn[id] {
			if visited[dep] {
				continue
			}
			if found := dfs(dep, path); found != nil {
				return found
			}
		}
		return nil
	}

	return dfs(from, nil)
}

// dfs node colors: unvisited, in the current recursion stack, done.
const (
	colorWhite = 0
	colorGray  = 1
	colorBlack = 2
)

// FindCycles enumerates every cycle reachable in the graph. A node
// revisited while still in the recursion stack closes a cycle, recorded
// from its first occurrence in the stack back to itself. Nodes already
// accounted for by one cycle are not re-reported through another entry
// point.
func (g *Graph) FindCycles() [][]string {
	color := make(map[string]int, len(g.tasks))
	var stack []string
	var cycles [][]string

	var dfs func(id string)
	dfs = func(id string) {
		color[id] = colorGray
		stack = append(stack, id)

		for _, dep := range g.dependsOn[id] {
			switch color[dep] {
			case colorWhite:
				dfs(dep)
			case colorGray:
				// Back edge: slice the stack from dep's first
				// occurrence and close the loop.
				for i, sid := range stack {
					if sid == dep {
						cycle := append([]string(nil), stack[i:]...)
						cycles = append(cycles, append(cycle, dep))
						break
					}
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = colorBlack
	}

	for _, id := range g.order {
		if color[id] == colorWhite {
			dfs(id)
		}
	}
	return cycles
}
