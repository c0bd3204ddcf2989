package graph

import "github.com/josephgoksu/TrackWing/models"

// IsBlocked reports whether any dependency of the task still gates it.
// Done dependencies are satisfied; cancelled (and archived) dependencies
// are also treated as non-blocking, matching the domain rule that
// cancelled work cannot gate others. Callers wanting a stricter policy can
// walk Dependencies themselves.
func (g *Graph) IsBlocked(id string) bool {
	for _, dep := range g.dependsOn[id] {
		if task, ok := g.tasks[dep]; ok && task.Status.IsActive() {
			return true
		}
	}
	return false
}

// ExecutableTasks returns, in stable input order, the tasks that are still
// open and have no active dependencies.
func (g *Graph) ExecutableTasks() []models.Task {
	var out []models.Task
	for _, id := range g.order {
		task := g.tasks[id]
		if !task.Status.IsActive() {
			continue
		}
		if g.IsBlocked(id) {
			continue
		}
		out = append(out, task)
	}
	return out
}
