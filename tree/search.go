package tree

import "github.com/josephgoksu/TrackWing/models"

// Find returns the first node (pre-order) whose task matches pred, or nil.
// The walk short-circuits on the first match.
func (t *Tree) Find(pred func(models.Task) bool) *models.TaskNode {
	var found *models.TaskNode
	t.WalkPreOrder(func(n *models.TaskNode, _ int) bool {
		if pred(n.Task) {
			found = n
			return false
		}
		return true
	})
	return found
}

// FindByID returns the node with the given identity, or nil.
func (t *Tree) FindByID(id string) *models.TaskNode {
	return t.Find(func(task models.Task) bool { return task.ID == id })
}

// Filter returns all nodes (pre-order) whose task matches pred.
func (t *Tree) Filter(pred func(models.Task) bool) []*models.TaskNode {
	var out []*models.TaskNode
	t.WalkPreOrder(func(n *models.TaskNode, _ int) bool {
		if pred(n.Task) {
			out = append(out, n)
		}
		return true
	})
	return out
}

// FindPath returns the root-to-target chain for the given identity, or nil
// if the identity is not in the tree.
func (t *Tree) FindPath(id string) []*models.TaskNode {
	return findPath(t.root, id, nil)
}

func findPath(n *models.TaskNode, id string, prefix []*models.TaskNode) []*models.TaskNode {
	path := append(prefix, n)
	if n.Task.ID == id {
		out := make([]*models.TaskNode, len(path))
		copy(out, path)
		return out
	}
	for _, c := range n.Children {
		if found := findPath(c, id, path); found != nil {
			return found
		}
	}
	return nil
}
