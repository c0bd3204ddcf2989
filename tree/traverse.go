package tree

import "github.com/josephgoksu/TrackWing/models"

// Visit is called for each node during a traversal. Returning false stops
// the walk early.
type Visit func(node *models.TaskNode, depth int) bool

// WalkPreOrder visits each node exactly once, a parent strictly before its
// children. Used for validation and serialization.
func (t *Tree) WalkPreOrder(visit Visit) {
	preOrder(t.root, 0, visit)
}

func preOrder(n *models.TaskNode, depth int, visit Visit) bool {
	if !visit(n, depth) {
		return false
	}
	for _, c := range n.Children {
		if !preOrder(c, depth+1, visit) {
			return false
		}
	}
	return true
}

// WalkPostOrder visits children before their parent. Used for bottom-up
// aggregation such as progress roll-up.
func (t *Tree) WalkPostOrder(visit Visit) {
	postOrder(t.root, 0, visit)
}

func postOrder(n *models.TaskNode, depth int, visit Visit) bool {
	for _, c := range n.Children {
		if !postOrder(c, depth+1, visit) {
			return false
		}
	}
	return visit(n, depth)
}

// WalkBreadthFirst visits nodes level by level. Used for display.
func (t *Tree) WalkBreadthFirst(visit Visit) {
	type entry struct {
		node  *models.TaskNode
		depth int
	}
	queue := []entry{{t.root, 0}}
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]
		if !visit(e.node, e.depth) {
			return
		}
		for _, c := range e.node.Children {
			queue = append(queue, entry{c, e.depth + 1})
		}
	}
}

// Tasks returns every task in pre-order.
func (t *Tree) Tasks() []models.Task {
	var out []models.Task
	t.WalkPreOrder(func(n *models.TaskNode, _ int) bool {
		out = append(out, n.Task)
		return true
	})
	return out
}
