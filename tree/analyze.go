package tree

import "github.com/josephgoksu/TrackWing/models"

// Count returns the number of nodes in the tree.
func (t *Tree) Count() int {
	n := 0
	t.WalkPreOrder(func(*models.TaskNode, int) bool {
		n++
		return true
	})
	return n
}

// Height returns the length of the longest root-to-leaf path in edges.
// A single-node tree has height 0.
func (t *Tree) Height() int {
	max := 0
	t.WalkPreOrder(func(_ *models.TaskNode, depth int) bool {
		if depth > max {
			max = depth
		}
		return true
	})
	return max
}

// Depth returns the depth of the node with the given identity (root is 0),
// or -1 if the identity is not in the tree.
func (t *Tree) Depth(id string) int {
	path := t.FindPath(id)
	if path == nil {
		return -1
	}
	return len(path) - 1
}

// Leaves returns every node without children, in pre-order.
func (t *Tree) Leaves() []*models.TaskNode {
	var out []*models.TaskNode
	t.WalkPreOrder(func(n *models.TaskNode, _ int) bool {
		if len(n.Children) == 0 {
			out = append(out, n)
		}
		return true
	})
	return out
}

// IsAncestor reports whether ancestorID lies strictly above id.
func (t *Tree) IsAncestor(ancestorID, id string) bool {
	if ancestorID == id {
		return false
	}
	path := t.FindPath(id)
	for _, n := range path[:max0(len(path)-1)] {
		if n.Task.ID == ancestorID {
			return true
		}
	}
	return false
}

// IsDescendant reports whether descendantID lies strictly below id.
func (t *Tree) IsDescendant(descendantID, id string) bool {
	return t.IsAncestor(id, descendantID)
}

// Siblings returns the other children of the node's parent. The root has
// no siblings.
func (t *Tree) Siblings(id string) []*models.TaskNode {
	cur := t.At(id)
	if cur == nil || cur.Parent() == nil {
		return nil
	}
	var out []*models.TaskNode
	for _, c := range cur.Parent().Children {
		if c.Task.ID != id {
			out = append(out, c)
		}
	}
	return out
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
