// Package tree provides an immutable snapshot of one task and its subtree:
// traversal, search, transformation and metric aggregation. It has no
// knowledge of persistence; mutating helpers return new trees.
package tree

import (
	"github.com/josephgoksu/TrackWing/models"
	"github.com/josephgoksu/TrackWing/types"
)

// Tree is an immutable rooted hierarchy of tasks.
type Tree struct {
	root *models.TaskNode
}

// New wraps an existing node as a tree. The node is not copied; callers
// must not mutate it afterwards.
func New(root *models.TaskNode) *Tree {
	return &Tree{root: root}
}

// FromTask builds a tree from a task and its child subtrees. No validation
// beyond shape; use Validate for invariant checks.
func FromTask(task models.Task, children ...*models.TaskNode) *Tree {
	return &Tree{root: models.NewTaskNode(task, children...)}
}

// Root returns the root node.
func (t *Tree) Root() *models.TaskNode { return t.root }

// Data returns the root task.
func (t *Tree) Data() models.Task { return t.root.Task }

// Children returns the root's direct child subtrees.
func (t *Tree) Children() []*models.TaskNode { return t.root.Children }

// Clone returns a deep copy of the tree.
func (t *Tree) Clone() *Tree {
	return &Tree{root: t.root.Clone()}
}

// Cursor is a path-aware view of one node: the bare node only knows its
// descendants, so parent access goes through the root-to-node chain the
// cursor carries.
type Cursor struct {
	path []*models.TaskNode // root first, target last
}

// At returns a cursor for the node with the given identity, or nil if the
// identity is not in the tree.
func (t *Tree) At(id string) *Cursor {
	path := t.FindPath(id)
	if path == nil {
		return nil
	}
	return &Cursor{path: path}
}

// Node returns the node the cursor points at.
func (c *Cursor) Node() *models.TaskNode { return c.path[len(c.path)-1] }

// Parent returns the parent node, or nil for the root.
func (c *Cursor) Parent() *models.TaskNode {
	if len(c.path) < 2 {
		return nil
	}
	return c.path[len(c.path)-2]
}

// Ancestors returns the chain above the node, nearest first.
func (c *Cursor) Ancestors() []*models.TaskNode {
	out := make([]*models.TaskNode, 0, len(c.path)-1)
	for i := len(c.path) - 2; i >= 0; i-- {
		out = append(out, c.path[i])
	}
	return out
}

// Depth returns the cursor node's depth; the root is at depth 0.
func (c *Cursor) Depth() int { return len(c.path) - 1 }

// Insert returns a new tree with the subtree attached under parentID. The
// child's stored parent reference is rewritten to match. Fails if the
// parent is missing or the subtree introduces a duplicate identity.
func (t *Tree) Insert(parentID string, child *models.TaskNode) (*Tree, error) {
	if t.FindByID(parentID) == nil {
		return nil, types.Structuralf("insert: parent %s not in tree", parentID)
	}
	seen := idSet(t.root)
	for _, id := range child.IDs() {
		if seen[id] {
			return nil, types.Structuralf("insert: identity %s already in tree", id)
		}
	}
	child = child.Clone()
	pid := parentID
	child.Task.ParentID = &pid

	root := rebuild(t.root, parentID, func(n *models.TaskNode) {
		n.Children = append(n.Children, child)
	})
	return &Tree{root: root}, nil
}

// Remove returns a new tree without the named child of parentID, plus the
// detached subtree. Removing the root is not possible through this API.
func (t *Tree) Remove(parentID, childID string) (*Tree, *models.TaskNode, error) {
	parent := t.FindByID(parentID)
	if parent == nil {
		return nil, nil, types.Structuralf("remove: parent %s not in tree", parentID)
	}
	var removed *models.TaskNode
	for _, c := range parent.Children {
		if c.Task.ID == childID {
			removed = c
			break
		}
	}
	if removed == nil {
		return nil, nil, types.Structuralf("remove: %s is not a child of %s", childID, parentID)
	}

	root := rebuild(t.root, parentID, func(n *models.TaskNode) {
		kept := make([]*models.TaskNode, 0, len(n.Children)-1)
		for _, c := range n.Children {
			if c.Task.ID != childID {
				kept = append(kept, c)
			}
		}
		n.Children = kept
	})
	return &Tree{root: root}, removed, nil
}

// Update returns a new tree with the task under id replaced by apply's
// result. The identity and parent reference are preserved.
func (t *Tree) Update(id string, apply func(models.Task) models.Task) (*Tree, error) {
	if t.FindByID(id) == nil {
		return nil, types.Structuralf("update: %s not in tree", id)
	}
	root := rebuild(t.root, id, func(n *models.TaskNode) {
		updated := apply(n.Task)
		updated.ID = n.Task.ID
		updated.ParentID = n.Task.ParentID
		n.Task = updated
	})
	return &Tree{root: root}, nil
}

// Move returns a new tree with the subtree under id re-attached below
// newParentID. Moving the root, moving under the node itself or moving
// under one of its descendants is rejected.
func (t *Tree) Move(id, newParentID string) (*Tree, error) {
	cur := t.At(id)
	if cur == nil {
		return nil, types.Structuralf("move: %s not in tree", id)
	}
	if cur.Parent() == nil {
		return nil, types.Structuralf("move: cannot move the root %s", id)
	}
	if id == newParentID || t.IsAncestor(id, newParentID) {
		return nil, types.Structuralf("move: %s cannot be moved under its own subtree (%s)", id, newParentID)
	}
	if t.FindByID(newParentID) == nil {
		return nil, types.Structuralf("move: parent %s not in tree", newParentID)
	}

	detached, subtree, err := t.Remove(cur.Parent().Task.ID, id)
	if err != nil {
		return nil, err
	}
	return detached.Insert(newParentID, subtree)
}

// Map returns a new tree with fn applied to every task, parent before
// children. fn may rewrite any field, including the identity.
func (t *Tree) Map(fn func(models.Task) models.Task) *Tree {
	return &Tree{root: mapNode(t.root, fn)}
}

func mapNode(n *models.TaskNode, fn func(models.Task) models.Task) *models.TaskNode {
	out := &models.TaskNode{Task: fn(n.Task)}
	if len(n.Children) > 0 {
		out.Children = make([]*models.TaskNode, len(n.Children))
		for i, c := range n.Children {
			out.Children[i] = mapNode(c, fn)
		}
	}
	return out
}

// rebuild deep-copies the tree, invoking mutate on the copy of the node
// with the given identity. The original tree is left untouched.
func rebuild(n *models.TaskNode, id string, mutate func(*models.TaskNode)) *models.TaskNode {
	out := &models.TaskNode{Task: n.Task}
	if len(n.Children) > 0 {
		out.Children = make([]*models.TaskNode, len(n.Children))
		for i, c := range n.Children {
			out.Children[i] = rebuild(c, id, mutate)
		}
	}
	if n.Task.ID == id {
		mutate(out)
	}
	return out
}

func idSet(n *models.TaskNode) map[string]bool {
	set := make(map[string]bool)
	for _, id := range n.IDs() {
		set[id] = true
	}
	return set
}
