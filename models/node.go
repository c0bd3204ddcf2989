package models

// TaskNode pairs a task with its ordered children. It is the serializable
// subtree payload shared by tree snapshots and insert-child operations.
// Child order is insertion order and carries no meaning beyond display.
type TaskNode struct {
	Task     Task        `json:"task"`
	Children []*TaskNode `json:"children,omitempty"`
}

// NewTaskNode wraps a task and its children into a node.
func NewTaskNode(task Task, children ...*TaskNode) *TaskNode {
	return &TaskNode{Task: task, Children: children}
}

// Clone returns a deep copy of the node and all descendants.
func (n *TaskNode) Clone() *TaskNode {
	if n == nil {
		return nil
	}
	out := &TaskNode{Task: n.Task}
	if n.Task.ParentID != nil {
		pid := *n.Task.ParentID
		out.Task.ParentID = &pid
	}
	if n.Task.CompletedAt != nil {
		ts := *n.Task.CompletedAt
		out.Task.CompletedAt = &ts
	}
	if len(n.Children) > 0 {
		out.Children = make([]*TaskNode, len(n.Children))
		for i, c := range n.Children {
			out.Children[i] = c.Clone()
		}
	}
	return out
}

// IDs returns every identity in the subtree, parent before children.
func (n *TaskNode) IDs() []string {
	if n == nil {
		return nil
	}
	ids := []string{n.Task.ID}
	for _, c := range n.Children {
		ids = append(ids, c.IDs()...)
	}
	return ids
}
