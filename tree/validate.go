package tree

import (
	"fmt"

	"github.com/josephgoksu/TrackWing/models"
)

// IssueSeverity classifies a structural finding.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// Issue is one structural finding from Validate. Malformed input is
// reported this way rather than through errors so the caller can choose to
// warn or reject.
type Issue struct {
	Severity IssueSeverity `json:"severity"`
	TaskID   string        `json:"taskId"`
	Message  string        `json:"message"`
}

// Validate checks the tree's structural invariants:
//
//   - no identity appears twice within one tree (error)
//   - every child's stored parent identity equals its parent node's
//     identity (error)
//   - a done task should not have children in an active status (warning;
//     the domain treats this as suspicious, not fatal)
func (t *Tree) Validate() []Issue {
	var issues []Issue
	seen := make(map[string]bool)

	t.WalkPreOrder(func(n *models.TaskNode, _ int) bool {
		if seen[n.Task.ID] {
			issues = append(issues, Issue{
				Severity: SeverityError,
				TaskID:   n.Task.ID,
				Message:  fmt.Sprintf("duplicate identity %s", n.Task.ID),
			})
		}
		seen[n.Task.ID] = true

		for _, c := range n.Children {
			if c.Task.ParentID == nil || *c.Task.ParentID != n.Task.ID {
				got := "<nil>"
				if c.Task.ParentID != nil {
					got = *c.Task.ParentID
				}
				issues = append(issues, Issue{
					Severity: SeverityError,
					TaskID:   c.Task.ID,
					Message:  fmt.Sprintf("parent reference %s does not match parent node %s", got, n.Task.ID),
				})
			}
			if n.Task.Status == models.StatusDone && c.Task.Status.IsActive() {
				issues = append(issues, Issue{
					Severity: SeverityWarning,
					TaskID:   c.Task.ID,
					Message:  fmt.Sprintf("child %s is %s but parent %s is done", c.Task.ID, c.Task.Status, n.Task.ID),
				})
			}
		}
		return true
	})

	return issues
}
