package tree

import "github.com/josephgoksu/TrackWing/models"

// Metrics summarizes a fleet of trees without the caller re-walking each
// one separately.
type Metrics struct {
	TreeCount     int                         `json:"treeCount"`
	TotalTasks    int                         `json:"totalTasks"`
	MaxDepth      int                         `json:"maxDepth"`
	AverageDepth  float64                     `json:"averageDepth"`
	StatusCounts  map[models.TaskStatus]int   `json:"statusCounts"`
	PriorityCount map[models.TaskPriority]int `json:"priorityCounts"`
}

// AggregateMetrics walks every tree once and accumulates fleet-wide
// totals. AverageDepth is the mean node depth across all trees.
func AggregateMetrics(trees []*Tree) Metrics {
	m := Metrics{
		StatusCounts:  make(map[models.TaskStatus]int),
		PriorityCount: make(map[models.TaskPriority]int),
	}
	depthSum := 0
	for _, t := range trees {
		if t == nil {
			continue
		}
		m.TreeCount++
		t.WalkPreOrder(func(n *models.TaskNode, depth int) bool {
			m.TotalTasks++
			depthSum += depth
			if depth > m.MaxDepth {
				m.MaxDepth = depth
			}
			m.StatusCounts[n.Task.Status]++
			m.PriorityCount[n.Task.Priority]++
			return true
		})
	}
	if m.TotalTasks > 0 {
		m.AverageDepth = float64(depthSum) / float64(m.TotalTasks)
	}
	return m
}
