// Package idmap centralizes the translation of temporary client-side
// identities into the durable identities the persistence layer assigns
// during reconciliation. A mapper lives for one reconciliation pass and is
// discarded once every reference has been rewritten.
package idmap

import (
	"github.com/josephgoksu/TrackWing/internal/util"
	"github.com/josephgoksu/TrackWing/models"
	"github.com/josephgoksu/TrackWing/types"
)

// Mapper is a one-directional temp -> durable identity mapping, built
// incrementally as the persistence collaborator reports assignments.
type Mapper struct {
	mappings map[string]string
}

// NewMapper returns an empty mapper.
func NewMapper() *Mapper {
	return &Mapper{mappings: make(map[string]string)}
}

// AddMapping records that tempID was committed as realID. Empty identities
// are rejected.
func (m *Mapper) AddMapping(tempID, realID string) error {
	if tempID == "" || realID == "" {
		return types.Structuralf("identity mapping requires both identities, got %q -> %q", tempID, realID)
	}
	m.mappings[tempID] = realID
	return nil
}

// AddAll records every mapping in the given set.
func (m *Mapper) AddAll(mappings map[string]string) error {
	for tempID, realID := range mappings {
		if err := m.AddMapping(tempID, realID); err != nil {
			return err
		}
	}
	return nil
}

// Resolve returns the durable identity for id, or id unchanged if no
// mapping is known (the identity is treated as already durable).
func (m *Mapper) Resolve(id string) string {
	if real, ok := m.mappings[id]; ok {
		return real
	}
	return id
}

// Len returns the number of known mappings.
func (m *Mapper) Len() int { return len(m.mappings) }

// Mappings returns a copy of the known mappings.
func (m *Mapper) Mappings() map[string]string {
	out := make(map[string]string, len(m.mappings))
	for k, v := range m.mappings {
		out[k] = v
	}
	return out
}

// ApplyToTaskOperation rewrites every identity embedded in the operation,
// including the nested subtree payload of an insert-child. Resolution is
// idempotent: identities without a mapping pass through unchanged.
func (m *Mapper) ApplyToTaskOperation(op models.TaskOperation) models.TaskOperation {
	op.TaskID = m.Resolve(op.TaskID)
	op.ParentID = m.Resolve(op.ParentID)
	if op.Changes != nil {
		changes := op.Changes.Clone()
		if ch, ok := changes[models.FieldParentID]; ok {
			changes[models.FieldParentID] = models.FieldChange{
				From: m.resolvePtr(ch.From),
				To:   m.resolvePtr(ch.To),
			}
		}
		op.Changes = changes
	}
	if op.Subtree != nil {
		op.Subtree = m.ApplyToNode(op.Subtree)
	}
	return op
}

// ApplyToDependencyOperation rewrites both endpoints of the edge.
func (m *Mapper) ApplyToDependencyOperation(op models.DependencyOperation) models.DependencyOperation {
	op.Edge.DependentID = m.Resolve(op.Edge.DependentID)
	op.Edge.DependencyID = m.Resolve(op.Edge.DependencyID)
	return op
}

// ApplyToNode returns a copy of the subtree with every task identity and
// parent reference resolved.
func (m *Mapper) ApplyToNode(node *models.TaskNode) *models.TaskNode {
	out := node.Clone()
	var rewrite func(n *models.TaskNode)
	rewrite = func(n *models.TaskNode) {
		n.Task.ID = m.Resolve(n.Task.ID)
		n.Task.ParentID = m.resolvePtr(n.Task.ParentID)
		for _, c := range n.Children {
			rewrite(c)
		}
	}
	rewrite(out)
	return out
}

func (m *Mapper) resolvePtr(id *string) *string {
	if id == nil {
		return nil
	}
	resolved := m.Resolve(*id)
	return &resolved
}

// ValidateMappings checks that every required identity either has a known
// mapping or already looks durable. Identities carrying the temporary
// marker with no mapping are reported through an IDMappingError; it means
// a prior creation operation failed or was skipped.
func (m *Mapper) ValidateMappings(requiredIDs []string) error {
	var unmapped []string
	seen := make(map[string]bool)
	for _, id := range requiredIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := m.mappings[id]; ok {
			continue
		}
		if util.IsTempID(id) {
			unmapped = append(unmapped, id)
		}
	}
	if len(unmapped) > 0 {
		return &types.IDMappingError{Unmapped: unmapped, Known: m.Mappings()}
	}
	return nil
}
