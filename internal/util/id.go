// Package util provides shared utility functions.
package util

import (
	"strings"

	"github.com/google/uuid"
)

// Standard ID shapes for TrackWing entities.
const (
	// TaskIDPrefix marks durable task identities (e.g. "task-abcdef12").
	TaskIDPrefix = "task-"
	// TempIDPrefix marks client-side temporary identities (e.g. "temp-abcdef12").
	TempIDPrefix = "temp-"
	// IDSuffixLength is the number of hex characters after the prefix.
	IDSuffixLength = 8
	// DefaultShortIDLength is the default number of characters for short IDs.
	DefaultShortIDLength = 8
)

// NewTaskID returns a fresh durable task identity.
func NewTaskID() string {
	return TaskIDPrefix + idSuffix()
}

// NewTempID returns a fresh temporary identity for a task that has not been
// committed to durable storage yet.
func NewTempID() string {
	return TempIDPrefix + idSuffix()
}

func idSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:IDSuffixLength]
}

// IsTempID reports whether the identity carries the temporary marker.
//
// This is a substring heuristic: a durable identity that happened to start
// with "temp-" would be misclassified. Stores assign "task-" prefixed ids,
// so in practice the spaces do not collide.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// ShortID returns a shortened version of an ID.
// If n is 0 or negative, DefaultShortIDLength (8) is used.
//
// Examples:
//
//	ShortID("task-abcdef12", 0) → "task-abc" (8 chars total including prefix)
//	ShortID("task-abcdef12", 10) → "task-abcde" (10 chars total)
//	ShortID("temp-xyz", 20) → "temp-xyz" (no truncation if shorter)
func ShortID(id string, n int) string {
	if n <= 0 {
		n = DefaultShortIDLength
	}
	if len(id) <= n {
		return id
	}
	return id[:n]
}
