// Package version contains the snapshot model and field-level diffing
// for entity version history.
package version

import (
	"reflect"
	"time"

	"github.com/planforge/planforge/internal/domain/entity"
)

// Snapshot is a stored copy of an entity's full state at a specific
// version number. Snapshots are append-only per (plan, entity) and are
// kept independently of the live entity collection, so history queries
// survive entity deletion.
type Snapshot struct {
	Version    int             `json:"version"`
	EntityType string          `json:"entity_type"`
	Data       entity.Document `json:"data"`
	Timestamp  time.Time       `json:"timestamp"`
	Author     string          `json:"author,omitempty"`
	ChangeNote string          `json:"change_note,omitempty"`
}

// FieldChange describes one field that differs between two versions.
type FieldChange struct {
	From    any  `json:"from"`
	To      any  `json:"to"`
	Changed bool `json:"changed"`
}

// excludedFields are bookkeeping fields never reported by a diff, even
// when they differ: only semantic fields matter to callers.
var excludedFields = map[string]bool{
	"version":    true,
	"created_at": true,
	"updated_at": true,
	"metadata":   true,
}

// Diff compares two entity documents field by field. Bookkeeping fields
// (version, created_at, updated_at, the whole metadata subtree) are
// excluded, and fields equal across both versions are omitted entirely.
// A field absent on one side is reported with a nil from/to value.
func Diff(from, to entity.Document) map[string]FieldChange {
	changes := make(map[string]FieldChange)

	keys := make(map[string]bool, len(from)+len(to))
	for k := range from {
		keys[k] = true
	}
	for k := range to {
		keys[k] = true
	}

	for k := range keys {
		if excludedFields[k] {
			continue
		}
		a, b := from[k], to[k]
		if reflect.DeepEqual(a, b) {
			continue
		}
		changes[k] = FieldChange{From: a, To: b, Changed: true}
	}

	return changes
}
