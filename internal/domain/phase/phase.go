// Package phase contains the domain model for hierarchical plan phases.
//
// Phases form a tree encoded with materialized paths: each phase carries
// a dot-separated string of ancestor order values down to and including
// itself (e.g. "2.1.4"), and a depth equal to its number of ancestors.
package phase

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/planforge/planforge/internal/domain"
	"github.com/planforge/planforge/internal/domain/entity"
)

// Status represents the lifecycle state of a phase.
type Status string

const (
	StatusPlanned    Status = "planned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusBlocked    Status = "blocked"
	StatusSkipped    Status = "skipped"
)

// Valid reports whether s is a known phase status.
func (s Status) Valid() bool {
	switch s {
	case StatusPlanned, StatusInProgress, StatusCompleted, StatusBlocked, StatusSkipped:
		return true
	}
	return false
}

// Schedule holds effort estimates and execution timestamps for a phase.
type Schedule struct {
	EstimatedHours float64    `json:"estimated_hours,omitempty"`
	ActualHours    float64    `json:"actual_hours,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Phase is a node in a plan's phase tree.
type Phase struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	ParentID    string         `json:"parent_id,omitempty"` // empty = root
	Order       int            `json:"order"`
	Depth       int            `json:"depth"`
	Path        string         `json:"path"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Status      Status         `json:"status"`
	Progress    int            `json:"progress"`
	Schedule    Schedule       `json:"schedule"`
	Version     int            `json:"version"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// CreateRequest is the input for adding a phase to a plan.
type CreateRequest struct {
	Title          string  `json:"title"`
	Description    string  `json:"description,omitempty"`
	ParentID       string  `json:"parent_id,omitempty"`
	Order          *int    `json:"order,omitempty"` // nil = max(sibling orders)+1
	EstimatedHours float64 `json:"estimated_hours,omitempty"`
	CreatedBy      string  `json:"created_by,omitempty"`
}

// MoveRequest is the input for re-parenting and/or re-ordering a phase.
// Nil fields leave the corresponding value unchanged. An empty-string
// NewParentID moves the phase to the root level.
type MoveRequest struct {
	NewParentID *string `json:"new_parent_id,omitempty"`
	NewOrder    *int    `json:"new_order,omitempty"`
}

// StatusUpdateRequest is the input for a phase status transition.
type StatusUpdateRequest struct {
	Status      Status   `json:"status"`
	Progress    *int     `json:"progress,omitempty"`
	ActualHours *float64 `json:"actual_hours,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

// Validate checks the transition request independent of current state.
// Transitioning to blocked requires an explanatory note.
func (r *StatusUpdateRequest) Validate() error {
	if !r.Status.Valid() {
		return fmt.Errorf("unknown phase status %q: %w", r.Status, domain.ErrValidation)
	}
	if r.Status == StatusBlocked && strings.TrimSpace(r.Notes) == "" {
		return fmt.Errorf("notes are required when blocking a phase: %w", domain.ErrValidation)
	}
	if r.Progress != nil && (*r.Progress < 0 || *r.Progress > 100) {
		return fmt.Errorf("progress must be between 0 and 100: %w", domain.ErrValidation)
	}
	return nil
}

// MoveResult reports a completed move: the moved phase plus every
// descendant whose path or depth was re-derived.
type MoveResult struct {
	Phase          Phase   `json:"phase"`
	AffectedPhases []Phase `json:"affected_phases"`
}

// StatusUpdateResult reports a completed status transition, naming the
// schedule timestamps that were stamped automatically.
type StatusUpdateResult struct {
	Phase                 Phase    `json:"phase"`
	AutoUpdatedTimestamps []string `json:"auto_updated_timestamps,omitempty"`
}

// TreeNode is one node of a rendered phase tree.
type TreeNode struct {
	Phase
	Children []*TreeNode `json:"children"`
}

// Action is one recommended next step produced by the ranking engine.
type Action struct {
	PhaseID  string `json:"phase_id"`
	Path     string `json:"path"`
	Title    string `json:"title"`
	Action   string `json:"action"`   // unblock | complete | continue | start
	Priority string `json:"priority"` // high | medium | low
	Reason   string `json:"reason,omitempty"`
}

// ChildPath derives a phase's materialized path from its parent's path
// and its own order. A root phase's path is just its order.
func ChildPath(parentPath string, order int) string {
	if parentPath == "" {
		return strconv.Itoa(order)
	}
	return parentPath + "." + strconv.Itoa(order)
}

// PathDepth returns the depth encoded by a materialized path: the number
// of segments minus one.
func PathDepth(path string) int {
	if path == "" {
		return 0
	}
	return strings.Count(path, ".")
}

// NextOrder computes the order for a new sibling: max(existing sibling
// orders)+1, so that orders stay monotonically increasing even after
// intermediate siblings were deleted. Starts at 1 for the first child.
func NextOrder(siblings []Phase) int {
	maxOrder := 0
	for i := range siblings {
		if siblings[i].Order > maxOrder {
			maxOrder = siblings[i].Order
		}
	}
	return maxOrder + 1
}

// FromDocument decodes a stored entity document into a typed Phase.
func FromDocument(d entity.Document) (*Phase, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode phase document: %w", err)
	}
	var p Phase
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode phase document: %w", err)
	}
	return &p, nil
}

// Document encodes the phase back into its stored document form.
func (p *Phase) Document() (entity.Document, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode phase: %w", err)
	}
	var d entity.Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode phase: %w", err)
	}
	return d, nil
}
