// Package plan contains the domain model for top-level plans: the
// containers owning all entity collections and version history.
package plan

import (
	"fmt"
	"strings"
	"time"

	"github.com/planforge/planforge/internal/domain"
)

// Status represents the lifecycle state of a plan.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// Settings holds per-plan tunables.
type Settings struct {
	// MaxHistoryDepth bounds version-snapshot retention per entity.
	// Zero means unlimited.
	MaxHistoryDepth int `json:"max_history_depth,omitempty"`
}

// Plan is the top-level container for all entities and links in one
// planning document.
type Plan struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	Settings    Settings  `json:"settings"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateRequest is the input for creating a plan.
type CreateRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	CreatedBy   string   `json:"created_by,omitempty"`
	Settings    Settings `json:"settings,omitempty"`
}

// Validate checks the create request.
func (r *CreateRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name is required: %w", domain.ErrValidation)
	}
	if r.Settings.MaxHistoryDepth < 0 {
		return fmt.Errorf("settings.max_history_depth must not be negative: %w", domain.ErrValidation)
	}
	return nil
}
