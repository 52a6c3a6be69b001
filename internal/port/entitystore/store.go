// Package entitystore defines the persistence ports for plans, entity
// collections, and version snapshots.
package entitystore

import (
	"context"

	"github.com/planforge/planforge/internal/domain/entity"
	"github.com/planforge/planforge/internal/domain/plan"
	"github.com/planforge/planforge/internal/domain/version"
)

// Store is the port interface for plan records and entity collections.
//
// Entity collections have whole-collection read/replace semantics: a
// load returns the full collection for one (plan, kind), and a save
// replaces it entirely. The adapter serializes concurrent saves per
// collection; callers must still serialize load-modify-save sequences
// per plan if correctness under concurrent writers is required.
type Store interface {
	// PlanExists reports whether the plan record exists.
	PlanExists(ctx context.Context, planID string) (bool, error)

	// LoadEntities returns the full collection of one entity kind for a
	// plan. It fails with domain.ErrNotFound when the plan is absent; a
	// plan with no entities of the kind yields an empty slice.
	LoadEntities(ctx context.Context, planID string, kind entity.Kind) ([]entity.Document, error)

	// SaveEntities replaces the full collection of one entity kind.
	SaveEntities(ctx context.Context, planID string, kind entity.Kind, docs []entity.Document) error

	// Plans
	CreatePlan(ctx context.Context, req plan.CreateRequest) (*plan.Plan, error)
	GetPlan(ctx context.Context, id string) (*plan.Plan, error)
	ListPlans(ctx context.Context) ([]plan.Plan, error)
	UpdatePlan(ctx context.Context, p *plan.Plan) error
}

// SnapshotStore is the port interface for the append-only version
// history log. It is keyed by (plan, entity) independently of the live
// entity collections, so deleting an entity never touches its history.
type SnapshotStore interface {
	// AppendSnapshot records one snapshot. When maxDepth > 0 the oldest
	// snapshots beyond that count are pruned; zero means unlimited.
	AppendSnapshot(ctx context.Context, planID, entityID string, snap version.Snapshot, maxDepth int) error

	// GetSnapshot returns the snapshot recorded for one exact version.
	GetSnapshot(ctx context.Context, planID, entityID string, versionNum int) (*version.Snapshot, error)

	// ListSnapshots returns snapshots ordered newest-first.
	ListSnapshots(ctx context.Context, planID, entityID string, limit, offset int) ([]version.Snapshot, error)
}
