package service

import (
	"context"
	"fmt"
	"time"

	"github.com/planforge/planforge/internal/domain"
	"github.com/planforge/planforge/internal/domain/entity"
	"github.com/planforge/planforge/internal/domain/version"
	"github.com/planforge/planforge/internal/port/entitystore"
)

// VersionService records pre-mutation snapshots and answers history and
// diff queries over the append-only snapshot log.
type VersionService struct {
	store     entitystore.Store
	snapshots entitystore.SnapshotStore
}

// NewVersionService creates a VersionService.
func NewVersionService(store entitystore.Store, snapshots entitystore.SnapshotStore) *VersionService {
	return &VersionService{store: store, snapshots: snapshots}
}

// SaveVersion records a snapshot of an entity's current state before a
// mutation is applied. versionNum is the entity's version at snapshot
// time (the pre-mutation version). Retention is bounded by the plan's
// max_history_depth setting; zero keeps everything.
func (s *VersionService) SaveVersion(ctx context.Context, planID, entityID string, kind entity.Kind, data entity.Document, versionNum int, author, changeNote string) error {
	p, err := s.store.GetPlan(ctx, planID)
	if err != nil {
		return err
	}

	snap := version.Snapshot{
		Version:    versionNum,
		EntityType: string(kind),
		Data:       data.Clone(),
		Timestamp:  time.Now().UTC(),
		Author:     author,
		ChangeNote: changeNote,
	}
	return s.snapshots.AppendSnapshot(ctx, planID, entityID, snap, p.Settings.MaxHistoryDepth)
}

// History returns the snapshot log for an entity, newest first. It works
// for deleted entities too: the log is keyed independently of the live
// collections.
func (s *VersionService) History(ctx context.Context, planID, entityID string, limit, offset int) ([]version.Snapshot, error) {
	exists, err := s.store.PlanExists(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("plan %q: %w", planID, domain.ErrNotFound)
	}
	return s.snapshots.ListSnapshots(ctx, planID, entityID, limit, offset)
}

// Diff computes the field-level difference between two versions of an
// entity. Either version number may equal the entity's current version,
// in which case the live document is used; snapshots cover the rest.
func (s *VersionService) Diff(ctx context.Context, planID, entityID string, fromVersion, toVersion int) (map[string]version.FieldChange, error) {
	from, err := s.resolveVersion(ctx, planID, entityID, fromVersion)
	if err != nil {
		return nil, fmt.Errorf("version %d: %w", fromVersion, err)
	}
	to, err := s.resolveVersion(ctx, planID, entityID, toVersion)
	if err != nil {
		return nil, fmt.Errorf("version %d: %w", toVersion, err)
	}
	return version.Diff(from, to), nil
}

// resolveVersion fetches one version of an entity's document: the live
// document when versionNum matches the current version, otherwise the
// stored snapshot.
func (s *VersionService) resolveVersion(ctx context.Context, planID, entityID string, versionNum int) (entity.Document, error) {
	if live, err := s.findLive(ctx, planID, entityID); err == nil && live != nil {
		if live.Version() == versionNum {
			return live, nil
		}
	} else if err != nil {
		return nil, err
	}

	snap, err := s.snapshots.GetSnapshot(ctx, planID, entityID, versionNum)
	if err != nil {
		return nil, err
	}
	return snap.Data, nil
}

// findLive scans the plan's collections for the entity. Nil without
// error means the entity no longer exists live (deleted), which is fine
// for snapshot-to-snapshot diffs.
func (s *VersionService) findLive(ctx context.Context, planID, entityID string) (entity.Document, error) {
	exists, err := s.store.PlanExists(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("plan %q: %w", planID, domain.ErrNotFound)
	}
	for _, kind := range entity.Kinds() {
		docs, err := s.store.LoadEntities(ctx, planID, kind)
		if err != nil {
			return nil, err
		}
		for _, d := range docs {
			if d.ID() == entityID {
				return d, nil
			}
		}
	}
	return nil, nil
}
