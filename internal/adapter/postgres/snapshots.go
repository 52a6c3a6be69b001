package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planforge/planforge/internal/domain/entity"
	"github.com/planforge/planforge/internal/domain/version"
)

// SnapshotStore implements entitystore.SnapshotStore on PostgreSQL.
// Snapshots live in their own table keyed by (plan, entity, version),
// so deleting an entity from its collection never touches its history.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a SnapshotStore backed by the given pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// AppendSnapshot records one snapshot and, when maxDepth > 0, prunes
// the oldest snapshots for the entity beyond that count.
func (s *SnapshotStore) AppendSnapshot(ctx context.Context, planID, entityID string, snap version.Snapshot, maxDepth int) error {
	dataJSON, err := json.Marshal(snap.Data)
	if err != nil {
		return fmt.Errorf("encode snapshot data: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.Exec(ctx,
		`INSERT INTO entity_versions (plan_id, entity_id, version, entity_type, data, snapshot_at, author, change_note)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (plan_id, entity_id, version) DO NOTHING`,
		planID, entityID, snap.Version, snap.EntityType, dataJSON, snap.Timestamp, snap.Author, snap.ChangeNote)
	if err != nil {
		return fmt.Errorf("append snapshot for entity %s: %w", entityID, err)
	}

	if maxDepth > 0 {
		_, err = tx.Exec(ctx,
			`DELETE FROM entity_versions
			 WHERE plan_id = $1 AND entity_id = $2 AND version NOT IN (
			   SELECT version FROM entity_versions
			   WHERE plan_id = $1 AND entity_id = $2
			   ORDER BY version DESC LIMIT $3
			 )`,
			planID, entityID, maxDepth)
		if err != nil {
			return fmt.Errorf("prune snapshots for entity %s: %w", entityID, err)
		}
	}

	return tx.Commit(ctx)
}

// GetSnapshot returns the snapshot recorded for one exact version.
func (s *SnapshotStore) GetSnapshot(ctx context.Context, planID, entityID string, versionNum int) (*version.Snapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT version, entity_type, data, snapshot_at, author, change_note
		 FROM entity_versions
		 WHERE plan_id = $1 AND entity_id = $2 AND version = $3`,
		planID, entityID, versionNum)

	snap, err := scanSnapshot(row)
	if err != nil {
		return nil, notFoundWrap(err, "snapshot for entity %s version %d", entityID, versionNum)
	}
	return snap, nil
}

// ListSnapshots returns snapshots for an entity ordered newest-first.
func (s *SnapshotStore) ListSnapshots(ctx context.Context, planID, entityID string, limit, offset int) ([]version.Snapshot, error) {
	q := `SELECT version, entity_type, data, snapshot_at, author, change_note
	      FROM entity_versions
	      WHERE plan_id = $1 AND entity_id = $2
	      ORDER BY version DESC OFFSET $3`
	args := []any{planID, entityID, offset}
	if limit > 0 {
		q += ` LIMIT $4`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots for entity %s: %w", entityID, err)
	}
	defer rows.Close()

	var snaps []version.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, *snap)
	}
	return snaps, rows.Err()
}

func scanSnapshot(row scannable) (*version.Snapshot, error) {
	var snap version.Snapshot
	var dataJSON []byte
	err := row.Scan(&snap.Version, &snap.EntityType, &dataJSON, &snap.Timestamp, &snap.Author, &snap.ChangeNote)
	if err != nil {
		return nil, err
	}
	var data entity.Document
	if err := json.Unmarshal(dataJSON, &data); err != nil {
		return nil, fmt.Errorf("decode snapshot data: %w", err)
	}
	snap.Data = data
	return &snap, nil
}
