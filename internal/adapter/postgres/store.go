package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planforge/planforge/internal/domain"
	"github.com/planforge/planforge/internal/domain/entity"
	"github.com/planforge/planforge/internal/domain/plan"
)

// Store implements entitystore.Store using PostgreSQL. Entity
// collections are stored whole as one jsonb array per (plan, kind).
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Plans ---

func (s *Store) CreatePlan(ctx context.Context, req plan.CreateRequest) (*plan.Plan, error) {
	settingsJSON, err := json.Marshal(req.Settings)
	if err != nil {
		return nil, fmt.Errorf("marshal settings: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO plans (name, description, status, settings, created_by)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, name, description, status, settings, created_by, created_at, updated_at`,
		req.Name, req.Description, string(plan.StatusActive), settingsJSON, req.CreatedBy)

	p, err := scanPlan(row)
	if err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}
	return &p, nil
}

func (s *Store) GetPlan(ctx context.Context, id string) (*plan.Plan, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, description, status, settings, created_by, created_at, updated_at
		 FROM plans WHERE id = $1`, id)

	p, err := scanPlan(row)
	if err != nil {
		return nil, notFoundWrap(err, "get plan %s", id)
	}
	return &p, nil
}

func (s *Store) ListPlans(ctx context.Context) ([]plan.Plan, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, description, status, settings, created_by, created_at, updated_at
		 FROM plans ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []plan.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

func (s *Store) UpdatePlan(ctx context.Context, p *plan.Plan) error {
	settingsJSON, err := json.Marshal(p.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE plans SET name = $2, description = $3, status = $4, settings = $5, updated_at = now()
		 WHERE id = $1`,
		p.ID, p.Name, p.Description, string(p.Status), settingsJSON)
	if err != nil {
		return fmt.Errorf("update plan %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update plan %s: %w", p.ID, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) PlanExists(ctx context.Context, planID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM plans WHERE id = $1)`, planID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("plan exists %s: %w", planID, err)
	}
	return exists, nil
}

// --- Entity collections ---

func (s *Store) LoadEntities(ctx context.Context, planID string, kind entity.Kind) ([]entity.Document, error) {
	exists, err := s.PlanExists(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("load %s entities: plan %s: %w", kind, planID, domain.ErrNotFound)
	}

	var data []byte
	err = s.pool.QueryRow(ctx,
		`SELECT data FROM entity_collections WHERE plan_id = $1 AND kind = $2`,
		planID, string(kind)).Scan(&data)
	if err != nil {
		// No row yet means no entities of this kind.
		if errors.Is(err, pgx.ErrNoRows) {
			return []entity.Document{}, nil
		}
		return nil, fmt.Errorf("load %s entities for plan %s: %w", kind, planID, err)
	}

	var docs []entity.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("decode %s entities for plan %s: %w", kind, planID, err)
	}
	if docs == nil {
		docs = []entity.Document{}
	}
	return docs, nil
}

// SaveEntities replaces the whole collection for one (plan, kind). A
// transaction-scoped advisory lock on the collection key serializes
// concurrent savers so a slow writer cannot clobber a later one.
func (s *Store) SaveEntities(ctx context.Context, planID string, kind entity.Kind, docs []entity.Document) error {
	if docs == nil {
		docs = []entity.Document{}
	}
	data, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("encode %s entities: %w", kind, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1))`, planID+":"+string(kind)); err != nil {
		return fmt.Errorf("lock %s collection for plan %s: %w", kind, planID, err)
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO entity_collections (plan_id, kind, data)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (plan_id, kind) DO UPDATE SET
		   data = EXCLUDED.data,
		   revision = entity_collections.revision + 1,
		   updated_at = now()`,
		planID, string(kind), data)
	if err != nil {
		return fmt.Errorf("save %s entities for plan %s: %w", kind, planID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("save %s entities for plan %s: %w", kind, planID, domain.ErrNotFound)
	}

	return tx.Commit(ctx)
}

// --- Scanners ---

func scanPlan(row scannable) (plan.Plan, error) {
	var p plan.Plan
	var settingsJSON []byte
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Status, &settingsJSON, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	if settingsJSON != nil {
		if err := json.Unmarshal(settingsJSON, &p.Settings); err != nil {
			return p, fmt.Errorf("unmarshal settings: %w", err)
		}
	}
	return p, nil
}
