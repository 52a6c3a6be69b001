package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/planforge/planforge/internal/domain"
	"github.com/planforge/planforge/internal/domain/batch"
	"github.com/planforge/planforge/internal/domain/entity"
	"github.com/planforge/planforge/internal/domain/phase"
	"github.com/planforge/planforge/internal/port/entitystore"
)

// BatchService executes multi-entity batches with temp-id resolution.
//
// Atomicity is implemented by capturing a deep copy of every collection
// the batch can touch before the first operation runs, and restoring all
// of them when an atomic batch fails partway.
type BatchService struct {
	store    entitystore.Store
	phases   *PhaseService
	entities *EntityService
	stats    *StatsService
	maxOps   int
}

// NewBatchService creates a BatchService. maxOps bounds the number of
// operations per batch; zero disables the bound.
func NewBatchService(store entitystore.Store, phases *PhaseService, entities *EntityService, stats *StatsService, maxOps int) *BatchService {
	return &BatchService{store: store, phases: phases, entities: entities, stats: stats, maxOps: maxOps}
}

// Execute runs a batch of create operations against one plan.
//
// Operations run in order. Each operation's payload first has assigned
// temp-id tokens replaced by the real ids of earlier operations. In
// atomic mode the first failure restores every touched collection to
// its pre-batch state and the whole call fails; otherwise failures are
// recorded per operation and execution continues.
func (s *BatchService) Execute(ctx context.Context, planID string, req batch.ExecuteRequest) (*batch.ExecuteResponse, error) {
	if len(req.Operations) == 0 {
		return nil, fmt.Errorf("batch requires at least one operation: %w", domain.ErrValidation)
	}
	if s.maxOps > 0 && len(req.Operations) > s.maxOps {
		return nil, fmt.Errorf("batch exceeds the %d operation limit: %w", s.maxOps, domain.ErrValidation)
	}
	for i, op := range req.Operations {
		if !op.EntityType.Valid() {
			return nil, fmt.Errorf("operation %d: unknown entity type %q: %w", i, op.EntityType, domain.ErrValidation)
		}
	}

	exists, err := s.store.PlanExists(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("plan %q: %w", planID, domain.ErrNotFound)
	}

	// Pre-batch state of every collection the batch can touch.
	var checkpoints map[entity.Kind][]entity.Document
	if req.Atomic {
		checkpoints = make(map[entity.Kind][]entity.Document)
		for _, op := range req.Operations {
			if _, ok := checkpoints[op.EntityType]; ok {
				continue
			}
			docs, err := s.store.LoadEntities(ctx, planID, op.EntityType)
			if err != nil {
				return nil, err
			}
			saved := make([]entity.Document, len(docs))
			for i, d := range docs {
				saved[i] = d.Clone()
			}
			checkpoints[op.EntityType] = saved
		}
	}

	resp := &batch.ExecuteResponse{
		Results:       make([]batch.Result, 0, len(req.Operations)),
		TempIDMapping: make(map[string]string),
	}

	for i, op := range req.Operations {
		payload := batch.ResolvePayload(op.Payload, resp.TempIDMapping)

		id, err := s.runOne(ctx, planID, op.EntityType, payload)
		if err != nil {
			if req.Atomic {
				if rbErr := s.rollback(ctx, planID, checkpoints); rbErr != nil {
					return nil, fmt.Errorf("operation %d (%s) failed and rollback did not complete: %w",
						i, op.EntityType, errors.Join(domain.ErrRollback, err, rbErr))
				}
				return nil, fmt.Errorf("operation %d (%s): %w", i, op.EntityType, errors.Join(domain.ErrRollback, err))
			}
			resp.Results = append(resp.Results, batch.Result{Success: false, Error: err.Error()})
			continue
		}

		resp.Results = append(resp.Results, batch.Result{Success: true, ID: id})
		if op.TempID != "" {
			resp.TempIDMapping[op.TempID] = id
		}
	}

	return resp, nil
}

// runOne dispatches a single create. Phase creations go through the
// phase engine so tree invariants hold inside batches too.
func (s *BatchService) runOne(ctx context.Context, planID string, kind entity.Kind, payload entity.Document) (string, error) {
	if kind == entity.KindPhase {
		var req phase.CreateRequest
		data, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("encode phase payload: %w", err)
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return "", fmt.Errorf("phase payload: %v: %w", err, domain.ErrValidation)
		}
		p, err := s.phases.Add(ctx, planID, req)
		if err != nil {
			return "", err
		}
		return p.ID, nil
	}

	doc, err := s.entities.Create(ctx, planID, kind, payload)
	if err != nil {
		return "", err
	}
	return doc.ID(), nil
}

// rollback restores every checkpointed collection to its pre-batch
// state, then recomputes statistics so derived counts match the
// restored data.
func (s *BatchService) rollback(ctx context.Context, planID string, checkpoints map[entity.Kind][]entity.Document) error {
	var failed error
	for kind, docs := range checkpoints {
		if err := s.store.SaveEntities(ctx, planID, kind, docs); err != nil {
			failed = errors.Join(failed, fmt.Errorf("restore %s collection: %w", kind, err))
		}
	}
	if failed != nil {
		return failed
	}
	if s.stats != nil {
		if _, err := s.stats.Update(ctx, planID); err != nil {
			slog.Warn("statistics refresh after rollback failed", "plan_id", planID, "error", err)
		}
	}
	return nil
}
