package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/planforge/planforge/internal/adapter/ws"
	"github.com/planforge/planforge/internal/domain"
	"github.com/planforge/planforge/internal/domain/entity"
	"github.com/planforge/planforge/internal/domain/phase"
	"github.com/planforge/planforge/internal/domain/stats"
	"github.com/planforge/planforge/internal/port/broadcast"
	"github.com/planforge/planforge/internal/port/cache"
	"github.com/planforge/planforge/internal/port/entitystore"
	"github.com/planforge/planforge/internal/port/messagequeue"
)

// StatsService recomputes plan statistics from the live collections.
// Recomputation is idempotent: every run derives counts from scratch, so
// repeated runs over unchanged data converge to the same result.
type StatsService struct {
	store entitystore.Store
	cache cache.Cache
	hub   broadcast.Broadcaster
	queue messagequeue.Queue
	ttl   time.Duration
}

// NewStatsService creates a StatsService. cache, hub, and queue may be
// nil; the corresponding side effects are then skipped.
func NewStatsService(store entitystore.Store, c cache.Cache, hub broadcast.Broadcaster, queue messagequeue.Queue, ttl time.Duration) *StatsService {
	return &StatsService{store: store, cache: c, hub: hub, queue: queue, ttl: ttl}
}

func statsCacheKey(planID string) string {
	return "stats:" + planID
}

// Update recomputes statistics for a plan, refreshes the cache, and
// fans the result out to dashboard clients and the message queue.
func (s *StatsService) Update(ctx context.Context, planID string) (*stats.Statistics, error) {
	exists, err := s.store.PlanExists(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("plan %q: %w", planID, domain.ErrNotFound)
	}

	st := &stats.Statistics{
		PlanID:     planID,
		Counts:     make(map[string]int, len(entity.Kinds())),
		ComputedAt: time.Now().UTC(),
	}

	for _, kind := range entity.Kinds() {
		docs, err := s.store.LoadEntities(ctx, planID, kind)
		if err != nil {
			return nil, err
		}
		st.Counts[string(kind)] = len(docs)
		st.TotalEntities += len(docs)

		if kind == entity.KindPhase {
			st.PhasesTotal = len(docs)
			for _, d := range docs {
				if status, _ := d["status"].(string); status == string(phase.StatusCompleted) {
					st.PhasesCompleted++
				}
			}
		}
	}

	if st.PhasesTotal > 0 {
		st.CompletionPct = float64(st.PhasesCompleted) / float64(st.PhasesTotal) * 100
	}

	s.cacheSet(ctx, st)

	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventStatsUpdated, ws.StatsUpdatedEvent{
			PlanID:        planID,
			TotalEntities: st.TotalEntities,
			CompletionPct: st.CompletionPct,
		})
	}
	if s.queue != nil {
		if data, err := json.Marshal(st); err == nil {
			if err := s.queue.Publish(ctx, messagequeue.SubjectStatsUpdated, data); err != nil {
				slog.Warn("statistics publish failed", "plan_id", planID, "error", err)
			}
		}
	}

	return st, nil
}

// Get returns the plan's statistics, serving from cache when fresh and
// recomputing otherwise.
func (s *StatsService) Get(ctx context.Context, planID string) (*stats.Statistics, error) {
	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, statsCacheKey(planID)); err == nil && ok {
			var st stats.Statistics
			if err := json.Unmarshal(data, &st); err == nil {
				return &st, nil
			}
		}
	}
	return s.Update(ctx, planID)
}

func (s *StatsService) cacheSet(ctx context.Context, st *stats.Statistics) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(st)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, statsCacheKey(st.PlanID), data, s.ttl); err != nil {
		slog.Debug("statistics cache set failed", "plan_id", st.PlanID, "error", err)
	}
}
