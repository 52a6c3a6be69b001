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
	"github.com/planforge/planforge/internal/port/broadcast"
	"github.com/planforge/planforge/internal/port/entitystore"
	"github.com/planforge/planforge/internal/port/messagequeue"
)

// protectedFields are bookkeeping fields callers may never set or
// overwrite through create/update payloads.
var protectedFields = map[string]bool{
	"id":         true,
	"type":       true,
	"version":    true,
	"created_at": true,
	"updated_at": true,
}

// EntityService provides CRUD over the generic entity collections
// (requirements, solutions, decisions, artifacts, links). Phases are
// excluded: their tree invariants belong to PhaseService.
type EntityService struct {
	store    entitystore.Store
	versions *VersionService
	stats    *StatsService
	hub      broadcast.Broadcaster
	queue    messagequeue.Queue
}

// NewEntityService creates an EntityService. versions, stats, hub, and
// queue may be nil; the corresponding side effects are then skipped.
func NewEntityService(store entitystore.Store, versions *VersionService, stats *StatsService, hub broadcast.Broadcaster, queue messagequeue.Queue) *EntityService {
	return &EntityService{store: store, versions: versions, stats: stats, hub: hub, queue: queue}
}

// Create validates and stores a new entity of the given kind.
func (s *EntityService) Create(ctx context.Context, planID string, kind entity.Kind, payload entity.Document) (entity.Document, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown entity type %q: %w", kind, domain.ErrValidation)
	}
	if kind == entity.KindPhase {
		return nil, fmt.Errorf("phases are managed through the phase operations: %w", domain.ErrValidation)
	}

	payload = stripProtected(payload)
	if err := entity.ValidatePayload(kind, payload); err != nil {
		return nil, err
	}

	docs, err := s.store.LoadEntities(ctx, planID, kind)
	if err != nil {
		return nil, err
	}

	doc := entity.New(kind, payload, time.Now())
	docs = append(docs, doc)
	if err := s.store.SaveEntities(ctx, planID, kind, docs); err != nil {
		return nil, err
	}

	s.afterChange(ctx, planID, kind, doc.ID(), "created")
	return doc, nil
}

// Get returns one entity by id.
func (s *EntityService) Get(ctx context.Context, planID string, kind entity.Kind, entityID string) (entity.Document, error) {
	docs, err := s.store.LoadEntities(ctx, planID, kind)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		if d.ID() == entityID {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%s %q: %w", kind, entityID, domain.ErrNotFound)
}

// List returns the full collection of one kind for a plan.
func (s *EntityService) List(ctx context.Context, planID string, kind entity.Kind) ([]entity.Document, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown entity type %q: %w", kind, domain.ErrValidation)
	}
	return s.store.LoadEntities(ctx, planID, kind)
}

// Update merges the given fields into an existing entity. The entity's
// pre-mutation state is snapshotted first, then the merged document is
// re-validated, version-bumped, and saved.
func (s *EntityService) Update(ctx context.Context, planID string, kind entity.Kind, entityID string, fields entity.Document, author, changeNote string) (entity.Document, error) {
	docs, err := s.store.LoadEntities(ctx, planID, kind)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i, d := range docs {
		if d.ID() == entityID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, fmt.Errorf("%s %q: %w", kind, entityID, domain.ErrNotFound)
	}

	doc := docs[idx]
	if err := s.snapshot(ctx, planID, kind, doc, author, changeNote); err != nil {
		return nil, fmt.Errorf("snapshot before update: %w", err)
	}

	for k, v := range fields {
		if protectedFields[k] || k == "metadata" {
			continue
		}
		doc[k] = v
	}
	if err := entity.ValidatePayload(kind, doc); err != nil {
		return nil, err
	}
	doc.Bump(time.Now())

	if err := s.store.SaveEntities(ctx, planID, kind, docs); err != nil {
		return nil, err
	}

	s.afterChange(ctx, planID, kind, entityID, "updated")
	return doc, nil
}

// Delete removes an entity from its collection. Version history for the
// entity is retained.
func (s *EntityService) Delete(ctx context.Context, planID string, kind entity.Kind, entityID string) error {
	docs, err := s.store.LoadEntities(ctx, planID, kind)
	if err != nil {
		return err
	}

	kept := docs[:0]
	found := false
	for _, d := range docs {
		if d.ID() == entityID {
			found = true
			continue
		}
		kept = append(kept, d)
	}
	if !found {
		return fmt.Errorf("%s %q: %w", kind, entityID, domain.ErrNotFound)
	}

	if err := s.store.SaveEntities(ctx, planID, kind, kept); err != nil {
		return err
	}

	s.afterChange(ctx, planID, kind, entityID, "deleted")
	return nil
}

// Vote increments a requirement's vote count.
func (s *EntityService) Vote(ctx context.Context, planID, entityID, voter string) (entity.Document, error) {
	return s.adjustVotes(ctx, planID, entityID, voter, +1)
}

// Unvote decrements a requirement's vote count. Removing a vote from a
// requirement with zero votes is a business-rule violation.
func (s *EntityService) Unvote(ctx context.Context, planID, entityID, voter string) (entity.Document, error) {
	return s.adjustVotes(ctx, planID, entityID, voter, -1)
}

func (s *EntityService) adjustVotes(ctx context.Context, planID, entityID, voter string, delta int) (entity.Document, error) {
	docs, err := s.store.LoadEntities(ctx, planID, entity.KindRequirement)
	if err != nil {
		return nil, err
	}

	var doc entity.Document
	for _, d := range docs {
		if d.ID() == entityID {
			doc = d
			break
		}
	}
	if doc == nil {
		return nil, fmt.Errorf("requirement %q: %w", entityID, domain.ErrNotFound)
	}

	votes := entity.Votes(doc)
	if votes+delta < 0 {
		return nil, fmt.Errorf("requirement %q has no votes to remove: %w", entityID, domain.ErrBusinessRule)
	}

	if err := s.snapshot(ctx, planID, entity.KindRequirement, doc, voter, "vote change"); err != nil {
		return nil, fmt.Errorf("snapshot before vote: %w", err)
	}

	doc["votes"] = votes + delta
	doc.Bump(time.Now())

	if err := s.store.SaveEntities(ctx, planID, entity.KindRequirement, docs); err != nil {
		return nil, err
	}

	s.afterChange(ctx, planID, entity.KindRequirement, entityID, "updated")
	return doc, nil
}

// CreateLink creates a relationship link after checking that both
// endpoints exist somewhere in the plan.
func (s *EntityService) CreateLink(ctx context.Context, planID string, req entity.CreateLinkRequest) (entity.Document, error) {
	for _, id := range []string{req.SourceID, req.TargetID} {
		found, err := s.entityExists(ctx, planID, id)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("link endpoint %q: %w", id, domain.ErrNotFound)
		}
	}
	return s.Create(ctx, planID, entity.KindLink, req.Payload())
}

func (s *EntityService) entityExists(ctx context.Context, planID, entityID string) (bool, error) {
	for _, kind := range entity.Kinds() {
		if kind == entity.KindLink {
			continue
		}
		docs, err := s.store.LoadEntities(ctx, planID, kind)
		if err != nil {
			return false, err
		}
		for _, d := range docs {
			if d.ID() == entityID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *EntityService) snapshot(ctx context.Context, planID string, kind entity.Kind, doc entity.Document, author, note string) error {
	if s.versions == nil {
		return nil
	}
	return s.versions.SaveVersion(ctx, planID, doc.ID(), kind, doc, doc.Version(), author, note)
}

// afterChange runs the best-effort side effects shared by all entity
// mutations: statistics refresh, dashboard broadcast, queue publish.
func (s *EntityService) afterChange(ctx context.Context, planID string, kind entity.Kind, entityID, change string) {
	if s.stats != nil {
		if _, err := s.stats.Update(ctx, planID); err != nil {
			slog.Warn("statistics refresh failed", "plan_id", planID, "error", err)
		}
	}
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventEntityChanged, ws.EntityChangedEvent{
			PlanID: planID, Kind: string(kind), EntityID: entityID, Change: change,
		})
	}
	if s.queue != nil {
		subject := messagequeue.SubjectEntityCreated
		if change == "deleted" {
			subject = messagequeue.SubjectEntityDeleted
		} else if change == "updated" {
			return
		}
		data, err := json.Marshal(map[string]string{
			"plan_id": planID, "kind": string(kind), "entity_id": entityID,
		})
		if err == nil {
			if err := s.queue.Publish(ctx, subject, data); err != nil {
				slog.Warn("entity event publish failed", "plan_id", planID, "error", err)
			}
		}
	}
}

func stripProtected(payload entity.Document) entity.Document {
	if payload == nil {
		return entity.Document{}
	}
	out := payload.Clone()
	for k := range protectedFields {
		delete(out, k)
	}
	return out
}
