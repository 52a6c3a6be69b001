package service

import (
	"context"
	"errors"
	"testing"

	"github.com/planforge/planforge/internal/domain"
	"github.com/planforge/planforge/internal/domain/batch"
	"github.com/planforge/planforge/internal/domain/entity"
)

func newBatchFixture(t *testing.T, maxOps int) (*BatchService, *mockStore, string) {
	t.Helper()
	store := newMockStore()
	p := store.addPlan("plan-1")
	snaps := newMockSnapshotStore()
	versions := NewVersionService(store, snaps)
	entities := NewEntityService(store, versions, nil, nil, nil)
	phases := NewPhaseService(store, versions, nil, nil, nil)
	return NewBatchService(store, phases, entities, nil, maxOps), store, p.ID
}

func TestBatchTempIDResolution(t *testing.T) {
	svc, store, planID := newBatchFixture(t, 100)
	ctx := context.Background()

	resp, err := svc.Execute(ctx, planID, batch.ExecuteRequest{
		Operations: []batch.Operation{
			{EntityType: entity.KindRequirement, TempID: "$1", Payload: entity.Document{"title": "auth"}},
			{EntityType: entity.KindSolution, TempID: "$2", Payload: entity.Document{"title": "oauth"}},
			{EntityType: entity.KindLink, Payload: entity.Document{
				"source_id": "$2", "target_id": "$1", "relation_type": "addresses",
			}},
		},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for i, r := range resp.Results {
		if !r.Success {
			t.Fatalf("operation %d failed: %s", i, r.Error)
		}
	}
	if len(resp.TempIDMapping) != 2 {
		t.Fatalf("temp id mapping = %v, want 2 entries", resp.TempIDMapping)
	}

	links, err := store.LoadEntities(ctx, planID, entity.KindLink)
	if err != nil {
		t.Fatalf("LoadEntities: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("links = %d, want 1", len(links))
	}
	if got, want := links[0]["source_id"], resp.TempIDMapping["$2"]; got != want {
		t.Fatalf("link source = %v, want resolved id %v", got, want)
	}
	if got, want := links[0]["target_id"], resp.TempIDMapping["$1"]; got != want {
		t.Fatalf("link target = %v, want resolved id %v", got, want)
	}
}

func TestBatchAtomicRollbackRestoresState(t *testing.T) {
	svc, store, planID := newBatchFixture(t, 100)
	ctx := context.Background()

	// Pre-existing data that the rollback must preserve.
	pre, err := svc.entities.Create(ctx, planID, entity.KindRequirement, entity.Document{"title": "existing"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = svc.Execute(ctx, planID, batch.ExecuteRequest{
		Atomic: true,
		Operations: []batch.Operation{
			{EntityType: entity.KindRequirement, Payload: entity.Document{"title": "new one"}},
			{EntityType: entity.KindRequirement, Payload: entity.Document{}}, // missing title
		},
	})
	if err == nil {
		t.Fatal("atomic batch with invalid member succeeded")
	}
	if !errors.Is(err, domain.ErrRollback) {
		t.Fatalf("err = %v, want ErrRollback", err)
	}
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want the member's ErrValidation joined in", err)
	}

	docs, err := store.LoadEntities(ctx, planID, entity.KindRequirement)
	if err != nil {
		t.Fatalf("LoadEntities: %v", err)
	}
	if len(docs) != 1 || docs[0].ID() != pre.ID() {
		t.Fatalf("collection after rollback = %d docs, want only the pre-existing one", len(docs))
	}
}

func TestBatchNonAtomicContinuesPastFailures(t *testing.T) {
	svc, store, planID := newBatchFixture(t, 100)
	ctx := context.Background()

	resp, err := svc.Execute(ctx, planID, batch.ExecuteRequest{
		Operations: []batch.Operation{
			{EntityType: entity.KindRequirement, Payload: entity.Document{"title": "ok"}},
			{EntityType: entity.KindRequirement, Payload: entity.Document{}}, // missing title
			{EntityType: entity.KindDecision, Payload: entity.Document{"title": "still runs"}},
		},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(resp.Results))
	}
	if !resp.Results[0].Success || resp.Results[1].Success || !resp.Results[2].Success {
		t.Fatalf("result pattern = %+v, want ok/fail/ok", resp.Results)
	}
	if resp.Results[1].Error == "" {
		t.Fatal("failed result carries no error message")
	}

	decisions, err := store.LoadEntities(ctx, planID, entity.KindDecision)
	if err != nil {
		t.Fatalf("LoadEntities: %v", err)
	}
	if len(decisions) != 1 {
		t.Fatalf("decisions = %d, want 1 despite the earlier failure", len(decisions))
	}
}

func TestBatchPhaseOperationsKeepTreeInvariants(t *testing.T) {
	svc, _, planID := newBatchFixture(t, 100)
	ctx := context.Background()

	resp, err := svc.Execute(ctx, planID, batch.ExecuteRequest{
		Operations: []batch.Operation{
			{EntityType: entity.KindPhase, TempID: "$root", Payload: entity.Document{"title": "build"}},
			{EntityType: entity.KindPhase, Payload: entity.Document{"title": "step", "parent_id": "$root"}},
		},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !resp.Results[0].Success || !resp.Results[1].Success {
		t.Fatalf("results = %+v", resp.Results)
	}

	tree, err := svc.phases.Tree(ctx, planID, "", true)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if len(tree) != 1 || len(tree[0].Children) != 1 {
		t.Fatalf("tree shape = %d roots, want one root with one child", len(tree))
	}
	if got := tree[0].Children[0].Path; got != "1.1" {
		t.Fatalf("child path = %q, want 1.1", got)
	}
}

func TestBatchValidation(t *testing.T) {
	svc, _, planID := newBatchFixture(t, 2)
	ctx := context.Background()

	if _, err := svc.Execute(ctx, planID, batch.ExecuteRequest{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("empty batch: err = %v, want ErrValidation", err)
	}

	ops := make([]batch.Operation, 3)
	for i := range ops {
		ops[i] = batch.Operation{EntityType: entity.KindRequirement, Payload: entity.Document{"title": "x"}}
	}
	if _, err := svc.Execute(ctx, planID, batch.ExecuteRequest{Operations: ops}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("oversized batch: err = %v, want ErrValidation", err)
	}

	badKind := []batch.Operation{{EntityType: "widget", Payload: entity.Document{"title": "x"}}}
	if _, err := svc.Execute(ctx, planID, batch.ExecuteRequest{Operations: badKind}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("unknown kind: err = %v, want ErrValidation", err)
	}

	good := []batch.Operation{{EntityType: entity.KindRequirement, Payload: entity.Document{"title": "x"}}}
	if _, err := svc.Execute(ctx, "missing", batch.ExecuteRequest{Operations: good}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing plan: err = %v, want ErrNotFound", err)
	}
}

func TestBatchUnknownTempTokenLeftUntouched(t *testing.T) {
	svc, store, planID := newBatchFixture(t, 100)
	ctx := context.Background()

	resp, err := svc.Execute(ctx, planID, batch.ExecuteRequest{
		Operations: []batch.Operation{
			{EntityType: entity.KindRequirement, Payload: entity.Document{"title": "a", "related": "$nope"}},
		},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !resp.Results[0].Success {
		t.Fatalf("result = %+v", resp.Results[0])
	}

	docs, err := store.LoadEntities(ctx, planID, entity.KindRequirement)
	if err != nil {
		t.Fatalf("LoadEntities: %v", err)
	}
	if got := docs[0]["related"]; got != "$nope" {
		t.Fatalf("unknown token rewritten to %v, want left as-is", got)
	}
}
