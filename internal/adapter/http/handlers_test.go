package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pfhttp "github.com/planforge/planforge/internal/adapter/http"
	"github.com/planforge/planforge/internal/config"
	"github.com/planforge/planforge/internal/domain"
	"github.com/planforge/planforge/internal/domain/entity"
	"github.com/planforge/planforge/internal/domain/phase"
	"github.com/planforge/planforge/internal/domain/plan"
	"github.com/planforge/planforge/internal/domain/version"
	"github.com/planforge/planforge/internal/service"
)

// memStore implements entitystore.Store and entitystore.SnapshotStore
// in memory for handler tests.
type memStore struct {
	mu          sync.Mutex
	plans       map[string]*plan.Plan
	collections map[string]map[entity.Kind][]entity.Document
	snaps       map[string][]version.Snapshot
}

func newMemStore() *memStore {
	return &memStore{
		plans:       make(map[string]*plan.Plan),
		collections: make(map[string]map[entity.Kind][]entity.Document),
		snaps:       make(map[string][]version.Snapshot),
	}
}

func (m *memStore) PlanExists(_ context.Context, planID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.plans[planID]
	return ok, nil
}

func (m *memStore) LoadEntities(_ context.Context, planID string, kind entity.Kind) ([]entity.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.collections[planID]
	if !ok {
		return nil, fmt.Errorf("plan %q: %w", planID, domain.ErrNotFound)
	}
	docs := coll[kind]
	out := make([]entity.Document, len(docs))
	for i, d := range docs {
		out[i] = d.Clone()
	}
	return out, nil
}

func (m *memStore) SaveEntities(_ context.Context, planID string, kind entity.Kind, docs []entity.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.collections[planID]
	if !ok {
		return fmt.Errorf("plan %q: %w", planID, domain.ErrNotFound)
	}
	saved := make([]entity.Document, len(docs))
	for i, d := range docs {
		saved[i] = d.Clone()
	}
	coll[kind] = saved
	return nil
}

func (m *memStore) CreatePlan(_ context.Context, req plan.CreateRequest) (*plan.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	p := &plan.Plan{
		ID: uuid.NewString(), Name: req.Name, Description: req.Description,
		Status: plan.StatusActive, Settings: req.Settings,
		CreatedAt: now, UpdatedAt: now,
	}
	m.plans[p.ID] = p
	m.collections[p.ID] = make(map[entity.Kind][]entity.Document)
	return p, nil
}

func (m *memStore) GetPlan(_ context.Context, id string) (*plan.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, fmt.Errorf("plan %q: %w", id, domain.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) ListPlans(_ context.Context) ([]plan.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]plan.Plan, 0, len(m.plans))
	for _, p := range m.plans {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdatePlan(_ context.Context, p *plan.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plans[p.ID]; !ok {
		return fmt.Errorf("plan %q: %w", p.ID, domain.ErrNotFound)
	}
	cp := *p
	m.plans[p.ID] = &cp
	return nil
}

func (m *memStore) AppendSnapshot(_ context.Context, planID, entityID string, snap version.Snapshot, maxDepth int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := planID + "/" + entityID
	log := append(m.snaps[key], snap)
	if maxDepth > 0 && len(log) > maxDepth {
		log = log[len(log)-maxDepth:]
	}
	m.snaps[key] = log
	return nil
}

func (m *memStore) GetSnapshot(_ context.Context, planID, entityID string, versionNum int) (*version.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.snaps[planID+"/"+entityID] {
		if s.Version == versionNum {
			cp := s
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("snapshot version %d: %w", versionNum, domain.ErrNotFound)
}

func (m *memStore) ListSnapshots(_ context.Context, planID, entityID string, limit, offset int) ([]version.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	log := m.snaps[planID+"/"+entityID]
	out := make([]version.Snapshot, 0, len(log))
	for i := len(log) - 1; i >= 0; i-- {
		out = append(out, log[i])
	}
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *memStore) {
	t.Helper()
	store := newMemStore()
	versions := service.NewVersionService(store, store)
	stats := service.NewStatsService(store, nil, nil, nil, time.Minute)
	phases := service.NewPhaseService(store, versions, stats, nil, nil)
	entities := service.NewEntityService(store, versions, stats, nil, nil)
	batches := service.NewBatchService(store, phases, entities, stats, 100)
	plans := service.NewPlanService(store)

	h := &pfhttp.Handlers{
		Plans:    plans,
		Phases:   phases,
		Entities: entities,
		Batches:  batches,
		Versions: versions,
		Stats:    stats,
		Limits:   config.Defaults().Limits,
	}

	r := chi.NewRouter()
	pfhttp.MountRoutes(r, h)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, out.Bytes()
}

func createTestPlan(t *testing.T, base string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, base+"/api/plans", plan.CreateRequest{Name: "test plan"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create plan: status %d: %s", resp.StatusCode, body)
	}
	var p plan.Plan
	if err := json.Unmarshal(body, &p); err != nil {
		t.Fatalf("decode plan: %v", err)
	}
	return p.ID
}

func TestPlanLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	planID := createTestPlan(t, srv.URL)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/plans/"+planID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get plan: status %d: %s", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/plans/"+planID+"/archive", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("archive: status %d", resp.StatusCode)
	}
	// Second archive violates the business rule.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/plans/"+planID+"/archive", nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("double archive: status %d, want 422", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/plans/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing plan: status %d, want 404", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/plans", plan.CreateRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("nameless plan: status %d, want 400", resp.StatusCode)
	}
}

func TestPhaseEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	planID := createTestPlan(t, srv.URL)
	base := srv.URL + "/api/plans/" + planID

	resp, body := doJSON(t, http.MethodPost, base+"/phases", phase.CreateRequest{Title: "design"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add phase: status %d: %s", resp.StatusCode, body)
	}
	var root phase.Phase
	if err := json.Unmarshal(body, &root); err != nil {
		t.Fatalf("decode phase: %v", err)
	}

	resp, _ = doJSON(t, http.MethodPost, base+"/phases", phase.CreateRequest{Title: "child", ParentID: root.ID})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add child: status %d", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodGet, base+"/phases/tree", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("tree: status %d", resp.StatusCode)
	}
	var tree []phase.TreeNode
	if err := json.Unmarshal(body, &tree); err != nil {
		t.Fatalf("decode tree: %v", err)
	}
	if len(tree) != 1 || len(tree[0].Children) != 1 {
		t.Fatalf("tree shape: %d roots", len(tree))
	}

	resp, _ = doJSON(t, http.MethodPost, base+"/phases/"+root.ID+"/status",
		phase.StatusUpdateRequest{Status: phase.StatusBlocked})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("blocked without notes: status %d, want 400", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodGet, base+"/next-actions", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("next actions: status %d", resp.StatusCode)
	}
	var actions []phase.Action
	if err := json.Unmarshal(body, &actions); err != nil {
		t.Fatalf("decode actions: %v", err)
	}
	if len(actions) == 0 {
		t.Fatal("no next actions for planned root")
	}
}

func TestEntityAndBatchEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	planID := createTestPlan(t, srv.URL)
	base := srv.URL + "/api/plans/" + planID

	resp, body := doJSON(t, http.MethodPost, base+"/entities/requirement",
		entity.Document{"title": "fast exports"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create requirement: status %d: %s", resp.StatusCode, body)
	}
	var req entity.Document
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("decode: %v", err)
	}

	resp, _ = doJSON(t, http.MethodPost, base+"/requirements/"+req.ID()+"/unvote", map[string]string{})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unvote at zero: status %d, want 422", resp.StatusCode)
	}

	batchBody := map[string]any{
		"operations": []map[string]any{
			{"entity_type": "solution", "temp_id": "$1", "payload": map[string]any{"title": "cache layer"}},
			{"entity_type": "link", "payload": map[string]any{
				"source_id": "$1", "target_id": req.ID(), "relation_type": "addresses",
			}},
		},
	}
	resp, body = doJSON(t, http.MethodPost, base+"/batch", batchBody)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("batch: status %d: %s", resp.StatusCode, body)
	}
	var batchResp struct {
		Results       []struct{ Success bool }  `json:"results"`
		TempIDMapping map[string]string         `json:"temp_id_mapping"`
	}
	if err := json.Unmarshal(body, &batchResp); err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	for i, r := range batchResp.Results {
		if !r.Success {
			t.Fatalf("batch op %d failed", i)
		}
	}

	resp, body = doJSON(t, http.MethodGet, base+"/statistics", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("statistics: status %d", resp.StatusCode)
	}
	var stats struct {
		TotalEntities int `json:"total_entities"`
	}
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalEntities != 3 {
		t.Fatalf("total entities = %d, want 3", stats.TotalEntities)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	planID := createTestPlan(t, srv.URL)
	base := srv.URL + "/api/plans/" + planID

	resp, body := doJSON(t, http.MethodPost, base+"/entities/decision",
		entity.Document{"title": "monolith first"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status %d", resp.StatusCode)
	}
	var doc entity.Document
	if err := json.Unmarshal(body, &doc); err != nil {
		t.Fatal(err)
	}

	resp, _ = doJSON(t, http.MethodPut, base+"/entities/decision/"+doc.ID(),
		map[string]any{"fields": map[string]any{"title": "microservices later"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: status %d", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodGet, base+"/entities-history/"+doc.ID(), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history: status %d", resp.StatusCode)
	}
	var history []version.Snapshot
	if err := json.Unmarshal(body, &history); err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Fatalf("history = %d snapshots, want 1", len(history))
	}

	resp, body = doJSON(t, http.MethodGet, base+"/entities-history/"+doc.ID()+"/diff?from=1&to=2", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("diff: status %d: %s", resp.StatusCode, body)
	}
	var changes map[string]version.FieldChange
	if err := json.Unmarshal(body, &changes); err != nil {
		t.Fatal(err)
	}
	if _, ok := changes["title"]; !ok {
		t.Fatalf("diff missing title change: %v", changes)
	}

	resp, _ = doJSON(t, http.MethodGet, base+"/entities-history/"+doc.ID()+"/diff", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("diff without versions: status %d, want 400", resp.StatusCode)
	}
}
