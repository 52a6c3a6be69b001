package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/planforge/planforge/internal/domain"
	"github.com/planforge/planforge/internal/domain/entity"
	"github.com/planforge/planforge/internal/domain/plan"
	"github.com/planforge/planforge/internal/domain/version"
	"github.com/planforge/planforge/internal/port/messagequeue"
)

// mockStore is an in-memory entitystore.Store for service tests. Loads
// and saves deep-copy the documents, so tests observe the same aliasing
// behavior as a real JSON-backed store.
type mockStore struct {
	mu          sync.Mutex
	plans       map[string]*plan.Plan
	collections map[string]map[entity.Kind][]entity.Document

	saveErr error // when set, SaveEntities fails with it
	saves   int
}

func newMockStore() *mockStore {
	return &mockStore{
		plans:       make(map[string]*plan.Plan),
		collections: make(map[string]map[entity.Kind][]entity.Document),
	}
}

func (m *mockStore) addPlan(id string) *plan.Plan {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &plan.Plan{ID: id, Name: id, Status: plan.StatusActive, CreatedAt: time.Now().UTC()}
	m.plans[id] = p
	m.collections[id] = make(map[entity.Kind][]entity.Document)
	return p
}

func (m *mockStore) PlanExists(_ context.Context, planID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.plans[planID]
	return ok, nil
}

func (m *mockStore) LoadEntities(_ context.Context, planID string, kind entity.Kind) ([]entity.Document, error) {
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

func (m *mockStore) SaveEntities(_ context.Context, planID string, kind entity.Kind, docs []entity.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	coll, ok := m.collections[planID]
	if !ok {
		return fmt.Errorf("plan %q: %w", planID, domain.ErrNotFound)
	}
	saved := make([]entity.Document, len(docs))
	for i, d := range docs {
		saved[i] = d.Clone()
	}
	coll[kind] = saved
	m.saves++
	return nil
}

func (m *mockStore) CreatePlan(_ context.Context, req plan.CreateRequest) (*plan.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	p := &plan.Plan{
		ID: uuid.NewString(), Name: req.Name, Description: req.Description,
		Status: plan.StatusActive, Settings: req.Settings, CreatedBy: req.CreatedBy,
		CreatedAt: now, UpdatedAt: now,
	}
	m.plans[p.ID] = p
	m.collections[p.ID] = make(map[entity.Kind][]entity.Document)
	return p, nil
}

func (m *mockStore) GetPlan(_ context.Context, id string) (*plan.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, fmt.Errorf("plan %q: %w", id, domain.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *mockStore) ListPlans(_ context.Context) ([]plan.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]plan.Plan, 0, len(m.plans))
	for _, p := range m.plans {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockStore) UpdatePlan(_ context.Context, p *plan.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plans[p.ID]; !ok {
		return fmt.Errorf("plan %q: %w", p.ID, domain.ErrNotFound)
	}
	cp := *p
	m.plans[p.ID] = &cp
	return nil
}

func planCreateReq(name string, historyDepth int) plan.CreateRequest {
	return plan.CreateRequest{Name: name, Settings: plan.Settings{MaxHistoryDepth: historyDepth}}
}

// mockSnapshotStore is an in-memory entitystore.SnapshotStore.
type mockSnapshotStore struct {
	mu    sync.Mutex
	snaps map[string][]version.Snapshot // key: planID + "/" + entityID, oldest first
}

func newMockSnapshotStore() *mockSnapshotStore {
	return &mockSnapshotStore{snaps: make(map[string][]version.Snapshot)}
}

func snapKey(planID, entityID string) string { return planID + "/" + entityID }

func (m *mockSnapshotStore) AppendSnapshot(_ context.Context, planID, entityID string, snap version.Snapshot, maxDepth int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := snapKey(planID, entityID)
	log := append(m.snaps[key], snap)
	if maxDepth > 0 && len(log) > maxDepth {
		log = log[len(log)-maxDepth:]
	}
	m.snaps[key] = log
	return nil
}

func (m *mockSnapshotStore) GetSnapshot(_ context.Context, planID, entityID string, versionNum int) (*version.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.snaps[snapKey(planID, entityID)] {
		if s.Version == versionNum {
			cp := s
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("snapshot for entity %q version %d: %w", entityID, versionNum, domain.ErrNotFound)
}

func (m *mockSnapshotStore) ListSnapshots(_ context.Context, planID, entityID string, limit, offset int) ([]version.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	log := m.snaps[snapKey(planID, entityID)]
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

// mockHub records broadcast events.
type mockHub struct {
	mu     sync.Mutex
	events []string
}

func (m *mockHub) BroadcastEvent(_ context.Context, eventType string, _ any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, eventType)
}

func (m *mockHub) count(eventType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e == eventType {
			n++
		}
	}
	return n
}

// mockQueue records published subjects.
type mockQueue struct {
	mu       sync.Mutex
	subjects []string
}

func (m *mockQueue) Publish(_ context.Context, subject string, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects = append(m.subjects, subject)
	return nil
}

func (m *mockQueue) Subscribe(_ context.Context, _ string, _ messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (m *mockQueue) Drain() error      { return nil }
func (m *mockQueue) Close() error      { return nil }
func (m *mockQueue) IsConnected() bool { return true }

// mockCache is a TTL-less in-memory cache.
type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMockCache() *mockCache { return &mockCache{data: make(map[string][]byte)} }

func (m *mockCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mockCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mockCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
