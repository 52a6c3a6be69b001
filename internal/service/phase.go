// Package service contains the application services orchestrating the
// plan engines over the persistence ports.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/planforge/planforge/internal/adapter/ws"
	"github.com/planforge/planforge/internal/domain"
	"github.com/planforge/planforge/internal/domain/entity"
	"github.com/planforge/planforge/internal/domain/phase"
	"github.com/planforge/planforge/internal/port/broadcast"
	"github.com/planforge/planforge/internal/port/entitystore"
	"github.com/planforge/planforge/internal/port/messagequeue"
)

// PhaseService owns the order/depth/path invariants of the phase tree.
type PhaseService struct {
	store    entitystore.Store
	versions *VersionService
	stats    *StatsService
	hub      broadcast.Broadcaster
	queue    messagequeue.Queue
}

// NewPhaseService creates a PhaseService. versions, stats, hub, and
// queue may be nil; the corresponding side effects are then skipped.
func NewPhaseService(store entitystore.Store, versions *VersionService, stats *StatsService, hub broadcast.Broadcaster, queue messagequeue.Queue) *PhaseService {
	return &PhaseService{store: store, versions: versions, stats: stats, hub: hub, queue: queue}
}

// Add inserts a new phase under the requested parent.
//
// Sibling order is max(existing sibling orders)+1 when not explicit, so
// orders stay monotonic even after intermediate siblings were deleted
// and a reused order can never collide with a surviving path.
func (s *PhaseService) Add(ctx context.Context, planID string, req phase.CreateRequest) (*phase.Phase, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("title is required: %w", domain.ErrValidation)
	}
	if req.Order != nil && *req.Order < 1 {
		return nil, fmt.Errorf("order must be a positive integer: %w", domain.ErrValidation)
	}

	phases, err := s.loadPhases(ctx, planID)
	if err != nil {
		return nil, err
	}

	var parent *phase.Phase
	if req.ParentID != "" {
		parent = findPhase(phases, req.ParentID)
		if parent == nil {
			return nil, fmt.Errorf("parent phase %q: %w", req.ParentID, domain.ErrNotFound)
		}
	}

	order := 0
	if req.Order != nil {
		order = *req.Order
	} else {
		var siblings []phase.Phase
		for i := range phases {
			if phases[i].ParentID == req.ParentID {
				siblings = append(siblings, phases[i])
			}
		}
		order = phase.NextOrder(siblings)
	}

	depth := 0
	parentPath := ""
	if parent != nil {
		depth = parent.Depth + 1
		parentPath = parent.Path
	}

	now := time.Now().UTC()
	p := phase.Phase{
		ID:        uuid.NewString(),
		Type:      string(entity.KindPhase),
		ParentID:  req.ParentID,
		Order:     order,
		Depth:     depth,
		Path:      phase.ChildPath(parentPath, order),
		Title:     req.Title,
		Status:    phase.StatusPlanned,
		Schedule:  phase.Schedule{EstimatedHours: req.EstimatedHours},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	p.Description = req.Description
	p.Metadata = map[string]any{"annotations": []any{}}
	if req.CreatedBy != "" {
		p.Metadata["creator"] = req.CreatedBy
	}

	phases = append(phases, p)
	if err := s.savePhases(ctx, planID, phases); err != nil {
		return nil, err
	}

	s.refreshStats(ctx, planID)
	return &p, nil
}

// Move re-parents and/or re-orders a phase and re-derives path and depth
// for the phase and its entire descendant subtree. The walk uses an
// explicit worklist over the parent→children adjacency so deep trees
// cannot exhaust the call stack and the affected set is collected
// explicitly.
func (s *PhaseService) Move(ctx context.Context, planID, phaseID string, req phase.MoveRequest) (*phase.MoveResult, error) {
	if req.NewOrder != nil && *req.NewOrder < 1 {
		return nil, fmt.Errorf("order must be a positive integer: %w", domain.ErrValidation)
	}

	phases, err := s.loadPhases(ctx, planID)
	if err != nil {
		return nil, err
	}

	target := findPhase(phases, phaseID)
	if target == nil {
		return nil, fmt.Errorf("phase %q: %w", phaseID, domain.ErrNotFound)
	}

	newParentID := target.ParentID
	if req.NewParentID != nil {
		newParentID = *req.NewParentID
	}

	var parent *phase.Phase
	if newParentID != "" {
		parent = findPhase(phases, newParentID)
		if parent == nil {
			return nil, fmt.Errorf("parent phase %q: %w", newParentID, domain.ErrNotFound)
		}
		if parent.ID == target.ID || isDescendant(phases, target.ID, parent.ID) {
			return nil, fmt.Errorf("cannot move phase %q under its own subtree: %w", phaseID, domain.ErrValidation)
		}
	}

	s.snapshotPhase(ctx, planID, target)

	now := time.Now().UTC()
	target.ParentID = newParentID
	if req.NewOrder != nil {
		target.Order = *req.NewOrder
	}
	if parent != nil {
		target.Depth = parent.Depth + 1
		target.Path = phase.ChildPath(parent.Path, target.Order)
	} else {
		target.Depth = 0
		target.Path = phase.ChildPath("", target.Order)
	}
	target.Version++
	target.UpdatedAt = now

	// Re-derive the whole subtree.
	children := childIndex(phases)
	var affected []phase.Phase
	stack := []*phase.Phase{target}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range children[n.ID] {
			child.Path = phase.ChildPath(n.Path, child.Order)
			child.Depth = n.Depth + 1
			child.Version++
			child.UpdatedAt = now
			affected = append(affected, *child)
			stack = append(stack, child)
		}
	}

	if err := s.savePhases(ctx, planID, phases); err != nil {
		return nil, err
	}

	if s.hub != nil {
		ids := make([]string, len(affected))
		for i := range affected {
			ids[i] = affected[i].ID
		}
		s.hub.BroadcastEvent(ctx, ws.EventPhaseMoved, ws.PhaseMovedEvent{
			PlanID:      planID,
			PhaseID:     target.ID,
			AffectedIDs: ids,
		})
	}

	return &phase.MoveResult{Phase: *target, AffectedPhases: affected}, nil
}

// Tree builds the phase forest under rootID (all roots when empty),
// children sorted ascending by order at every level. When
// includeCompleted is false, completed phases are filtered from the
// collection before the tree is built, so their descendants are absent
// from the result as well.
func (s *PhaseService) Tree(ctx context.Context, planID, rootID string, includeCompleted bool) ([]*phase.TreeNode, error) {
	phases, err := s.loadPhases(ctx, planID)
	if err != nil {
		return nil, err
	}

	if !includeCompleted {
		kept := phases[:0]
		for i := range phases {
			if phases[i].Status != phase.StatusCompleted {
				kept = append(kept, phases[i])
			}
		}
		phases = kept
	}

	children := childIndex(phases)
	for _, siblings := range children {
		sort.Slice(siblings, func(i, j int) bool { return siblings[i].Order < siblings[j].Order })
	}

	var build func(p *phase.Phase) *phase.TreeNode
	build = func(p *phase.Phase) *phase.TreeNode {
		node := &phase.TreeNode{Phase: *p, Children: []*phase.TreeNode{}}
		for _, c := range children[p.ID] {
			node.Children = append(node.Children, build(c))
		}
		return node
	}

	if rootID != "" {
		root := findPhase(phases, rootID)
		if root == nil {
			return nil, fmt.Errorf("phase %q: %w", rootID, domain.ErrNotFound)
		}
		return []*phase.TreeNode{build(root)}, nil
	}

	var roots []*phase.Phase
	for i := range phases {
		if phases[i].ParentID == "" {
			roots = append(roots, &phases[i])
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].Order < roots[j].Order })

	forest := make([]*phase.TreeNode, 0, len(roots))
	for _, r := range roots {
		forest = append(forest, build(r))
	}
	return forest, nil
}

// Delete removes a phase. With deleteChildren the full descendant set is
// collected iteratively and removed along with the target. Without it,
// only the target is removed and its children keep their now-dangling
// parent id — callers detaching a subtree on purpose can re-parent the
// orphans afterwards via Move.
func (s *PhaseService) Delete(ctx context.Context, planID, phaseID string, deleteChildren bool) ([]string, error) {
	phases, err := s.loadPhases(ctx, planID)
	if err != nil {
		return nil, err
	}

	if findPhase(phases, phaseID) == nil {
		return nil, fmt.Errorf("phase %q: %w", phaseID, domain.ErrNotFound)
	}

	doomed := map[string]bool{phaseID: true}
	deleted := []string{phaseID}
	if deleteChildren {
		children := childIndex(phases)
		stack := []string{phaseID}
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, c := range children[id] {
				doomed[c.ID] = true
				deleted = append(deleted, c.ID)
				stack = append(stack, c.ID)
			}
		}
	}

	kept := phases[:0]
	for i := range phases {
		if !doomed[phases[i].ID] {
			kept = append(kept, phases[i])
		}
	}

	if err := s.savePhases(ctx, planID, kept); err != nil {
		return nil, err
	}

	s.refreshStats(ctx, planID)
	return deleted, nil
}

// UpdateStatus applies a status transition with its side effects:
// planned→in_progress stamps started_at once, any transition to
// completed stamps completed_at and forces progress to 100, and
// blocking requires a note. Notes, when present, always append exactly
// one timestamped annotation whatever the target status.
func (s *PhaseService) UpdateStatus(ctx context.Context, planID, phaseID string, req phase.StatusUpdateRequest) (*phase.StatusUpdateResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	phases, err := s.loadPhases(ctx, planID)
	if err != nil {
		return nil, err
	}

	target := findPhase(phases, phaseID)
	if target == nil {
		return nil, fmt.Errorf("phase %q: %w", phaseID, domain.ErrNotFound)
	}

	s.snapshotPhase(ctx, planID, target)

	now := time.Now().UTC()
	var autoStamps []string

	if req.Status == phase.StatusInProgress && target.Status == phase.StatusPlanned && target.Schedule.StartedAt == nil {
		target.Schedule.StartedAt = &now
		autoStamps = append(autoStamps, "started_at")
	}
	if req.Status == phase.StatusCompleted {
		target.Schedule.CompletedAt = &now
		target.Progress = 100
		autoStamps = append(autoStamps, "completed_at")
	} else if req.Progress != nil {
		target.Progress = *req.Progress
	}
	if req.ActualHours != nil {
		target.Schedule.ActualHours = *req.ActualHours
	}
	target.Status = req.Status

	if req.Notes != "" {
		appendPhaseAnnotation(target, req.Notes, now)
	}

	target.Version++
	target.UpdatedAt = now

	if err := s.savePhases(ctx, planID, phases); err != nil {
		return nil, err
	}

	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventPhaseStatus, ws.PhaseStatusEvent{
			PlanID:   planID,
			PhaseID:  target.ID,
			Status:   string(target.Status),
			Progress: target.Progress,
		})
	}
	if s.queue != nil {
		msg, _ := json.Marshal(map[string]string{
			"plan_id":  planID,
			"phase_id": target.ID,
			"status":   string(target.Status),
		})
		if err := s.queue.Publish(ctx, messagequeue.SubjectPhaseStatus, msg); err != nil {
			slog.Warn("publish phase status", "plan_id", planID, "phase_id", target.ID, "error", err)
		}
	}

	return &phase.StatusUpdateResult{Phase: *target, AutoUpdatedTimestamps: autoStamps}, nil
}

// NextActions produces up to limit recommended actions in three fixed
// priority tiers: blocked phases first (unblock), then in-progress
// phases by descending progress (complete at ≥80, else continue), then
// planned phases whose parent is absent, completed, or in progress
// (start). The ready tier sorts by lexicographic comparison of dotted
// paths, which matches tree order only while every order segment stays
// single-digit.
func (s *PhaseService) NextActions(ctx context.Context, planID string, limit int) ([]phase.Action, error) {
	phases, err := s.loadPhases(ctx, planID)
	if err != nil {
		return nil, err
	}

	var blocked, active, ready []*phase.Phase
	for i := range phases {
		p := &phases[i]
		switch p.Status {
		case phase.StatusBlocked:
			blocked = append(blocked, p)
		case phase.StatusInProgress:
			active = append(active, p)
		case phase.StatusPlanned:
			if isReady(phases, p) {
				ready = append(ready, p)
			}
		}
	}

	sort.Slice(blocked, func(i, j int) bool { return blocked[i].Path < blocked[j].Path })
	sort.Slice(active, func(i, j int) bool {
		if active[i].Progress != active[j].Progress {
			return active[i].Progress > active[j].Progress
		}
		return active[i].Path < active[j].Path
	})
	sort.Slice(ready, func(i, j int) bool { return ready[i].Path < ready[j].Path })

	actions := make([]phase.Action, 0, len(blocked)+len(active)+len(ready))
	for _, p := range blocked {
		actions = append(actions, phase.Action{
			PhaseID: p.ID, Path: p.Path, Title: p.Title,
			Action: "unblock", Priority: "high",
			Reason: "phase is blocked",
		})
	}
	for _, p := range active {
		act := "continue"
		if p.Progress >= 80 {
			act = "complete"
		}
		actions = append(actions, phase.Action{
			PhaseID: p.ID, Path: p.Path, Title: p.Title,
			Action: act, Priority: "medium",
			Reason: fmt.Sprintf("in progress at %d%%", p.Progress),
		})
	}
	for _, p := range ready {
		actions = append(actions, phase.Action{
			PhaseID: p.ID, Path: p.Path, Title: p.Title,
			Action: "start", Priority: "low",
			Reason: "ready to start",
		})
	}

	if limit > 0 && len(actions) > limit {
		actions = actions[:limit]
	}
	return actions, nil
}

// --- helpers ---

func (s *PhaseService) loadPhases(ctx context.Context, planID string) ([]phase.Phase, error) {
	docs, err := s.store.LoadEntities(ctx, planID, entity.KindPhase)
	if err != nil {
		return nil, err
	}
	phases := make([]phase.Phase, 0, len(docs))
	for _, d := range docs {
		p, err := phase.FromDocument(d)
		if err != nil {
			return nil, fmt.Errorf("phase %q: %w", d.ID(), err)
		}
		phases = append(phases, *p)
	}
	return phases, nil
}

func (s *PhaseService) savePhases(ctx context.Context, planID string, phases []phase.Phase) error {
	docs := make([]entity.Document, 0, len(phases))
	for i := range phases {
		d, err := phases[i].Document()
		if err != nil {
			return fmt.Errorf("phase %q: %w", phases[i].ID, err)
		}
		docs = append(docs, d)
	}
	return s.store.SaveEntities(ctx, planID, entity.KindPhase, docs)
}

// snapshotPhase records the phase's pre-mutation state. History capture
// is best-effort for phase paths; a failed snapshot must not abort the
// mutation itself.
func (s *PhaseService) snapshotPhase(ctx context.Context, planID string, p *phase.Phase) {
	if s.versions == nil {
		return
	}
	doc, err := p.Document()
	if err == nil {
		err = s.versions.SaveVersion(ctx, planID, p.ID, entity.KindPhase, doc, p.Version, "", "")
	}
	if err != nil {
		slog.Warn("phase snapshot failed", "plan_id", planID, "phase_id", p.ID, "error", err)
	}
}

func (s *PhaseService) refreshStats(ctx context.Context, planID string) {
	if s.stats == nil {
		return
	}
	if _, err := s.stats.Update(ctx, planID); err != nil {
		slog.Warn("statistics refresh failed", "plan_id", planID, "error", err)
	}
}

func findPhase(phases []phase.Phase, id string) *phase.Phase {
	for i := range phases {
		if phases[i].ID == id {
			return &phases[i]
		}
	}
	return nil
}

// childIndex builds the parent→children adjacency over the slice. The
// returned pointers alias the slice elements so mutations stick.
func childIndex(phases []phase.Phase) map[string][]*phase.Phase {
	children := make(map[string][]*phase.Phase)
	for i := range phases {
		if phases[i].ParentID != "" {
			children[phases[i].ParentID] = append(children[phases[i].ParentID], &phases[i])
		}
	}
	return children
}

// isDescendant reports whether candidate is in the subtree rooted at rootID.
func isDescendant(phases []phase.Phase, rootID, candidate string) bool {
	cur := findPhase(phases, candidate)
	for cur != nil && cur.ParentID != "" {
		if cur.ParentID == rootID {
			return true
		}
		cur = findPhase(phases, cur.ParentID)
	}
	return false
}

// appendPhaseAnnotation appends one timestamped note to the phase's
// metadata annotation log, mirroring entity.AppendAnnotation for the
// typed phase shape.
func appendPhaseAnnotation(p *phase.Phase, text string, now time.Time) {
	if p.Metadata == nil {
		p.Metadata = map[string]any{}
	}
	log, _ := p.Metadata["annotations"].([]any)
	p.Metadata["annotations"] = append(log, map[string]any{
		"text":       text,
		"created_at": now.UTC().Format(entity.TimeFormat),
	})
}

// isReady reports whether a planned phase can be started: no parent, or
// a parent that is completed or in progress.
func isReady(phases []phase.Phase, p *phase.Phase) bool {
	if p.ParentID == "" {
		return true
	}
	parent := findPhase(phases, p.ParentID)
	if parent == nil {
		return true
	}
	return parent.Status == phase.StatusCompleted || parent.Status == phase.StatusInProgress
}
