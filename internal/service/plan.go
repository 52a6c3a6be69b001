package service

import (
	"context"
	"fmt"
	"time"

	"github.com/planforge/planforge/internal/domain"
	"github.com/planforge/planforge/internal/domain/plan"
	"github.com/planforge/planforge/internal/port/entitystore"
)

// PlanService provides CRUD over the top-level plan records.
type PlanService struct {
	store entitystore.Store
}

// NewPlanService creates a PlanService.
func NewPlanService(store entitystore.Store) *PlanService {
	return &PlanService{store: store}
}

// Create validates and stores a new plan.
func (s *PlanService) Create(ctx context.Context, req plan.CreateRequest) (*plan.Plan, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.store.CreatePlan(ctx, req)
}

// Get returns one plan by id.
func (s *PlanService) Get(ctx context.Context, id string) (*plan.Plan, error) {
	return s.store.GetPlan(ctx, id)
}

// List returns all plans.
func (s *PlanService) List(ctx context.Context) ([]plan.Plan, error) {
	return s.store.ListPlans(ctx)
}

// Update applies name, description, and settings changes to a plan.
func (s *PlanService) Update(ctx context.Context, id string, req plan.CreateRequest) (*plan.Plan, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	p, err := s.store.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Name = req.Name
	p.Description = req.Description
	p.Settings = req.Settings
	p.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdatePlan(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Archive marks a plan archived. Archiving an already archived plan is
// a business-rule violation.
func (s *PlanService) Archive(ctx context.Context, id string) (*plan.Plan, error) {
	p, err := s.store.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status == plan.StatusArchived {
		return nil, fmt.Errorf("plan %q is already archived: %w", id, domain.ErrBusinessRule)
	}
	p.Status = plan.StatusArchived
	p.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdatePlan(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
