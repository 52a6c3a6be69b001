package http

import (
	"github.com/planforge/planforge/internal/config"
	"github.com/planforge/planforge/internal/service"
)

// Handlers bundles the services the REST API dispatches to.
type Handlers struct {
	Plans    *service.PlanService
	Phases   *service.PhaseService
	Entities *service.EntityService
	Batches  *service.BatchService
	Versions *service.VersionService
	Stats    *service.StatsService
	Limits   config.Limits
}
