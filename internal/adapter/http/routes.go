package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Plans
		r.Get("/plans", h.ListPlans)
		r.Post("/plans", h.CreatePlan)
		r.Get("/plans/{planID}", h.GetPlan)
		r.Put("/plans/{planID}", h.UpdatePlan)
		r.Post("/plans/{planID}/archive", h.ArchivePlan)
		r.Get("/plans/{planID}/statistics", h.GetStatistics)

		// Phase tree
		r.Post("/plans/{planID}/phases", h.AddPhase)
		r.Get("/plans/{planID}/phases/tree", h.GetPhaseTree)
		r.Post("/plans/{planID}/phases/{phaseID}/move", h.MovePhase)
		r.Post("/plans/{planID}/phases/{phaseID}/status", h.UpdatePhaseStatus)
		r.Delete("/plans/{planID}/phases/{phaseID}", h.DeletePhase)
		r.Get("/plans/{planID}/next-actions", h.GetNextActions)

		// Entity collections
		r.Get("/plans/{planID}/entities/{kind}", h.ListEntities)
		r.Post("/plans/{planID}/entities/{kind}", h.CreateEntity)
		r.Get("/plans/{planID}/entities/{kind}/{entityID}", h.GetEntity)
		r.Put("/plans/{planID}/entities/{kind}/{entityID}", h.UpdateEntity)
		r.Delete("/plans/{planID}/entities/{kind}/{entityID}", h.DeleteEntity)

		// Requirement voting
		r.Post("/plans/{planID}/requirements/{entityID}/vote", h.VoteRequirement)
		r.Post("/plans/{planID}/requirements/{entityID}/unvote", h.UnvoteRequirement)

		// Relationship links
		r.Post("/plans/{planID}/links", h.CreateLink)

		// Batch transactions
		r.Post("/plans/{planID}/batch", h.ExecuteBatch)

		// Version history
		r.Get("/plans/{planID}/entities-history/{entityID}", h.GetEntityHistory)
		r.Get("/plans/{planID}/entities-history/{entityID}/diff", h.DiffEntityVersions)
	})
}
