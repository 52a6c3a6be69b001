package http

import (
	"net/http"

	"github.com/planforge/planforge/internal/domain/plan"
)

func (h *Handlers) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.Plans.List(r.Context())
	if err != nil {
		writeDomainError(w, err, "plans not found")
		return
	}
	if plans == nil {
		plans = []plan.Plan{}
	}
	writeJSON(w, http.StatusOK, plans)
}

func (h *Handlers) CreatePlan(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[plan.CreateRequest](w, r, h.Limits.MaxRequestBodySize)
	if !ok {
		return
	}
	p, err := h.Plans.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "plan not found")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handlers) GetPlan(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "planID")
	p, err := h.Plans.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "plan "+id+" not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handlers) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "planID")
	req, ok := readJSON[plan.CreateRequest](w, r, h.Limits.MaxRequestBodySize)
	if !ok {
		return
	}
	p, err := h.Plans.Update(r.Context(), id, req)
	if err != nil {
		writeDomainError(w, err, "plan "+id+" not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handlers) ArchivePlan(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "planID")
	p, err := h.Plans.Archive(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "plan "+id+" not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handlers) GetStatistics(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "planID")
	st, err := h.Stats.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "plan "+id+" not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}
