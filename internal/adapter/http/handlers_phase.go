package http

import (
	"net/http"

	"github.com/planforge/planforge/internal/domain/phase"
)

func (h *Handlers) AddPhase(w http.ResponseWriter, r *http.Request) {
	planID := urlParam(r, "planID")
	req, ok := readJSON[phase.CreateRequest](w, r, h.Limits.MaxRequestBodySize)
	if !ok {
		return
	}
	p, err := h.Phases.Add(r.Context(), planID, req)
	if err != nil {
		writeDomainError(w, err, "plan "+planID+" not found")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GetPhaseTree renders the phase forest. Query parameters: root_id
// scopes the tree to one subtree, include_completed keeps completed
// phases in the output.
func (h *Handlers) GetPhaseTree(w http.ResponseWriter, r *http.Request) {
	planID := urlParam(r, "planID")
	rootID := r.URL.Query().Get("root_id")
	includeCompleted := queryBool(r, "include_completed")

	tree, err := h.Phases.Tree(r.Context(), planID, rootID, includeCompleted)
	if err != nil {
		writeDomainError(w, err, "phase tree not found")
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (h *Handlers) MovePhase(w http.ResponseWriter, r *http.Request) {
	planID := urlParam(r, "planID")
	phaseID := urlParam(r, "phaseID")
	req, ok := readJSON[phase.MoveRequest](w, r, h.Limits.MaxRequestBodySize)
	if !ok {
		return
	}
	res, err := h.Phases.Move(r.Context(), planID, phaseID, req)
	if err != nil {
		writeDomainError(w, err, "phase "+phaseID+" not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) UpdatePhaseStatus(w http.ResponseWriter, r *http.Request) {
	planID := urlParam(r, "planID")
	phaseID := urlParam(r, "phaseID")
	req, ok := readJSON[phase.StatusUpdateRequest](w, r, h.Limits.MaxRequestBodySize)
	if !ok {
		return
	}
	res, err := h.Phases.UpdateStatus(r.Context(), planID, phaseID, req)
	if err != nil {
		writeDomainError(w, err, "phase "+phaseID+" not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) DeletePhase(w http.ResponseWriter, r *http.Request) {
	planID := urlParam(r, "planID")
	phaseID := urlParam(r, "phaseID")
	deleteChildren := queryBool(r, "delete_children")

	deleted, err := h.Phases.Delete(r.Context(), planID, phaseID, deleteChildren)
	if err != nil {
		writeDomainError(w, err, "phase "+phaseID+" not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted_ids": deleted})
}

func (h *Handlers) GetNextActions(w http.ResponseWriter, r *http.Request) {
	planID := urlParam(r, "planID")
	limit := queryInt(r, "limit", h.Limits.NextActionsDefault)

	actions, err := h.Phases.NextActions(r.Context(), planID, limit)
	if err != nil {
		writeDomainError(w, err, "plan "+planID+" not found")
		return
	}
	if actions == nil {
		actions = []phase.Action{}
	}
	writeJSON(w, http.StatusOK, actions)
}
