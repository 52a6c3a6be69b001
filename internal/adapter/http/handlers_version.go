package http

import (
	"net/http"

	"github.com/planforge/planforge/internal/domain/version"
)

func (h *Handlers) GetEntityHistory(w http.ResponseWriter, r *http.Request) {
	planID := urlParam(r, "planID")
	entityID := urlParam(r, "entityID")
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	history, err := h.Versions.History(r.Context(), planID, entityID, limit, offset)
	if err != nil {
		writeDomainError(w, err, "plan "+planID+" not found")
		return
	}
	if history == nil {
		history = []version.Snapshot{}
	}
	writeJSON(w, http.StatusOK, history)
}

// DiffEntityVersions compares two versions of an entity. Query
// parameters from and to are the version numbers; either may be the
// entity's current version.
func (h *Handlers) DiffEntityVersions(w http.ResponseWriter, r *http.Request) {
	planID := urlParam(r, "planID")
	entityID := urlParam(r, "entityID")
	from := queryInt(r, "from", 0)
	to := queryInt(r, "to", 0)
	if from <= 0 || to <= 0 {
		writeError(w, http.StatusBadRequest, "from and to version numbers are required")
		return
	}

	changes, err := h.Versions.Diff(r.Context(), planID, entityID, from, to)
	if err != nil {
		writeDomainError(w, err, "version not found")
		return
	}
	writeJSON(w, http.StatusOK, changes)
}
