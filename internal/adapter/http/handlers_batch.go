package http

import (
	"net/http"

	"github.com/planforge/planforge/internal/domain/batch"
)

func (h *Handlers) ExecuteBatch(w http.ResponseWriter, r *http.Request) {
	planID := urlParam(r, "planID")
	req, ok := readJSON[batch.ExecuteRequest](w, r, h.Limits.MaxRequestBodySize)
	if !ok {
		return
	}
	resp, err := h.Batches.Execute(r.Context(), planID, req)
	if err != nil {
		writeDomainError(w, err, "plan "+planID+" not found")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
