package http

import (
	"net/http"

	"github.com/planforge/planforge/internal/domain/entity"
)

func (h *Handlers) ListEntities(w http.ResponseWriter, r *http.Request) {
	planID := urlParam(r, "planID")
	kind := entity.Kind(urlParam(r, "kind"))

	docs, err := h.Entities.List(r.Context(), planID, kind)
	if err != nil {
		writeDomainError(w, err, "plan "+planID+" not found")
		return
	}
	if docs == nil {
		docs = []entity.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *Handlers) CreateEntity(w http.ResponseWriter, r *http.Request) {
	planID := urlParam(r, "planID")
	kind := entity.Kind(urlParam(r, "kind"))
	payload, ok := readJSON[entity.Document](w, r, h.Limits.MaxRequestBodySize)
	if !ok {
		return
	}
	doc, err := h.Entities.Create(r.Context(), planID, kind, payload)
	if err != nil {
		writeDomainError(w, err, "plan "+planID+" not found")
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *Handlers) GetEntity(w http.ResponseWriter, r *http.Request) {
	planID := urlParam(r, "planID")
	kind := entity.Kind(urlParam(r, "kind"))
	entityID := urlParam(r, "entityID")

	doc, err := h.Entities.Get(r.Context(), planID, kind, entityID)
	if err != nil {
		writeDomainError(w, err, "entity "+entityID+" not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type updateEntityRequest struct {
	Fields     entity.Document `json:"fields"`
	Author     string          `json:"author,omitempty"`
	ChangeNote string          `json:"change_note,omitempty"`
}

func (h *Handlers) UpdateEntity(w http.ResponseWriter, r *http.Request) {
	planID := urlParam(r, "planID")
	kind := entity.Kind(urlParam(r, "kind"))
	entityID := urlParam(r, "entityID")

	req, ok := readJSON[updateEntityRequest](w, r, h.Limits.MaxRequestBodySize)
	if !ok {
		return
	}
	if len(req.Fields) == 0 {
		writeError(w, http.StatusBadRequest, "fields is required")
		return
	}
	doc, err := h.Entities.Update(r.Context(), planID, kind, entityID, req.Fields, req.Author, req.ChangeNote)
	if err != nil {
		writeDomainError(w, err, "entity "+entityID+" not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handlers) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	planID := urlParam(r, "planID")
	kind := entity.Kind(urlParam(r, "kind"))
	entityID := urlParam(r, "entityID")

	if err := h.Entities.Delete(r.Context(), planID, kind, entityID); err != nil {
		writeDomainError(w, err, "entity "+entityID+" not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type voteRequest struct {
	Voter string `json:"voter,omitempty"`
}

func (h *Handlers) VoteRequirement(w http.ResponseWriter, r *http.Request) {
	planID := urlParam(r, "planID")
	entityID := urlParam(r, "entityID")
	req, ok := readJSON[voteRequest](w, r, h.Limits.MaxRequestBodySize)
	if !ok {
		return
	}
	doc, err := h.Entities.Vote(r.Context(), planID, entityID, req.Voter)
	if err != nil {
		writeDomainError(w, err, "requirement "+entityID+" not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handlers) UnvoteRequirement(w http.ResponseWriter, r *http.Request) {
	planID := urlParam(r, "planID")
	entityID := urlParam(r, "entityID")
	req, ok := readJSON[voteRequest](w, r, h.Limits.MaxRequestBodySize)
	if !ok {
		return
	}
	doc, err := h.Entities.Unvote(r.Context(), planID, entityID, req.Voter)
	if err != nil {
		writeDomainError(w, err, "requirement "+entityID+" not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handlers) CreateLink(w http.ResponseWriter, r *http.Request) {
	planID := urlParam(r, "planID")
	req, ok := readJSON[entity.CreateLinkRequest](w, r, h.Limits.MaxRequestBodySize)
	if !ok {
		return
	}
	doc, err := h.Entities.CreateLink(r.Context(), planID, req)
	if err != nil {
		writeDomainError(w, err, "link endpoint not found")
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}
