package handlers

import (
	"net/http"
	"strings"

	"aegis-ecc/core/apperr"
	"aegis-ecc/core/store"
	"aegis-ecc/core/utils"
)

// RefsHandler serves the reference data: incident categories and responder
// agencies. Mutations are admin-only; reads are open to any session.
type RefsHandler struct {
	refs   store.RefsStore
	audits store.AuditStore
	logger *utils.Logger
}

func NewRefsHandler(refs store.RefsStore, audits store.AuditStore, logger *utils.Logger) *RefsHandler {
	return &RefsHandler{refs: refs, audits: audits, logger: logger}
}

func (h *RefsHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") == ""
	items, err := h.refs.ListCategories(r.Context(), activeOnly)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type categoryPayload struct {
	Name string `json:"name" validate:"required,min=2,max=80"`
}

func (h *RefsHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var payload categoryPayload
	if err := decodeValid(r, &payload); err != nil {
		writeAppError(w, err)
		return
	}
	cat := &store.IncidentCategory{Name: strings.TrimSpace(payload.Name), Active: true}
	if _, err := h.refs.CreateCategory(r.Context(), cat); err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	_ = h.audits.Record(r.Context(), &store.AuditRecord{
		ActorID:    actor.UserID,
		Action:     "CATEGORY_CREATED",
		EntityType: "CATEGORY",
		EntityID:   &cat.ID,
	})
	writeJSON(w, http.StatusCreated, cat)
}

type categoryActivePayload struct {
	Active *bool `json:"active" validate:"required"`
}

func (h *RefsHandler) SetCategoryActive(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id := pathID(r, "id")
	cat, err := h.refs.GetCategory(r.Context(), id)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if cat == nil {
		writeAppError(w, apperr.CategoryNotFound())
		return
	}
	var payload categoryActivePayload
	if err := decodeValid(r, &payload); err != nil {
		writeAppError(w, err)
		return
	}
	if err := h.refs.SetCategoryActive(r.Context(), id, *payload.Active); err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	_ = h.audits.Record(r.Context(), &store.AuditRecord{
		ActorID:    actor.UserID,
		Action:     "CATEGORY_ACTIVE_CHANGED",
		EntityType: "CATEGORY",
		EntityID:   &id,
		Meta:       map[string]any{"active": *payload.Active},
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *RefsHandler) ListAgencies(w http.ResponseWriter, r *http.Request) {
	items, err := h.refs.ListAgencies(r.Context())
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type agencyPayload struct {
	Name   string `json:"name" validate:"required,min=2,max=120"`
	Region string `json:"region" validate:"max=120"`
}

func (h *RefsHandler) CreateAgency(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var payload agencyPayload
	if err := decodeValid(r, &payload); err != nil {
		writeAppError(w, err)
		return
	}
	agency := &store.Agency{Name: strings.TrimSpace(payload.Name), Region: strings.TrimSpace(payload.Region)}
	if _, err := h.refs.CreateAgency(r.Context(), agency); err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	_ = h.audits.Record(r.Context(), &store.AuditRecord{
		ActorID:    actor.UserID,
		Action:     "AGENCY_CREATED",
		EntityType: "AGENCY",
		EntityID:   &agency.ID,
	})
	writeJSON(w, http.StatusCreated, agency)
}
