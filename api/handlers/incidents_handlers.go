package handlers

import (
	"net/http"
	"strings"

	"aegis-ecc/core/incidents"
	"aegis-ecc/core/store"
	"aegis-ecc/core/utils"
)

type IncidentsHandler struct {
	svc    *incidents.Service
	logger *utils.Logger
}

func NewIncidentsHandler(svc *incidents.Service, logger *utils.Logger) *IncidentsHandler {
	return &IncidentsHandler{svc: svc, logger: logger}
}

type incidentMediaPayload struct {
	URL       string `json:"url" validate:"required,url"`
	MediaType string `json:"media_type" validate:"required,oneof=IMAGE VIDEO AUDIO"`
}

type createIncidentPayload struct {
	Title       string                 `json:"title" validate:"required,min=3,max=200"`
	Description string                 `json:"description" validate:"max=4000"`
	CategoryID  int64                  `json:"category_id" validate:"required,gt=0"`
	Latitude    float64                `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude   float64                `json:"longitude" validate:"gte=-180,lte=180"`
	AddressText string                 `json:"address_text" validate:"max=400"`
	Landmark    string                 `json:"landmark" validate:"max=200"`
	Accuracy    string                 `json:"accuracy" validate:"omitempty,oneof=GPS MANUAL APPROXIMATE"`
	Media       []incidentMediaPayload `json:"media" validate:"dive"`
}

func (h *IncidentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var payload createIncidentPayload
	if err := decodeValid(r, &payload); err != nil {
		writeAppError(w, err)
		return
	}
	in := incidents.CreateInput{
		Title:       payload.Title,
		Description: payload.Description,
		CategoryID:  payload.CategoryID,
		Latitude:    payload.Latitude,
		Longitude:   payload.Longitude,
		AddressText: payload.AddressText,
		Landmark:    payload.Landmark,
		Accuracy:    payload.Accuracy,
	}
	for _, m := range payload.Media {
		in.Media = append(in.Media, incidents.MediaInput{URL: m.URL, MediaType: m.MediaType})
	}
	inc, err := h.svc.Create(r.Context(), actor, in)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inc)
}

func (h *IncidentsHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	q := r.URL.Query()
	filter := store.IncidentFilter{
		Status:     strings.ToUpper(strings.TrimSpace(q.Get("status"))),
		CategoryID: int64(parseIntDefault(q.Get("category_id"), 0)),
		Limit:      parseIntDefault(q.Get("limit"), 50),
		Offset:     parseIntDefault(q.Get("offset"), 0),
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	items, total, err := h.svc.List(r.Context(), actor, filter)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

func (h *IncidentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	inc, err := h.svc.Get(r.Context(), actor, pathID(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (h *IncidentsHandler) ListMedia(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	items, err := h.svc.ListMedia(r.Context(), actor, pathID(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type closeIncidentPayload struct {
	Note string `json:"note" validate:"required,min=3,max=1000"`
}

func (h *IncidentsHandler) Close(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var payload closeIncidentPayload
	if err := decodeValid(r, &payload); err != nil {
		writeAppError(w, err)
		return
	}
	inc, err := h.svc.CloseByReporter(r.Context(), actor, pathID(r, "id"), payload.Note)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

type statusPayload struct {
	Status string `json:"status" validate:"required"`
}

func (h *IncidentsHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var payload statusPayload
	if err := decodeValid(r, &payload); err != nil {
		writeAppError(w, err)
		return
	}
	inc, err := h.svc.UpdateStatus(r.Context(), actor, pathID(r, "id"), strings.ToUpper(strings.TrimSpace(payload.Status)))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

type verifyPayload struct {
	Decision string `json:"decision" validate:"required,oneof=VERIFIED UNREACHABLE FALSE_REPORT"`
	Comment  string `json:"comment" validate:"max=1000"`
}

func (h *IncidentsHandler) Verify(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var payload verifyPayload
	if err := decodeValid(r, &payload); err != nil {
		writeAppError(w, err)
		return
	}
	v, err := h.svc.RecordVerification(r.Context(), actor, pathID(r, "id"), payload.Decision, payload.Comment)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *IncidentsHandler) ListVerifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	items, err := h.svc.ListVerifications(r.Context(), actor, pathID(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *IncidentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := h.svc.Delete(r.Context(), actor, pathID(r, "id")); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
