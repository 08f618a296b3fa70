package handlers

import (
	"net/http"
	"strings"

	"aegis-ecc/core/missions"
	"aegis-ecc/core/store"
	"aegis-ecc/core/utils"
)

type MissionsHandler struct {
	svc    *missions.Service
	logger *utils.Logger
}

func NewMissionsHandler(svc *missions.Service, logger *utils.Logger) *MissionsHandler {
	return &MissionsHandler{svc: svc, logger: logger}
}

type createMissionPayload struct {
	IncidentID  int64  `json:"incident_id" validate:"required,gt=0"`
	LeaderID    int64  `json:"leader_id" validate:"required,gt=0"`
	AgencyID    *int64 `json:"agency_id" validate:"omitempty,gt=0"`
	MissionType string `json:"mission_type" validate:"max=80"`
	Priority    string `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
}

func (h *MissionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var payload createMissionPayload
	if err := decodeValid(r, &payload); err != nil {
		writeAppError(w, err)
		return
	}
	m, err := h.svc.Create(r.Context(), actor, missions.CreateInput{
		IncidentID:  payload.IncidentID,
		LeaderID:    payload.LeaderID,
		AgencyID:    payload.AgencyID,
		MissionType: payload.MissionType,
		Priority:    payload.Priority,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *MissionsHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	q := r.URL.Query()
	filter := store.MissionFilter{
		Status:     strings.ToUpper(strings.TrimSpace(q.Get("status"))),
		IncidentID: int64(parseIntDefault(q.Get("incident_id"), 0)),
		Limit:      parseIntDefault(q.Get("limit"), 50),
		Offset:     parseIntDefault(q.Get("offset"), 0),
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	items, err := h.svc.List(r.Context(), actor, filter)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *MissionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	m, err := h.svc.Get(r.Context(), actor, pathID(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type advancePayload struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"max=1000"`
}

func (h *MissionsHandler) Advance(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var payload advancePayload
	if err := decodeValid(r, &payload); err != nil {
		writeAppError(w, err)
		return
	}
	m, err := h.svc.Advance(r.Context(), actor, pathID(r, "id"), strings.ToUpper(strings.TrimSpace(payload.Status)), payload.Note)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type assignPayload struct {
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	Role   string `json:"role" validate:"required,oneof=LEADER MEMBER"`
}

func (h *MissionsHandler) Assign(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var payload assignPayload
	if err := decodeValid(r, &payload); err != nil {
		writeAppError(w, err)
		return
	}
	a, err := h.svc.AssignMember(r.Context(), actor, pathID(r, "id"), payload.UserID, payload.Role)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *MissionsHandler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	items, err := h.svc.ListAssignments(r.Context(), actor, pathID(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *MissionsHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	items, err := h.svc.ListLogs(r.Context(), actor, pathID(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type trackingPayload struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

func (h *MissionsHandler) RecordTracking(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var payload trackingPayload
	if err := decodeValid(r, &payload); err != nil {
		writeAppError(w, err)
		return
	}
	t, err := h.svc.RecordTracking(r.Context(), actor, pathID(r, "id"), payload.Latitude, payload.Longitude)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *MissionsHandler) ListTracking(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	items, err := h.svc.ListTracking(r.Context(), actor, pathID(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type reportPayload struct {
	Summary        string `json:"summary" validate:"required,min=3,max=4000"`
	ActionsTaken   string `json:"actions_taken" validate:"max=4000"`
	ResourcesUsed  string `json:"resources_used" validate:"max=4000"`
	Casualties     int    `json:"casualties" validate:"gte=0"`
	PropertyDamage string `json:"property_damage" validate:"max=400"`
}

func (h *MissionsHandler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var payload reportPayload
	if err := decodeValid(r, &payload); err != nil {
		writeAppError(w, err)
		return
	}
	rep, err := h.svc.SubmitReport(r.Context(), actor, pathID(r, "id"), missions.ReportInput{
		Summary:        payload.Summary,
		ActionsTaken:   payload.ActionsTaken,
		ResourcesUsed:  payload.ResourcesUsed,
		Casualties:     payload.Casualties,
		PropertyDamage: payload.PropertyDamage,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rep)
}

func (h *MissionsHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	rep, err := h.svc.GetReport(r.Context(), actor, pathID(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
