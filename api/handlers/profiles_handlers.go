package handlers

import (
	"net/http"
	"time"

	"aegis-ecc/core/profiles"
	"aegis-ecc/core/utils"
)

type ProfilesHandler struct {
	svc    *profiles.Service
	logger *utils.Logger
}

func NewProfilesHandler(svc *profiles.Service, logger *utils.Logger) *ProfilesHandler {
	return &ProfilesHandler{svc: svc, logger: logger}
}

type contactPayload struct {
	Name         string `json:"name" validate:"required,min=1,max=120"`
	Phone        string `json:"phone" validate:"required,min=7,max=16"`
	Relationship string `json:"relationship" validate:"max=60"`
	IsPrimary    bool   `json:"is_primary"`
}

type emergencyProfilePayload struct {
	FullName          string           `json:"full_name" validate:"required,min=2,max=120"`
	DateOfBirth       string           `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	BloodType         string           `json:"blood_type" validate:"omitempty,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
	Allergies         string           `json:"allergies" validate:"max=2000"`
	MedicalConditions string           `json:"medical_conditions" validate:"max=4000"`
	Medications       string           `json:"medications" validate:"max=4000"`
	ConsentGivenAt    string           `json:"consent_given_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Contacts          []contactPayload `json:"contacts" validate:"omitempty,dive"`
}

func (p emergencyProfilePayload) toInput() profiles.EmergencyProfileInput {
	in := profiles.EmergencyProfileInput{
		FullName:          p.FullName,
		DateOfBirth:       p.DateOfBirth,
		BloodType:         p.BloodType,
		Allergies:         p.Allergies,
		MedicalConditions: p.MedicalConditions,
		Medications:       p.Medications,
	}
	if p.ConsentGivenAt != "" {
		if t, err := time.Parse(time.RFC3339, p.ConsentGivenAt); err == nil {
			in.ConsentGivenAt = t
		}
	}
	for _, c := range p.Contacts {
		in.Contacts = append(in.Contacts, profiles.ContactInput{
			Name: c.Name, Phone: c.Phone, Relationship: c.Relationship, IsPrimary: c.IsPrimary,
		})
	}
	return in
}

func (h *ProfilesHandler) CreateMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var payload emergencyProfilePayload
	if err := decodeValid(r, &payload); err != nil {
		writeAppError(w, err)
		return
	}
	p, contacts, err := h.svc.CreateMine(r.Context(), actor, payload.toInput())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"profile": p, "contacts": contacts})
}

func (h *ProfilesHandler) UpdateMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var payload emergencyProfilePayload
	if err := decodeValid(r, &payload); err != nil {
		writeAppError(w, err)
		return
	}
	p, contacts, err := h.svc.UpdateMine(r.Context(), actor, payload.toInput())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profile": p, "contacts": contacts})
}

func (h *ProfilesHandler) GetMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	p, contacts, err := h.svc.GetMine(r.Context(), actor)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profile": p, "contacts": contacts})
}

func (h *ProfilesHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	p, contacts, err := h.svc.Get(r.Context(), actor, pathID(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profile": p, "contacts": contacts})
}

func (h *ProfilesHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	q := r.URL.Query()
	items, err := h.svc.List(r.Context(), actor, parseIntDefault(q.Get("limit"), 50), parseIntDefault(q.Get("offset"), 0))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type volunteerProfilePayload struct {
	AvailabilityRadiusKm *float64 `json:"availability_radius_km" validate:"omitempty,min=1,max=500"`
	Latitude             *float64 `json:"latitude" validate:"omitempty,min=-90,max=90"`
	Longitude            *float64 `json:"longitude" validate:"omitempty,min=-180,max=180"`
}

type availabilityPayload struct {
	IsAvailable *bool    `json:"is_available" validate:"required"`
	Latitude    *float64 `json:"latitude" validate:"omitempty,min=-90,max=90"`
	Longitude   *float64 `json:"longitude" validate:"omitempty,min=-180,max=180"`
}

func (h *ProfilesHandler) GetVolunteer(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	p, err := h.svc.GetVolunteer(r.Context(), actor)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProfilesHandler) UpdateVolunteer(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var payload volunteerProfilePayload
	if err := decodeValid(r, &payload); err != nil {
		writeAppError(w, err)
		return
	}
	p, err := h.svc.UpdateVolunteer(r.Context(), actor, profiles.VolunteerInput{
		AvailabilityRadiusKm: payload.AvailabilityRadiusKm,
		Latitude:             payload.Latitude,
		Longitude:            payload.Longitude,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProfilesHandler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var payload availabilityPayload
	if err := decodeValid(r, &payload); err != nil {
		writeAppError(w, err)
		return
	}
	p, err := h.svc.SetAvailability(r.Context(), actor, *payload.IsAvailable, payload.Latitude, payload.Longitude)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
