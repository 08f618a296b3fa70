package handlers

import (
	"net/http"
	"strings"
	"time"

	"aegis-ecc/core/applications"
	"aegis-ecc/core/store"
	"aegis-ecc/core/utils"
)

type ApplicationsHandler struct {
	svc    *applications.Service
	logger *utils.Logger
}

func NewApplicationsHandler(svc *applications.Service, logger *utils.Logger) *ApplicationsHandler {
	return &ApplicationsHandler{svc: svc, logger: logger}
}

type certificatePayload struct {
	Name     string `json:"name" validate:"required,min=2,max=120"`
	FileURL  string `json:"file_url" validate:"required,url"`
	IssuedBy string `json:"issued_by" validate:"max=120"`
	IssuedAt string `json:"issued_at" validate:"omitempty,datetime=2006-01-02"`
}

type applicationPayload struct {
	AgencyID         int64                `json:"agency_id" validate:"required,gt=0"`
	DateOfBirth      string               `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	NationalIDNumber string               `json:"national_id_number" validate:"max=40"`
	NationalIDURL    string               `json:"national_id_url" validate:"omitempty,url"`
	Address          string               `json:"address" validate:"max=400"`
	HasTransport     bool                 `json:"has_transport"`
	Experience       string               `json:"experience" validate:"max=4000"`
	Certificates     []certificatePayload `json:"certificates" validate:"dive"`
}

func (p applicationPayload) toInput() applications.SubmitInput {
	in := applications.SubmitInput{
		AgencyID:         p.AgencyID,
		DateOfBirth:      p.DateOfBirth,
		NationalIDNumber: p.NationalIDNumber,
		NationalIDURL:    p.NationalIDURL,
		Address:          p.Address,
		HasTransport:     p.HasTransport,
		Experience:       p.Experience,
	}
	for _, c := range p.Certificates {
		cert := applications.CertificateInput{Name: c.Name, FileURL: c.FileURL, IssuedBy: c.IssuedBy}
		if c.IssuedAt != "" {
			if t, err := time.Parse("2006-01-02", c.IssuedAt); err == nil {
				cert.IssuedAt = &t
			}
		}
		in.Certificates = append(in.Certificates, cert)
	}
	return in
}

func (h *ApplicationsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var payload applicationPayload
	if err := decodeValid(r, &payload); err != nil {
		writeAppError(w, err)
		return
	}
	app, err := h.svc.Submit(r.Context(), actor, payload.toInput())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

func (h *ApplicationsHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	q := r.URL.Query()
	filter := store.ApplicationFilter{
		Status:   strings.ToUpper(strings.TrimSpace(q.Get("status"))),
		AgencyID: int64(parseIntDefault(q.Get("agency_id"), 0)),
		Limit:    parseIntDefault(q.Get("limit"), 50),
		Offset:   parseIntDefault(q.Get("offset"), 0),
	}
	items, err := h.svc.List(r.Context(), actor, filter)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *ApplicationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	app, err := h.svc.Get(r.Context(), actor, pathID(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *ApplicationsHandler) ListCertificates(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	items, err := h.svc.ListCertificates(r.Context(), actor, pathID(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *ApplicationsHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var payload applicationPayload
	if err := decodeValid(r, &payload); err != nil {
		writeAppError(w, err)
		return
	}
	app, err := h.svc.Update(r.Context(), actor, pathID(r, "id"), payload.toInput())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *ApplicationsHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	app, err := h.svc.Withdraw(r.Context(), actor, pathID(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

type reviewPayload struct {
	Decision string `json:"decision" validate:"required,oneof=APPROVED REJECTED"`
	Note     string `json:"note" validate:"max=1000"`
}

func (h *ApplicationsHandler) Review(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var payload reviewPayload
	if err := decodeValid(r, &payload); err != nil {
		writeAppError(w, err)
		return
	}
	app, err := h.svc.Review(r.Context(), actor, pathID(r, "id"), payload.Decision == "APPROVED", payload.Note)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}
