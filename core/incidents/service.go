// Package incidents implements the incident lifecycle: citizen reporting,
// volunteer verification records, reporter closure and administrative status
// control. All writes go through guarded store operations so concurrent
// transitions never skip a state.
package incidents

import (
	"context"
	"errors"
	"strings"

	"aegis-ecc/config"
	"aegis-ecc/core/apperr"
	"aegis-ecc/core/identity"
	"aegis-ecc/core/store"
	"aegis-ecc/core/utils"
)

// Audit actions recorded by this package.
const (
	ActionReported     = "INCIDENT_REPORTED"
	ActionStatusChange = "INCIDENT_STATUS_CHANGED"
	ActionClosed       = "INCIDENT_CLOSED_BY_REPORTER"
	ActionVerification = "INCIDENT_VERIFICATION_RECORDED"
	ActionDeleted      = "INCIDENT_DELETED"

	entityIncident = "INCIDENT"
)

type Service struct {
	incidents store.IncidentsStore
	refs      store.RefsStore
	cfg       *config.AppConfig
	logger    *utils.Logger
}

func NewService(incidents store.IncidentsStore, refs store.RefsStore, cfg *config.AppConfig, logger *utils.Logger) *Service {
	return &Service{incidents: incidents, refs: refs, cfg: cfg, logger: logger}
}

type MediaInput struct {
	URL       string
	MediaType string
}

type CreateInput struct {
	Title       string
	Description string
	CategoryID  int64
	Latitude    float64
	Longitude   float64
	AddressText string
	Landmark    string
	Accuracy    string
	Media       []MediaInput
}

func (s *Service) Create(ctx context.Context, actor identity.Actor, in CreateInput) (*store.Incident, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Validation("An incident title is required.")
	}
	if in.Latitude < -90 || in.Latitude > 90 || in.Longitude < -180 || in.Longitude > 180 {
		return nil, apperr.Validation("Location coordinates are out of range.")
	}
	maxMedia := s.cfg.Incidents.MaxMediaPerIncident
	if maxMedia > 0 && len(in.Media) > maxMedia {
		return nil, apperr.Validation("Too many media attachments for one incident.")
	}
	cat, err := s.refs.GetCategory(ctx, in.CategoryID)
	if err != nil {
		return nil, err
	}
	if cat == nil {
		return nil, apperr.CategoryNotFound()
	}
	if !cat.Active {
		return nil, apperr.CategoryInactive()
	}
	accuracy := strings.TrimSpace(in.Accuracy)
	if accuracy == "" {
		accuracy = "GPS"
	}
	inc := &store.Incident{
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		CategoryID:  in.CategoryID,
		ReportedBy:  actor.UserID,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		AddressText: strings.TrimSpace(in.AddressText),
		Landmark:    strings.TrimSpace(in.Landmark),
		Accuracy:    accuracy,
		Status:      StatusReported,
	}
	media := make([]store.IncidentMedia, 0, len(in.Media))
	for _, m := range in.Media {
		url := strings.TrimSpace(m.URL)
		if url == "" {
			return nil, apperr.Validation("Media attachments require a URL.")
		}
		media = append(media, store.IncidentMedia{
			UploadedBy: actor.UserID,
			URL:        url,
			MediaType:  strings.TrimSpace(m.MediaType),
		})
	}
	audit := &store.AuditRecord{
		ActorID:    actor.UserID,
		Action:     ActionReported,
		EntityType: entityIncident,
		Meta:       map[string]any{"category_id": in.CategoryID},
	}
	if _, err := s.incidents.CreateIncident(ctx, inc, media, audit); err != nil {
		return nil, err
	}
	s.logger.Printf("incident %d reported by user %d", inc.ID, actor.UserID)
	return inc, nil
}

// Get returns one incident. Civilians only see their own reports;
// volunteers and administrators see everything.
func (s *Service) Get(ctx context.Context, actor identity.Actor, id int64) (*store.Incident, error) {
	inc, err := s.incidents.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	if inc == nil {
		return nil, apperr.IncidentNotFound()
	}
	if actor.Role == identity.RoleCivilian && inc.ReportedBy != actor.UserID {
		return nil, apperr.IncidentNotFound()
	}
	return inc, nil
}

func (s *Service) List(ctx context.Context, actor identity.Actor, filter store.IncidentFilter) ([]store.Incident, int64, error) {
	if actor.Role == identity.RoleCivilian {
		filter.ReportedBy = actor.UserID
	}
	items, err := s.incidents.ListIncidents(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.incidents.CountIncidents(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Service) ListMedia(ctx context.Context, actor identity.Actor, incidentID int64) ([]store.IncidentMedia, error) {
	if _, err := s.Get(ctx, actor, incidentID); err != nil {
		return nil, err
	}
	return s.incidents.ListMedia(ctx, incidentID)
}

// CloseByReporter lets the original reporter close their incident with a
// mandatory note while it is still in an early stage.
func (s *Service) CloseByReporter(ctx context.Context, actor identity.Actor, id int64, note string) (*store.Incident, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, apperr.ClosureNoteRequired()
	}
	inc, err := s.incidents.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	if inc == nil || inc.ReportedBy != actor.UserID {
		return nil, apperr.IncidentNotFound()
	}
	if !reporterCloseable[inc.Status] {
		return nil, apperr.IncidentNotCloseable(inc.Status)
	}
	audit := &store.AuditRecord{
		ActorID:    actor.UserID,
		Action:     ActionClosed,
		EntityType: entityIncident,
		Meta: map[string]any{
			"note":            note,
			"previous_status": inc.Status,
			"closed_by":       "REPORTER",
		},
	}
	updated, err := s.incidents.TransitionIncident(ctx, id, inc.Status, StatusClosed, audit)
	if errors.Is(err, store.ErrConflict) {
		return nil, apperr.Conflict()
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateStatus is the administrative transition path. The target must be
// adjacent to the current status in the state machine.
func (s *Service) UpdateStatus(ctx context.Context, actor identity.Actor, id int64, to string) (*store.Incident, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden()
	}
	if !ValidStatus(to) {
		return nil, apperr.Validation("Unknown incident status.")
	}
	inc, err := s.incidents.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	if inc == nil {
		return nil, apperr.IncidentNotFound()
	}
	if !CanTransition(inc.Status, to) {
		return nil, apperr.InvalidStatusTransition(inc.Status, to)
	}
	audit := &store.AuditRecord{
		ActorID:    actor.UserID,
		Action:     ActionStatusChange,
		EntityType: entityIncident,
		Meta:       map[string]any{"from": inc.Status, "to": to},
	}
	updated, err := s.incidents.TransitionIncident(ctx, id, inc.Status, to, audit)
	if errors.Is(err, store.ErrConflict) {
		return nil, apperr.Conflict()
	}
	if err != nil {
		return nil, err
	}
	s.logger.Printf("incident %d moved %s -> %s by user %d", id, inc.Status, to, actor.UserID)
	return updated, nil
}

// RecordVerification files a volunteer's field finding. The record is
// evidence for the administrator's decision; it never moves the incident by
// itself.
func (s *Service) RecordVerification(ctx context.Context, actor identity.Actor, incidentID int64, decision, comment string) (*store.IncidentVerification, error) {
	if !actor.IsVolunteer() && !actor.IsAdmin() {
		return nil, apperr.Forbidden()
	}
	if !ValidDecision(decision) {
		return nil, apperr.Validation("Unknown verification decision.")
	}
	inc, err := s.incidents.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if inc == nil {
		return nil, apperr.IncidentNotFound()
	}
	if !verifiable[inc.Status] {
		return nil, apperr.IncidentNotVerifiable(inc.Status)
	}
	v := &store.IncidentVerification{
		IncidentID: incidentID,
		VerifiedBy: actor.UserID,
		Decision:   decision,
		Comment:    strings.TrimSpace(comment),
	}
	audit := &store.AuditRecord{
		ActorID:    actor.UserID,
		Action:     ActionVerification,
		EntityType: entityIncident,
		Meta:       map[string]any{"decision": decision},
	}
	if _, err := s.incidents.CreateVerification(ctx, v, audit); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Service) ListVerifications(ctx context.Context, actor identity.Actor, incidentID int64) ([]store.IncidentVerification, error) {
	if actor.Role == identity.RoleCivilian {
		return nil, apperr.Forbidden()
	}
	inc, err := s.incidents.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if inc == nil {
		return nil, apperr.IncidentNotFound()
	}
	return s.incidents.ListVerifications(ctx, incidentID)
}

// Delete soft-deletes an incident. Administrative only; the row stays for
// the audit trail.
func (s *Service) Delete(ctx context.Context, actor identity.Actor, id int64) error {
	if !actor.IsAdmin() {
		return apperr.Forbidden()
	}
	inc, err := s.incidents.GetIncident(ctx, id)
	if err != nil {
		return err
	}
	if inc == nil {
		return apperr.IncidentNotFound()
	}
	audit := &store.AuditRecord{
		ActorID:    actor.UserID,
		Action:     ActionDeleted,
		EntityType: entityIncident,
	}
	if err := s.incidents.SoftDeleteIncident(ctx, id, audit); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return apperr.IncidentNotFound()
		}
		return err
	}
	return nil
}
