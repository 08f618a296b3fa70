// Package applications implements the volunteer onboarding pipeline:
// submission, edits and withdrawal while pending, and administrative
// review. An approved application is what qualifies a user for mission
// assignment.
package applications

import (
	"context"
	"errors"
	"strings"
	"time"

	"aegis-ecc/core/apperr"
	"aegis-ecc/core/identity"
	"aegis-ecc/core/store"
	"aegis-ecc/core/utils"
)

// Application statuses. PENDING is the only editable state; the other
// three are terminal.
const (
	StatusPending   = "PENDING"
	StatusApproved  = "APPROVED"
	StatusRejected  = "REJECTED"
	StatusWithdrawn = "WITHDRAWN"
)

const (
	ActionSubmitted = "APPLICATION_SUBMITTED"
	ActionUpdated   = "APPLICATION_UPDATED"
	ActionWithdrawn = "APPLICATION_WITHDRAWN"
	ActionReviewed  = "APPLICATION_REVIEWED"

	entityApplication = "APPLICATION"
)

type Service struct {
	applications store.ApplicationsStore
	refs         store.RefsStore
	users        store.UsersStore
	profiles     store.ProfilesStore
	logger       *utils.Logger
}

func NewService(applications store.ApplicationsStore, refs store.RefsStore, users store.UsersStore, profiles store.ProfilesStore, logger *utils.Logger) *Service {
	return &Service{applications: applications, refs: refs, users: users, profiles: profiles, logger: logger}
}

type CertificateInput struct {
	Name     string
	FileURL  string
	IssuedBy string
	IssuedAt *time.Time
}

type SubmitInput struct {
	AgencyID         int64
	DateOfBirth      string
	NationalIDNumber string
	NationalIDURL    string
	Address          string
	HasTransport     bool
	Experience       string
	Certificates     []CertificateInput
}

// Submit files a new application. A user may hold at most one active
// (pending or approved) application at a time.
func (s *Service) Submit(ctx context.Context, actor identity.Actor, in SubmitInput) (*store.VolunteerApplication, error) {
	agency, err := s.refs.GetAgency(ctx, in.AgencyID)
	if err != nil {
		return nil, err
	}
	if agency == nil {
		return nil, apperr.AgencyNotFound()
	}
	active, err := s.applications.HasActiveApplication(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, apperr.ApplicationAlreadyActive(agency.Name)
	}
	app := &store.VolunteerApplication{
		UserID:           actor.UserID,
		AgencyID:         in.AgencyID,
		Status:           StatusPending,
		DateOfBirth:      strings.TrimSpace(in.DateOfBirth),
		NationalIDNumber: strings.TrimSpace(in.NationalIDNumber),
		NationalIDURL:    strings.TrimSpace(in.NationalIDURL),
		Address:          strings.TrimSpace(in.Address),
		HasTransport:     in.HasTransport,
		Experience:       strings.TrimSpace(in.Experience),
	}
	certs, err := buildCertificates(in.Certificates)
	if err != nil {
		return nil, err
	}
	audit := &store.AuditRecord{
		ActorID:    actor.UserID,
		Action:     ActionSubmitted,
		EntityType: entityApplication,
		Meta:       map[string]any{"agency_id": in.AgencyID},
	}
	if _, err := s.applications.CreateApplication(ctx, app, certs, audit); err != nil {
		return nil, err
	}
	// First application seeds the readiness profile the volunteer manages
	// once approved.
	if err := s.profiles.EnsureVolunteerProfile(ctx, actor.UserID); err != nil {
		return nil, err
	}
	s.logger.Printf("application %d submitted by user %d for agency %d", app.ID, actor.UserID, in.AgencyID)
	return app, nil
}

// Get returns one application. Applicants see their own; administrators
// see all.
func (s *Service) Get(ctx context.Context, actor identity.Actor, id int64) (*store.VolunteerApplication, error) {
	app, err := s.applications.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, apperr.ApplicationNotFound()
	}
	if !actor.IsAdmin() && app.UserID != actor.UserID {
		return nil, apperr.ApplicationNotFound()
	}
	return app, nil
}

func (s *Service) List(ctx context.Context, actor identity.Actor, filter store.ApplicationFilter) ([]store.VolunteerApplication, error) {
	if !actor.IsAdmin() {
		filter.UserID = actor.UserID
	}
	return s.applications.ListApplications(ctx, filter)
}

func (s *Service) ListCertificates(ctx context.Context, actor identity.Actor, applicationID int64) ([]store.ApplicationCertificate, error) {
	if _, err := s.Get(ctx, actor, applicationID); err != nil {
		return nil, err
	}
	return s.applications.ListCertificates(ctx, applicationID)
}

// Update rewrites a pending application. Certificates, when provided,
// replace the existing set.
func (s *Service) Update(ctx context.Context, actor identity.Actor, id int64, in SubmitInput) (*store.VolunteerApplication, error) {
	app, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if app.UserID != actor.UserID {
		return nil, apperr.ApplicationNotFound()
	}
	if app.Status != StatusPending {
		return nil, apperr.ApplicationNotEditable()
	}
	agency, err := s.refs.GetAgency(ctx, in.AgencyID)
	if err != nil {
		return nil, err
	}
	if agency == nil {
		return nil, apperr.AgencyNotFound()
	}
	app.AgencyID = in.AgencyID
	app.DateOfBirth = strings.TrimSpace(in.DateOfBirth)
	app.NationalIDNumber = strings.TrimSpace(in.NationalIDNumber)
	app.NationalIDURL = strings.TrimSpace(in.NationalIDURL)
	app.Address = strings.TrimSpace(in.Address)
	app.HasTransport = in.HasTransport
	app.Experience = strings.TrimSpace(in.Experience)
	certs, err := buildCertificates(in.Certificates)
	if err != nil {
		return nil, err
	}
	audit := &store.AuditRecord{
		ActorID:    actor.UserID,
		Action:     ActionUpdated,
		EntityType: entityApplication,
	}
	if err := s.applications.UpdateApplication(ctx, app, certs, StatusPending, audit); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, apperr.ApplicationNotEditable()
		}
		return nil, err
	}
	return app, nil
}

// Withdraw retires a pending application at the applicant's request.
func (s *Service) Withdraw(ctx context.Context, actor identity.Actor, id int64) (*store.VolunteerApplication, error) {
	app, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if app.UserID != actor.UserID {
		return nil, apperr.ApplicationNotFound()
	}
	if app.Status != StatusPending {
		return nil, apperr.CannotWithdraw()
	}
	audit := &store.AuditRecord{
		ActorID:    actor.UserID,
		Action:     ActionWithdrawn,
		EntityType: entityApplication,
	}
	updated, err := s.applications.TransitionApplication(ctx, id, StatusPending, StatusWithdrawn, nil, "", audit)
	if errors.Is(err, store.ErrConflict) {
		return nil, apperr.CannotWithdraw()
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Review concludes a pending application. Approval is what unlocks mission
// assignment for the applicant.
func (s *Service) Review(ctx context.Context, actor identity.Actor, id int64, approve bool, note string) (*store.VolunteerApplication, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden()
	}
	app, err := s.applications.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, apperr.ApplicationNotFound()
	}
	if app.Status != StatusPending {
		return nil, apperr.ApplicationNotPending(app.Status)
	}
	to := StatusRejected
	if approve {
		to = StatusApproved
	}
	reviewer := actor.UserID
	audit := &store.AuditRecord{
		ActorID:    actor.UserID,
		Action:     ActionReviewed,
		EntityType: entityApplication,
		Meta:       map[string]any{"decision": to},
	}
	updated, err := s.applications.TransitionApplication(ctx, id, StatusPending, to, &reviewer, strings.TrimSpace(note), audit)
	if errors.Is(err, store.ErrConflict) {
		return nil, apperr.ApplicationNotPending("reviewed")
	}
	if err != nil {
		return nil, err
	}
	// Approval promotes the applicant so role-gated routes open up.
	if approve {
		u, err := s.users.Get(ctx, updated.UserID)
		if err != nil {
			return nil, err
		}
		if u != nil && u.Role == identity.RoleCivilian {
			if err := s.users.SetRole(ctx, u.ID, identity.RoleVolunteer); err != nil {
				return nil, err
			}
			s.logger.Printf("user %d promoted to volunteer after approval of application %d", u.ID, id)
		}
	}
	return updated, nil
}

func buildCertificates(inputs []CertificateInput) ([]store.ApplicationCertificate, error) {
	if inputs == nil {
		return nil, nil
	}
	certs := make([]store.ApplicationCertificate, 0, len(inputs))
	for _, c := range inputs {
		name := strings.TrimSpace(c.Name)
		url := strings.TrimSpace(c.FileURL)
		if name == "" || url == "" {
			return nil, apperr.Validation("Certificates require a name and a file URL.")
		}
		certs = append(certs, store.ApplicationCertificate{
			Name:     name,
			FileURL:  url,
			IssuedBy: strings.TrimSpace(c.IssuedBy),
			IssuedAt: c.IssuedAt,
		})
	}
	return certs, nil
}
