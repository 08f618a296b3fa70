// Package profiles holds the two per-user profile aggregates: the civilian
// emergency profile responders consult in the field, and the volunteer
// readiness profile seeded when a user first applies.
package profiles

import (
	"context"
	"errors"
	"strings"
	"time"

	"aegis-ecc/config"
	"aegis-ecc/core/apperr"
	"aegis-ecc/core/identity"
	"aegis-ecc/core/store"
	"aegis-ecc/core/utils"
)

const (
	ActionProfileCreated = "PROFILE_CREATED"
	ActionProfileUpdated = "PROFILE_UPDATED"

	entityProfile = "EMERGENCY_PROFILE"
)

// Blood types accepted on an emergency profile.
var bloodTypes = map[string]bool{
	"A+": true, "A-": true, "B+": true, "B-": true,
	"AB+": true, "AB-": true, "O+": true, "O-": true,
}

type Service struct {
	profiles     store.ProfilesStore
	applications store.ApplicationsStore
	cfg          *config.AppConfig
	logger       *utils.Logger
}

func NewService(profiles store.ProfilesStore, applications store.ApplicationsStore, cfg *config.AppConfig, logger *utils.Logger) *Service {
	return &Service{profiles: profiles, applications: applications, cfg: cfg, logger: logger}
}

type ContactInput struct {
	Name         string
	Phone        string
	Relationship string
	IsPrimary    bool
}

type EmergencyProfileInput struct {
	FullName          string
	DateOfBirth       string
	BloodType         string
	Allergies         string
	MedicalConditions string
	Medications       string
	ConsentGivenAt    time.Time
	Contacts          []ContactInput
}

// CreateMine files the caller's emergency profile. One profile per user;
// contacts are stored in the same transaction.
func (s *Service) CreateMine(ctx context.Context, actor identity.Actor, in EmergencyProfileInput) (*store.EmergencyProfile, []store.EmergencyContact, error) {
	p, contacts, err := s.buildProfile(actor.UserID, in, true)
	if err != nil {
		return nil, nil, err
	}
	audit := &store.AuditRecord{
		ActorID:    actor.UserID,
		Action:     ActionProfileCreated,
		EntityType: entityProfile,
	}
	if _, err := s.profiles.CreateEmergencyProfile(ctx, p, contacts, audit); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, nil, apperr.ProfileAlreadyExists()
		}
		return nil, nil, err
	}
	s.logger.Printf("emergency profile %d created for user %d", p.ID, actor.UserID)
	return p, contacts, nil
}

// UpdateMine rewrites the caller's profile. A nil contact slice keeps the
// existing contacts; a non-nil slice replaces them.
func (s *Service) UpdateMine(ctx context.Context, actor identity.Actor, in EmergencyProfileInput) (*store.EmergencyProfile, []store.EmergencyContact, error) {
	existing, err := s.profiles.GetEmergencyProfileByUser(ctx, actor.UserID)
	if err != nil {
		return nil, nil, err
	}
	if existing == nil {
		return nil, nil, apperr.ProfileNotFound()
	}
	if in.ConsentGivenAt.IsZero() {
		in.ConsentGivenAt = existing.ConsentGivenAt
	}
	p, contacts, err := s.buildProfile(actor.UserID, in, false)
	if err != nil {
		return nil, nil, err
	}
	p.ID = existing.ID
	p.CreatedAt = existing.CreatedAt
	audit := &store.AuditRecord{
		ActorID:    actor.UserID,
		Action:     ActionProfileUpdated,
		EntityType: entityProfile,
	}
	if err := s.profiles.UpdateEmergencyProfile(ctx, p, contacts, audit); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, nil, apperr.ProfileNotFound()
		}
		return nil, nil, err
	}
	if contacts == nil {
		contacts, err = s.profiles.ListContacts(ctx, p.ID)
		if err != nil {
			return nil, nil, err
		}
	}
	return p, contacts, nil
}

// GetMine returns the caller's own profile and contacts.
func (s *Service) GetMine(ctx context.Context, actor identity.Actor) (*store.EmergencyProfile, []store.EmergencyContact, error) {
	p, err := s.profiles.GetEmergencyProfileByUser(ctx, actor.UserID)
	if err != nil {
		return nil, nil, err
	}
	if p == nil {
		return nil, nil, apperr.ProfileNotFound()
	}
	contacts, err := s.profiles.ListContacts(ctx, p.ID)
	if err != nil {
		return nil, nil, err
	}
	return p, contacts, nil
}

// Get returns a profile by id for responders and administrators.
func (s *Service) Get(ctx context.Context, actor identity.Actor, id int64) (*store.EmergencyProfile, []store.EmergencyContact, error) {
	if actor.Role == identity.RoleCivilian {
		return nil, nil, apperr.Forbidden()
	}
	p, err := s.profiles.GetEmergencyProfile(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if p == nil {
		return nil, nil, apperr.ProfileNotFound()
	}
	contacts, err := s.profiles.ListContacts(ctx, p.ID)
	if err != nil {
		return nil, nil, err
	}
	return p, contacts, nil
}

func (s *Service) List(ctx context.Context, actor identity.Actor, limit, offset int) ([]store.EmergencyProfile, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden()
	}
	return s.profiles.ListEmergencyProfiles(ctx, limit, offset)
}

type VolunteerInput struct {
	AvailabilityRadiusKm *float64
	Latitude             *float64
	Longitude            *float64
}

// GetVolunteer returns the caller's readiness profile. The row exists once
// the user has submitted a volunteer application.
func (s *Service) GetVolunteer(ctx context.Context, actor identity.Actor) (*store.VolunteerProfile, error) {
	p, err := s.profiles.GetVolunteerProfile(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.ProfileNotFound()
	}
	return p, nil
}

// UpdateVolunteer adjusts the response radius and last known position.
func (s *Service) UpdateVolunteer(ctx context.Context, actor identity.Actor, in VolunteerInput) (*store.VolunteerProfile, error) {
	if err := validateCoords(in.Latitude, in.Longitude); err != nil {
		return nil, err
	}
	if in.AvailabilityRadiusKm != nil && (*in.AvailabilityRadiusKm < 1 || *in.AvailabilityRadiusKm > 500) {
		return nil, apperr.Validation("Availability radius must be between 1 and 500 km.")
	}
	p, err := s.profiles.GetVolunteerProfile(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.ProfileNotFound()
	}
	if in.AvailabilityRadiusKm != nil {
		p.AvailabilityRadiusKm = *in.AvailabilityRadiusKm
	}
	if in.Latitude != nil {
		p.LastKnownLatitude = in.Latitude
		p.LastKnownLongitude = in.Longitude
	}
	if err := s.profiles.UpdateVolunteerProfile(ctx, p); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, apperr.ProfileNotFound()
		}
		return nil, err
	}
	return p, nil
}

// SetAvailability flips the on-call flag. Only approved volunteers may
// declare themselves available for dispatch.
func (s *Service) SetAvailability(ctx context.Context, actor identity.Actor, available bool, lat, lng *float64) (*store.VolunteerProfile, error) {
	if err := validateCoords(lat, lng); err != nil {
		return nil, err
	}
	p, err := s.profiles.GetVolunteerProfile(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.ProfileNotFound()
	}
	approved, err := s.applications.HasApprovedApplication(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if !approved {
		return nil, apperr.NotApprovedVolunteer()
	}
	if err := s.profiles.SetAvailability(ctx, actor.UserID, available, lat, lng); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, apperr.ProfileNotFound()
		}
		return nil, err
	}
	s.logger.Printf("volunteer %d availability set to %t", actor.UserID, available)
	return s.profiles.GetVolunteerProfile(ctx, actor.UserID)
}

func (s *Service) buildProfile(userID int64, in EmergencyProfileInput, requireConsent bool) (*store.EmergencyProfile, []store.EmergencyContact, error) {
	fullName := strings.TrimSpace(in.FullName)
	if len(fullName) < 2 {
		return nil, nil, apperr.Validation("Full name is required.")
	}
	if requireConsent && in.ConsentGivenAt.IsZero() {
		return nil, nil, apperr.Validation("Consent is required before storing medical details.")
	}
	bloodType := strings.ToUpper(strings.TrimSpace(in.BloodType))
	if bloodType != "" && !bloodTypes[bloodType] {
		return nil, nil, apperr.Validation("Unknown blood type.")
	}
	contacts, err := s.buildContacts(in.Contacts)
	if err != nil {
		return nil, nil, err
	}
	p := &store.EmergencyProfile{
		UserID:            userID,
		FullName:          fullName,
		DateOfBirth:       strings.TrimSpace(in.DateOfBirth),
		BloodType:         bloodType,
		Allergies:         strings.TrimSpace(in.Allergies),
		MedicalConditions: strings.TrimSpace(in.MedicalConditions),
		Medications:       strings.TrimSpace(in.Medications),
		ConsentGivenAt:    in.ConsentGivenAt.UTC(),
	}
	return p, contacts, nil
}

func (s *Service) buildContacts(inputs []ContactInput) ([]store.EmergencyContact, error) {
	if inputs == nil {
		return nil, nil
	}
	if limit := s.cfg.Profiles.MaxContactsPerProfile; limit > 0 && len(inputs) > limit {
		return nil, apperr.Validation("Too many emergency contacts.")
	}
	contacts := make([]store.EmergencyContact, 0, len(inputs))
	for _, c := range inputs {
		name := strings.TrimSpace(c.Name)
		phone := strings.TrimSpace(c.Phone)
		if name == "" || phone == "" {
			return nil, apperr.Validation("Emergency contacts require a name and a phone number.")
		}
		contacts = append(contacts, store.EmergencyContact{
			Name:         name,
			Phone:        phone,
			Relationship: strings.TrimSpace(c.Relationship),
			IsPrimary:    c.IsPrimary,
		})
	}
	return contacts, nil
}

func validateCoords(lat, lng *float64) error {
	if (lat == nil) != (lng == nil) {
		return apperr.Validation("Both latitude and longitude are required.")
	}
	if lat != nil && (*lat < -90 || *lat > 90 || *lng < -180 || *lng > 180) {
		return apperr.Validation("Location coordinates are out of range.")
	}
	return nil
}
