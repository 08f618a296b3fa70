package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EmergencyProfile is a civilian's medical sheet: one per user, consulted
// by responders when a mission touches the reporter.
type EmergencyProfile struct {
	ID                int64     `json:"id"`
	UserID            int64     `json:"user_id"`
	FullName          string    `json:"full_name"`
	DateOfBirth       string    `json:"date_of_birth,omitempty"`
	BloodType         string    `json:"blood_type,omitempty"`
	Allergies         string    `json:"allergies,omitempty"`
	MedicalConditions string    `json:"medical_conditions,omitempty"`
	Medications       string    `json:"medications,omitempty"`
	ConsentGivenAt    time.Time `json:"consent_given_at"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type EmergencyContact struct {
	ID           int64  `json:"id"`
	ProfileID    int64  `json:"profile_id"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship,omitempty"`
	IsPrimary    bool   `json:"is_primary"`
}

// VolunteerProfile tracks a volunteer's field readiness. The row is seeded
// when the user first applies and updated by the volunteer afterwards.
type VolunteerProfile struct {
	UserID               int64     `json:"user_id"`
	IsAvailable          bool      `json:"is_available"`
	AvailabilityRadiusKm float64   `json:"availability_radius_km"`
	LastKnownLatitude    *float64  `json:"last_known_latitude,omitempty"`
	LastKnownLongitude   *float64  `json:"last_known_longitude,omitempty"`
	UpdatedAt            time.Time `json:"updated_at"`
}

type ProfilesStore interface {
	// CreateEmergencyProfile inserts the profile, its contacts and the audit
	// entry in one transaction. A second profile for the same user surfaces
	// as ErrConflict.
	CreateEmergencyProfile(ctx context.Context, p *EmergencyProfile, contacts []EmergencyContact, audit *AuditRecord) (int64, error)
	GetEmergencyProfile(ctx context.Context, id int64) (*EmergencyProfile, error)
	GetEmergencyProfileByUser(ctx context.Context, userID int64) (*EmergencyProfile, error)
	ListEmergencyProfiles(ctx context.Context, limit, offset int) ([]EmergencyProfile, error)

	// UpdateEmergencyProfile rewrites the profile fields. A non-nil contact
	// slice replaces the existing contact set, like application certificates.
	UpdateEmergencyProfile(ctx context.Context, p *EmergencyProfile, contacts []EmergencyContact, audit *AuditRecord) error
	ListContacts(ctx context.Context, profileID int64) ([]EmergencyContact, error)

	// EnsureVolunteerProfile seeds an unavailable profile row if the user has
	// none yet. Safe to call repeatedly.
	EnsureVolunteerProfile(ctx context.Context, userID int64) error
	GetVolunteerProfile(ctx context.Context, userID int64) (*VolunteerProfile, error)
	UpdateVolunteerProfile(ctx context.Context, p *VolunteerProfile) error
	SetAvailability(ctx context.Context, userID int64, available bool, lat, lng *float64) error
}

type profilesStore struct {
	db *sql.DB
}

func NewProfilesStore(db *sql.DB) ProfilesStore {
	return &profilesStore{db: db}
}

const emergencyProfileColumns = `id, user_id, full_name, date_of_birth, blood_type, allergies, medical_conditions, medications, consent_given_at, created_at, updated_at`

func (s *profilesStore) CreateEmergencyProfile(ctx context.Context, p *EmergencyProfile, contacts []EmergencyContact, audit *AuditRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	// Existence check inside the transaction; the UNIQUE(user_id)
	// constraint backstops a race between two submitters.
	var existing int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM emergency_profiles WHERE user_id=?`, p.UserID).Scan(&existing); err != nil {
		tx.Rollback()
		return 0, err
	}
	if existing > 0 {
		tx.Rollback()
		return 0, ErrConflict
	}
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO emergency_profiles(user_id, full_name, date_of_birth, blood_type, allergies, medical_conditions, medications, consent_given_at, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?,?)`,
		p.UserID, strings.TrimSpace(p.FullName), p.DateOfBirth, p.BloodType,
		p.Allergies, p.MedicalConditions, p.Medications, p.ConsentGivenAt.UTC(), now, now)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	id, _ := res.LastInsertId()
	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := insertContactsTx(ctx, tx, id, contacts); err != nil {
		tx.Rollback()
		return 0, err
	}
	if audit != nil {
		audit.EntityID = &id
		if err := recordAuditTx(ctx, tx, audit); err != nil {
			tx.Rollback()
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *profilesStore) GetEmergencyProfile(ctx context.Context, id int64) (*EmergencyProfile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+emergencyProfileColumns+` FROM emergency_profiles WHERE id=?`, id)
	return scanEmergencyProfile(row)
}

func (s *profilesStore) GetEmergencyProfileByUser(ctx context.Context, userID int64) (*EmergencyProfile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+emergencyProfileColumns+` FROM emergency_profiles WHERE user_id=?`, userID)
	return scanEmergencyProfile(row)
}

func (s *profilesStore) ListEmergencyProfiles(ctx context.Context, limit, offset int) ([]EmergencyProfile, error) {
	query := `SELECT ` + emergencyProfileColumns + ` FROM emergency_profiles ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
		if offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", offset)
		}
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []EmergencyProfile
	for rows.Next() {
		var p EmergencyProfile
		if err := rows.Scan(&p.ID, &p.UserID, &p.FullName, &p.DateOfBirth, &p.BloodType, &p.Allergies,
			&p.MedicalConditions, &p.Medications, &p.ConsentGivenAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (s *profilesStore) UpdateEmergencyProfile(ctx context.Context, p *EmergencyProfile, contacts []EmergencyContact, audit *AuditRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE emergency_profiles
		SET full_name=?, date_of_birth=?, blood_type=?, allergies=?, medical_conditions=?, medications=?, consent_given_at=?, updated_at=?
		WHERE id=?`,
		strings.TrimSpace(p.FullName), p.DateOfBirth, p.BloodType, p.Allergies,
		p.MedicalConditions, p.Medications, p.ConsentGivenAt.UTC(), now, p.ID)
	if err != nil {
		tx.Rollback()
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		tx.Rollback()
		return ErrConflict
	}
	if contacts != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM emergency_contacts WHERE profile_id=?`, p.ID); err != nil {
			tx.Rollback()
			return err
		}
		if err := insertContactsTx(ctx, tx, p.ID, contacts); err != nil {
			tx.Rollback()
			return err
		}
	}
	if audit != nil {
		audit.EntityID = &p.ID
		if err := recordAuditTx(ctx, tx, audit); err != nil {
			tx.Rollback()
			return err
		}
	}
	p.UpdatedAt = now
	return tx.Commit()
}

func (s *profilesStore) ListContacts(ctx context.Context, profileID int64) ([]EmergencyContact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, profile_id, name, phone, relationship, is_primary
		FROM emergency_contacts WHERE profile_id=?
		ORDER BY is_primary DESC, id ASC`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []EmergencyContact
	for rows.Next() {
		var c EmergencyContact
		var primary int
		if err := rows.Scan(&c.ID, &c.ProfileID, &c.Name, &c.Phone, &c.Relationship, &primary); err != nil {
			return nil, err
		}
		c.IsPrimary = primary == 1
		res = append(res, c)
	}
	return res, rows.Err()
}

func (s *profilesStore) EnsureVolunteerProfile(ctx context.Context, userID int64) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO volunteer_profiles(user_id, is_available, availability_radius_km, updated_at)
		VALUES(?,0,10,?)
		ON CONFLICT(user_id) DO NOTHING`, userID, now)
	return err
}

func (s *profilesStore) GetVolunteerProfile(ctx context.Context, userID int64) (*VolunteerProfile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, is_available, availability_radius_km, last_known_latitude, last_known_longitude, updated_at
		FROM volunteer_profiles WHERE user_id=?`, userID)
	var p VolunteerProfile
	var available int
	var lat, lng sql.NullFloat64
	if err := row.Scan(&p.UserID, &available, &p.AvailabilityRadiusKm, &lat, &lng, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.IsAvailable = available == 1
	p.LastKnownLatitude = floatPtr(lat)
	p.LastKnownLongitude = floatPtr(lng)
	return &p, nil
}

func (s *profilesStore) UpdateVolunteerProfile(ctx context.Context, p *VolunteerProfile) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE volunteer_profiles
		SET availability_radius_km=?, last_known_latitude=?, last_known_longitude=?, updated_at=?
		WHERE user_id=?`,
		p.AvailabilityRadiusKm, nullableFloat(p.LastKnownLatitude), nullableFloat(p.LastKnownLongitude), now, p.UserID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	p.UpdatedAt = now
	return nil
}

func (s *profilesStore) SetAvailability(ctx context.Context, userID int64, available bool, lat, lng *float64) error {
	now := time.Now().UTC()
	query := `UPDATE volunteer_profiles SET is_available=?, updated_at=?`
	args := []any{boolToInt(available), now}
	if lat != nil && lng != nil {
		query += `, last_known_latitude=?, last_known_longitude=?`
		args = append(args, *lat, *lng)
	}
	query += ` WHERE user_id=?`
	args = append(args, userID)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	return nil
}

func insertContactsTx(ctx context.Context, tx *sql.Tx, profileID int64, contacts []EmergencyContact) error {
	for i := range contacts {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO emergency_contacts(profile_id, name, phone, relationship, is_primary)
			VALUES(?,?,?,?,?)`,
			profileID, contacts[i].Name, contacts[i].Phone, contacts[i].Relationship, boolToInt(contacts[i].IsPrimary))
		if err != nil {
			return err
		}
		contacts[i].ID, _ = res.LastInsertId()
		contacts[i].ProfileID = profileID
	}
	return nil
}

func scanEmergencyProfile(row *sql.Row) (*EmergencyProfile, error) {
	var p EmergencyProfile
	if err := row.Scan(&p.ID, &p.UserID, &p.FullName, &p.DateOfBirth, &p.BloodType, &p.Allergies,
		&p.MedicalConditions, &p.Medications, &p.ConsentGivenAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}
