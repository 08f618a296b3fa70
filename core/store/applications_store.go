package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type VolunteerApplication struct {
	ID               int64      `json:"id"`
	UserID           int64      `json:"user_id"`
	AgencyID         int64      `json:"agency_id"`
	Status           string     `json:"status"`
	DateOfBirth      string     `json:"date_of_birth,omitempty"`
	NationalIDNumber string     `json:"national_id_number,omitempty"`
	NationalIDURL    string     `json:"national_id_url,omitempty"`
	Address          string     `json:"address,omitempty"`
	HasTransport     bool       `json:"has_transport"`
	Experience       string     `json:"experience,omitempty"`
	ReviewedBy       *int64     `json:"reviewed_by,omitempty"`
	ReviewNote       string     `json:"review_note,omitempty"`
	SubmittedAt      time.Time  `json:"submitted_at"`
	ReviewedAt       *time.Time `json:"reviewed_at,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type ApplicationCertificate struct {
	ID            int64      `json:"id"`
	ApplicationID int64      `json:"application_id"`
	Name          string     `json:"name"`
	FileURL       string     `json:"file_url"`
	IssuedBy      string     `json:"issued_by,omitempty"`
	IssuedAt      *time.Time `json:"issued_at,omitempty"`
}

type ApplicationFilter struct {
	UserID   int64
	AgencyID int64
	Status   string
	Limit    int
	Offset   int
}

type ApplicationsStore interface {
	// CreateApplication inserts the application, its certificates and the
	// audit entry in one transaction.
	CreateApplication(ctx context.Context, app *VolunteerApplication, certs []ApplicationCertificate, audit *AuditRecord) (int64, error)
	GetApplication(ctx context.Context, id int64) (*VolunteerApplication, error)
	ListApplications(ctx context.Context, filter ApplicationFilter) ([]VolunteerApplication, error)

	// UpdateApplication rewrites the editable fields and replaces the
	// certificate set. The guard on current status makes the update a
	// compare-and-swap: a concurrent review surfaces as ErrConflict.
	UpdateApplication(ctx context.Context, app *VolunteerApplication, certs []ApplicationCertificate, requireStatus string, audit *AuditRecord) error

	// TransitionApplication moves the application between statuses with the
	// same CAS discipline the incident and mission stores use.
	TransitionApplication(ctx context.Context, id int64, from, to string, reviewedBy *int64, note string, audit *AuditRecord) (*VolunteerApplication, error)

	ListCertificates(ctx context.Context, applicationID int64) ([]ApplicationCertificate, error)

	// HasActiveApplication reports whether the user holds a PENDING or
	// APPROVED application.
	HasActiveApplication(ctx context.Context, userID int64) (bool, error)
	HasApprovedApplication(ctx context.Context, userID int64) (bool, error)
}

type applicationsStore struct {
	db *sql.DB
}

func NewApplicationsStore(db *sql.DB) ApplicationsStore {
	return &applicationsStore{db: db}
}

const applicationColumns = `id, user_id, agency_id, status, date_of_birth, national_id_number, national_id_url, address, has_transport, experience, reviewed_by, review_note, submitted_at, reviewed_at, updated_at`

func (s *applicationsStore) CreateApplication(ctx context.Context, app *VolunteerApplication, certs []ApplicationCertificate, audit *AuditRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	if strings.TrimSpace(app.Status) == "" {
		app.Status = "PENDING"
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO volunteer_applications(user_id, agency_id, status, date_of_birth, national_id_number, national_id_url, address, has_transport, experience, reviewed_by, review_note, submitted_at, reviewed_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?,NULL,'',?,NULL,?)`,
		app.UserID, app.AgencyID, app.Status, app.DateOfBirth, app.NationalIDNumber, app.NationalIDURL,
		app.Address, boolToInt(app.HasTransport), app.Experience, now, now)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	appID, _ := res.LastInsertId()
	app.ID = appID
	app.SubmittedAt = now
	app.UpdatedAt = now
	if err := insertCertificatesTx(ctx, tx, appID, certs); err != nil {
		tx.Rollback()
		return 0, err
	}
	if audit != nil {
		audit.EntityID = &appID
		if err := recordAuditTx(ctx, tx, audit); err != nil {
			tx.Rollback()
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return appID, nil
}

func (s *applicationsStore) GetApplication(ctx context.Context, id int64) (*VolunteerApplication, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM volunteer_applications WHERE id=?`, id)
	return scanApplication(row)
}

func (s *applicationsStore) ListApplications(ctx context.Context, filter ApplicationFilter) ([]VolunteerApplication, error) {
	var clauses []string
	var args []any
	if filter.UserID > 0 {
		clauses = append(clauses, "user_id=?")
		args = append(args, filter.UserID)
	}
	if filter.AgencyID > 0 {
		clauses = append(clauses, "agency_id=?")
		args = append(args, filter.AgencyID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, filter.Status)
	}
	query := `SELECT ` + applicationColumns + ` FROM volunteer_applications`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY submitted_at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []VolunteerApplication
	for rows.Next() {
		app, err := scanApplicationRow(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, app)
	}
	return res, rows.Err()
}

func (s *applicationsStore) UpdateApplication(ctx context.Context, app *VolunteerApplication, certs []ApplicationCertificate, requireStatus string, audit *AuditRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE volunteer_applications
		SET agency_id=?, date_of_birth=?, national_id_number=?, national_id_url=?, address=?, has_transport=?, experience=?, updated_at=?
		WHERE id=? AND status=?`,
		app.AgencyID, app.DateOfBirth, app.NationalIDNumber, app.NationalIDURL, app.Address,
		boolToInt(app.HasTransport), app.Experience, now, app.ID, requireStatus)
	if err != nil {
		tx.Rollback()
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		tx.Rollback()
		return ErrConflict
	}
	if certs != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM application_certificates WHERE application_id=?`, app.ID); err != nil {
			tx.Rollback()
			return err
		}
		if err := insertCertificatesTx(ctx, tx, app.ID, certs); err != nil {
			tx.Rollback()
			return err
		}
	}
	if audit != nil {
		audit.EntityID = &app.ID
		if err := recordAuditTx(ctx, tx, audit); err != nil {
			tx.Rollback()
			return err
		}
	}
	app.UpdatedAt = now
	return tx.Commit()
}

func (s *applicationsStore) TransitionApplication(ctx context.Context, id int64, from, to string, reviewedBy *int64, note string, audit *AuditRecord) (*VolunteerApplication, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	query := `UPDATE volunteer_applications SET status=?, updated_at=?`
	args := []any{to, now}
	if reviewedBy != nil {
		query += `, reviewed_by=?, review_note=?, reviewed_at=?`
		args = append(args, *reviewedBy, note, now)
	}
	query += ` WHERE id=? AND status=?`
	args = append(args, id, from)
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		tx.Rollback()
		return nil, ErrConflict
	}
	if audit != nil {
		audit.EntityID = &id
		if err := recordAuditTx(ctx, tx, audit); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetApplication(ctx, id)
}

func (s *applicationsStore) ListCertificates(ctx context.Context, applicationID int64) ([]ApplicationCertificate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, application_id, name, file_url, issued_by, issued_at
		FROM application_certificates WHERE application_id=? ORDER BY id ASC`, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ApplicationCertificate
	for rows.Next() {
		var c ApplicationCertificate
		var issuedAt sql.NullTime
		if err := rows.Scan(&c.ID, &c.ApplicationID, &c.Name, &c.FileURL, &c.IssuedBy, &issuedAt); err != nil {
			return nil, err
		}
		c.IssuedAt = timePtr(issuedAt)
		res = append(res, c)
	}
	return res, rows.Err()
}

func (s *applicationsStore) HasActiveApplication(ctx context.Context, userID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM volunteer_applications
		WHERE user_id=? AND status IN ('PENDING','APPROVED')`, userID).Scan(&n)
	return n > 0, err
}

func (s *applicationsStore) HasApprovedApplication(ctx context.Context, userID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM volunteer_applications
		WHERE user_id=? AND status='APPROVED'`, userID).Scan(&n)
	return n > 0, err
}

func insertCertificatesTx(ctx context.Context, tx *sql.Tx, applicationID int64, certs []ApplicationCertificate) error {
	for i := range certs {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO application_certificates(application_id, name, file_url, issued_by, issued_at)
			VALUES(?,?,?,?,?)`,
			applicationID, certs[i].Name, certs[i].FileURL, certs[i].IssuedBy, nullableTime(certs[i].IssuedAt))
		if err != nil {
			return err
		}
		certs[i].ID, _ = res.LastInsertId()
		certs[i].ApplicationID = applicationID
	}
	return nil
}

func scanApplication(row *sql.Row) (*VolunteerApplication, error) {
	var app VolunteerApplication
	var hasTransport int
	var reviewedBy sql.NullInt64
	var reviewedAt sql.NullTime
	if err := row.Scan(&app.ID, &app.UserID, &app.AgencyID, &app.Status, &app.DateOfBirth, &app.NationalIDNumber,
		&app.NationalIDURL, &app.Address, &hasTransport, &app.Experience, &reviewedBy, &app.ReviewNote,
		&app.SubmittedAt, &reviewedAt, &app.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	app.HasTransport = hasTransport == 1
	app.ReviewedBy = idPtr(reviewedBy)
	app.ReviewedAt = timePtr(reviewedAt)
	return &app, nil
}

func scanApplicationRow(rows *sql.Rows) (VolunteerApplication, error) {
	var app VolunteerApplication
	var hasTransport int
	var reviewedBy sql.NullInt64
	var reviewedAt sql.NullTime
	if err := rows.Scan(&app.ID, &app.UserID, &app.AgencyID, &app.Status, &app.DateOfBirth, &app.NationalIDNumber,
		&app.NationalIDURL, &app.Address, &hasTransport, &app.Experience, &reviewedBy, &app.ReviewNote,
		&app.SubmittedAt, &reviewedAt, &app.UpdatedAt); err != nil {
		return app, err
	}
	app.HasTransport = hasTransport == 1
	app.ReviewedBy = idPtr(reviewedBy)
	app.ReviewedAt = timePtr(reviewedAt)
	return app, nil
}
