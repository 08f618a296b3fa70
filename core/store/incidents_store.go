package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrConflict marks an optimistic-concurrency collision: the guarded write
// matched zero rows because the persisted state moved underneath the caller.
var ErrConflict = errors.New("conflict")

type Incident struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	CategoryID  int64      `json:"category_id"`
	ReportedBy  int64      `json:"reported_by"`
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	AddressText string     `json:"address_text,omitempty"`
	Landmark    string     `json:"landmark,omitempty"`
	Accuracy    string     `json:"accuracy"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

type IncidentMedia struct {
	ID         int64     `json:"id"`
	IncidentID int64     `json:"incident_id"`
	UploadedBy int64     `json:"uploaded_by"`
	URL        string    `json:"url"`
	MediaType  string    `json:"media_type"`
	CreatedAt  time.Time `json:"created_at"`
}

type IncidentVerification struct {
	ID         int64     `json:"id"`
	IncidentID int64     `json:"incident_id"`
	VerifiedBy int64     `json:"verified_by"`
	Decision   string    `json:"decision"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type IncidentFilter struct {
	Status     string
	CategoryID int64
	ReportedBy int64
	Limit      int
	Offset     int
}

type IncidentsStore interface {
	// CreateIncident inserts the incident, its media references and the
	// audit entry in one transaction.
	CreateIncident(ctx context.Context, inc *Incident, media []IncidentMedia, audit *AuditRecord) (int64, error)
	GetIncident(ctx context.Context, id int64) (*Incident, error)
	ListIncidents(ctx context.Context, filter IncidentFilter) ([]Incident, error)
	CountIncidents(ctx context.Context, filter IncidentFilter) (int64, error)
	ListMedia(ctx context.Context, incidentID int64) ([]IncidentMedia, error)

	// TransitionIncident is a compare-and-swap on status: the update is
	// guarded on the expected prior status and returns ErrConflict when the
	// row has moved. The audit entry commits in the same transaction.
	TransitionIncident(ctx context.Context, id int64, from, to string, audit *AuditRecord) (*Incident, error)
	SoftDeleteIncident(ctx context.Context, id int64, audit *AuditRecord) error

	CreateVerification(ctx context.Context, v *IncidentVerification, audit *AuditRecord) (int64, error)
	ListVerifications(ctx context.Context, incidentID int64) ([]IncidentVerification, error)

	// ListStaleByStatus returns non-deleted incidents that have sat in the
	// given status since before the cutoff. Used by maintenance.
	ListStaleByStatus(ctx context.Context, status string, cutoff time.Time, limit int) ([]Incident, error)
}

type incidentsStore struct {
	db *sql.DB
}

func NewIncidentsStore(db *sql.DB) IncidentsStore {
	return &incidentsStore{db: db}
}

const incidentColumns = `id, title, description, category_id, reported_by, latitude, longitude, address_text, landmark, accuracy, status, created_at, updated_at, deleted_at`

func (s *incidentsStore) CreateIncident(ctx context.Context, inc *Incident, media []IncidentMedia, audit *AuditRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	if strings.TrimSpace(inc.Status) == "" {
		inc.Status = "REPORTED"
	}
	if strings.TrimSpace(inc.Accuracy) == "" {
		inc.Accuracy = "GPS"
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO incidents(title, description, category_id, reported_by, latitude, longitude, address_text, landmark, accuracy, status, created_at, updated_at, deleted_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,NULL)`,
		inc.Title, inc.Description, inc.CategoryID, inc.ReportedBy, inc.Latitude, inc.Longitude,
		strings.TrimSpace(inc.AddressText), strings.TrimSpace(inc.Landmark), inc.Accuracy, inc.Status, now, now)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	incidentID, _ := res.LastInsertId()
	inc.ID = incidentID
	inc.CreatedAt = now
	inc.UpdatedAt = now
	for i := range media {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO incident_media(incident_id, uploaded_by, url, media_type, created_at)
			VALUES(?,?,?,?,?)`,
			incidentID, media[i].UploadedBy, media[i].URL, media[i].MediaType, now); err != nil {
			tx.Rollback()
			return 0, err
		}
	}
	if audit != nil {
		audit.EntityID = &incidentID
		if err := recordAuditTx(ctx, tx, audit); err != nil {
			tx.Rollback()
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return incidentID, nil
}

func (s *incidentsStore) GetIncident(ctx context.Context, id int64) (*Incident, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id=?`, id)
	return scanIncident(row)
}

func (s *incidentsStore) ListIncidents(ctx context.Context, filter IncidentFilter) ([]Incident, error) {
	clauses, args := incidentWhere(filter)
	query := `SELECT ` + incidentColumns + ` FROM incidents`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
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
	var res []Incident
	for rows.Next() {
		inc, err := scanIncidentRow(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, inc)
	}
	return res, rows.Err()
}

func (s *incidentsStore) CountIncidents(ctx context.Context, filter IncidentFilter) (int64, error) {
	clauses, args := incidentWhere(filter)
	query := `SELECT COUNT(1) FROM incidents`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func incidentWhere(filter IncidentFilter) ([]string, []any) {
	clauses := []string{"deleted_at IS NULL"}
	var args []any
	if filter.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, filter.Status)
	}
	if filter.CategoryID > 0 {
		clauses = append(clauses, "category_id=?")
		args = append(args, filter.CategoryID)
	}
	if filter.ReportedBy > 0 {
		clauses = append(clauses, "reported_by=?")
		args = append(args, filter.ReportedBy)
	}
	return clauses, args
}

func (s *incidentsStore) ListMedia(ctx context.Context, incidentID int64) ([]IncidentMedia, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, incident_id, uploaded_by, url, media_type, created_at
		FROM incident_media WHERE incident_id=? ORDER BY id ASC`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []IncidentMedia
	for rows.Next() {
		var m IncidentMedia
		if err := rows.Scan(&m.ID, &m.IncidentID, &m.UploadedBy, &m.URL, &m.MediaType, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (s *incidentsStore) TransitionIncident(ctx context.Context, id int64, from, to string, audit *AuditRecord) (*Incident, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE incidents SET status=?, updated_at=? WHERE id=? AND status=? AND deleted_at IS NULL`,
		to, now, id, from)
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
	return s.GetIncident(ctx, id)
}

func (s *incidentsStore) SoftDeleteIncident(ctx context.Context, id int64, audit *AuditRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE incidents SET deleted_at=?, updated_at=? WHERE id=? AND deleted_at IS NULL`, now, now, id)
	if err != nil {
		tx.Rollback()
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		tx.Rollback()
		return ErrConflict
	}
	if audit != nil {
		audit.EntityID = &id
		if err := recordAuditTx(ctx, tx, audit); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *incidentsStore) CreateVerification(ctx context.Context, v *IncidentVerification, audit *AuditRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO incident_verifications(incident_id, verified_by, decision, comment, created_at)
		VALUES(?,?,?,?,?)`,
		v.IncidentID, v.VerifiedBy, v.Decision, strings.TrimSpace(v.Comment), now)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	id, _ := res.LastInsertId()
	v.ID = id
	v.CreatedAt = now
	if audit != nil {
		audit.EntityID = &v.IncidentID
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

func (s *incidentsStore) ListVerifications(ctx context.Context, incidentID int64) ([]IncidentVerification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, incident_id, verified_by, decision, comment, created_at
		FROM incident_verifications WHERE incident_id=? ORDER BY created_at DESC, id DESC`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []IncidentVerification
	for rows.Next() {
		var v IncidentVerification
		if err := rows.Scan(&v.ID, &v.IncidentID, &v.VerifiedBy, &v.Decision, &v.Comment, &v.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

func (s *incidentsStore) ListStaleByStatus(ctx context.Context, status string, cutoff time.Time, limit int) ([]Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents
		WHERE deleted_at IS NULL AND status=? AND updated_at < ? ORDER BY updated_at ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query, status, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Incident
	for rows.Next() {
		inc, err := scanIncidentRow(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, inc)
	}
	return res, rows.Err()
}

func scanIncident(row *sql.Row) (*Incident, error) {
	var inc Incident
	var deleted sql.NullTime
	if err := row.Scan(&inc.ID, &inc.Title, &inc.Description, &inc.CategoryID, &inc.ReportedBy, &inc.Latitude, &inc.Longitude, &inc.AddressText, &inc.Landmark, &inc.Accuracy, &inc.Status, &inc.CreatedAt, &inc.UpdatedAt, &deleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	inc.DeletedAt = timePtr(deleted)
	return &inc, nil
}

func scanIncidentRow(rows *sql.Rows) (Incident, error) {
	var inc Incident
	var deleted sql.NullTime
	if err := rows.Scan(&inc.ID, &inc.Title, &inc.Description, &inc.CategoryID, &inc.ReportedBy, &inc.Latitude, &inc.Longitude, &inc.AddressText, &inc.Landmark, &inc.Accuracy, &inc.Status, &inc.CreatedAt, &inc.UpdatedAt, &deleted); err != nil {
		return inc, err
	}
	inc.DeletedAt = timePtr(deleted)
	return inc, nil
}
