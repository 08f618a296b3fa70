package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

type IncidentCategory struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type Agency struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Region    string    `json:"region"`
	CreatedAt time.Time `json:"created_at"`
}

// RefsStore holds the small reference aggregates: incident categories and
// responder agencies.
type RefsStore interface {
	CreateCategory(ctx context.Context, cat *IncidentCategory) (int64, error)
	GetCategory(ctx context.Context, id int64) (*IncidentCategory, error)
	ListCategories(ctx context.Context, activeOnly bool) ([]IncidentCategory, error)
	SetCategoryActive(ctx context.Context, id int64, active bool) error

	CreateAgency(ctx context.Context, agency *Agency) (int64, error)
	GetAgency(ctx context.Context, id int64) (*Agency, error)
	ListAgencies(ctx context.Context) ([]Agency, error)
}

type refsStore struct {
	db *sql.DB
}

func NewRefsStore(db *sql.DB) RefsStore {
	return &refsStore{db: db}
}

func (s *refsStore) CreateCategory(ctx context.Context, cat *IncidentCategory) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO incident_categories(name, active, created_at) VALUES(?,?,?)`,
		strings.TrimSpace(cat.Name), boolToInt(cat.Active), now)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	cat.ID = id
	cat.CreatedAt = now
	return id, nil
}

func (s *refsStore) GetCategory(ctx context.Context, id int64) (*IncidentCategory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, active, created_at FROM incident_categories WHERE id=?`, id)
	var cat IncidentCategory
	var active int
	if err := row.Scan(&cat.ID, &cat.Name, &active, &cat.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	cat.Active = active == 1
	return &cat, nil
}

func (s *refsStore) ListCategories(ctx context.Context, activeOnly bool) ([]IncidentCategory, error) {
	query := `SELECT id, name, active, created_at FROM incident_categories`
	if activeOnly {
		query += ` WHERE active=1`
	}
	query += ` ORDER BY name ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []IncidentCategory
	for rows.Next() {
		var cat IncidentCategory
		var active int
		if err := rows.Scan(&cat.ID, &cat.Name, &active, &cat.CreatedAt); err != nil {
			return nil, err
		}
		cat.Active = active == 1
		res = append(res, cat)
	}
	return res, rows.Err()
}

func (s *refsStore) SetCategoryActive(ctx context.Context, id int64, active bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE incident_categories SET active=? WHERE id=?`, boolToInt(active), id)
	return err
}

func (s *refsStore) CreateAgency(ctx context.Context, agency *Agency) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO agencies(name, region, created_at) VALUES(?,?,?)`,
		strings.TrimSpace(agency.Name), strings.TrimSpace(agency.Region), now)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	agency.ID = id
	agency.CreatedAt = now
	return id, nil
}

func (s *refsStore) GetAgency(ctx context.Context, id int64) (*Agency, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, region, created_at FROM agencies WHERE id=?`, id)
	var a Agency
	if err := row.Scan(&a.ID, &a.Name, &a.Region, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (s *refsStore) ListAgencies(ctx context.Context) ([]Agency, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, region, created_at FROM agencies ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Agency
	for rows.Next() {
		var a Agency
		if err := rows.Scan(&a.ID, &a.Name, &a.Region, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
