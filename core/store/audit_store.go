package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// AuditRecord is an immutable who-did-what-to-which entry. Rows are only
// ever inserted; there is no update or delete path.
type AuditRecord struct {
	ID         int64          `json:"id"`
	ActorID    int64          `json:"actor_id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   *int64         `json:"entity_id,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

type AuditFilter struct {
	EntityType string
	EntityID   int64
	ActorID    int64
	Action     string
	Since      time.Time
	Limit      int
	Offset     int
}

type AuditStore interface {
	// Record writes a standalone audit entry in its own transaction.
	Record(ctx context.Context, rec *AuditRecord) error
	List(ctx context.Context, filter AuditFilter) ([]AuditRecord, error)
}

type auditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) AuditStore {
	return &auditStore{db: db}
}

// recordAuditTx inserts an audit entry inside an open transaction. Mutating
// store operations call this so that a failed audit write rolls back the
// business mutation with it.
func recordAuditTx(ctx context.Context, tx *sql.Tx, rec *AuditRecord) error {
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO audit_log(actor_id, action, entity_type, entity_id, meta_json, created_at)
		VALUES(?,?,?,?,?,?)`,
		rec.ActorID, rec.Action, strings.ToUpper(strings.TrimSpace(rec.EntityType)), nullableID(rec.EntityID), metaToJSON(rec.Meta), now)
	if err != nil {
		return fmt.Errorf("audit insert: %w", err)
	}
	rec.ID, _ = res.LastInsertId()
	rec.CreatedAt = now
	return nil
}

func (s *auditStore) Record(ctx context.Context, rec *AuditRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := recordAuditTx(ctx, tx, rec); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *auditStore) List(ctx context.Context, filter AuditFilter) ([]AuditRecord, error) {
	var clauses []string
	var args []any
	if filter.EntityType != "" {
		clauses = append(clauses, "entity_type=?")
		args = append(args, strings.ToUpper(strings.TrimSpace(filter.EntityType)))
	}
	if filter.EntityID > 0 {
		clauses = append(clauses, "entity_id=?")
		args = append(args, filter.EntityID)
	}
	if filter.ActorID > 0 {
		clauses = append(clauses, "actor_id=?")
		args = append(args, filter.ActorID)
	}
	if filter.Action != "" {
		clauses = append(clauses, "action=?")
		args = append(args, filter.Action)
	}
	if !filter.Since.IsZero() {
		clauses = append(clauses, "created_at>=?")
		args = append(args, filter.Since.UTC())
	}
	query := `SELECT id, actor_id, action, entity_type, entity_id, meta_json, created_at FROM audit_log`
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
	var res []AuditRecord
	for rows.Next() {
		var rec AuditRecord
		var entityID sql.NullInt64
		var metaRaw string
		if err := rows.Scan(&rec.ID, &rec.ActorID, &rec.Action, &rec.EntityType, &entityID, &metaRaw, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.EntityID = idPtr(entityID)
		rec.Meta = parseMeta(metaRaw)
		res = append(res, rec)
	}
	return res, rows.Err()
}
