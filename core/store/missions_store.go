package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Mission struct {
	ID          int64      `json:"id"`
	IncidentID  int64      `json:"incident_id"`
	CreatedBy   int64      `json:"created_by"`
	AgencyID    *int64     `json:"agency_id,omitempty"`
	MissionType string     `json:"mission_type"`
	Priority    string     `json:"priority"`
	Status      string     `json:"status"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	OnSiteAt    *time.Time `json:"on_site_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type MissionAssignment struct {
	ID         int64     `json:"id"`
	MissionID  int64     `json:"mission_id"`
	AssignedTo int64     `json:"assigned_to"`
	AssignedBy int64     `json:"assigned_by"`
	Role       string    `json:"role"`
	CreatedAt  time.Time `json:"created_at"`
}

type MissionLog struct {
	ID        int64     `json:"id"`
	MissionID int64     `json:"mission_id"`
	ActorID   int64     `json:"actor_id"`
	Action    string    `json:"action"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type MissionTracking struct {
	ID          int64     `json:"id"`
	MissionID   int64     `json:"mission_id"`
	VolunteerID int64     `json:"volunteer_id"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	RecordedAt  time.Time `json:"recorded_at"`
}

type MissionReport struct {
	ID             int64     `json:"id"`
	MissionID      int64     `json:"mission_id"`
	Summary        string    `json:"summary"`
	ActionsTaken   string    `json:"actions_taken,omitempty"`
	ResourcesUsed  string    `json:"resources_used,omitempty"`
	Casualties     int       `json:"casualties"`
	PropertyDamage string    `json:"property_damage"`
	SubmittedBy    int64     `json:"submitted_by"`
	CreatedAt      time.Time `json:"created_at"`
}

type MissionFilter struct {
	Status     string
	IncidentID int64
	AssignedTo int64
	Limit      int
	Offset     int
}

type MissionsStore interface {
	// CreateMission inserts the mission row, its initial logs, the leader
	// assignment and the audit entry in one transaction.
	CreateMission(ctx context.Context, m *Mission, leader *MissionAssignment, logs []MissionLog, audit *AuditRecord) (int64, error)
	GetMission(ctx context.Context, id int64) (*Mission, error)
	FindActiveMissionByIncident(ctx context.Context, incidentID int64) (*Mission, error)
	ListMissions(ctx context.Context, filter MissionFilter) ([]Mission, error)

	// AdvanceMission is a compare-and-swap on status. Milestone timestamps
	// (accepted/on-site/completed) are stamped according to the target
	// status, the transition log and audit entry commit in the same
	// transaction, and ErrConflict reports a lost race.
	AdvanceMission(ctx context.Context, id int64, from, to string, log *MissionLog, audit *AuditRecord) (*Mission, error)

	AddAssignment(ctx context.Context, a *MissionAssignment, audit *AuditRecord) (int64, error)
	ListAssignments(ctx context.Context, missionID int64) ([]MissionAssignment, error)
	GetLeader(ctx context.Context, missionID int64) (*MissionAssignment, error)

	ListLogs(ctx context.Context, missionID int64) ([]MissionLog, error)

	// InsertTracking only succeeds while the mission is EN_ROUTE: the insert
	// is guarded on mission status inside the statement itself, so a
	// concurrent transition out of EN_ROUTE surfaces as ErrConflict.
	InsertTracking(ctx context.Context, t *MissionTracking) (int64, error)
	ListTracking(ctx context.Context, missionID int64, limit int) ([]MissionTracking, error)

	CreateReport(ctx context.Context, r *MissionReport, audit *AuditRecord) (int64, error)
	GetReport(ctx context.Context, missionID int64) (*MissionReport, error)
}

type missionsStore struct {
	db *sql.DB
}

func NewMissionsStore(db *sql.DB) MissionsStore {
	return &missionsStore{db: db}
}

const missionColumns = `id, incident_id, created_by, agency_id, mission_type, priority, status, accepted_at, on_site_at, completed_at, created_at, updated_at`

func (s *missionsStore) CreateMission(ctx context.Context, m *Mission, leader *MissionAssignment, logs []MissionLog, audit *AuditRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	if strings.TrimSpace(m.Status) == "" {
		m.Status = "ASSIGNED"
	}
	if strings.TrimSpace(m.Priority) == "" {
		m.Priority = "MEDIUM"
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO missions(incident_id, created_by, agency_id, mission_type, priority, status, accepted_at, on_site_at, completed_at, created_at, updated_at)
		VALUES(?,?,?,?,?,?,NULL,NULL,NULL,?,?)`,
		m.IncidentID, m.CreatedBy, nullableID(m.AgencyID), strings.TrimSpace(m.MissionType), m.Priority, m.Status, now, now)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	missionID, _ := res.LastInsertId()
	m.ID = missionID
	m.CreatedAt = now
	m.UpdatedAt = now
	for i := range logs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO mission_logs(mission_id, actor_id, action, note, created_at)
			VALUES(?,?,?,?,?)`,
			missionID, logs[i].ActorID, logs[i].Action, logs[i].Note, now); err != nil {
			tx.Rollback()
			return 0, err
		}
		// The leader assignment lands between the CREATED and ASSIGNED
		// entries so the transcript reads in causal order.
		if i == 0 && leader != nil {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO mission_assignments(mission_id, assigned_to, assigned_by, role, created_at)
				VALUES(?,?,?,?,?)`,
				missionID, leader.AssignedTo, leader.AssignedBy, leader.Role, now); err != nil {
				tx.Rollback()
				return 0, err
			}
			leader.MissionID = missionID
			leader.CreatedAt = now
		}
	}
	if audit != nil {
		audit.EntityID = &missionID
		if err := recordAuditTx(ctx, tx, audit); err != nil {
			tx.Rollback()
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return missionID, nil
}

func (s *missionsStore) GetMission(ctx context.Context, id int64) (*Mission, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE id=?`, id)
	return scanMission(row)
}

func (s *missionsStore) FindActiveMissionByIncident(ctx context.Context, incidentID int64) (*Mission, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+missionColumns+` FROM missions
		WHERE incident_id=? AND status!='COMPLETED'
		ORDER BY created_at DESC LIMIT 1`, incidentID)
	return scanMission(row)
}

func (s *missionsStore) ListMissions(ctx context.Context, filter MissionFilter) ([]Mission, error) {
	var clauses []string
	var args []any
	if filter.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, filter.Status)
	}
	if filter.IncidentID > 0 {
		clauses = append(clauses, "incident_id=?")
		args = append(args, filter.IncidentID)
	}
	if filter.AssignedTo > 0 {
		clauses = append(clauses, "id IN (SELECT mission_id FROM mission_assignments WHERE assigned_to=?)")
		args = append(args, filter.AssignedTo)
	}
	query := `SELECT ` + missionColumns + ` FROM missions`
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
	var res []Mission
	for rows.Next() {
		m, err := scanMissionRow(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// milestoneColumn names the timestamp stamped when a mission enters the
// given status. Statuses without a milestone return "".
func milestoneColumn(status string) string {
	switch status {
	case "ACCEPTED":
		return "accepted_at"
	case "ON_SITE":
		return "on_site_at"
	case "COMPLETED":
		return "completed_at"
	default:
		return ""
	}
}

func (s *missionsStore) AdvanceMission(ctx context.Context, id int64, from, to string, log *MissionLog, audit *AuditRecord) (*Mission, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	query := `UPDATE missions SET status=?, updated_at=?`
	args := []any{to, now}
	if col := milestoneColumn(to); col != "" {
		query += `, ` + col + `=?`
		args = append(args, now)
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
	if log != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO mission_logs(mission_id, actor_id, action, note, created_at)
			VALUES(?,?,?,?,?)`,
			id, log.ActorID, log.Action, log.Note, now); err != nil {
			tx.Rollback()
			return nil, err
		}
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
	return s.GetMission(ctx, id)
}

func (s *missionsStore) AddAssignment(ctx context.Context, a *MissionAssignment, audit *AuditRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO mission_assignments(mission_id, assigned_to, assigned_by, role, created_at)
		VALUES(?,?,?,?,?)`,
		a.MissionID, a.AssignedTo, a.AssignedBy, a.Role, now)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	id, _ := res.LastInsertId()
	a.ID = id
	a.CreatedAt = now
	if audit != nil {
		audit.EntityID = &a.MissionID
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

func (s *missionsStore) ListAssignments(ctx context.Context, missionID int64) ([]MissionAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mission_id, assigned_to, assigned_by, role, created_at
		FROM mission_assignments WHERE mission_id=? ORDER BY id ASC`, missionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []MissionAssignment
	for rows.Next() {
		var a MissionAssignment
		if err := rows.Scan(&a.ID, &a.MissionID, &a.AssignedTo, &a.AssignedBy, &a.Role, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (s *missionsStore) GetLeader(ctx context.Context, missionID int64) (*MissionAssignment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, mission_id, assigned_to, assigned_by, role, created_at
		FROM mission_assignments WHERE mission_id=? AND role='LEADER' LIMIT 1`, missionID)
	var a MissionAssignment
	if err := row.Scan(&a.ID, &a.MissionID, &a.AssignedTo, &a.AssignedBy, &a.Role, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (s *missionsStore) ListLogs(ctx context.Context, missionID int64) ([]MissionLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mission_id, actor_id, action, note, created_at
		FROM mission_logs WHERE mission_id=? ORDER BY id ASC`, missionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []MissionLog
	for rows.Next() {
		var l MissionLog
		if err := rows.Scan(&l.ID, &l.MissionID, &l.ActorID, &l.Action, &l.Note, &l.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func (s *missionsStore) InsertTracking(ctx context.Context, t *MissionTracking) (int64, error) {
	if t.RecordedAt.IsZero() {
		t.RecordedAt = time.Now().UTC()
	} else {
		t.RecordedAt = t.RecordedAt.UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO mission_tracking(mission_id, volunteer_id, latitude, longitude, recorded_at)
		SELECT ?,?,?,?,?
		WHERE EXISTS (SELECT 1 FROM missions WHERE id=? AND status='EN_ROUTE')`,
		t.MissionID, t.VolunteerID, t.Latitude, t.Longitude, t.RecordedAt, t.MissionID)
	if err != nil {
		return 0, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return 0, ErrConflict
	}
	id, _ := res.LastInsertId()
	t.ID = id
	return id, nil
}

func (s *missionsStore) ListTracking(ctx context.Context, missionID int64, limit int) ([]MissionTracking, error) {
	query := `
		SELECT id, mission_id, volunteer_id, latitude, longitude, recorded_at
		FROM mission_tracking WHERE mission_id=? ORDER BY recorded_at ASC, id ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query, missionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []MissionTracking
	for rows.Next() {
		var t MissionTracking
		if err := rows.Scan(&t.ID, &t.MissionID, &t.VolunteerID, &t.Latitude, &t.Longitude, &t.RecordedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (s *missionsStore) CreateReport(ctx context.Context, r *MissionReport, audit *AuditRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	// Existence check inside the transaction; the UNIQUE(mission_id)
	// constraint backstops a race between two submitters.
	var existing int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM mission_reports WHERE mission_id=?`, r.MissionID).Scan(&existing); err != nil {
		tx.Rollback()
		return 0, err
	}
	if existing > 0 {
		tx.Rollback()
		return 0, ErrConflict
	}
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO mission_reports(mission_id, summary, actions_taken, resources_used, casualties, property_damage, submitted_by, created_at)
		VALUES(?,?,?,?,?,?,?,?)`,
		r.MissionID, r.Summary, r.ActionsTaken, r.ResourcesUsed, r.Casualties, r.PropertyDamage, r.SubmittedBy, now)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	id, _ := res.LastInsertId()
	r.ID = id
	r.CreatedAt = now
	if audit != nil {
		audit.EntityID = &r.MissionID
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

func (s *missionsStore) GetReport(ctx context.Context, missionID int64) (*MissionReport, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, mission_id, summary, actions_taken, resources_used, casualties, property_damage, submitted_by, created_at
		FROM mission_reports WHERE mission_id=?`, missionID)
	var r MissionReport
	if err := row.Scan(&r.ID, &r.MissionID, &r.Summary, &r.ActionsTaken, &r.ResourcesUsed, &r.Casualties, &r.PropertyDamage, &r.SubmittedBy, &r.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

func scanMission(row *sql.Row) (*Mission, error) {
	var m Mission
	var agency sql.NullInt64
	var accepted, onSite, completed sql.NullTime
	if err := row.Scan(&m.ID, &m.IncidentID, &m.CreatedBy, &agency, &m.MissionType, &m.Priority, &m.Status, &accepted, &onSite, &completed, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	m.AgencyID = idPtr(agency)
	m.AcceptedAt = timePtr(accepted)
	m.OnSiteAt = timePtr(onSite)
	m.CompletedAt = timePtr(completed)
	return &m, nil
}

func scanMissionRow(rows *sql.Rows) (Mission, error) {
	var m Mission
	var agency sql.NullInt64
	var accepted, onSite, completed sql.NullTime
	if err := rows.Scan(&m.ID, &m.IncidentID, &m.CreatedBy, &agency, &m.MissionType, &m.Priority, &m.Status, &accepted, &onSite, &completed, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return m, err
	}
	m.AgencyID = idPtr(agency)
	m.AcceptedAt = timePtr(accepted)
	m.OnSiteAt = timePtr(onSite)
	m.CompletedAt = timePtr(completed)
	return m, nil
}
