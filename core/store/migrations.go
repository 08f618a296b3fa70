package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"

	"aegis-ecc/core/utils"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'CIVILIAN',
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		role TEXT NOT NULL,
		csrf_token TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_seen_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		expires_at TIMESTAMP NOT NULL,
		FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS agencies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		region TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS incident_categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS incidents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category_id INTEGER NOT NULL,
		reported_by INTEGER NOT NULL,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		address_text TEXT NOT NULL DEFAULT '',
		landmark TEXT NOT NULL DEFAULT '',
		accuracy TEXT NOT NULL DEFAULT 'GPS',
		status TEXT NOT NULL DEFAULT 'REPORTED',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		deleted_at TIMESTAMP,
		FOREIGN KEY(category_id) REFERENCES incident_categories(id),
		FOREIGN KEY(reported_by) REFERENCES users(id)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_incidents_status ON incidents(status);`,
	`CREATE INDEX IF NOT EXISTS idx_incidents_reported_by ON incidents(reported_by);`,
	`CREATE TABLE IF NOT EXISTS incident_media (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		incident_id INTEGER NOT NULL,
		uploaded_by INTEGER NOT NULL,
		url TEXT NOT NULL,
		media_type TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY(incident_id) REFERENCES incidents(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS incident_verifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		incident_id INTEGER NOT NULL,
		verified_by INTEGER NOT NULL,
		decision TEXT NOT NULL,
		comment TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY(incident_id) REFERENCES incidents(id) ON DELETE CASCADE,
		FOREIGN KEY(verified_by) REFERENCES users(id)
	);`,
	`CREATE TABLE IF NOT EXISTS missions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		incident_id INTEGER NOT NULL,
		created_by INTEGER NOT NULL,
		agency_id INTEGER,
		mission_type TEXT NOT NULL DEFAULT '',
		priority TEXT NOT NULL DEFAULT 'MEDIUM',
		status TEXT NOT NULL DEFAULT 'ASSIGNED',
		accepted_at TIMESTAMP,
		on_site_at TIMESTAMP,
		completed_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		FOREIGN KEY(incident_id) REFERENCES incidents(id),
		FOREIGN KEY(agency_id) REFERENCES agencies(id)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_missions_incident ON missions(incident_id);`,
	`CREATE TABLE IF NOT EXISTS mission_assignments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		mission_id INTEGER NOT NULL,
		assigned_to INTEGER NOT NULL,
		assigned_by INTEGER NOT NULL,
		role TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE(mission_id, assigned_to),
		FOREIGN KEY(mission_id) REFERENCES missions(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS mission_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		mission_id INTEGER NOT NULL,
		actor_id INTEGER NOT NULL,
		action TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY(mission_id) REFERENCES missions(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS mission_tracking (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		mission_id INTEGER NOT NULL,
		volunteer_id INTEGER NOT NULL,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		recorded_at TIMESTAMP NOT NULL,
		FOREIGN KEY(mission_id) REFERENCES missions(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS mission_reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		mission_id INTEGER NOT NULL UNIQUE,
		summary TEXT NOT NULL,
		actions_taken TEXT NOT NULL DEFAULT '',
		resources_used TEXT NOT NULL DEFAULT '',
		casualties INTEGER NOT NULL DEFAULT 0,
		property_damage TEXT NOT NULL DEFAULT 'None',
		submitted_by INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY(mission_id) REFERENCES missions(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS volunteer_applications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		agency_id INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		date_of_birth TEXT NOT NULL DEFAULT '',
		national_id_number TEXT NOT NULL DEFAULT '',
		national_id_url TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		has_transport INTEGER NOT NULL DEFAULT 0,
		experience TEXT NOT NULL DEFAULT '',
		reviewed_by INTEGER,
		review_note TEXT NOT NULL DEFAULT '',
		submitted_at TIMESTAMP NOT NULL,
		reviewed_at TIMESTAMP,
		updated_at TIMESTAMP NOT NULL,
		FOREIGN KEY(user_id) REFERENCES users(id),
		FOREIGN KEY(agency_id) REFERENCES agencies(id)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_applications_user_status ON volunteer_applications(user_id, status);`,
	`CREATE TABLE IF NOT EXISTS application_certificates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		application_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		file_url TEXT NOT NULL,
		issued_by TEXT NOT NULL DEFAULT '',
		issued_at TIMESTAMP,
		FOREIGN KEY(application_id) REFERENCES volunteer_applications(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS emergency_profiles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL UNIQUE,
		full_name TEXT NOT NULL,
		date_of_birth TEXT NOT NULL DEFAULT '',
		blood_type TEXT NOT NULL DEFAULT '',
		allergies TEXT NOT NULL DEFAULT '',
		medical_conditions TEXT NOT NULL DEFAULT '',
		medications TEXT NOT NULL DEFAULT '',
		consent_given_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS emergency_contacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		profile_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		phone TEXT NOT NULL,
		relationship TEXT NOT NULL DEFAULT '',
		is_primary INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY(profile_id) REFERENCES emergency_profiles(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS volunteer_profiles (
		user_id INTEGER PRIMARY KEY,
		is_available INTEGER NOT NULL DEFAULT 0,
		availability_radius_km REAL NOT NULL DEFAULT 10,
		last_known_latitude REAL,
		last_known_longitude REAL,
		updated_at TIMESTAMP NOT NULL,
		FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		actor_id INTEGER NOT NULL,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id INTEGER,
		meta_json TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id);`,
}

// ApplyMigrations brings the schema up to date. sqlite applies the ordered
// statement list directly (each statement is idempotent); postgres goes
// through goose so deployments keep a versioned history.
func ApplyMigrations(ctx context.Context, db *sql.DB, driver string, logger *utils.Logger) error {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		if logger != nil {
			logger.Printf("applying sqlite migrations")
		}
		for i, stmt := range sqliteMigrations {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("sqlite migration #%d failed: %w", i+1, err)
			}
		}
		if logger != nil {
			logger.Printf("sqlite migrations applied")
		}
		return nil
	case "postgres":
		goose.SetBaseFS(embedMigrations)
		if err := goose.SetDialect("postgres"); err != nil {
			return fmt.Errorf("goose dialect: %w", err)
		}
		if err := goose.UpContext(ctx, db, "migrations"); err != nil {
			return fmt.Errorf("goose up: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported db driver %q", driver)
	}
}
