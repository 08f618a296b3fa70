package maintenance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"aegis-ecc/config"
	"aegis-ecc/core/incidents"
	"aegis-ecc/core/store"
	"aegis-ecc/core/utils"
)

type testEnv struct {
	worker    *Worker
	sessions  store.SessionStore
	incidents store.IncidentsStore
	audits    store.AuditStore
	users     store.UsersStore
	refs      store.RefsStore
}

func newTestEnv(t *testing.T, window time.Duration) *testEnv {
	t.Helper()
	cfg := &config.AppConfig{
		DBDriver: "sqlite",
		DBPath:   filepath.Join(t.TempDir(), "test.db"),
		Maintenance: config.MaintenanceConfig{
			Enabled:           true,
			StaleVerification: window,
		},
	}
	logger := utils.NewSilentLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, "sqlite", logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	env := &testEnv{
		sessions:  store.NewSessionsStore(db),
		incidents: store.NewIncidentsStore(db),
		audits:    store.NewAuditStore(db),
		users:     store.NewUsersStore(db),
		refs:      store.NewRefsStore(db),
	}
	env.worker = NewWorker(cfg.Maintenance, env.sessions, env.incidents, env.audits, logger)
	return env
}

func (env *testEnv) seedSession(t *testing.T, id string, expiresAt time.Time) {
	t.Helper()
	user := &store.User{Name: "u " + id, Email: id + "@example.com", PasswordHash: "x", Role: "CIVILIAN", Active: true}
	if _, err := env.users.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	rec := &store.SessionRecord{
		ID:         id,
		UserID:     user.ID,
		Role:       user.Role,
		CSRFToken:  "tok",
		CreatedAt:  time.Now().UTC().Add(-time.Hour),
		LastSeenAt: time.Now().UTC().Add(-time.Hour),
		ExpiresAt:  expiresAt,
	}
	if err := env.sessions.SaveSession(context.Background(), rec); err != nil {
		t.Fatalf("save session: %v", err)
	}
}

func TestRunOncePurgesExpiredSessions(t *testing.T) {
	env := newTestEnv(t, 0)
	now := time.Now().UTC()
	env.seedSession(t, "expired", now.Add(-time.Minute))
	env.seedSession(t, "live", now.Add(time.Hour))

	if err := env.worker.RunOnce(context.Background(), now); err != nil {
		t.Fatalf("run: %v", err)
	}

	gone, err := env.sessions.GetSession(context.Background(), "expired")
	if err != nil || gone != nil {
		t.Fatalf("expired session survived: %+v (err %v)", gone, err)
	}
	kept, err := env.sessions.GetSession(context.Background(), "live")
	if err != nil || kept == nil {
		t.Fatalf("live session purged (err %v)", err)
	}
}

func TestRunOnceFlagsStaleVerifications(t *testing.T) {
	env := newTestEnv(t, 6*time.Hour)

	reporter := &store.User{Name: "reporter", Email: "reporter@example.com", PasswordHash: "x", Role: "CIVILIAN", Active: true}
	if _, err := env.users.Create(context.Background(), reporter); err != nil {
		t.Fatalf("create user: %v", err)
	}
	cat := &store.IncidentCategory{Name: "Flood", Active: true}
	if _, err := env.refs.CreateCategory(context.Background(), cat); err != nil {
		t.Fatalf("create category: %v", err)
	}

	stuck := &store.Incident{Title: "Stuck incident", CategoryID: cat.ID, ReportedBy: reporter.ID, Latitude: 1, Longitude: 1}
	if _, err := env.incidents.CreateIncident(context.Background(), stuck, nil, nil); err != nil {
		t.Fatalf("create incident: %v", err)
	}
	if _, err := env.incidents.TransitionIncident(context.Background(), stuck.ID,
		incidents.StatusReported, incidents.StatusAwaitingVerification, nil); err != nil {
		t.Fatalf("transition: %v", err)
	}
	fresh := &store.Incident{Title: "Fresh incident", CategoryID: cat.ID, ReportedBy: reporter.ID, Latitude: 1, Longitude: 1}
	if _, err := env.incidents.CreateIncident(context.Background(), fresh, nil, nil); err != nil {
		t.Fatalf("create incident: %v", err)
	}

	// Run as if seven hours have passed; only the awaiting incident is
	// past the six hour window, the REPORTED one is never considered.
	future := time.Now().UTC().Add(7 * time.Hour)
	if err := env.worker.RunOnce(context.Background(), future); err != nil {
		t.Fatalf("run: %v", err)
	}

	logs, err := env.audits.List(context.Background(), store.AuditFilter{Action: ActionStaleFlagged})
	if err != nil {
		t.Fatalf("list audits: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("stale flags = %d, want 1", len(logs))
	}
	if logs[0].EntityID == nil || *logs[0].EntityID != stuck.ID {
		t.Fatalf("flag points at wrong incident: %+v", logs[0])
	}
	if _, ok := logs[0].Meta["awaiting_since"]; !ok {
		t.Fatalf("awaiting_since missing from meta: %+v", logs[0].Meta)
	}
}

func TestDisabledWorkerStartIsNoop(t *testing.T) {
	logger := utils.NewSilentLogger()
	w := NewWorker(config.MaintenanceConfig{Enabled: false}, nil, nil, nil, logger)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
