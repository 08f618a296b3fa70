package incidents

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"aegis-ecc/config"
	"aegis-ecc/core/apperr"
	"aegis-ecc/core/identity"
	"aegis-ecc/core/store"
	"aegis-ecc/core/utils"
)

type testEnv struct {
	svc       *Service
	incidents store.IncidentsStore
	refs      store.RefsStore
	audits    store.AuditStore
	users     store.UsersStore
	userSeq   int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.AppConfig{
		DBDriver:  "sqlite",
		DBPath:    filepath.Join(t.TempDir(), "test.db"),
		Incidents: config.IncidentsConfig{MaxMediaPerIncident: 5},
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
		incidents: store.NewIncidentsStore(db),
		refs:      store.NewRefsStore(db),
		audits:    store.NewAuditStore(db),
		users:     store.NewUsersStore(db),
	}
	env.svc = NewService(env.incidents, env.refs, cfg, logger)
	return env
}

func (env *testEnv) newUser(t *testing.T, role string) identity.Actor {
	t.Helper()
	env.userSeq++
	user := &store.User{
		Name:         "Test " + role,
		Email:        fmt.Sprintf("%s-%d@example.com", strings.ToLower(role), env.userSeq),
		PasswordHash: "x",
		Role:         role,
		Active:       true,
	}
	if _, err := env.users.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return identity.Actor{UserID: user.ID, Role: role}
}

func (env *testEnv) newCategory(t *testing.T, name string, active bool) int64 {
	t.Helper()
	cat := &store.IncidentCategory{Name: name, Active: active}
	if _, err := env.refs.CreateCategory(context.Background(), cat); err != nil {
		t.Fatalf("create category: %v", err)
	}
	return cat.ID
}

func (env *testEnv) report(t *testing.T, actor identity.Actor, catID int64) *store.Incident {
	t.Helper()
	inc, err := env.svc.Create(context.Background(), actor, CreateInput{
		Title:      "Flooded underpass",
		CategoryID: catID,
		Latitude:   23.8103,
		Longitude:  90.4125,
	})
	if err != nil {
		t.Fatalf("create incident: %v", err)
	}
	return inc
}

func TestCreateValidatesCategory(t *testing.T) {
	env := newTestEnv(t)
	actor := env.newUser(t, identity.RoleCivilian)

	_, err := env.svc.Create(context.Background(), actor, CreateInput{Title: "x y z", CategoryID: 999, Latitude: 1, Longitude: 1})
	if apperr.CodeOf(err) != "CATEGORY_NOT_FOUND" {
		t.Fatalf("expected CATEGORY_NOT_FOUND, got %v", err)
	}

	inactive := env.newCategory(t, "Retired", false)
	_, err = env.svc.Create(context.Background(), actor, CreateInput{Title: "x y z", CategoryID: inactive, Latitude: 1, Longitude: 1})
	if apperr.CodeOf(err) != "CATEGORY_INACTIVE" {
		t.Fatalf("expected CATEGORY_INACTIVE, got %v", err)
	}
}

func TestCreateStartsAtReported(t *testing.T) {
	env := newTestEnv(t)
	actor := env.newUser(t, identity.RoleCivilian)
	cat := env.newCategory(t, "Flood", true)

	inc := env.report(t, actor, cat)
	if inc.Status != StatusReported {
		t.Fatalf("new incident status = %s, want %s", inc.Status, StatusReported)
	}

	// Reporting is audited.
	logs, err := env.audits.List(context.Background(), store.AuditFilter{EntityType: "INCIDENT", EntityID: inc.ID})
	if err != nil || len(logs) != 1 {
		t.Fatalf("audit entries = %d (err %v), want 1", len(logs), err)
	}
	if logs[0].Action != ActionReported {
		t.Fatalf("audit action = %s", logs[0].Action)
	}
}

func TestCivilianScopedToOwnIncidents(t *testing.T) {
	env := newTestEnv(t)
	reporter := env.newUser(t, identity.RoleCivilian)
	other := env.newUser(t, identity.RoleCivilian)
	cat := env.newCategory(t, "Fire", true)
	inc := env.report(t, reporter, cat)

	if _, err := env.svc.Get(context.Background(), other, inc.ID); apperr.CodeOf(err) != "INCIDENT_NOT_FOUND" {
		t.Fatalf("expected INCIDENT_NOT_FOUND for other civilian, got %v", err)
	}
	if _, err := env.svc.Get(context.Background(), reporter, inc.ID); err != nil {
		t.Fatalf("reporter should see own incident: %v", err)
	}

	items, total, err := env.svc.List(context.Background(), other, store.IncidentFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 0 || total != 0 {
		t.Fatalf("other civilian sees %d incidents, want 0", len(items))
	}
}

func TestAdminStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	reporter := env.newUser(t, identity.RoleCivilian)
	admin := env.newUser(t, identity.RoleAdmin)
	cat := env.newCategory(t, "Collapse", true)
	inc := env.report(t, reporter, cat)

	// Skipping a state is rejected.
	if _, err := env.svc.UpdateStatus(context.Background(), admin, inc.ID, StatusVerified); apperr.KindOf(err) != apperr.KindInvalidTransition {
		t.Fatalf("REPORTED -> VERIFIED should be invalid, got %v", err)
	}

	for _, next := range []string{StatusAwaitingVerification, StatusVerified, StatusResolved, StatusClosed} {
		updated, err := env.svc.UpdateStatus(context.Background(), admin, inc.ID, next)
		if err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
		if updated.Status != next {
			t.Fatalf("status = %s, want %s", updated.Status, next)
		}
	}

	// CLOSED is terminal.
	if _, err := env.svc.UpdateStatus(context.Background(), admin, inc.ID, StatusReported); apperr.KindOf(err) != apperr.KindInvalidTransition {
		t.Fatalf("transition out of CLOSED should fail, got %v", err)
	}
}

func TestReporterClose(t *testing.T) {
	env := newTestEnv(t)
	reporter := env.newUser(t, identity.RoleCivilian)
	other := env.newUser(t, identity.RoleCivilian)
	admin := env.newUser(t, identity.RoleAdmin)
	cat := env.newCategory(t, "Storm", true)
	inc := env.report(t, reporter, cat)

	if _, err := env.svc.CloseByReporter(context.Background(), reporter, inc.ID, ""); apperr.CodeOf(err) != "CLOSURE_NOTE_REQUIRED" {
		t.Fatalf("empty note should fail, got %v", err)
	}
	if _, err := env.svc.CloseByReporter(context.Background(), other, inc.ID, "resolved itself"); apperr.CodeOf(err) != "INCIDENT_NOT_FOUND" {
		t.Fatalf("non-reporter close should fail, got %v", err)
	}

	updated, err := env.svc.CloseByReporter(context.Background(), reporter, inc.ID, "water receded")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if updated.Status != StatusClosed {
		t.Fatalf("status = %s, want CLOSED", updated.Status)
	}

	// Closure note lands in the audit trail.
	logs, _ := env.audits.List(context.Background(), store.AuditFilter{EntityType: "INCIDENT", EntityID: inc.ID, Action: ActionClosed})
	if len(logs) != 1 {
		t.Fatalf("closure audit entries = %d, want 1", len(logs))
	}
	if logs[0].Meta["note"] != "water receded" {
		t.Fatalf("audit meta note = %v", logs[0].Meta["note"])
	}

	// Once resolved, the reporter can no longer self-close.
	inc2 := env.report(t, reporter, cat)
	for _, next := range []string{StatusAwaitingVerification, StatusVerified, StatusResolved} {
		if _, err := env.svc.UpdateStatus(context.Background(), admin, inc2.ID, next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	if _, err := env.svc.CloseByReporter(context.Background(), reporter, inc2.ID, "done"); apperr.KindOf(err) != apperr.KindInvalidTransition {
		t.Fatalf("close at RESOLVED should fail, got %v", err)
	}
}

func TestVerificationIsEvidentiaryOnly(t *testing.T) {
	env := newTestEnv(t)
	reporter := env.newUser(t, identity.RoleCivilian)
	volunteer := env.newUser(t, identity.RoleVolunteer)
	admin := env.newUser(t, identity.RoleAdmin)
	cat := env.newCategory(t, "Fire", true)
	inc := env.report(t, reporter, cat)

	if _, err := env.svc.RecordVerification(context.Background(), reporter, inc.ID, DecisionVerified, ""); apperr.KindOf(err) != apperr.KindNotAuthorized {
		t.Fatalf("civilian verification should be rejected, got %v", err)
	}

	v, err := env.svc.RecordVerification(context.Background(), volunteer, inc.ID, DecisionVerified, "confirmed on site")
	if err != nil {
		t.Fatalf("verification: %v", err)
	}
	if v.ID == 0 {
		t.Fatal("verification not persisted")
	}

	// The record alone never moves the incident.
	current, err := env.incidents.GetIncident(context.Background(), inc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if current.Status != StatusReported {
		t.Fatalf("status changed to %s by verification record", current.Status)
	}

	// After the admin resolves the incident, verification closes.
	for _, next := range []string{StatusAwaitingVerification, StatusVerified} {
		if _, err := env.svc.UpdateStatus(context.Background(), admin, inc.ID, next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	if _, err := env.svc.RecordVerification(context.Background(), volunteer, inc.ID, DecisionVerified, ""); apperr.CodeOf(err) != "INCIDENT_NOT_VERIFIABLE" {
		t.Fatalf("verification at VERIFIED should fail, got %v", err)
	}
}

func TestConcurrentTransitionConflict(t *testing.T) {
	env := newTestEnv(t)
	reporter := env.newUser(t, identity.RoleCivilian)
	cat := env.newCategory(t, "Flood", true)
	inc := env.report(t, reporter, cat)

	// First writer wins.
	if _, err := env.incidents.TransitionIncident(context.Background(), inc.ID, StatusReported, StatusAwaitingVerification, nil); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	// Second writer raced on the same prior status and loses.
	_, err := env.incidents.TransitionIncident(context.Background(), inc.ID, StatusReported, StatusClosed, nil)
	if err != store.ErrConflict {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestMediaCap(t *testing.T) {
	env := newTestEnv(t)
	actor := env.newUser(t, identity.RoleCivilian)
	cat := env.newCategory(t, "Fire", true)

	var media []MediaInput
	for i := 0; i < 6; i++ {
		media = append(media, MediaInput{URL: "https://cdn.example.com/a.jpg", MediaType: "IMAGE"})
	}
	_, err := env.svc.Create(context.Background(), actor, CreateInput{
		Title: "too many attachments", CategoryID: cat, Latitude: 1, Longitude: 1, Media: media,
	})
	if apperr.KindOf(err) != apperr.KindValidationFailed {
		t.Fatalf("expected validation failure, got %v", err)
	}
}
