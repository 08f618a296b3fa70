package missions

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"aegis-ecc/config"
	"aegis-ecc/core/apperr"
	"aegis-ecc/core/identity"
	"aegis-ecc/core/incidents"
	"aegis-ecc/core/store"
	"aegis-ecc/core/utils"
)

type testEnv struct {
	svc          *Service
	incidentsSvc *incidents.Service
	missions     store.MissionsStore
	incidents    store.IncidentsStore
	applications store.ApplicationsStore
	users        store.UsersStore
	refs         store.RefsStore
	userSeq      int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.AppConfig{
		DBDriver:  "sqlite",
		DBPath:    filepath.Join(t.TempDir(), "test.db"),
		Incidents: config.IncidentsConfig{MaxMediaPerIncident: 5},
		Missions:  config.MissionsConfig{TrackingListLimit: 500},
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
		missions:     store.NewMissionsStore(db),
		incidents:    store.NewIncidentsStore(db),
		applications: store.NewApplicationsStore(db),
		users:        store.NewUsersStore(db),
		refs:         store.NewRefsStore(db),
	}
	env.svc = NewService(env.missions, env.incidents, env.applications, env.users, cfg, logger)
	env.incidentsSvc = incidents.NewService(env.incidents, env.refs, cfg, logger)
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

// newApprovedVolunteer creates a volunteer with an approved application,
// which is the dispatch qualification.
func (env *testEnv) newApprovedVolunteer(t *testing.T) identity.Actor {
	t.Helper()
	actor := env.newUser(t, identity.RoleVolunteer)
	agency := &store.Agency{Name: fmt.Sprintf("Agency %d", env.userSeq)}
	if _, err := env.refs.CreateAgency(context.Background(), agency); err != nil {
		t.Fatalf("create agency: %v", err)
	}
	app := &store.VolunteerApplication{UserID: actor.UserID, AgencyID: agency.ID, Status: "APPROVED"}
	if _, err := env.applications.CreateApplication(context.Background(), app, nil, nil); err != nil {
		t.Fatalf("create application: %v", err)
	}
	return actor
}

// verifiedIncident reports an incident and walks it to VERIFIED.
func (env *testEnv) verifiedIncident(t *testing.T, admin identity.Actor) *store.Incident {
	t.Helper()
	reporter := env.newUser(t, identity.RoleCivilian)
	cat := &store.IncidentCategory{Name: fmt.Sprintf("Category %d", env.userSeq), Active: true}
	if _, err := env.refs.CreateCategory(context.Background(), cat); err != nil {
		t.Fatalf("create category: %v", err)
	}
	inc, err := env.incidentsSvc.Create(context.Background(), reporter, incidents.CreateInput{
		Title: "Bridge collapse", CategoryID: cat.ID, Latitude: 23.7, Longitude: 90.4,
	})
	if err != nil {
		t.Fatalf("create incident: %v", err)
	}
	for _, next := range []string{incidents.StatusAwaitingVerification, incidents.StatusVerified} {
		if inc, err = env.incidentsSvc.UpdateStatus(context.Background(), admin, inc.ID, next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	return inc
}

func (env *testEnv) dispatch(t *testing.T, admin, leader identity.Actor, incidentID int64) *store.Mission {
	t.Helper()
	m, err := env.svc.Create(context.Background(), admin, CreateInput{
		IncidentID: incidentID, LeaderID: leader.UserID, MissionType: "RESCUE", Priority: "HIGH",
	})
	if err != nil {
		t.Fatalf("create mission: %v", err)
	}
	return m
}

func TestCreateRequiresVerifiedIncident(t *testing.T) {
	env := newTestEnv(t)
	admin := env.newUser(t, identity.RoleAdmin)
	leader := env.newApprovedVolunteer(t)
	reporter := env.newUser(t, identity.RoleCivilian)

	cat := &store.IncidentCategory{Name: "Fire", Active: true}
	if _, err := env.refs.CreateCategory(context.Background(), cat); err != nil {
		t.Fatalf("create category: %v", err)
	}
	inc, err := env.incidentsSvc.Create(context.Background(), reporter, incidents.CreateInput{
		Title: "Warehouse fire", CategoryID: cat.ID, Latitude: 1, Longitude: 1,
	})
	if err != nil {
		t.Fatalf("create incident: %v", err)
	}

	_, err = env.svc.Create(context.Background(), admin, CreateInput{IncidentID: inc.ID, LeaderID: leader.UserID})
	if apperr.CodeOf(err) != "INCIDENT_NOT_VERIFIED" {
		t.Fatalf("expected INCIDENT_NOT_VERIFIED, got %v", err)
	}
}

func TestCreateRequiresApprovedLeader(t *testing.T) {
	env := newTestEnv(t)
	admin := env.newUser(t, identity.RoleAdmin)
	inc := env.verifiedIncident(t, admin)
	unapproved := env.newUser(t, identity.RoleVolunteer)

	_, err := env.svc.Create(context.Background(), admin, CreateInput{IncidentID: inc.ID, LeaderID: unapproved.UserID})
	if apperr.CodeOf(err) != "NOT_AN_APPROVED_VOLUNTEER" {
		t.Fatalf("expected NOT_AN_APPROVED_VOLUNTEER, got %v", err)
	}
}

func TestCreateSingleActiveMission(t *testing.T) {
	env := newTestEnv(t)
	admin := env.newUser(t, identity.RoleAdmin)
	leader := env.newApprovedVolunteer(t)
	inc := env.verifiedIncident(t, admin)

	env.dispatch(t, admin, leader, inc.ID)
	_, err := env.svc.Create(context.Background(), admin, CreateInput{IncidentID: inc.ID, LeaderID: leader.UserID})
	if apperr.CodeOf(err) != "MISSION_ALREADY_ACTIVE" {
		t.Fatalf("expected MISSION_ALREADY_ACTIVE, got %v", err)
	}
}

func TestCreateSeedsLogsAndLeader(t *testing.T) {
	env := newTestEnv(t)
	admin := env.newUser(t, identity.RoleAdmin)
	leader := env.newApprovedVolunteer(t)
	inc := env.verifiedIncident(t, admin)
	m := env.dispatch(t, admin, leader, inc.ID)

	if m.Status != StatusAssigned {
		t.Fatalf("new mission status = %s", m.Status)
	}
	logs, err := env.missions.ListLogs(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 2 || logs[0].Action != LogCreated || logs[1].Action != LogAssigned {
		t.Fatalf("unexpected log transcript: %+v", logs)
	}
	got, err := env.missions.GetLeader(context.Background(), m.ID)
	if err != nil || got == nil || got.AssignedTo != leader.UserID {
		t.Fatalf("leader assignment missing: %+v (err %v)", got, err)
	}
}

func TestAdvanceChain(t *testing.T) {
	env := newTestEnv(t)
	admin := env.newUser(t, identity.RoleAdmin)
	leader := env.newApprovedVolunteer(t)
	inc := env.verifiedIncident(t, admin)
	m := env.dispatch(t, admin, leader, inc.ID)

	// Skipping a step is rejected.
	if _, err := env.svc.Advance(context.Background(), leader, m.ID, StatusEnRoute, ""); apperr.KindOf(err) != apperr.KindInvalidTransition {
		t.Fatalf("ASSIGNED -> EN_ROUTE should be invalid, got %v", err)
	}
	// An outsider cannot advance even along the chain.
	outsider := env.newApprovedVolunteer(t)
	if _, err := env.svc.Advance(context.Background(), outsider, m.ID, StatusAccepted, ""); apperr.CodeOf(err) != "TRANSITION_NOT_AUTHORIZED" {
		t.Fatalf("outsider advance should fail, got %v", err)
	}

	for _, next := range []string{StatusAccepted, StatusEnRoute, StatusOnSite, StatusCompleted} {
		updated, err := env.svc.Advance(context.Background(), leader, m.ID, next, "moving")
		if err != nil {
			t.Fatalf("advance to %s: %v", next, err)
		}
		if updated.Status != next {
			t.Fatalf("status = %s, want %s", updated.Status, next)
		}
	}

	final, _ := env.missions.GetMission(context.Background(), m.ID)
	if final.AcceptedAt == nil || final.OnSiteAt == nil || final.CompletedAt == nil {
		t.Fatalf("milestone timestamps not stamped: %+v", final)
	}
	logs, _ := env.missions.ListLogs(context.Background(), m.ID)
	want := []string{LogCreated, LogAssigned, StatusAccepted, StatusEnRoute, StatusOnSite, StatusCompleted}
	if len(logs) != len(want) {
		t.Fatalf("log entries = %d, want %d (2 seed + 4 transitions)", len(logs), len(want))
	}
	for i, action := range want {
		if logs[i].Action != action {
			t.Fatalf("log[%d].Action = %s, want %s", i, logs[i].Action, action)
		}
	}
}

func TestAdvanceConflictLosesRace(t *testing.T) {
	env := newTestEnv(t)
	admin := env.newUser(t, identity.RoleAdmin)
	leader := env.newApprovedVolunteer(t)
	inc := env.verifiedIncident(t, admin)
	m := env.dispatch(t, admin, leader, inc.ID)

	if _, err := env.missions.AdvanceMission(context.Background(), m.ID, StatusAssigned, StatusAccepted, nil, nil); err != nil {
		t.Fatalf("first advance: %v", err)
	}
	_, err := env.missions.AdvanceMission(context.Background(), m.ID, StatusAssigned, StatusAccepted, nil, nil)
	if err != store.ErrConflict {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestTrackingOnlyEnRoute(t *testing.T) {
	env := newTestEnv(t)
	admin := env.newUser(t, identity.RoleAdmin)
	leader := env.newApprovedVolunteer(t)
	inc := env.verifiedIncident(t, admin)
	m := env.dispatch(t, admin, leader, inc.ID)

	if _, err := env.svc.RecordTracking(context.Background(), leader, m.ID, 23.7, 90.4); apperr.CodeOf(err) != "TRACKING_NOT_EN_ROUTE" {
		t.Fatalf("tracking at ASSIGNED should fail, got %v", err)
	}

	for _, next := range []string{StatusAccepted, StatusEnRoute} {
		if _, err := env.svc.Advance(context.Background(), leader, m.ID, next, ""); err != nil {
			t.Fatalf("advance to %s: %v", next, err)
		}
	}
	if _, err := env.svc.RecordTracking(context.Background(), leader, m.ID, 23.7, 90.4); err != nil {
		t.Fatalf("tracking while EN_ROUTE: %v", err)
	}

	// Crew membership is required.
	stranger := env.newApprovedVolunteer(t)
	if _, err := env.svc.RecordTracking(context.Background(), stranger, m.ID, 23.7, 90.4); apperr.KindOf(err) != apperr.KindNotAuthorized {
		t.Fatalf("stranger tracking should fail, got %v", err)
	}

	points, err := env.svc.ListTracking(context.Background(), leader, m.ID)
	if err != nil || len(points) != 1 {
		t.Fatalf("tracking points = %d (err %v), want 1", len(points), err)
	}
}

func TestReportOnlyAfterCompletionAndOnce(t *testing.T) {
	env := newTestEnv(t)
	admin := env.newUser(t, identity.RoleAdmin)
	leader := env.newApprovedVolunteer(t)
	inc := env.verifiedIncident(t, admin)
	m := env.dispatch(t, admin, leader, inc.ID)

	report := ReportInput{Summary: "Two persons rescued", Casualties: 0}
	if _, err := env.svc.SubmitReport(context.Background(), leader, m.ID, report); apperr.CodeOf(err) != "MISSION_NOT_COMPLETED" {
		t.Fatalf("report before completion should fail, got %v", err)
	}

	for _, next := range []string{StatusAccepted, StatusEnRoute, StatusOnSite, StatusCompleted} {
		if _, err := env.svc.Advance(context.Background(), leader, m.ID, next, ""); err != nil {
			t.Fatalf("advance to %s: %v", next, err)
		}
	}
	if _, err := env.svc.SubmitReport(context.Background(), leader, m.ID, report); err != nil {
		t.Fatalf("report: %v", err)
	}
	if _, err := env.svc.SubmitReport(context.Background(), leader, m.ID, report); apperr.CodeOf(err) != "REPORT_ALREADY_EXISTS" {
		t.Fatalf("second report should fail, got %v", err)
	}

	got, err := env.svc.GetReport(context.Background(), admin, m.ID)
	if err != nil || got.Summary != "Two persons rescued" {
		t.Fatalf("get report: %+v (err %v)", got, err)
	}
}

func TestAssignMember(t *testing.T) {
	env := newTestEnv(t)
	admin := env.newUser(t, identity.RoleAdmin)
	leader := env.newApprovedVolunteer(t)
	member := env.newApprovedVolunteer(t)
	inc := env.verifiedIncident(t, admin)
	m := env.dispatch(t, admin, leader, inc.ID)

	if _, err := env.svc.AssignMember(context.Background(), admin, m.ID, member.UserID, ""); apperr.CodeOf(err) != "ASSIGNMENT_ROLE_REQUIRED" {
		t.Fatalf("empty role should fail, got %v", err)
	}
	// A second leader is rejected.
	if _, err := env.svc.AssignMember(context.Background(), admin, m.ID, member.UserID, RoleLeader); apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("second leader should conflict, got %v", err)
	}
	if _, err := env.svc.AssignMember(context.Background(), admin, m.ID, member.UserID, RoleMember); err != nil {
		t.Fatalf("assign member: %v", err)
	}
	crew, err := env.svc.ListAssignments(context.Background(), admin, m.ID)
	if err != nil || len(crew) != 2 {
		t.Fatalf("crew = %d (err %v), want 2", len(crew), err)
	}
}
