package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"aegis-ecc/config"
	"aegis-ecc/core/applications"
	"aegis-ecc/core/auth"
	"aegis-ecc/core/incidents"
	"aegis-ecc/core/missions"
	"aegis-ecc/core/profiles"
	"aegis-ecc/core/rbac"
	"aegis-ecc/core/store"
	"aegis-ecc/core/utils"
)

func newTestServer(t *testing.T) (*Server, http.Handler) {
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

	usersStore := store.NewUsersStore(db)
	sessionsStore := store.NewSessionsStore(db)
	refsStore := store.NewRefsStore(db)
	incidentsStore := store.NewIncidentsStore(db)
	missionsStore := store.NewMissionsStore(db)
	applicationsStore := store.NewApplicationsStore(db)
	profilesStore := store.NewProfilesStore(db)
	auditStore := store.NewAuditStore(db)

	policy, err := rbac.DefaultPolicy()
	if err != nil {
		t.Fatalf("rbac: %v", err)
	}
	s := NewServer(ServerDeps{
		Cfg:             cfg,
		Logger:          logger,
		Users:           usersStore,
		Refs:            refsStore,
		Audits:          auditStore,
		SessionManager:  auth.NewSessionManager(sessionsStore, cfg, logger),
		Policy:          policy,
		IncidentsSvc:    incidents.NewService(incidentsStore, refsStore, cfg, logger),
		MissionsSvc:     missions.NewService(missionsStore, incidentsStore, applicationsStore, usersStore, cfg, logger),
		ApplicationsSvc: applications.NewService(applicationsStore, refsStore, usersStore, profilesStore, logger),
		ProfilesSvc:     profiles.NewService(profilesStore, applicationsStore, cfg, logger),
	})
	return s, s.Routes()
}

type authedClient struct {
	sessionCookie *http.Cookie
	csrf          string
}

func registerAndLogin(t *testing.T, h http.Handler, email string) *authedClient {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"name": "Test User", "email": email, "password": "hunter2hunter2"})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("register status = %d: %s", rr.Code, rr.Body.String())
	}

	body, _ = json.Marshal(map[string]string{"email": email, "password": "hunter2hunter2"})
	req = httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rr.Code, rr.Body.String())
	}
	var loginResp struct {
		CSRF string `json:"csrf"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &loginResp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	client := &authedClient{csrf: loginResp.CSRF}
	for _, c := range rr.Result().Cookies() {
		if c.Name == "aegis_session" {
			client.sessionCookie = c
		}
	}
	if client.sessionCookie == nil || client.csrf == "" {
		t.Fatalf("login did not establish session: cookie=%v csrf=%q", client.sessionCookie, client.csrf)
	}
	return client
}

func (c *authedClient) do(h http.Handler, method, path string, payload any, withCSRF bool) *httptest.ResponseRecorder {
	var body *bytes.Reader
	if payload != nil {
		b, _ := json.Marshal(payload)
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.AddCookie(c.sessionCookie)
	if withCSRF {
		req.Header.Set("X-CSRF-Token", c.csrf)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	_, h := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/incidents", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestSessionFlowAndCSRF(t *testing.T) {
	_, h := newTestServer(t)
	client := registerAndLogin(t, h, "civ@example.com")

	rr := client.do(h, http.MethodGet, "/api/auth/me", nil, false)
	if rr.Code != http.StatusOK {
		t.Fatalf("me status = %d: %s", rr.Code, rr.Body.String())
	}

	// State-changing requests need the CSRF header.
	payload := map[string]any{"title": "Road washed out", "category_id": 1, "latitude": 1.0, "longitude": 1.0}
	rr = client.do(h, http.MethodPost, "/api/incidents", payload, false)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("missing csrf should be 403, got %d", rr.Code)
	}
	// With the header the request reaches the handler (and fails on the
	// unknown category instead).
	rr = client.do(h, http.MethodPost, "/api/incidents", payload, true)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 CATEGORY_NOT_FOUND, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCivilianCannotReachAdminRoutes(t *testing.T) {
	_, h := newTestServer(t)
	client := registerAndLogin(t, h, "civ2@example.com")

	rr := client.do(h, http.MethodPost, "/api/missions", map[string]any{"incident_id": 1, "leader_id": 1}, true)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("civilian mission dispatch should be 403, got %d", rr.Code)
	}
	rr = client.do(h, http.MethodGet, "/api/logs", nil, false)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("civilian audit view should be 403, got %d", rr.Code)
	}
	// Routes in the civilian grant stay open.
	rr = client.do(h, http.MethodGet, "/api/incidents", nil, false)
	if rr.Code != http.StatusOK {
		t.Fatalf("civilian incident list should be 200, got %d", rr.Code)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	_, h := newTestServer(t)
	client := registerAndLogin(t, h, "civ3@example.com")

	rr := client.do(h, http.MethodPost, "/api/auth/logout", nil, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("logout status = %d", rr.Code)
	}
	rr = client.do(h, http.MethodGet, "/api/auth/me", nil, false)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("session should be gone after logout, got %d", rr.Code)
	}
}

func TestRequirePermissionDeniesMissingPermission(t *testing.T) {
	policy, err := rbac.DefaultPolicy()
	if err != nil {
		t.Fatalf("rbac: %v", err)
	}
	s := &Server{policy: policy, logger: utils.NewSilentLogger()}
	handler := s.requirePermission(rbac.PermMissionsDispatch)(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodPost, "/api/missions", nil)
	req = req.WithContext(context.WithValue(req.Context(), auth.SessionContextKey, &auth.Session{UserID: 7, Role: "VOLUNTEER"}))
	rr := httptest.NewRecorder()
	handler(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected forbidden, got %d", rr.Code)
	}
}
