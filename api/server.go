package api

import (
	"net/http"

	"aegis-ecc/api/handlers"
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

type Server struct {
	cfg      *config.AppConfig
	logger   *utils.Logger
	users    store.UsersStore
	sessions *auth.SessionManager
	policy   *rbac.Policy
	audits   store.AuditStore

	authHandler         *handlers.AuthHandler
	refsHandler         *handlers.RefsHandler
	incidentsHandler    *handlers.IncidentsHandler
	missionsHandler     *handlers.MissionsHandler
	applicationsHandler *handlers.ApplicationsHandler
	profilesHandler     *handlers.ProfilesHandler
	logsHandler         *handlers.LogsHandler
}

type ServerDeps struct {
	Cfg             *config.AppConfig
	Logger          *utils.Logger
	Users           store.UsersStore
	Refs            store.RefsStore
	Audits          store.AuditStore
	SessionManager  *auth.SessionManager
	Policy          *rbac.Policy
	IncidentsSvc    *incidents.Service
	MissionsSvc     *missions.Service
	ApplicationsSvc *applications.Service
	ProfilesSvc     *profiles.Service
}

func NewServer(deps ServerDeps) *Server {
	return &Server{
		cfg:                 deps.Cfg,
		logger:              deps.Logger,
		users:               deps.Users,
		sessions:            deps.SessionManager,
		policy:              deps.Policy,
		audits:              deps.Audits,
		authHandler:         handlers.NewAuthHandler(deps.Cfg, deps.Users, deps.SessionManager, deps.Audits, deps.Logger),
		refsHandler:         handlers.NewRefsHandler(deps.Refs, deps.Audits, deps.Logger),
		incidentsHandler:    handlers.NewIncidentsHandler(deps.IncidentsSvc, deps.Logger),
		missionsHandler:     handlers.NewMissionsHandler(deps.MissionsSvc, deps.Logger),
		applicationsHandler: handlers.NewApplicationsHandler(deps.ApplicationsSvc, deps.Logger),
		profilesHandler:     handlers.NewProfilesHandler(deps.ProfilesSvc, deps.Logger),
		logsHandler:         handlers.NewLogsHandler(deps.Audits),
	}
}

func (s *Server) ListenAndServe() error {
	addr := s.cfg.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	s.logger.Printf("listening on %s", addr)
	return http.ListenAndServe(addr, s.Routes())
}
