package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aegis-ecc/api"
	"aegis-ecc/config"
	"aegis-ecc/core/applications"
	"aegis-ecc/core/auth"
	"aegis-ecc/core/incidents"
	"aegis-ecc/core/maintenance"
	"aegis-ecc/core/missions"
	"aegis-ecc/core/profiles"
	"aegis-ecc/core/rbac"
	"aegis-ecc/core/store"
	"aegis-ecc/core/utils"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to configuration file")
	flag.Parse()

	logger := utils.NewLogger()
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Errorf("load config: %v", err)
		os.Exit(1)
	}

	db, err := store.NewDB(cfg, logger)
	if err != nil {
		logger.Errorf("open database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	if err := store.ApplyMigrations(ctx, db, cfg.DBDriver, logger); err != nil {
		logger.Errorf("migrate: %v", err)
		os.Exit(1)
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
		logger.Errorf("rbac: %v", err)
		os.Exit(1)
	}

	sessionManager := auth.NewSessionManager(sessionsStore, cfg, logger)
	incidentsSvc := incidents.NewService(incidentsStore, refsStore, cfg, logger)
	missionsSvc := missions.NewService(missionsStore, incidentsStore, applicationsStore, usersStore, cfg, logger)
	applicationsSvc := applications.NewService(applicationsStore, refsStore, usersStore, profilesStore, logger)
	profilesSvc := profiles.NewService(profilesStore, applicationsStore, cfg, logger)

	worker := maintenance.NewWorker(cfg.Maintenance, sessionsStore, incidentsStore, auditStore, logger)
	if err := worker.Start(ctx); err != nil {
		logger.Errorf("maintenance: %v", err)
		os.Exit(1)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = worker.Stop(stopCtx)
	}()

	server := api.NewServer(api.ServerDeps{
		Cfg:             cfg,
		Logger:          logger,
		Users:           usersStore,
		Refs:            refsStore,
		Audits:          auditStore,
		SessionManager:  sessionManager,
		Policy:          policy,
		IncidentsSvc:    incidentsSvc,
		MissionsSvc:     missionsSvc,
		ApplicationsSvc: applicationsSvc,
		ProfilesSvc:     profilesSvc,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		logger.Errorf("server: %v", err)
		os.Exit(1)
	case sig := <-sigCh:
		logger.Printf("received %s, shutting down", sig)
	}
}
