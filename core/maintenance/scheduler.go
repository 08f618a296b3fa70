// Package maintenance runs the periodic housekeeping pass: expired session
// cleanup and stale-verification reminders for incidents nobody has picked
// up.
package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"aegis-ecc/config"
	"aegis-ecc/core/incidents"
	"aegis-ecc/core/store"
	"aegis-ecc/core/utils"
)

const ActionStaleFlagged = "INCIDENT_VERIFICATION_STALE"

// systemActor tags audit rows written by the worker itself.
const systemActor int64 = 0

const staleBatchSize = 100

type Worker struct {
	cfg       config.MaintenanceConfig
	sessions  store.SessionStore
	incidents store.IncidentsStore
	audit     store.AuditStore
	logger    *utils.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

func NewWorker(cfg config.MaintenanceConfig, sessions store.SessionStore, incidentsStore store.IncidentsStore, audit store.AuditStore, logger *utils.Logger) *Worker {
	return &Worker{
		cfg:       cfg,
		sessions:  sessions,
		incidents: incidentsStore,
		audit:     audit,
		logger:    logger,
	}
}

// Start schedules the housekeeping run. Safe to call on a disabled worker.
func (w *Worker) Start(ctx context.Context) error {
	if w == nil || !w.cfg.Enabled {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cron != nil {
		return nil
	}
	c := cron.New()
	spec := w.cfg.Schedule
	if spec == "" {
		spec = "@every 10m"
	}
	if _, err := c.AddFunc(spec, func() {
		if err := w.RunOnce(ctx, time.Now().UTC()); err != nil {
			w.logger.Errorf("maintenance run failed: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("maintenance schedule %q: %w", spec, err)
	}
	c.Start()
	w.cron = c
	w.logger.Printf("maintenance worker started (%s)", spec)
	return nil
}

// Stop halts the schedule and waits for an in-flight run to finish.
func (w *Worker) Stop(ctx context.Context) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	c := w.cron
	w.cron = nil
	w.mu.Unlock()
	if c == nil {
		return nil
	}
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce executes one housekeeping pass. Exposed so tests and operators
// can trigger it directly.
func (w *Worker) RunOnce(ctx context.Context, now time.Time) error {
	purged, err := w.sessions.PurgeExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("purge sessions: %w", err)
	}
	if purged > 0 {
		w.logger.Printf("purged %d expired sessions", purged)
	}
	return w.flagStaleVerifications(ctx, now)
}

// flagStaleVerifications writes an audit reminder for incidents stuck in
// AWAITING_VERIFICATION past the configured window. The incident itself is
// not touched; an administrator decides what happens next.
func (w *Worker) flagStaleVerifications(ctx context.Context, now time.Time) error {
	window := w.cfg.StaleVerification
	if window <= 0 {
		return nil
	}
	cutoff := now.Add(-window)
	stale, err := w.incidents.ListStaleByStatus(ctx, incidents.StatusAwaitingVerification, cutoff, staleBatchSize)
	if err != nil {
		return fmt.Errorf("list stale incidents: %w", err)
	}
	for i := range stale {
		id := stale[i].ID
		rec := &store.AuditRecord{
			ActorID:    systemActor,
			Action:     ActionStaleFlagged,
			EntityType: "INCIDENT",
			EntityID:   &id,
			Meta:       map[string]any{"awaiting_since": stale[i].UpdatedAt.Format(time.RFC3339)},
		}
		if err := w.audit.Record(ctx, rec); err != nil {
			return fmt.Errorf("flag incident %d: %w", id, err)
		}
	}
	if len(stale) > 0 {
		w.logger.Warnf("%d incidents awaiting verification past %s", len(stale), window)
	}
	return nil
}
