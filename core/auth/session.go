package auth

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"

	"aegis-ecc/config"
	"aegis-ecc/core/store"
	"aegis-ecc/core/utils"
)

type contextKey string

// SessionContextKey carries the *Session through request contexts.
const SessionContextKey contextKey = "aegis.session"

// Session is the in-memory view of an authenticated session handed to the
// HTTP layer.
type Session struct {
	ID        string
	UserID    int64
	Role      string
	CSRFToken string
}

type SessionManager struct {
	store  store.SessionStore
	cfg    *config.AppConfig
	logger *utils.Logger
}

func NewSessionManager(store store.SessionStore, cfg *config.AppConfig, logger *utils.Logger) *SessionManager {
	return &SessionManager{store: store, cfg: cfg, logger: logger}
}

func (m *SessionManager) Create(ctx context.Context, user *store.User) (*Session, error) {
	id := uuid.Must(uuid.NewV4()).String()
	csrf, err := utils.RandString(32)
	if err != nil {
		return nil, err
	}
	now := utils.NowUTC()
	ttl := m.cfg.EffectiveSessionTTL()
	rec := &store.SessionRecord{
		ID:         id,
		UserID:     user.ID,
		Role:       user.Role,
		CSRFToken:  csrf,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := m.store.SaveSession(ctx, rec); err != nil {
		return nil, err
	}
	return &Session{ID: id, UserID: user.ID, Role: user.Role, CSRFToken: csrf}, nil
}

// Lookup resolves a session id to a live session, nil when unknown or
// expired.
func (m *SessionManager) Lookup(ctx context.Context, sessID string) (*Session, error) {
	rec, err := m.store.GetSession(ctx, sessID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	return &Session{ID: rec.ID, UserID: rec.UserID, Role: rec.Role, CSRFToken: rec.CSRFToken}, nil
}

func (m *SessionManager) Refresh(ctx context.Context, sessID string) error {
	return m.store.UpdateActivity(ctx, sessID, utils.NowUTC(), m.cfg.EffectiveSessionTTL())
}

// Rotate replaces a session with a fresh id, keeping the user identity.
// Used after privilege changes so old ids stop working.
func (m *SessionManager) Rotate(ctx context.Context, sessID string) (*Session, error) {
	old, err := m.store.GetSession(ctx, sessID)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, errors.New("session not found")
	}
	_ = m.store.DeleteSession(ctx, sessID)
	return m.Create(ctx, &store.User{ID: old.UserID, Role: old.Role})
}

func (m *SessionManager) Delete(ctx context.Context, sessID string) error {
	return m.store.DeleteSession(ctx, sessID)
}

func (m *SessionManager) DeleteAllForUser(ctx context.Context, userID int64) error {
	return m.store.DeleteAllForUser(ctx, userID)
}
