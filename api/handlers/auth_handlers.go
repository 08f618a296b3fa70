package handlers

import (
	"net/http"
	"strings"
	"time"

	"aegis-ecc/config"
	"aegis-ecc/core/apperr"
	"aegis-ecc/core/auth"
	"aegis-ecc/core/identity"
	"aegis-ecc/core/store"
	"aegis-ecc/core/utils"
)

const (
	SessionCookie = "aegis_session"
	CSRFCookie    = "aegis_csrf"
)

type AuthHandler struct {
	cfg      *config.AppConfig
	users    store.UsersStore
	sessions *auth.SessionManager
	audits   store.AuditStore
	logger   *utils.Logger
}

func NewAuthHandler(cfg *config.AppConfig, users store.UsersStore, sessions *auth.SessionManager, audits store.AuditStore, logger *utils.Logger) *AuthHandler {
	return &AuthHandler{cfg: cfg, users: users, sessions: sessions, audits: audits, logger: logger}
}

type registerPayload struct {
	Name     string `json:"name" validate:"required,min=2,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload registerPayload
	if err := decodeValid(r, &payload); err != nil {
		writeAppError(w, err)
		return
	}
	existing, err := h.users.FindByEmail(r.Context(), payload.Email)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if existing != nil {
		writeAppError(w, apperr.New(apperr.KindConflict, "EMAIL_TAKEN", "An account with this email already exists."))
		return
	}
	hash, err := store.HashPassword(payload.Password, h.cfg.Pepper)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	user := &store.User{
		Name:         strings.TrimSpace(payload.Name),
		Email:        payload.Email,
		PasswordHash: hash,
		Role:         identity.RoleCivilian,
		Active:       true,
	}
	if _, err := h.users.Create(r.Context(), user); err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	_ = h.audits.Record(r.Context(), &store.AuditRecord{
		ActorID:    user.ID,
		Action:     "USER_REGISTERED",
		EntityType: "USER",
		EntityID:   &user.ID,
	})
	h.logger.Printf("user %d registered", user.ID)
	writeJSON(w, http.StatusCreated, user)
}

type loginPayload struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload loginPayload
	if err := decodeValid(r, &payload); err != nil {
		writeAppError(w, err)
		return
	}
	user, err := h.users.FindByEmail(r.Context(), payload.Email)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if user == nil || !user.Active || !store.CheckPassword(user.PasswordHash, payload.Password, h.cfg.Pepper) {
		h.logger.Warnf("login failed for %s", payload.Email)
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	sess, err := h.sessions.Create(r.Context(), user)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	h.setSessionCookies(w, sess)
	writeJSON(w, http.StatusOK, map[string]any{
		"user": user,
		"csrf": sess.CSRFToken,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sess := currentSession(r); sess != nil {
		_ = h.sessions.Delete(r.Context(), sess.ID)
	}
	h.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	if sess == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	user, err := h.users.Get(r.Context(), sess.UserID)
	if err != nil || user == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user": user,
		"csrf": sess.CSRFToken,
	})
}

func (h *AuthHandler) setSessionCookies(w http.ResponseWriter, sess *auth.Session) {
	ttl := h.cfg.EffectiveSessionTTL()
	expires := time.Now().UTC().Add(ttl)
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.ID,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookie,
		Value:    sess.CSRFToken,
		Path:     "/",
		Expires:  expires,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{SessionCookie, CSRFCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:    name,
			Value:   "",
			Path:    "/",
			Expires: time.Unix(0, 0),
			MaxAge:  -1,
		})
	}
}
