package api

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"aegis-ecc/api/handlers"
	"aegis-ecc/core/auth"
	"aegis-ecc/core/rbac"
)

const sessionActivityInterval = 30 * time.Second

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Errorf("PANIC %s %s: %v\n%s", r.Method, r.URL.Path, rec, string(debug.Stack()))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		user := int64(0)
		if v := r.Context().Value(auth.SessionContextKey); v != nil {
			if sess, ok := v.(*auth.Session); ok {
				user = sess.UserID
			}
		}
		s.logger.Printf("RESP %s %s user=%d status=%d dur=%s bytes=%d", r.Method, r.URL.Path, user, rec.status, time.Since(start), rec.size)
	})
}

// withSession resolves the session cookie, enforces CSRF on state-changing
// methods and refreshes session activity.
func (s *Server) withSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(handlers.SessionCookie)
		if err != nil || cookie.Value == "" {
			s.logger.Printf("AUTH fail (missing cookie) %s %s", r.Method, r.URL.Path)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		sess, err := s.sessions.Lookup(r.Context(), cookie.Value)
		if err != nil || sess == nil {
			s.logger.Printf("AUTH fail (session not found) %s %s", r.Method, r.URL.Path)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		user, err := s.users.Get(r.Context(), sess.UserID)
		if err != nil || user == nil || !user.Active {
			_ = s.sessions.Delete(r.Context(), sess.ID)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		// Role changes (e.g. volunteer promotion) take effect on the next
		// request without a fresh login.
		sess.Role = user.Role
		if r.Method != http.MethodGet && r.Method != http.MethodHead && r.Method != http.MethodOptions {
			csrfHeader := r.Header.Get("X-CSRF-Token")
			if csrfHeader == "" || csrfHeader != sess.CSRFToken {
				s.logger.Printf("AUTH fail (csrf) %s %s user=%d", r.Method, r.URL.Path, sess.UserID)
				http.Error(w, "csrf invalid", http.StatusForbidden)
				return
			}
		}
		_ = s.sessions.Refresh(r.Context(), sess.ID)
		ctx := context.WithValue(r.Context(), auth.SessionContextKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

func (s *Server) requirePermission(perm rbac.Permission) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			val := r.Context().Value(auth.SessionContextKey)
			if val == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			sess := val.(*auth.Session)
			if !s.policy.Allowed([]string{sess.Role}, perm) {
				s.logger.Printf("PERM fail %s %s user=%d role=%s need=%s", r.Method, r.URL.Path, sess.UserID, sess.Role, perm)
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		}
	}
}
