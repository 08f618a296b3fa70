package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"aegis-ecc/core/apperr"
	"aegis-ecc/core/auth"
	"aegis-ecc/core/identity"
)

var validate = validator.New()

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeAppError maps an engine error to its transport shape. Unknown
// errors stay opaque.
func writeAppError(w http.ResponseWriter, err error) {
	var e *apperr.Error
	if errors.As(err, &e) {
		writeJSON(w, e.Kind.HTTPStatus(), map[string]any{
			"error": map[string]string{
				"code":    e.Code,
				"kind":    e.Kind.String(),
				"message": e.Message,
			},
		})
		return
	}
	http.Error(w, "server error", http.StatusInternalServerError)
}

// decodeValid decodes a JSON body into dst and runs struct validation.
func decodeValid(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation("Request body is not valid JSON.")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return apperr.Validation("Invalid value for field " + verrs[0].Field() + ".")
		}
		return apperr.Validation("Request validation failed.")
	}
	return nil
}

func currentSession(r *http.Request) *auth.Session {
	if v := r.Context().Value(auth.SessionContextKey); v != nil {
		if sess, ok := v.(*auth.Session); ok {
			return sess
		}
	}
	return nil
}

func currentActor(r *http.Request) (identity.Actor, bool) {
	sess := currentSession(r)
	if sess == nil {
		return identity.Actor{}, false
	}
	return identity.Actor{UserID: sess.UserID, Role: sess.Role}, true
}

func parseIntDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
