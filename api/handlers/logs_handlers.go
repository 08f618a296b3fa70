package handlers

import (
	"net/http"
	"strings"
	"time"

	"aegis-ecc/core/store"
)

type LogsHandler struct {
	audits store.AuditStore
}

func NewLogsHandler(audits store.AuditStore) *LogsHandler {
	return &LogsHandler{audits: audits}
}

func (h *LogsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.audits == nil {
		writeJSON(w, http.StatusOK, map[string]any{"items": []store.AuditRecord{}})
		return
	}
	filter := parseAuditFilter(r)
	items, err := h.audits.List(r.Context(), filter)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func parseAuditFilter(r *http.Request) store.AuditFilter {
	q := r.URL.Query()
	filter := store.AuditFilter{
		EntityType: strings.ToUpper(strings.TrimSpace(q.Get("entity_type"))),
		EntityID:   int64(parseIntDefault(q.Get("entity_id"), 0)),
		ActorID:    int64(parseIntDefault(q.Get("actor_id"), 0)),
		Action:     strings.ToUpper(strings.TrimSpace(q.Get("action"))),
		Limit:      parseIntDefault(q.Get("limit"), 200),
		Offset:     parseIntDefault(q.Get("offset"), 0),
	}
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 200
	}
	if raw := strings.TrimSpace(q.Get("since")); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.Since = parsed.UTC()
		}
	}
	return filter
}
