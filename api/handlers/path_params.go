package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

func urlParam(r *http.Request, key string) string {
	if v := chi.URLParam(r, key); v != "" {
		return v
	}
	if key != "id" {
		return ""
	}
	// Fallback for direct handler tests without chi route context.
	segments := strings.Split(strings.Trim(strings.TrimSpace(r.URL.Path), "/"), "/")
	for i := 0; i < len(segments)-1; i++ {
		switch segments[i] {
		case "incidents", "missions", "applications", "categories", "agencies", "users":
			if strings.TrimSpace(segments[i+1]) != "" {
				return segments[i+1]
			}
		}
	}
	return ""
}

func pathID(r *http.Request, key string) int64 {
	id, _ := strconv.ParseInt(urlParam(r, key), 10, 64)
	return id
}
