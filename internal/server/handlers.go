package server

import (
	"encoding/json"
	"net/http"

	"github.com/joshp123/purehome/internal/core"
)

// HealthHandler returns a simple OK for liveness checks.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// RegistryListHandler serves plugin summaries as JSON.
func RegistryListHandler(registry *core.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"plugins": registry.List()})
	})
}

// RegistryDescribeHandler serves one plugin descriptor as JSON.
func RegistryDescribeHandler(registry *core.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		descriptor := registry.Describe(r.PathValue("plugin"))
		if descriptor == nil {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, descriptor)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
