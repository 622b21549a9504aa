package router

import (
	"net/http"

	"github.com/joshp123/purehome/internal/core"
	"github.com/joshp123/purehome/internal/server"
)

// RegisterPlugins mounts the registry endpoints and every plugin's
// HTTP surface on the shared mux.
func RegisterPlugins(mux *http.ServeMux, registry *core.Registry, plugins []core.Plugin) {
	mux.Handle("GET /api/plugins", server.RegistryListHandler(registry))
	mux.Handle("GET /api/plugins/{plugin}", server.RegistryDescribeHandler(registry))

	for _, p := range plugins {
		p.RegisterHTTP(mux)
	}
}
