// Package api exposes the bridge HTTP surface: tool discovery and invocation
// translated into session calls, plus lifecycle and health endpoints.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gaspardpetit/mcp-bridge/internal/config"
	"github.com/gaspardpetit/mcp-bridge/internal/session"
)

// NewRouter builds the bridge HTTP handler around an injected session.
// serveMetrics mounts /metrics here when no dedicated metrics listener runs.
func NewRouter(sess *session.Session, cfg config.BridgeConfig, serveMetrics bool) http.Handler {
	r := chi.NewRouter()
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}))
	}
	for _, m := range middlewareChain() {
		r.Use(m)
	}

	h := &handlers{sess: sess, configured: len(cfg.Servers) > 0}
	r.Get("/", h.root)
	r.Get("/health", h.health)
	r.Get("/status", h.status)
	r.Get("/tools", h.listTools)
	r.Post("/tools/call", h.callTool)
	r.Post("/mcp/request", h.rawRequest)
	r.Post("/connect", h.connect)
	r.Post("/disconnect", h.disconnect)

	if serveMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}
	return r
}
