package api

import (
	"context"
	"net/http"

	"github.com/sentinelai/sentinel/internal/auth"
	"github.com/sentinelai/sentinel/internal/logging"
	"github.com/sentinelai/sentinel/internal/metrics"
	"github.com/sentinelai/sentinel/internal/observability"
)

// ReadinessChecker reports store reachability; the Postgres store satisfies it.
type ReadinessChecker interface {
	Ping(ctx context.Context) error
}

// SystemHandler serves the probe endpoints shared by every surface.
type SystemHandler struct {
	Service string
	Checker ReadinessChecker
}

// RegisterRoutes mounts the probes and the metrics endpoint.
func (h *SystemHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)
	mux.Handle("GET /metrics", metrics.Handler())
}

// Health handles GET /health.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": h.Service})
}

// Ready handles GET /ready: 503 until the store answers.
func (h *SystemHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.Checker != nil {
		if err := h.Checker.Ping(r.Context()); err != nil {
			logging.Op().Error("readiness check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "store not reachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// NewServer assembles an HTTP server with the shared middleware chain:
// request id, tracing, then auth.
func NewServer(addr string, mux *http.ServeMux, authCfg auth.Config) *http.Server {
	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = observability.HTTPMiddleware(handler)
	handler = observability.RequestIDMiddleware(handler)

	return &http.Server{Addr: addr, Handler: handler}
}
