// Package httptransport assembles the HTTP surface: shared middleware,
// domain handlers, health, and metrics.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"certgate/internal/platform/metrics"
	"certgate/internal/platform/middleware"
)

// Registrar is a domain handler that mounts its own routes.
type Registrar interface {
	Register(r chi.Router)
}

// Config tunes router-level behavior.
type Config struct {
	RequestTimeout time.Duration
}

// NewRouter builds the full route tree. Handlers own their routes and
// authentication; the router owns the ambient middleware chain.
func NewRouter(logger *slog.Logger, m *metrics.Metrics, cfg Config, handlers ...Registrar) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	if m != nil {
		r.Use(metrics.Latency(m))
	}

	r.Get("/healthz", handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	for _, h := range handlers {
		h.Register(r)
	}
	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
