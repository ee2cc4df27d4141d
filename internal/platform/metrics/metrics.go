// Package metrics holds process-level Prometheus metrics shared across
// transport handlers. Domain packages carry their own metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds HTTP-level instrumentation.
type Metrics struct {
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge
}

// New creates and registers all transport metrics.
func New() *Metrics {
	return &Metrics{
		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certgate_http_request_duration_seconds",
			Help:    "HTTP request latency by method and path pattern",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		requestsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "certgate_http_requests_in_flight",
			Help: "HTTP requests currently being served",
		}),
	}
}

// Latency tracks request duration and in-flight count. The path label is
// the chi route pattern, not the raw URL, to bound cardinality.
func Latency(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.requestsInFlight.Inc()
			defer m.requestsInFlight.Dec()
			start := time.Now()
			next.ServeHTTP(w, r)
			pattern := chi.RouteContext(r.Context()).RoutePattern()
			if pattern == "" {
				pattern = "unmatched"
			}
			m.requestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
		})
	}
}
