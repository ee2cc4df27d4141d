// Package metrics exposes Prometheus metrics for the issuance pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds issuance pipeline metrics.
type Metrics struct {
	requests       *prometheus.CounterVec
	duration       prometheus.Histogram
	idempotentHits prometheus.Counter
	persistRetries prometheus.Counter
}

// New creates and registers issuance metrics on the default registerer.
func New() *Metrics {
	return &Metrics{
		requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certgate_issuance_requests_total",
			Help: "Issuance requests by final decision and policy",
		}, []string{"decision", "policy"}),
		duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "certgate_issuance_duration_seconds",
			Help:    "End-to-end latency of issuance requests",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		idempotentHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "certgate_issuance_idempotent_hits_total",
			Help: "Requests answered from an already-issued certificate",
		}),
		persistRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "certgate_issuance_persist_retries_total",
			Help: "Retried certificate persistence attempts",
		}),
	}
}

// ObserveRequest records one finished issuance request.
func (m *Metrics) ObserveRequest(decision, policy string, elapsed time.Duration) {
	m.requests.WithLabelValues(decision, policy).Inc()
	m.duration.Observe(elapsed.Seconds())
}

// ObserveIdempotentHit records a request served from the store.
func (m *Metrics) ObserveIdempotentHit() {
	m.idempotentHits.Inc()
}

// ObservePersistRetry records a retried persistence attempt.
func (m *Metrics) ObservePersistRetry() {
	m.persistRetries.Inc()
}
