// Package metrics exposes Prometheus metrics for the validation pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds validation pipeline metrics.
type Metrics struct {
	outcomes   *prometheus.CounterVec
	verdicts   *prometheus.CounterVec
	evaluation prometheus.Histogram
}

// New creates and registers validation metrics on the default registerer.
func New() *Metrics {
	return &Metrics{
		outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certgate_validator_outcomes_total",
			Help: "Validator outcomes by validator name and status",
		}, []string{"validator", "status"}),
		verdicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certgate_verdicts_total",
			Help: "Pipeline verdicts by decision",
		}, []string{"decision"}),
		evaluation: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "certgate_evaluation_duration_seconds",
			Help:    "Time spent evaluating a full validator chain",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// ObserveOutcome records one validator outcome.
func (m *Metrics) ObserveOutcome(validator, status string) {
	m.outcomes.WithLabelValues(validator, status).Inc()
}

// ObserveEvaluation records a full chain evaluation.
func (m *Metrics) ObserveEvaluation(accepted bool, d time.Duration) {
	decision := "reject"
	if accepted {
		decision = "accept"
	}
	m.verdicts.WithLabelValues(decision).Inc()
	m.evaluation.Observe(d.Seconds())
}
