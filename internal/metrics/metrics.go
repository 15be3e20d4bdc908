// Package metrics holds the Prometheus instruments for import runs and the
// provider circuit breaker. All collectors register on the default registry
// and are served by the web package at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ImportRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showsync_import_runs_total",
			Help: "Import runs by final outcome",
		},
		[]string{"outcome"}, // "done", "failed", "skipped", "rejected"
	)

	ImportItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showsync_import_items_total",
			Help: "Remote events processed by reconciliation outcome",
		},
		[]string{"outcome"}, // "created", "updated", "skipped", "failed"
	)

	ImportDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "showsync_import_duration_seconds",
			Help:    "Wall time of completed import runs",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	ImportLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "showsync_import_last_success_timestamp_seconds",
			Help: "Unix time of the last run that reached DONE",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "showsync_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showsync_circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker by result",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showsync_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)

// RecordImportRun records one finished run. Item counters are added even
// for failed runs so partial progress stays visible.
func RecordImportRun(outcome string, elapsed time.Duration, created, updated, skipped, failed int) {
	ImportRuns.WithLabelValues(outcome).Inc()
	ImportItems.WithLabelValues("created").Add(float64(created))
	ImportItems.WithLabelValues("updated").Add(float64(updated))
	ImportItems.WithLabelValues("skipped").Add(float64(skipped))
	ImportItems.WithLabelValues("failed").Add(float64(failed))

	if outcome != "done" {
		return
	}
	ImportDuration.Observe(elapsed.Seconds())
	ImportLastSuccess.Set(float64(time.Now().Unix()))
}
