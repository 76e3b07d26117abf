// Package metrics exposes Prometheus instrumentation for enforcement
// operations and suspension sweeps.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	enforcementTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guestgate_enforcement_operations_total",
		Help: "Enforcement operations by brand, action and outcome.",
	}, []string{"brand", "action", "outcome"})

	enforcementDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "guestgate_enforcement_duration_seconds",
		Help:    "Wall time of enforcement operations, including the adapter call.",
		Buckets: prometheus.DefBuckets,
	}, []string{"brand", "action"})

	sweepRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guestgate_sweep_runs_total",
		Help: "Completed suspension sweeps.",
	})

	sweepSuspended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guestgate_sweep_suspended_total",
		Help: "Devices newly auto-suspended by sweeps.",
	})

	sweepReactivated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guestgate_sweep_reactivated_total",
		Help: "Devices reactivated by sweeps.",
	})

	sweepErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guestgate_sweep_errors_total",
		Help: "Per-device evaluation errors across sweeps.",
	})
)

// RecordEnforcement accounts one enforcement operation.
func RecordEnforcement(brand, action, outcome string, durationMs int64) {
	enforcementTotal.WithLabelValues(brand, action, outcome).Inc()
	enforcementDuration.WithLabelValues(brand, action).Observe(float64(durationMs) / 1000)
}

// RecordSweep accounts one completed sweep.
func RecordSweep(suspended, reactivated, errors int) {
	sweepRuns.Inc()
	sweepSuspended.Add(float64(suspended))
	sweepReactivated.Add(float64(reactivated))
	sweepErrors.Add(float64(errors))
}
