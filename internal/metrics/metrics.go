// Package metrics declares the prometheus instrumentation for the
// engine, grounded on the teacher's pkg/metrics package.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ReclaimPassDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vaultkeeper_reclaim_pass_duration_seconds",
			Help:    "Duration of a reclamation collect pass, by root.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"root_id"},
	)

	ReclaimPassesWithWork = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultkeeper_reclaim_passes_with_work_total",
			Help: "Collect passes that produced at least one work item.",
		},
	)

	ReclaimPassErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultkeeper_reclaim_pass_errors_total",
			Help: "Collect passes that failed with an error.",
		},
	)

	ReclaimWorkItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultkeeper_reclaim_work_items_total",
			Help: "Reclamation work items produced, by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	ChainAcquireTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultkeeper_chain_acquire_total",
			Help: "Chain acquisitions, by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	ReferenceContention = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultkeeper_reference_contention_total",
			Help: "Reservations rejected for a repeated or conflicting reference.",
		},
	)
)

func init() {
	prometheus.MustRegister(ReclaimPassDuration)
	prometheus.MustRegister(ReclaimPassesWithWork)
	prometheus.MustRegister(ReclaimPassErrors)
	prometheus.MustRegister(ReclaimWorkItemsTotal)
	prometheus.MustRegister(ChainAcquireTotal)
	prometheus.MustRegister(ReferenceContention)
}

// Timer observes an elapsed duration into a histogram on completion,
// mirroring the teacher reconciler's metrics.NewTimer/ObserveDuration
// pattern.
type Timer struct {
	start   time.Time
	rootID  string
}

// NewReclaimTimer starts a timer for one root's collect pass.
func NewReclaimTimer(rootID string) *Timer {
	return &Timer{start: time.Now(), rootID: rootID}
}

// ObserveDuration records the elapsed time since the timer started.
func (t *Timer) ObserveDuration() {
	ReclaimPassDuration.WithLabelValues(t.rootID).Observe(time.Since(t.start).Seconds())
}
