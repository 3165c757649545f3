package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// sweepTotal cuenta ticks por resultado: empty, noop, applied, failed
	sweepTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_sweep_total",
		Help: "Sweeper ticks by result",
	}, []string{"result"})

	sweepSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_sweep_skipped_total",
		Help: "Timer firings skipped because the previous tick was still running",
	})

	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reconcile_sweep_duration_seconds",
		Help:    "Sweeper tick duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms a ~8s
	})

	noShowTransitions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_no_show_transitions_total",
		Help: "Appointments moved to no_show",
	})

	unparseableSchedules = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_unparseable_schedule_total",
		Help: "Eligible appointments skipped because date/time did not parse",
	})

	subscriptionErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_subscription_errors_total",
		Help: "Transient errors reported by the live subscription",
	})

	snapshotSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "reconcile_snapshot_appointments",
		Help: "Appointments in the current live snapshot",
	}, []string{"clinic_id"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reconcile_active_sessions",
		Help: "Reconcile sessions currently running",
	})
)
