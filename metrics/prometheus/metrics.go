// Package prometheus provides Prometheus metrics exporters for Waypoint.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "waypoint"

var (
	// transitionsTotal counts workflow transitions by outcome.
	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Total number of workflow transitions attempted",
		},
		[]string{"workflow", "status"}, // status: success, rejected
	)

	// sessionsActive is a gauge of currently resident non-terminal sessions.
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active (non-terminal) sessions",
		},
	)

	// cacheSyncTotal counts cache synchronization attempts by result.
	cacheSyncTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_sync_total",
			Help:      "Total number of session-to-cache sync attempts",
		},
		[]string{"result"}, // result: synced, skipped_unavailable, failed
	)

	// sessionsRestoredTotal counts restoration outcomes per entry.
	sessionsRestoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_restored_total",
			Help:      "Total number of cache entries processed during restoration",
		},
		[]string{"status"}, // status: restored, corrupt, duplicate
	)

	// restoreDuration is a histogram of full restoration batch duration.
	restoreDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "restore_duration_seconds",
			Help:      "Histogram of cache restoration batch duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// decisionOutcomesTotal counts decision-node resolutions by mode.
	decisionOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decision_outcomes_total",
			Help:      "Total number of decision node resolutions",
		},
		[]string{"mode"}, // mode: explicit, heuristic, required
	)
)

// allMetrics lists every collector for registration with an exporter.
var allMetrics = []prometheus.Collector{
	transitionsTotal,
	sessionsActive,
	cacheSyncTotal,
	sessionsRestoredTotal,
	restoreDuration,
	decisionOutcomesTotal,
}

// ObserveTransition records a transition attempt outcome.
func ObserveTransition(workflowName string, success bool) {
	status := "success"
	if !success {
		status = "rejected"
	}
	transitionsTotal.WithLabelValues(workflowName, status).Inc()
}

// SetActiveSessions updates the active sessions gauge.
func SetActiveSessions(n int) {
	sessionsActive.Set(float64(n))
}

// ObserveCacheSync records a sync attempt result label.
func ObserveCacheSync(result string) {
	cacheSyncTotal.WithLabelValues(result).Inc()
}

// ObserveRestoredSession records the fate of one cache entry during restoration.
func ObserveRestoredSession(status string) {
	sessionsRestoredTotal.WithLabelValues(status).Inc()
}

// ObserveRestoreDuration records how long a restoration batch took.
func ObserveRestoreDuration(d time.Duration) {
	restoreDuration.Observe(d.Seconds())
}

// ObserveDecision records how a decision node was resolved.
func ObserveDecision(mode string) {
	decisionOutcomesTotal.WithLabelValues(mode).Inc()
}
