// Package metrics holds the Prometheus collectors shared by workers and the
// supervisor.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jotihunt_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jotihunt_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jotihunt_api_active_requests",
			Help: "Current number of in-flight API requests",
		},
	)

	// Write gate
	WriteGateRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jotihunt_store_busy_retries_total",
			Help: "Total number of write retries caused by a busy store",
		},
	)

	// Sync jobs
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jotihunt_sync_duration_seconds",
			Help:    "Duration of sync cycles in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	SyncItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jotihunt_sync_items_total",
			Help: "Items observed by sync cycles, by outcome",
		},
		[]string{"job", "outcome"},
	)

	SyncFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jotihunt_sync_failures_total",
			Help: "Sync cycles skipped because the upstream could not be reached",
		},
		[]string{"job"},
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jotihunt_upstream_request_duration_seconds",
			Help:    "Upstream API round-trip time in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Supervisor
	WorkerRestarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jotihunt_worker_restarts_total",
			Help: "Total number of worker process restarts",
		},
		[]string{"slot"},
	)

	WorkersRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jotihunt_workers_running",
			Help: "Number of worker processes that reported ready",
		},
	)

	BackupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jotihunt_backups_total",
			Help: "Store backups by result",
		},
		[]string{"result"},
	)
)

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, route, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest tracks in-flight API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordSync records the outcome of one sync cycle.
func RecordSync(job string, duration time.Duration, outcomes map[string]int) {
	SyncDuration.WithLabelValues(job).Observe(duration.Seconds())
	for outcome, n := range outcomes {
		if n > 0 {
			SyncItems.WithLabelValues(job, outcome).Add(float64(n))
		}
	}
}
