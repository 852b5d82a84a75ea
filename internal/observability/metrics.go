// Package observability exposes Prometheus metrics for the server and worker.
package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	tileCacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tile_cache_results_total",
			Help: "Tile cache lookups by outcome (hit_mem, hit_disk, miss).",
		},
		[]string{"outcome"},
	)

	wmsUpstreamLatencySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wms_upstream_latency_seconds",
			Help:    "Latency of upstream WMS GetMap fetches in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)

	jobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Background jobs processed by type and outcome.",
		},
		[]string{"type", "outcome"},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveTileCache(outcome string) {
	tileCacheResults.WithLabelValues(outcome).Inc()
}

func ObserveWMSUpstream(durationSeconds float64) {
	wmsUpstreamLatencySeconds.Observe(durationSeconds)
}

func ObserveJob(jobType string, err error) {
	outcome := "done"
	if err != nil {
		outcome = "error"
	}
	jobsProcessedTotal.WithLabelValues(jobType, outcome).Inc()
}
