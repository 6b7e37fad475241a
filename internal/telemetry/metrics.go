// Package telemetry provides application-level observability for the model registry.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and served on the
// side-channel HTTP server started by cmd/server:
//
//	GET http://<host>:<MRG_TELEMETRY_METRICS_PORT>/metrics
//
// Default port: 9090. The endpoint is not served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Download and presign outcomes
//   - Usage accounting writes and their failures
//   - Authentication failures by reason
//   - Manifest export duration and errors
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (e.g. /v1/models/*repo) rather than the raw request URL
// so repository ids and file names never become label values.
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Error rate (%):        sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route: histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Download and presign metrics.
//
// DownloadsTotal counts download requests by outcome, using the same status
// vocabulary as access_logs (ok, denied, not_found, error, invalid).
//
// PresignTotal counts URL issuance by result: "ok", "invalid_expiry", or
// "unavailable" (storage could not sign the key).
//
// Example PromQL queries:
//   - Failed downloads: sum by (outcome) (rate(registry_downloads_total{outcome!="ok"}[1h]))
var (
	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_downloads_total",
			Help: "Total number of file download requests, by outcome.",
		},
		[]string{"outcome"},
	)

	PresignTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_presign_total",
			Help: "Total number of presigned URL issuance attempts, by result.",
		},
		[]string{"result"},
	)
)

// Usage accounting metrics.
//
// UsageRecordFailuresTotal is the side channel for access_logs writes that fail;
// the originating request has already succeeded. Alert on any increase.
var (
	UsageEventsRecordedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_events_recorded_total",
			Help: "Total number of access log events written, by event type.",
		},
		[]string{"event_type"},
	)

	UsageRecordFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "usage_record_failures_total",
			Help: "Total number of access log events that could not be written.",
		},
	)
)

// AuthFailuresTotal counts rejected credentials by reason
// ("missing_key", "invalid_key", "invalid_admin_token", "forbidden").
var AuthFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "auth_failures_total",
		Help: "Total number of rejected authentication attempts, by reason.",
	},
	[]string{"reason"},
)

// Manifest export metrics, recorded by the manifest export job.
var (
	ManifestExportDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "manifest_export_duration_seconds",
			Help:    "Duration of a complete manifest export run.",
			Buckets: prometheus.DefBuckets,
		},
	)

	ManifestExportErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "manifest_export_errors_total",
			Help: "Total number of manifests that failed to export.",
		},
	)
)

// DBOpenConnections tracks the number of open connections held by the sql.DB pool.
// It is sampled every 30 seconds by StartDBStatsCollector rather than per request.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector samples pool statistics every interval until ctx is
// cancelled or the database becomes unreachable.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.PingContext(ctx); err != nil {
					slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
					return
				}
				DBOpenConnections.Set(float64(db.Stats().OpenConnections))
			}
		}
	}()
}
