// Package telemetry provides application-level observability.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<SDP_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090.  The endpoint returns data in the Prometheus text exposition
// format (Content-Type: text/plain; version=0.0.4) and is intended to be scraped by
// a Prometheus server every 15–60 seconds.  It is NOT served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Secret creation and disclosure outcome counters
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /v1/secrets/:id/view)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments such as secret IDs.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// HTTPRequestsTotal is a CounterVec with labels {method, path, status}.
// The path label holds the Gin route template (e.g. /v1/secrets/:id/view),
// NOT the raw URL, to prevent unbounded cardinality.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - Requests by route:                 sum by (path) (rate(http_requests_total[5m]))
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and exponential-ish
// buckets from 5 ms to 30 s.  Use histogram_quantile to compute latency percentiles.
//
// Example PromQL queries:
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
//   - Average latency:                   rate(http_request_duration_seconds_sum[5m]) / rate(http_request_duration_seconds_count[5m])
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

// Secret lifecycle metrics, recorded by the secrets handlers.
//
// SecretsCreatedTotal is a CounterVec with labels {one_time, protected}, both
// "true"/"false", incremented on every successful creation.  The split shows
// what share of secrets use the stricter disclosure gates.
//
// Example PromQL queries:
//   - Creation rate:            rate(secrets_created_total[1h])
//   - One-time share (%):       sum(rate(secrets_created_total{one_time="true"}[1d])) / sum(rate(secrets_created_total[1d])) * 100
//
// SecretDisclosuresTotal is a CounterVec with label {outcome} incremented on every
// view attempt.  Outcomes: success, not_found, expired, consumed,
// password_required, invalid_password.  A spike in invalid_password on a single
// deployment is a brute-force signal worth alerting on even with rate limiting
// in front.
//
// Example PromQL queries:
//   - Failed disclosure rate:   sum(rate(secret_disclosures_total{outcome!="success"}[5m]))
//   - Brute-force alert:        increase(secret_disclosures_total{outcome="invalid_password"}[10m]) > 50
var (
	SecretsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secrets_created_total",
			Help: "Total number of secrets created, by one-time and password-protected flags.",
		},
		[]string{"one_time", "protected"},
	)

	SecretDisclosuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secret_disclosures_total",
			Help: "Total number of secret view attempts, by outcome.",
		},
		[]string{"outcome"},
	)
)

// SecretsDeletedTotal is a plain Counter (no labels) incremented once per
// owner-initiated delete.
//
// Example PromQL queries:
//   - Deletion rate:  rate(secrets_deleted_total[24h])
var SecretsDeletedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "secrets_deleted_total",
		Help: "Total number of secrets deleted by their owners.",
	},
)

// SecretsPurgedTotal counts secrets removed by the retention purge job rather
// than by their owners.
//
// Example PromQL queries:
//   - Purge volume:  increase(secrets_purged_total[24h])
var SecretsPurgedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "secrets_purged_total",
		Help: "Total number of dead secrets removed by the retention purge job.",
	},
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool.  It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
//
// Example PromQL queries:
//   - Pool utilisation (%): db_open_connections / <SDP_DATABASE_MAX_CONNECTIONS> * 100
//   - Alert on near-exhaustion: db_open_connections > 20  (for max_connections=25)
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main.go:
//
//	telemetry.StartDBStatsCollector(database)
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
