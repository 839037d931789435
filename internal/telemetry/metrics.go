// Package telemetry holds the registry's Prometheus collectors and its slog
// setup.
//
// Collectors register on the default registry through promauto and are exposed
// by the metrics listener that serve starts on telemetry.metrics.prometheus_port
// (9090 unless configured). That listener is separate from the API router.
//
// HTTP series are labelled with the gin route template, never the raw path, so
// repo and module keys in URLs do not become label values.
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/modlink/registry-engine/internal/safego"
)

// HTTPRequestsTotal counts requests by {method, path, status}, where path is
// the matched route template or "<no-route>".
//
// HTTPRequestDuration observes latency by {method, path}, 5 ms to 30 s.
//
//	sum by (path) (rate(http_requests_total{status=~"5.."}[5m]))
//	histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
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

// Registry operation metrics, recorded by the engine for every mutating call.
//
// RegistryOperationsTotal is a CounterVec with labels {operation, outcome}. The
// outcome is "ok" for an applied operation, otherwise the registry error code
// (e.g. "RepoInactive", "CounterOverflow"), so the label set stays bounded.
//
// Example PromQL queries:
//   - Rejection rate by reason:  sum by (outcome) (rate(registry_operations_total{outcome!="ok"}[5m]))
//   - Registrations per hour:    increase(registry_operations_total{operation="register_module",outcome="ok"}[1h])
//
// RegistryEventsPublishedTotal is a CounterVec with labels {event, outcome}
// where outcome is "ok" or "error". Publishing never fails an operation, so this
// counter is the only signal that a sink is dropping notifications.
//
// RegistryRecords is a GaugeVec with label {kind}, refreshed by the metrics
// reconciliation job from a full count of the store.
var (
	RegistryOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_operations_total",
			Help: "Total number of registry operations, by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	RegistryEventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_events_published_total",
			Help: "Total number of registry events handed to publishers, by event name and outcome.",
		},
		[]string{"event", "outcome"},
	)

	RegistryRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "registry_store_records",
			Help: "Number of records held by the store, by entity kind.",
		},
		[]string{"kind"},
	)
)

// ReconcileRunsTotal is a CounterVec with label {outcome} ("ok", "drift", "error")
// incremented once per reconciliation cycle. "drift" means counters were corrected.
//
// Example PromQL queries:
//   - Drift corrections per day:  increase(registry_reconcile_runs_total{outcome="drift"}[1d])
var ReconcileRunsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "registry_reconcile_runs_total",
		Help: "Total number of metrics reconciliation cycles, by outcome.",
	},
	[]string{"outcome"},
)

// DBOpenConnections mirrors sql.DBStats.OpenConnections. StartDBStatsCollector
// samples it on a timer instead of per request.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector refreshes DBOpenConnections every 30 seconds until ctx
// is done or a ping fails.
func StartDBStatsCollector(ctx context.Context, db *sql.DB) {
	safego.Go("db-stats-collector", func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if err := db.PingContext(ctx); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	})
}
