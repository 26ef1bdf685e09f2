package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Permission calculation metrics
	PermissionCacheHitsTotal   *prometheus.CounterVec
	PermissionCacheMissesTotal *prometheus.CounterVec
	CalculationDuration        *prometheus.HistogramVec
	CalculationErrorsTotal     *prometheus.CounterVec

	// Access metrics
	AccessDecisionsTotal *prometheus.CounterVec
	QueryRewritesTotal   *prometheus.CounterVec

	// Storage metrics
	StorageOperationsTotal *prometheus.CounterVec
	StorageErrorsTotal     *prometheus.CounterVec
	TagInvalidationsTotal  prometheus.Counter

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	PanicsRecoveredTotal prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groupaccess_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "groupaccess_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		PermissionCacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groupaccess_permission_cache_hits_total",
				Help: "Calculated permission lookups served from cache",
			},
			[]string{"layer"},
		),
		PermissionCacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groupaccess_permission_cache_misses_total",
				Help: "Calculated permission lookups that had to be recomputed",
			},
			[]string{"layer"},
		),
		CalculationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "groupaccess_permission_calculation_duration_seconds",
				Help:    "Permission calculation duration in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"scope"},
		),
		CalculationErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groupaccess_permission_calculation_errors_total",
				Help: "Permission calculations that failed",
			},
			[]string{"scope"},
		),

		AccessDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groupaccess_access_decisions_total",
				Help: "Access decisions by target, operation and outcome",
			},
			[]string{"target", "operation", "outcome"},
		),
		QueryRewritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groupaccess_query_rewrites_total",
				Help: "List query rewrites by query kind and outcome",
			},
			[]string{"kind", "outcome"},
		),

		StorageOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groupaccess_storage_operations_total",
				Help: "Total number of storage operations",
			},
			[]string{"operation"},
		),
		StorageErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groupaccess_storage_errors_total",
				Help: "Total number of storage errors",
			},
			[]string{"operation"},
		),
		TagInvalidationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "groupaccess_cache_tag_invalidations_total",
				Help: "Total number of invalidated cache tags",
			},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "groupaccess_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "groupaccess_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),

		PanicsRecoveredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "groupaccess_panics_recovered_total",
				Help: "Panics recovered in HTTP handlers",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PermissionCacheHitsTotal,
		m.PermissionCacheMissesTotal,
		m.CalculationDuration,
		m.CalculationErrorsTotal,
		m.AccessDecisionsTotal,
		m.QueryRewritesTotal,
		m.StorageOperationsTotal,
		m.StorageErrorsTotal,
		m.TagInvalidationsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.PanicsRecoveredTotal,
	)

	return m
}

// The recorders below are no-ops on a nil *Metrics so components can run
// without a registry.

// RecordPermissionCache counts a lookup in one cache layer
func (m *Metrics) RecordPermissionCache(layer string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.PermissionCacheHitsTotal.WithLabelValues(layer).Inc()
		return
	}
	m.PermissionCacheMissesTotal.WithLabelValues(layer).Inc()
}

// ObserveCalculation records how long a calculator took for a scope
func (m *Metrics) ObserveCalculation(scope string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.CalculationDuration.WithLabelValues(scope).Observe(d.Seconds())
	if err != nil {
		m.CalculationErrorsTotal.WithLabelValues(scope).Inc()
	}
}

// RecordAccessDecision counts an access result
func (m *Metrics) RecordAccessDecision(target, operation, outcome string) {
	if m == nil {
		return
	}
	m.AccessDecisionsTotal.WithLabelValues(target, operation, outcome).Inc()
}

// RecordQueryRewrite counts a list query rewrite
func (m *Metrics) RecordQueryRewrite(kind, outcome string) {
	if m == nil {
		return
	}
	m.QueryRewritesTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordStorageOperation counts a storage call and its failure
func (m *Metrics) RecordStorageOperation(operation string, err error) {
	if m == nil {
		return
	}
	m.StorageOperationsTotal.WithLabelValues(operation).Inc()
	if err != nil {
		m.StorageErrorsTotal.WithLabelValues(operation).Inc()
	}
}

// RecordTagInvalidations counts invalidated cache tags
func (m *Metrics) RecordTagInvalidations(n int) {
	if m == nil {
		return
	}
	m.TagInvalidationsTotal.Add(float64(n))
}

// RecordPanic counts a recovered panic
func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.PanicsRecoveredTotal.Inc()
}

// UpdateDBStats copies connection pool gauges from sql.DBStats
func (m *Metrics) UpdateDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// pathLabel maps a request to a bounded label, typically its route template.
func HTTPMetricsMiddleware(metrics *Metrics, pathLabel func(*http.Request) string) func(http.Handler) http.Handler {
	if pathLabel == nil {
		pathLabel = func(r *http.Request) string { return r.URL.Path }
	}
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			path := pathLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
