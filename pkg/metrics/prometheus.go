// Package metrics provides Prometheus metrics for the tally service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values shared by callers.
const (
	ChartRanking      = "ranking"
	ChartContribution = "contribution"

	LookupCached   = "cached"
	LookupFetched  = "fetched"
	LookupFallback = "fallback"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Counter store
	increments         prometheus.Counter
	incrementErrors    prometheus.Counter
	idempotentReplays  prometheus.Counter
	storeReadAnomalies *prometheus.CounterVec
	trackedUsers       prometheus.Gauge
	storeLatency       *prometheus.HistogramVec

	// Aggregation and rendering
	rankingRequests *prometheus.CounterVec
	rankingEmpty    *prometheus.CounterVec
	rankingLatency  *prometheus.HistogramVec
	renderLatency   *prometheus.HistogramVec
	nameLookups     *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // registry without default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Configure rebuilds the global manager with opts on a fresh registry.
// Call it once at startup, before anything records or reads GetRegistry.
func Configure(opts ...Option) {
	registry := prometheus.NewRegistry()
	globalManager = NewManager(append(opts, WithPrometheusRegistry(registry))...)
	customRegistry = registry
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "tally",
		subsystem:        "counter",
		histogramBuckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // flat list of collectors
	auto := promauto.With(m.registry)

	m.increments = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "increments_total",
		Help:      "Total number of increments persisted",
	})
	m.incrementErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "increment_errors_total",
		Help:      "Total number of increments that failed to persist",
	})
	m.idempotentReplays = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "idempotent_replays_total",
		Help:      "Increments answered from the idempotency cache instead of being applied again",
	})
	m.storeReadAnomalies = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_read_anomalies_total",
		Help:      "Persisted records that could not be read and were treated as empty",
	}, []string{"record"})
	m.trackedUsers = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "tracked_users",
		Help:      "Number of users with a non-zero total",
	})
	m.storeLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_operation_duration_milliseconds",
		Help:      "Latency of store operations in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"operation"})

	m.rankingRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ranking_requests_total",
		Help:      "Ranking computations by window",
	}, []string{"window"})
	m.rankingEmpty = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ranking_empty_total",
		Help:      "Ranking computations that produced no entries",
	}, []string{"window"})
	m.rankingLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ranking_duration_milliseconds",
		Help:      "Ranking aggregation latency in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"window"})
	m.renderLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "render_duration_milliseconds",
		Help:      "Chart rendering latency in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"chart"})
	m.nameLookups = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "name_lookups_total",
		Help:      "Display name lookups by outcome",
	}, []string{"outcome"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "errors_by_component_total",
		Help:      "Errors by component and type",
	}, []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "memory_usage_bytes",
		Help:      "Current heap allocation in bytes",
	})
	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "goroutines",
		Help:      "Current number of goroutines",
	})
	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "gc_pause_milliseconds",
		Help:      "Average GC pause time in milliseconds",
		Buckets:   m.histogramBuckets,
	})
}

// RecordIncrement increments the persisted increments counter.
func RecordIncrement() {
	globalManager.increments.Inc()
}

// RecordIncrementError increments the failed increments counter.
func RecordIncrementError() {
	globalManager.incrementErrors.Inc()
}

// RecordIdempotentReplay counts an increment answered from the idempotency cache.
func RecordIdempotentReplay() {
	globalManager.idempotentReplays.Inc()
}

// RecordStoreReadAnomaly counts a persisted record that was unreadable.
// record is "totals" or "events".
func RecordStoreReadAnomaly(record string) {
	globalManager.storeReadAnomalies.WithLabelValues(record).Inc()
}

// UpdateTrackedUsers sets the number of users with a total.
func UpdateTrackedUsers(count int) {
	globalManager.trackedUsers.Set(float64(count))
}

// RecordStoreLatency records the latency of a store operation.
func RecordStoreLatency(operation string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordRankingRequest counts a ranking computation for window.
func RecordRankingRequest(window string) {
	globalManager.rankingRequests.WithLabelValues(window).Inc()
}

// RecordRankingEmpty counts a ranking computation with no entries.
func RecordRankingEmpty(window string) {
	globalManager.rankingEmpty.WithLabelValues(window).Inc()
}

// RecordRankingLatency records ranking aggregation latency.
func RecordRankingLatency(window string, latencyMs float64) {
	globalManager.rankingLatency.WithLabelValues(window).Observe(latencyMs)
}

// RecordRenderLatency records how long a chart took to render.
func RecordRenderLatency(chart string, latencyMs float64) {
	globalManager.renderLatency.WithLabelValues(chart).Observe(latencyMs)
}

// RecordNameLookup counts a display name lookup by outcome.
func RecordNameLookup(outcome string) {
	globalManager.nameLookups.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
