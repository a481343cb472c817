package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics interface for dependency injection
type Metrics interface {
	RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration)
	RecordRecordOutcome(source, outcome string, n int)
	RecordSourceRun(source string, duration time.Duration, failed bool)
	RecordImportRun(state string, duration time.Duration)
	SetEventsStored(count float64)
	SetDBConnectionsActive(count float64)
	RecordDBQuery(operation, status string)
	Handler() http.Handler
}

// NoOpMetrics provides a no-op implementation
type NoOpMetrics struct{}

func (m *NoOpMetrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
}
func (m *NoOpMetrics) RecordRecordOutcome(source, outcome string, n int)                  {}
func (m *NoOpMetrics) RecordSourceRun(source string, duration time.Duration, failed bool) {}
func (m *NoOpMetrics) RecordImportRun(state string, duration time.Duration)               {}
func (m *NoOpMetrics) SetEventsStored(count float64)                                      {}
func (m *NoOpMetrics) SetDBConnectionsActive(count float64)                               {}
func (m *NoOpMetrics) RecordDBQuery(operation, status string)                             {}
func (m *NoOpMetrics) Handler() http.Handler                                              { return http.NotFoundHandler() }

// PrometheusMetrics exports everything on its own registry.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	records       *prometheus.CounterVec
	sourceRuns    *prometheus.CounterVec
	sourceDur     *prometheus.HistogramVec
	importRuns    *prometheus.CounterVec
	importDur     prometheus.Histogram
	lastImportTS  prometheus.Gauge
	eventsStored  prometheus.Gauge
	dbConnections prometheus.Gauge
	dbQueries     *prometheus.CounterVec
}

// NewPrometheus builds and registers the collectors.
func NewPrometheus() *PrometheusMetrics {
	m := &PrometheusMetrics{registry: prometheus.NewRegistry()}

	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "brocante",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status code",
	}, []string{"method", "endpoint", "code"})
	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "brocante",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint"})
	m.records = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "brocante",
		Subsystem: "ingest",
		Name:      "records_total",
		Help:      "Source records by outcome",
	}, []string{"source", "outcome"})
	m.sourceRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "brocante",
		Subsystem: "ingest",
		Name:      "source_runs_total",
		Help:      "Source fetches by status",
	}, []string{"source", "status"})
	m.sourceDur = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "brocante",
		Subsystem: "ingest",
		Name:      "source_duration_seconds",
		Help:      "Time spent importing one source",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"source"})
	m.importRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "brocante",
		Subsystem: "ingest",
		Name:      "runs_total",
		Help:      "Import runs by final state",
	}, []string{"state"})
	m.importDur = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "brocante",
		Subsystem: "ingest",
		Name:      "run_duration_seconds",
		Help:      "Import run duration",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
	})
	m.lastImportTS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "brocante",
		Subsystem: "ingest",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix timestamp of the last finished import run",
	})
	m.eventsStored = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "brocante",
		Name:      "events_stored",
		Help:      "Canonical events in the store",
	})
	m.dbConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "brocante",
		Subsystem: "db",
		Name:      "connections_active",
		Help:      "Acquired pool connections",
	})
	m.dbQueries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "brocante",
		Subsystem: "db",
		Name:      "queries_total",
		Help:      "Database queries by operation and status",
	}, []string{"operation", "status"})

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration,
		m.records, m.sourceRuns, m.sourceDur,
		m.importRuns, m.importDur, m.lastImportTS,
		m.eventsStored, m.dbConnections, m.dbQueries,
	)
	return m
}

func (m *PrometheusMetrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordRecordOutcome(source, outcome string, n int) {
	if n <= 0 {
		return
	}
	m.records.WithLabelValues(source, outcome).Add(float64(n))
}

func (m *PrometheusMetrics) RecordSourceRun(source string, duration time.Duration, failed bool) {
	status := "success"
	if failed {
		status = "error"
	}
	m.sourceRuns.WithLabelValues(source, status).Inc()
	m.sourceDur.WithLabelValues(source).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordImportRun(state string, duration time.Duration) {
	m.importRuns.WithLabelValues(state).Inc()
	m.importDur.Observe(duration.Seconds())
	m.lastImportTS.SetToCurrentTime()
}

func (m *PrometheusMetrics) SetEventsStored(count float64)        { m.eventsStored.Set(count) }
func (m *PrometheusMetrics) SetDBConnectionsActive(count float64) { m.dbConnections.Set(count) }

func (m *PrometheusMetrics) RecordDBQuery(operation, status string) {
	m.dbQueries.WithLabelValues(operation, status).Inc()
}

func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Global metrics instance
var globalMetrics Metrics = &NoOpMetrics{}

// Init switches the package to Prometheus collectors when enabled.
func Init(enabled bool) {
	if enabled {
		globalMetrics = NewPrometheus()
		return
	}
	globalMetrics = &NoOpMetrics{}
}

// Set replaces the global implementation; used by tests.
func Set(m Metrics) { globalMetrics = m }

// Handler returns the metrics handler
func Handler() http.Handler {
	return globalMetrics.Handler()
}

// RecordHTTPRequest records HTTP request metrics
func RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	globalMetrics.RecordHTTPRequest(method, endpoint, statusCode, duration)
}

// RecordRecordOutcome adds n records with the given outcome for source
func RecordRecordOutcome(source, outcome string, n int) {
	globalMetrics.RecordRecordOutcome(source, outcome, n)
}

// RecordSourceRun records one source fetch
func RecordSourceRun(source string, duration time.Duration, failed bool) {
	globalMetrics.RecordSourceRun(source, duration, failed)
}

// RecordImportRun records a finished import run
func RecordImportRun(state string, duration time.Duration) {
	globalMetrics.RecordImportRun(state, duration)
}

// SetEventsStored sets the stored events gauge
func SetEventsStored(count float64) {
	globalMetrics.SetEventsStored(count)
}

// SetDBConnectionsActive sets the number of active database connections
func SetDBConnectionsActive(count float64) {
	globalMetrics.SetDBConnectionsActive(count)
}

// RecordDBQuery records database query metrics
func RecordDBQuery(operation, status string) {
	globalMetrics.RecordDBQuery(operation, status)
}
