// Package observability provides Prometheus metrics, OpenTelemetry tracing,
// and structured logging for the knowledge graph engine.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector holds all Prometheus metrics for the engine.
type MetricsCollector struct {
	// MCP request metrics (the JSON-RPC transport wrapping the facade, §1)
	MCPRequestsTotal    *prometheus.CounterVec
	MCPRequestDuration  *prometheus.HistogramVec
	MCPRequestsInFlight *prometheus.GaugeVec
	MCPErrors           *prometheus.CounterVec

	// Graph build metrics (§4.5)
	BuildOperations  *prometheus.CounterVec
	BuildDuration    *prometheus.HistogramVec
	ChunksIndexedTotal prometheus.Counter
	EdgesIndexedTotal  prometheus.Counter
	BuildErrorsTotal *prometheus.CounterVec

	// Retrieval metrics (§4.7)
	RetrieveRequests *prometheus.CounterVec
	RetrieveDuration *prometheus.HistogramVec
	RetrieveResults  *prometheus.HistogramVec
	OmittedChunks    *prometheus.HistogramVec

	// Retrieval result-cache metrics (internal/kg/retrieve.ResultCache)
	SearchCacheHits   prometheus.Counter
	SearchCacheMisses prometheus.Counter

	// Business-rule lifecycle metrics (§4.9)
	RulesProposedTotal  prometheus.Counter
	RulesConfirmedTotal *prometheus.CounterVec

	// Watcher metrics (§4.8)
	WatcherChangesTotal  prometheus.Counter
	WatcherBuildsTotal   prometheus.Counter

	// System metrics
	SystemStartTime prometheus.Gauge
	SystemHealth    *prometheus.GaugeVec
}

// NewMetricsCollector creates and registers all Prometheus metrics.
func NewMetricsCollector(namespace string) *MetricsCollector {
	return NewMetricsCollectorWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates metrics with a specific registry (for testing).
func NewMetricsCollectorWithRegistry(namespace string, reg prometheus.Registerer) *MetricsCollector {
	if namespace == "" {
		namespace = "kgengine"
	}

	autoCounterVec := func(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
		return promauto.With(reg).NewCounterVec(opts, labelNames)
	}
	autoHistogramVec := func(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
		return promauto.With(reg).NewHistogramVec(opts, labelNames)
	}
	autoGaugeVec := func(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
		return promauto.With(reg).NewGaugeVec(opts, labelNames)
	}
	autoCounter := func(opts prometheus.CounterOpts) prometheus.Counter {
		return promauto.With(reg).NewCounter(opts)
	}
	autoGauge := func(opts prometheus.GaugeOpts) prometheus.Gauge {
		return promauto.With(reg).NewGauge(opts)
	}

	return &MetricsCollector{
		MCPRequestsTotal: autoCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mcp_requests_total",
				Help:      "Total number of MCP requests by method and status",
			},
			[]string{"method", "status"},
		),
		MCPRequestDuration: autoHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "mcp_request_duration_seconds",
				Help:      "MCP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method"},
		),
		MCPRequestsInFlight: autoGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "mcp_requests_in_flight",
				Help:      "Number of MCP requests currently being handled",
			},
			[]string{"method"},
		),
		MCPErrors: autoCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mcp_errors_total",
				Help:      "Total number of MCP errors by method and error type",
			},
			[]string{"method", "error_type"},
		),

		BuildOperations: autoCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "build_operations_total",
				Help:      "Total number of graph builds by mode (full/incremental) and status",
			},
			[]string{"mode", "status"},
		),
		BuildDuration: autoHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "build_duration_seconds",
				Help:      "Graph build duration in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"mode"},
		),
		ChunksIndexedTotal: autoCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunks_indexed_total",
				Help:      "Total number of chunks written across all builds",
			},
		),
		EdgesIndexedTotal: autoCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "edges_indexed_total",
				Help:      "Total number of edges derived across all builds",
			},
		),
		BuildErrorsTotal: autoCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "build_errors_total",
				Help:      "Total number of build errors by kind",
			},
			[]string{"error_type"},
		),

		RetrieveRequests: autoCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retrieve_requests_total",
				Help:      "Total number of context-retrieval requests by status",
			},
			[]string{"status"},
		),
		RetrieveDuration: autoHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "retrieve_duration_seconds",
				Help:      "Context retrieval duration in seconds (all seven phases)",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"phase"},
		),
		RetrieveResults: autoHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "retrieve_chunks_returned",
				Help:      "Number of chunks included in a returned context bundle",
				Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
			},
			[]string{"compression_level"},
		),
		OmittedChunks: autoHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "retrieve_chunks_omitted",
				Help:      "Number of chunks omitted from a returned context bundle, by reason",
				Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
			},
			[]string{"reason"},
		),

		SearchCacheHits: autoCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_cache_hits_total",
				Help:      "Total number of retrieval result-cache hits",
			},
		),
		SearchCacheMisses: autoCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_cache_misses_total",
				Help:      "Total number of retrieval result-cache misses",
			},
		),

		RulesProposedTotal: autoCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rules_proposed_total",
				Help:      "Total number of business rules proposed by the heuristic matcher",
			},
		),
		RulesConfirmedTotal: autoCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rules_transitions_total",
				Help:      "Total number of business-rule lifecycle transitions by new status",
			},
			[]string{"status"},
		),

		WatcherChangesTotal: autoCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "watcher_changes_total",
				Help:      "Total number of file-change events coalesced by the watcher",
			},
		),
		WatcherBuildsTotal: autoCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "watcher_builds_total",
				Help:      "Total number of incremental builds triggered by the watcher",
			},
		),

		SystemStartTime: autoGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "system_start_time_seconds",
				Help:      "Unix timestamp when the system started",
			},
		),
		SystemHealth: autoGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "system_health_status",
				Help:      "System health status (1 = healthy, 0 = unhealthy)",
			},
			[]string{"component"},
		),
	}
}

// RecordMCPRequest records metrics for an MCP request.
func (m *MetricsCollector) RecordMCPRequest(method, status string, duration time.Duration) {
	m.MCPRequestsTotal.WithLabelValues(method, status).Inc()
	m.MCPRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordMCPError records an MCP error.
func (m *MetricsCollector) RecordMCPError(method, errorType string) {
	m.MCPErrors.WithLabelValues(method, errorType).Inc()
}

// TrackMCPInFlight tracks in-flight MCP requests.
func (m *MetricsCollector) TrackMCPInFlight(method string, delta float64) {
	m.MCPRequestsInFlight.WithLabelValues(method).Add(delta)
}

// RecordBuild records metrics for a graph build (kg.build, §4.5).
func (m *MetricsCollector) RecordBuild(mode, status string, duration time.Duration) {
	m.BuildOperations.WithLabelValues(mode, status).Inc()
	m.BuildDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordChunksIndexed increments the chunks-written counter.
func (m *MetricsCollector) RecordChunksIndexed(count int) {
	m.ChunksIndexedTotal.Add(float64(count))
}

// RecordEdgesIndexed increments the edges-derived counter.
func (m *MetricsCollector) RecordEdgesIndexed(count int) {
	m.EdgesIndexedTotal.Add(float64(count))
}

// RecordBuildError records a build error.
func (m *MetricsCollector) RecordBuildError(errorType string) {
	m.BuildErrorsTotal.WithLabelValues(errorType).Inc()
}

// RecordRetrieve records metrics for a context-retrieval request (kg.retrieve, §4.7).
func (m *MetricsCollector) RecordRetrieve(status string, phase string, duration time.Duration) {
	m.RetrieveRequests.WithLabelValues(status).Inc()
	m.RetrieveDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// RecordRetrieveResults records the returned/omitted chunk counts for a bundle.
func (m *MetricsCollector) RecordRetrieveResults(compressionLevel string, returned int, omittedByReason map[string]int) {
	m.RetrieveResults.WithLabelValues(compressionLevel).Observe(float64(returned))
	for reason, count := range omittedByReason {
		m.OmittedChunks.WithLabelValues(reason).Observe(float64(count))
	}
}

// RecordSearchCacheHit records a retrieval result-cache hit.
func (m *MetricsCollector) RecordSearchCacheHit() {
	m.SearchCacheHits.Inc()
}

// RecordSearchCacheMiss records a retrieval result-cache miss.
func (m *MetricsCollector) RecordSearchCacheMiss() {
	m.SearchCacheMisses.Inc()
}

// RecordRuleProposed records a new PROPOSED business rule (§4.9).
func (m *MetricsCollector) RecordRuleProposed() {
	m.RulesProposedTotal.Inc()
}

// RecordRuleTransition records a business-rule lifecycle transition.
func (m *MetricsCollector) RecordRuleTransition(status string) {
	m.RulesConfirmedTotal.WithLabelValues(status).Inc()
}

// RecordWatcherChange records one coalesced file-change event (§4.8).
func (m *MetricsCollector) RecordWatcherChange() {
	m.WatcherChangesTotal.Inc()
}

// RecordWatcherBuild records one watcher-triggered incremental build.
func (m *MetricsCollector) RecordWatcherBuild() {
	m.WatcherBuildsTotal.Inc()
}

// SetSystemStartTime sets the system start time.
func (m *MetricsCollector) SetSystemStartTime(startTime time.Time) {
	m.SystemStartTime.Set(float64(startTime.Unix()))
}

// SetComponentHealth sets the health status of a component.
func (m *MetricsCollector) SetComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.SystemHealth.WithLabelValues(component).Set(value)
}
