package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newTestMetricsCollector(t *testing.T) (*MetricsCollector, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	return NewMetricsCollectorWithRegistry("test", registry), registry
}

func TestRecordMCPRequest(t *testing.T) {
	collector, registry := newTestMetricsCollector(t)

	collector.RecordMCPRequest("kg.retrieve", "success", 50*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.MCPRequestsTotal.WithLabelValues("kg.retrieve", "success")))
	count, err := registry.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, count)
}

func TestRecordMCPError(t *testing.T) {
	collector, _ := newTestMetricsCollector(t)

	collector.RecordMCPError("kg.build", "storage_io")

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.MCPErrors.WithLabelValues("kg.build", "storage_io")))
}

func TestTrackMCPInFlight(t *testing.T) {
	collector, _ := newTestMetricsCollector(t)

	collector.TrackMCPInFlight("kg.retrieve", 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.MCPRequestsInFlight.WithLabelValues("kg.retrieve")))

	collector.TrackMCPInFlight("kg.retrieve", -1)
	assert.Equal(t, float64(0), testutil.ToFloat64(collector.MCPRequestsInFlight.WithLabelValues("kg.retrieve")))
}

func TestRecordBuild(t *testing.T) {
	collector, _ := newTestMetricsCollector(t)

	collector.RecordBuild("full", "success", 2*time.Second)

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.BuildOperations.WithLabelValues("full", "success")))
}

func TestRecordChunksAndEdgesIndexed(t *testing.T) {
	collector, _ := newTestMetricsCollector(t)

	collector.RecordChunksIndexed(5)
	collector.RecordChunksIndexed(3)
	assert.Equal(t, float64(8), testutil.ToFloat64(collector.ChunksIndexedTotal))

	collector.RecordEdgesIndexed(10)
	assert.Equal(t, float64(10), testutil.ToFloat64(collector.EdgesIndexedTotal))
}

func TestRecordBuildError(t *testing.T) {
	collector, _ := newTestMetricsCollector(t)

	collector.RecordBuildError("parse_failure")

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.BuildErrorsTotal.WithLabelValues("parse_failure")))
}

func TestRecordRetrieve(t *testing.T) {
	collector, _ := newTestMetricsCollector(t)

	collector.RecordRetrieve("success", "budget_allocation", 15*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.RetrieveRequests.WithLabelValues("success")))
}

func TestRecordRetrieveResults(t *testing.T) {
	collector, _ := newTestMetricsCollector(t)

	collector.RecordRetrieveResults("full", 12, map[string]int{"token_budget": 3, "low_relevance": 1})

	assert.Equal(t, 1, testutil.CollectAndCount(collector.RetrieveResults))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.OmittedChunks))
}

func TestRecordSearchCache(t *testing.T) {
	collector, _ := newTestMetricsCollector(t)

	collector.RecordSearchCacheHit()
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.SearchCacheHits))

	collector.RecordSearchCacheMiss()
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.SearchCacheMisses))
}

func TestRecordRuleProposedAndTransition(t *testing.T) {
	collector, _ := newTestMetricsCollector(t)

	collector.RecordRuleProposed()
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.RulesProposedTotal))

	collector.RecordRuleTransition("CONFIRMED")
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.RulesConfirmedTotal.WithLabelValues("CONFIRMED")))
}

func TestRecordWatcherActivity(t *testing.T) {
	collector, _ := newTestMetricsCollector(t)

	collector.RecordWatcherChange()
	collector.RecordWatcherChange()
	assert.Equal(t, float64(2), testutil.ToFloat64(collector.WatcherChangesTotal))

	collector.RecordWatcherBuild()
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.WatcherBuildsTotal))
}

func TestSetSystemStartTime(t *testing.T) {
	collector, _ := newTestMetricsCollector(t)

	startTime := time.Unix(1700000000, 0)
	collector.SetSystemStartTime(startTime)

	assert.Equal(t, float64(1700000000), testutil.ToFloat64(collector.SystemStartTime))
}

func TestSetComponentHealth(t *testing.T) {
	collector, _ := newTestMetricsCollector(t)

	tests := []struct {
		component string
		healthy   bool
		want      float64
	}{
		{"storage", true, 1},
		{"watcher", false, 0},
	}

	for _, tt := range tests {
		collector.SetComponentHealth(tt.component, tt.healthy)
		assert.Equal(t, tt.want, testutil.ToFloat64(collector.SystemHealth.WithLabelValues(tt.component)))
	}
}
