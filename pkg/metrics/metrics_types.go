package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for one or more engines
type Registry struct {
	// Operation Metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	ReadTierHits      *prometheus.CounterVec
	TombstonesCached  prometheus.Counter

	// Flush Metrics
	FlushesTotal   *prometheus.CounterVec
	FlushDuration  prometheus.Histogram
	FlushedEntries prometheus.Counter

	// State Metrics
	TablesTotal     prometheus.Gauge
	MemTableEntries prometheus.Gauge

	// Recovery Metrics
	WALReplayedRecords *prometheus.CounterVec

	registry *prometheus.Registry
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}

	r.initOperationMetrics()
	r.initFlushMetrics()
	r.initStateMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
