package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	instanceInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "promptelt_instance_info",
			Help: "Constant 1, labelled with the instance ID and build version.",
		},
		[]string{"instance_id", "version"},
	)

	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptelt_query_cache_lookups_total",
			Help: "Query cache lookups by result (hit or miss).",
		},
		[]string{"result"},
	)
	cacheEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptelt_query_cache_evictions_total",
			Help: "Query cache entries removed by expiry or LRU eviction.",
		},
		[]string{"reason"},
	)
	cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "promptelt_query_cache_entries",
			Help: "Current number of query cache entries.",
		},
	)

	snapshotsCapturedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "promptelt_schema_snapshots_captured_total",
			Help: "Total number of schema snapshots captured.",
		},
	)
	schemaChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptelt_schema_changes_detected_total",
			Help: "Schema changes detected when refreshing a database schema, by change type.",
		},
		[]string{"type"},
	)

	brokerOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptelt_broker_operations_total",
			Help: "Broker operations by name and outcome.",
		},
		[]string{"operation", "success"},
	)
	brokerOperationDurationMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promptelt_broker_operation_duration_ms",
			Help:    "Broker operation latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 15000},
		},
		[]string{"operation"},
	)

	assistantRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptelt_assistant_requests_total",
			Help: "LLM completion requests by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptelt_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promptelt_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		instanceInfo,
		cacheLookupsTotal,
		cacheEvictionsTotal,
		cacheEntries,
		snapshotsCapturedTotal,
		schemaChangesTotal,
		brokerOperationsTotal,
		brokerOperationDurationMs,
		assistantRequestsTotal,
		httpRequestsTotal,
		httpRequestDurationSeconds,
	)
}

// CacheLookup records a query cache hit or miss.
func CacheLookup(hit bool) {
	if hit {
		cacheLookupsTotal.WithLabelValues("hit").Inc()
		return
	}
	cacheLookupsTotal.WithLabelValues("miss").Inc()
}

// CacheEvicted records the removal of one cache entry.
func CacheEvicted(reason string) {
	cacheEvictionsTotal.WithLabelValues(reason).Inc()
}

// CacheSize publishes the current entry count.
func CacheSize(n int) {
	cacheEntries.Set(float64(n))
}

// SnapshotCaptured records one schema snapshot capture.
func SnapshotCaptured() {
	snapshotsCapturedTotal.Inc()
}

// SchemaChange records one detected schema change of the given type.
func SchemaChange(changeType string) {
	schemaChangesTotal.WithLabelValues(changeType).Inc()
}

// BrokerOperation records the outcome and latency of a broker operation.
func BrokerOperation(operation string, success bool, elapsed time.Duration) {
	brokerOperationsTotal.WithLabelValues(operation, strconv.FormatBool(success)).Inc()
	brokerOperationDurationMs.WithLabelValues(operation).Observe(float64(elapsed.Microseconds()) / 1000.0)
}

// AssistantRequest records an LLM completion call.
func AssistantRequest(provider string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	assistantRequestsTotal.WithLabelValues(provider, outcome).Inc()
}

// HTTPRequest records a served HTTP request.
func HTTPRequest(method, path string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, path, code).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, path, code).Observe(elapsed.Seconds())
}
