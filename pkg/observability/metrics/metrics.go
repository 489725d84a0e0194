package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheOperations tracks cache operations by backend, operation and outcome
	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querycache_operations_total",
			Help: "The total number of cache operations by backend, operation and result (hit, miss, success, error)",
		},
		[]string{"backend", "operation", "result"},
	)

	// CacheOperationDuration tracks the latency of cache operations
	CacheOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querycache_operation_duration_seconds",
			Help:    "The duration of cache operations by backend and operation",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"backend", "operation"},
	)

	// CacheHits tracks lookups answered from the cache, labeled by match kind
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querycache_hits_total",
			Help: "The total number of cache hits by match kind (exact, high_similarity, semantic)",
		},
		[]string{"match_kind"},
	)

	// CacheMisses tracks lookups that fell through to answer generation
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "querycache_misses_total",
			Help: "The total number of cache misses",
		},
	)

	// CacheEntries tracks the number of entries currently held per backend
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "querycache_entries",
			Help: "The number of entries currently stored per cache backend",
		},
		[]string{"backend"},
	)

	// CacheEvictions tracks entries removed by cleanup sweeps
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querycache_evictions_total",
			Help: "The total number of entries evicted by cleanup, labeled by reason (expired, stale)",
		},
		[]string{"backend", "reason"},
	)

	// EmbeddingDuration tracks embedding provider latency
	EmbeddingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querycache_embedding_duration_seconds",
			Help:    "The duration of embedding provider calls by provider and outcome",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "result"},
	)

	// IntentClassifications tracks how stored questions were categorized
	IntentClassifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querycache_intent_classifications_total",
			Help: "The total number of questions classified per intent label",
		},
		[]string{"intent"},
	)
)

// RecordCacheOperation records a cache operation with its outcome and duration
func RecordCacheOperation(backend, operation, result string, durationSeconds float64) {
	CacheOperations.WithLabelValues(backend, operation, result).Inc()
	CacheOperationDuration.WithLabelValues(backend, operation).Observe(durationSeconds)
}

// RecordCacheHit records a lookup served from the cache
func RecordCacheHit(matchKind string) {
	CacheHits.WithLabelValues(matchKind).Inc()
}

// RecordCacheMiss records a lookup that fell through to the answer pipeline
func RecordCacheMiss() {
	CacheMisses.Inc()
}

// UpdateCacheEntries sets the current entry count for a backend
func UpdateCacheEntries(backend string, count int) {
	CacheEntries.WithLabelValues(backend).Set(float64(count))
}

// RecordCacheEvictions adds to the eviction counter for a cleanup sweep
func RecordCacheEvictions(backend, reason string, count int) {
	if count <= 0 {
		return
	}
	CacheEvictions.WithLabelValues(backend, reason).Add(float64(count))
}

// RecordEmbedding records a single embedding provider call
func RecordEmbedding(provider, result string, durationSeconds float64) {
	EmbeddingDuration.WithLabelValues(provider, result).Observe(durationSeconds)
}

// RecordIntentClassification counts a classified question
func RecordIntentClassification(intent string) {
	IntentClassifications.WithLabelValues(intent).Inc()
}
