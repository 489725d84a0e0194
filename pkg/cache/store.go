package cache

import (
	"context"
)

// SimilarityStore is the persistence interface consumed by the cache engine:
// a table of CacheEntry records with point lookup by fingerprint,
// nearest-neighbor lookup by vector, usage-counter updates and bulk eviction.
//
// Concurrency control is delegated entirely to the backing store; the engine
// holds no locks over it. IncrementUsage must not lose updates under
// concurrent invocation for the same entry wherever the backend offers an
// atomic primitive (see the backend implementations for what each one
// guarantees).
type SimilarityStore interface {
	// CheckConnection verifies the store is reachable. A no-op for the
	// in-memory backend.
	CheckConnection() error

	// GetByHash returns the entry whose questionHash equals the given
	// fingerprint, or (nil, nil) when absent.
	GetByHash(ctx context.Context, questionHash string) (*CacheEntry, error)

	// FindSimilar returns up to topK unexpired entries whose similarity to
	// the query vector is at or above threshold, ordered by descending
	// similarity.
	FindSimilar(ctx context.Context, embedding []float32, threshold float32, topK int) ([]ScoredEntry, error)

	// Insert persists an entry. An existing entry with the same fingerprint
	// is replaced rather than duplicated. The entry's embedding length must
	// match the store's configured dimensionality.
	Insert(ctx context.Context, entry *CacheEntry) error

	// IncrementUsage bumps usageCount by one and refreshes lastUsedAt for the
	// given entry.
	IncrementUsage(ctx context.Context, id string) error

	// Pin marks the entry with the given fingerprint as exempt from age/usage
	// cleanup.
	Pin(ctx context.Context, questionHash string) error

	// TopEntries returns up to n entries ordered by descending usage count.
	TopEntries(ctx context.Context, n int) ([]CacheEntry, error)

	// Cleanup removes hard-expired entries and entries matching the policy's
	// age/usage predicate. Returns the number of entries removed. Idempotent.
	Cleanup(ctx context.Context, policy CleanupPolicy) (int, error)

	// Stats returns store-side aggregates.
	Stats(ctx context.Context) (StoreStats, error)

	// Close releases all resources held by the store.
	Close() error
}

// StoreBackendType identifies the available similarity store implementations.
type StoreBackendType string

const (
	// MemoryStoreType is the in-process store used for tests and small deployments
	MemoryStoreType StoreBackendType = "memory"

	// MilvusStoreType is the Milvus vector database backend
	MilvusStoreType StoreBackendType = "milvus"

	// RedisStoreType is the Redis (RediSearch vector index) backend
	RedisStoreType StoreBackendType = "redis"
)
