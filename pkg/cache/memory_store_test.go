package cache_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crumbworks/querycache/pkg/cache"
)

func newTestEntry(id, question string, embedding []float32) *cache.CacheEntry {
	normalized := cache.Normalize(question)
	now := time.Now()
	return &cache.CacheEntry{
		ID:                 id,
		Question:           question,
		QuestionNormalized: normalized,
		QuestionHash:       cache.Fingerprint(normalized),
		Embedding:          embedding,
		Answer:             "answer for " + question,
		ContextSources:     []string{},
		Intent:             cache.ClassifyIntent(normalized),
		Confidence:         0.9,
		UsageCount:         1,
		CreatedAt:          now,
		LastUsedAt:         now,
	}
}

func TestMemoryStoreGetByHash(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore(cache.MemoryStoreOptions{})

	entry := newTestEntry("id-1", "do you deliver", []float32{1, 0, 0})
	require.NoError(t, store.Insert(ctx, entry))

	got, err := store.GetByHash(ctx, entry.QuestionHash)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entry.Answer, got.Answer)
	assert.Equal(t, entry.ID, got.ID)

	// Absent fingerprints are a nil result, not an error.
	got, err = store.GetByHash(ctx, cache.FingerprintQuestion("never stored"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStoreInsertReplacesSameFingerprint(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore(cache.MemoryStoreOptions{Dimension: 3})

	stale := newTestEntry("id-old", "do you deliver", []float32{1, 0, 0})
	stale.Answer = "Old answer."
	require.NoError(t, store.Insert(ctx, stale))

	fresh := newTestEntry("id-new", "do you deliver", []float32{1, 0, 0})
	fresh.Answer = "Fresh answer."
	require.NoError(t, store.Insert(ctx, fresh))

	got, err := store.GetByHash(ctx, fresh.QuestionHash)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "id-new", got.ID)
	assert.Equal(t, "Fresh answer.", got.Answer)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalEntries, "same fingerprint replaces, never duplicates")

	// The replaced entry's id no longer resolves.
	assert.Error(t, store.IncrementUsage(ctx, "id-old"))
	assert.NoError(t, store.IncrementUsage(ctx, "id-new"))
}

func TestMemoryStoreFindSimilar(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore(cache.MemoryStoreOptions{Dimension: 3})

	require.NoError(t, store.Insert(ctx, newTestEntry("id-1", "do you deliver", []float32{1, 0, 0})))
	require.NoError(t, store.Insert(ctx, newTestEntry("id-2", "what are your hours", []float32{0, 1, 0})))
	require.NoError(t, store.Insert(ctx, newTestEntry("id-3", "delivery options", []float32{0.9486833, 0.31622776, 0})))

	scored, err := store.FindSimilar(ctx, []float32{1, 0, 0}, 0.85, 3)
	require.NoError(t, err)
	require.Len(t, scored, 2)

	// Ordered by descending similarity, identical vector first.
	assert.Equal(t, "id-1", scored[0].Entry.ID)
	assert.InDelta(t, 1.0, float64(scored[0].Similarity), 1e-5)
	assert.Equal(t, "id-3", scored[1].Entry.ID)
	assert.Less(t, scored[1].Similarity, scored[0].Similarity)

	// topK caps the candidate set.
	scored, err = store.FindSimilar(ctx, []float32{1, 0, 0}, 0.0, 1)
	require.NoError(t, err)
	assert.Len(t, scored, 1)

	// Dimension mismatches are rejected, not silently mis-scored.
	_, err = store.FindSimilar(ctx, []float32{1, 0}, 0.85, 3)
	assert.Error(t, err)
}

func TestMemoryStoreFindSimilarSkipsExpired(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore(cache.MemoryStoreOptions{})

	expired := newTestEntry("id-1", "do you deliver", []float32{1, 0, 0})
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, store.Insert(ctx, expired))

	scored, err := store.FindSimilar(ctx, []float32{1, 0, 0}, 0.5, 3)
	require.NoError(t, err)
	assert.Empty(t, scored, "expired entries must never be served")
}

func TestMemoryStoreIncrementUsageConcurrent(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore(cache.MemoryStoreOptions{})

	entry := newTestEntry("id-1", "do you deliver", []float32{1, 0, 0})
	entry.UsageCount = 5
	require.NoError(t, store.Insert(ctx, entry))

	const increments = 50
	var wg sync.WaitGroup
	for i := 0; i < increments; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.IncrementUsage(ctx, "id-1"))
		}()
	}
	wg.Wait()

	got, err := store.GetByHash(ctx, entry.QuestionHash)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(5+increments), got.UsageCount, "no increment may be lost")

	assert.Error(t, store.IncrementUsage(ctx, "missing-id"))
}

func TestMemoryStoreCleanup(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore(cache.MemoryStoreOptions{})

	old := time.Now().AddDate(0, 0, -60)

	// Stale: old and rarely used.
	stale := newTestEntry("stale", "rarely asked", []float32{1, 0, 0})
	stale.CreatedAt = old
	stale.UsageCount = 1
	require.NoError(t, store.Insert(ctx, stale))

	// Old but popular: survives the usage threshold.
	popular := newTestEntry("popular", "do you deliver", []float32{0, 1, 0})
	popular.CreatedAt = old
	popular.UsageCount = 40
	require.NoError(t, store.Insert(ctx, popular))

	// Old, rarely used, but pinned.
	pinned := newTestEntry("pinned", "what are your hours", []float32{0, 0, 1})
	pinned.CreatedAt = old
	pinned.UsageCount = 1
	pinned.IsPinned = true
	require.NoError(t, store.Insert(ctx, pinned))

	// Hard-expired and pinned: pinning never overrides hard expiry.
	expiredPinned := newTestEntry("expired", "old promo", []float32{0.5, 0.5, 0.70710677})
	expiredPinned.IsPinned = true
	expiredPinned.ExpiresAt = time.Now().Add(-time.Hour)
	require.NoError(t, store.Insert(ctx, expiredPinned))

	policy := cache.CleanupPolicy{MinUsageThreshold: 2, MaxAgeDays: 30, KeepPinned: true}
	removed, err := store.Cleanup(ctx, policy)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalEntries)

	kept, err := store.GetByHash(ctx, pinned.QuestionHash)
	require.NoError(t, err)
	require.NotNil(t, kept, "pinned entries survive the age/usage predicate")

	gone, err := store.GetByHash(ctx, expiredPinned.QuestionHash)
	require.NoError(t, err)
	assert.Nil(t, gone, "hard expiry removes pinned entries too")

	// A second sweep finds nothing: cleanup is idempotent.
	removed, err = store.Cleanup(ctx, policy)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestMemoryStoreCleanupWithoutKeepPinned(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore(cache.MemoryStoreOptions{})

	pinned := newTestEntry("pinned", "what are your hours", []float32{1, 0, 0})
	pinned.CreatedAt = time.Now().AddDate(0, 0, -60)
	pinned.UsageCount = 1
	pinned.IsPinned = true
	require.NoError(t, store.Insert(ctx, pinned))

	removed, err := store.Cleanup(ctx, cache.CleanupPolicy{MinUsageThreshold: 2, MaxAgeDays: 30, KeepPinned: false})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestMemoryStoreLRUEviction(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore(cache.MemoryStoreOptions{Dimension: 3, MaxEntries: 2})

	first := newTestEntry("id-1", "question one", []float32{1, 0, 0})
	second := newTestEntry("id-2", "question two", []float32{0, 1, 0})
	require.NoError(t, store.Insert(ctx, first))
	require.NoError(t, store.Insert(ctx, second))

	// Touch the first entry so the second becomes least recently used.
	require.NoError(t, store.IncrementUsage(ctx, "id-1"))

	third := newTestEntry("id-3", "question three", []float32{0, 0, 1})
	require.NoError(t, store.Insert(ctx, third))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalEntries)

	gone, err := store.GetByHash(ctx, second.QuestionHash)
	require.NoError(t, err)
	assert.Nil(t, gone, "least recently used entry is evicted at capacity")

	kept, err := store.GetByHash(ctx, first.QuestionHash)
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestMemoryStoreTopEntries(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore(cache.MemoryStoreOptions{Dimension: 3})

	for i, usage := range []int64{3, 17, 8} {
		entry := newTestEntry(fmt.Sprintf("id-%d", i), fmt.Sprintf("question %d", i), []float32{1, 0, 0})
		entry.UsageCount = usage
		require.NoError(t, store.Insert(ctx, entry))
	}

	top, err := store.TopEntries(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, int64(17), top[0].UsageCount)
	assert.Equal(t, int64(8), top[1].UsageCount)
}

func TestMemoryStoreStats(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore(cache.MemoryStoreOptions{Dimension: 3})

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalEntries)
	assert.Zero(t, stats.AvgUsage)

	a := newTestEntry("id-1", "question one", []float32{1, 0, 0})
	a.UsageCount = 4
	b := newTestEntry("id-2", "question two", []float32{0, 1, 0})
	b.UsageCount = 2
	require.NoError(t, store.Insert(ctx, a))
	require.NoError(t, store.Insert(ctx, b))

	stats, err = store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalEntries)
	assert.Equal(t, int64(6), stats.TotalUsage)
	assert.InDelta(t, 3.0, stats.AvgUsage, 1e-9)
}
