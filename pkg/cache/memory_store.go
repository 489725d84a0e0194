package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/crumbworks/querycache/pkg/observability/logging"
	"github.com/crumbworks/querycache/pkg/observability/metrics"
)

// MemoryStore is an in-process SimilarityStore: a guarded slice with a
// fingerprint index and a linear dot-product scan. Suited to tests and small
// single-process deployments; increments are made atomic by the store's own
// write lock.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    []CacheEntry
	byHash     map[string]int // fingerprint -> index into entries
	byID       map[string]int // id -> index into entries
	dimension  int            // 0 until fixed by config or first insert
	maxEntries int
}

// MemoryStoreOptions configures the in-memory store.
type MemoryStoreOptions struct {
	// Dimension fixes embedding dimensionality up front; 0 adopts the first
	// inserted vector's length.
	Dimension int

	// MaxEntries bounds the store; 0 means unbounded. When full, the least
	// recently used entry is evicted to make room.
	MaxEntries int
}

// NewMemoryStore initializes an in-memory similarity store.
func NewMemoryStore(options MemoryStoreOptions) *MemoryStore {
	logging.Debugf("MemoryStore: initializing (dimension=%d, maxEntries=%d)",
		options.Dimension, options.MaxEntries)
	return &MemoryStore{
		byHash:     make(map[string]int),
		byID:       make(map[string]int),
		dimension:  options.Dimension,
		maxEntries: options.MaxEntries,
	}
}

// CheckConnection is a no-op for the in-memory store.
func (s *MemoryStore) CheckConnection() error { return nil }

// GetByHash returns the entry with the given fingerprint, or (nil, nil).
func (s *MemoryStore) GetByHash(_ context.Context, questionHash string) (*CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byHash[questionHash]
	if !ok {
		return nil, nil
	}
	entry := s.entries[idx]
	return &entry, nil
}

// FindSimilar scans all unexpired entries and returns the topK at or above
// threshold, ordered by descending similarity. Embeddings are unit vectors,
// so the dot product is the cosine similarity.
func (s *MemoryStore) FindSimilar(_ context.Context, embedding []float32, threshold float32, topK int) ([]ScoredEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dimension > 0 && len(embedding) != s.dimension {
		return nil, fmt.Errorf("query embedding dimension %d does not match store dimension %d",
			len(embedding), s.dimension)
	}

	now := time.Now()
	var candidates []ScoredEntry
	for i := range s.entries {
		entry := &s.entries[i]
		if entry.Expired(now) {
			continue
		}

		var dot float32
		for j := 0; j < len(embedding) && j < len(entry.Embedding); j++ {
			dot += embedding[j] * entry.Embedding[j]
		}
		if dot >= threshold {
			candidates = append(candidates, ScoredEntry{Entry: *entry, Similarity: dot})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

// Insert persists an entry, replacing any existing entry with the same
// fingerprint in place, and evicting the least recently used entry first when
// the store is at capacity.
func (s *MemoryStore) Insert(_ context.Context, entry *CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dimension == 0 {
		s.dimension = len(entry.Embedding)
	} else if len(entry.Embedding) != s.dimension {
		return fmt.Errorf("entry embedding dimension %d does not match store dimension %d",
			len(entry.Embedding), s.dimension)
	}

	if idx, ok := s.byHash[entry.QuestionHash]; ok {
		delete(s.byID, s.entries[idx].ID)
		s.entries[idx] = *entry
		s.byID[entry.ID] = idx
		return nil
	}

	if s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		s.evictLRULocked()
	}

	s.entries = append(s.entries, *entry)
	idx := len(s.entries) - 1
	s.byHash[entry.QuestionHash] = idx
	s.byID[entry.ID] = idx

	metrics.UpdateCacheEntries(string(MemoryStoreType), len(s.entries))
	return nil
}

// IncrementUsage bumps usageCount and refreshes lastUsedAt under the write
// lock, so concurrent increments for the same entry never lose updates.
func (s *MemoryStore) IncrementUsage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("cache entry not found: %s", id)
	}
	s.entries[idx].UsageCount++
	s.entries[idx].LastUsedAt = time.Now()
	return nil
}

// Pin marks the entry with the given fingerprint as pinned.
func (s *MemoryStore) Pin(_ context.Context, questionHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.byHash[questionHash]
	if !ok {
		return fmt.Errorf("cache entry not found for hash: %s", questionHash)
	}
	s.entries[idx].IsPinned = true
	return nil
}

// TopEntries returns up to n entries ordered by descending usage count.
func (s *MemoryStore) TopEntries(_ context.Context, n int) ([]CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	top := make([]CacheEntry, len(s.entries))
	copy(top, s.entries)
	sort.Slice(top, func(i, j int) bool {
		return top[i].UsageCount > top[j].UsageCount
	})
	if n > 0 && len(top) > n {
		top = top[:n]
	}
	return top, nil
}

// Cleanup removes hard-expired entries unconditionally, then entries matching
// the age/usage predicate (pins exempt when KeepPinned).
func (s *MemoryStore) Cleanup(_ context.Context, policy CleanupPolicy) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cutoff := now.AddDate(0, 0, -policy.MaxAgeDays)

	var expired, stale int
	kept := s.entries[:0]
	for _, entry := range s.entries {
		if entry.Expired(now) {
			expired++
			continue
		}
		if entry.CreatedAt.Before(cutoff) && entry.UsageCount < policy.MinUsageThreshold &&
			!(policy.KeepPinned && entry.IsPinned) {
			stale++
			continue
		}
		kept = append(kept, entry)
	}
	s.entries = kept
	s.reindexLocked()

	evicted := expired + stale
	if evicted > 0 {
		logging.LogEvent("cache_cleanup", map[string]interface{}{
			"backend":   string(MemoryStoreType),
			"expired":   expired,
			"stale":     stale,
			"remaining": len(s.entries),
		})
		metrics.RecordCacheEvictions(string(MemoryStoreType), "expired", expired)
		metrics.RecordCacheEvictions(string(MemoryStoreType), "stale", stale)
		metrics.UpdateCacheEntries(string(MemoryStoreType), len(s.entries))
	}
	return evicted, nil
}

// Stats computes aggregates over the current entries.
func (s *MemoryStore) Stats(_ context.Context) (StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := StoreStats{TotalEntries: int64(len(s.entries))}
	for i := range s.entries {
		stats.TotalUsage += s.entries[i].UsageCount
	}
	if stats.TotalEntries > 0 {
		stats.AvgUsage = float64(stats.TotalUsage) / float64(stats.TotalEntries)
	}
	return stats, nil
}

// Close clears all entries.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.byHash = make(map[string]int)
	s.byID = make(map[string]int)
	return nil
}

// evictLRULocked removes the least recently used entry. Caller must hold the
// write lock.
func (s *MemoryStore) evictLRULocked() {
	if len(s.entries) == 0 {
		return
	}
	victim := 0
	for i := 1; i < len(s.entries); i++ {
		if s.entries[i].LastUsedAt.Before(s.entries[victim].LastUsedAt) {
			victim = i
		}
	}

	evicted := s.entries[victim]
	s.entries[victim] = s.entries[len(s.entries)-1]
	s.entries = s.entries[:len(s.entries)-1]
	s.reindexLocked()

	logging.LogEvent("cache_evicted", map[string]interface{}{
		"backend":     string(MemoryStoreType),
		"id":          evicted.ID,
		"max_entries": s.maxEntries,
	})
}

// reindexLocked rebuilds the hash and id indexes. Caller must hold the write
// lock.
func (s *MemoryStore) reindexLocked() {
	s.byHash = make(map[string]int, len(s.entries))
	s.byID = make(map[string]int, len(s.entries))
	for i := range s.entries {
		s.byHash[s.entries[i].QuestionHash] = i
		s.byID[s.entries[i].ID] = i
	}
}
