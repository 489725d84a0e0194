package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/crumbworks/querycache/pkg/config"
	"github.com/crumbworks/querycache/pkg/embedding"
	"github.com/crumbworks/querycache/pkg/observability/logging"
	"github.com/crumbworks/querycache/pkg/observability/metrics"
	"github.com/crumbworks/querycache/pkg/observability/tracing"
)

// QueryCache is the cache engine: it composes the normalizer, the intent
// classifier, an embedding provider and a similarity store into the two-stage
// lookup (fingerprint probe, then vector probe) that fronts the answer
// pipeline.
//
// Lookups never fail the caller's request: embedding or store errors degrade
// to a miss so the pipeline falls through to live generation.
type QueryCache struct {
	store    SimilarityStore
	provider embedding.Provider
	settings config.CacheSettings
	warm     config.WarmSettings

	hitCount  int64
	missCount int64

	// embedGroup collapses concurrent embedding calls for the same
	// fingerprint into one provider request.
	embedGroup singleflight.Group

	mu              sync.Mutex
	lastCleanupTime *time.Time
}

// EngineOptions configures a QueryCache.
type EngineOptions struct {
	Settings config.CacheSettings
	Warm     config.WarmSettings
}

// NewQueryCache builds an engine over the given store and embedding provider.
func NewQueryCache(store SimilarityStore, provider embedding.Provider, options EngineOptions) *QueryCache {
	return &QueryCache{
		store:    store,
		provider: provider,
		settings: options.Settings,
		warm:     options.Warm,
	}
}

// Enabled reports whether lookups and stores are active.
func (q *QueryCache) Enabled() bool { return q.settings.Enabled }

// Lookup resolves a raw question against the cache. It returns (nil, nil) on
// a miss; a non-nil Match carries the stored answer, the similarity and how
// the match was made.
func (q *QueryCache) Lookup(ctx context.Context, question string) (*Match, error) {
	if !q.settings.Enabled {
		return nil, nil
	}

	ctx, span := tracing.StartSpan(ctx, tracing.SpanCacheLookup)
	defer span.End()

	normalized := Normalize(question)
	hash := Fingerprint(normalized)
	tracing.SetSpanAttributes(span,
		attribute.String("cache.backend", q.settings.BackendType),
		attribute.String("cache.question_hash", hash),
	)

	// Stage one: exact fingerprint probe.
	entry, err := q.store.GetByHash(ctx, hash)
	if err != nil {
		logging.Warnf("QueryCache.Lookup: hash probe failed, treating as miss: %v", err)
		tracing.RecordError(span, err)
		return q.miss(span), nil
	}
	if entry != nil && !entry.Expired(time.Now()) {
		return q.hit(ctx, span, entry, 1.0, MatchExact), nil
	}

	if !q.settings.UseSemanticCache {
		return q.miss(span), nil
	}

	// Stage two: vector probe over the top candidates.
	vec, err := q.embedQuery(ctx, hash, normalized)
	if err != nil {
		logging.Warnf("QueryCache.Lookup: embedding failed, treating as miss: %v", err)
		tracing.RecordError(span, err)
		return q.miss(span), nil
	}

	candidates, err := q.store.FindSimilar(ctx, vec, q.settings.SemanticMatchThreshold, q.settings.TopK)
	if err != nil {
		logging.Warnf("QueryCache.Lookup: similarity probe failed, treating as miss: %v", err)
		tracing.RecordError(span, err)
		return q.miss(span), nil
	}
	if len(candidates) == 0 {
		return q.miss(span), nil
	}

	best := candidates[0]
	kind := MatchSemantic
	if best.Similarity >= q.settings.ExactMatchThreshold {
		kind = MatchHighSimilarity
	}
	return q.hit(ctx, span, &best.Entry, best.Similarity, kind), nil
}

// hit records counters, bumps usage and assembles the match. A failed usage
// update never turns the hit into a miss.
func (q *QueryCache) hit(ctx context.Context, span trace.Span, entry *CacheEntry, similarity float32, kind MatchKind) *Match {
	atomic.AddInt64(&q.hitCount, 1)
	metrics.RecordCacheHit(string(kind))
	tracing.SetSpanAttributes(span,
		attribute.Bool("cache.hit", true),
		attribute.String("cache.match_kind", string(kind)),
		attribute.Float64("cache.similarity", float64(similarity)),
	)

	if err := q.store.IncrementUsage(ctx, entry.ID); err != nil {
		logging.Warnf("QueryCache: failed to update usage for %s: %v", entry.ID, err)
	} else {
		entry.UsageCount++
		entry.LastUsedAt = time.Now()
	}

	logging.LogEvent("cache_hit", map[string]interface{}{
		"backend":    q.settings.BackendType,
		"match_kind": string(kind),
		"similarity": similarity,
		"intent":     entry.Intent,
		"id":         entry.ID,
	})

	return &Match{Entry: *entry, Similarity: similarity, Kind: kind}
}

func (q *QueryCache) miss(span trace.Span) *Match {
	atomic.AddInt64(&q.missCount, 1)
	metrics.RecordCacheMiss()
	tracing.SetSpanAttributes(span, attribute.Bool("cache.hit", false))
	return nil
}

// embedQuery produces a query-side embedding, collapsing concurrent requests
// for the same fingerprint into a single provider call. The provider call is
// detached from the first caller's cancellation so collapsed callers never
// inherit its fate; the provider applies its own timeout.
func (q *QueryCache) embedQuery(ctx context.Context, hash, normalized string) ([]float32, error) {
	v, err, _ := q.embedGroup.Do(hash, func() (interface{}, error) {
		return q.provider.Embed(context.WithoutCancel(ctx), normalized, true)
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

// Store persists a freshly generated answer. When a live entry with the same
// fingerprint already exists its usage is bumped instead; stored answers are
// write-once. A hard-expired entry is treated as absent and replaced, so a
// popular question resumes being cacheable the moment its answer is
// regenerated.
func (q *QueryCache) Store(ctx context.Context, question, answer string, contextSources []string, confidence float32) error {
	if !q.settings.Enabled {
		return nil
	}

	ctx, span := tracing.StartSpan(ctx, tracing.SpanCacheStore)
	defer span.End()

	normalized := Normalize(question)
	hash := Fingerprint(normalized)

	existing, err := q.store.GetByHash(ctx, hash)
	if err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("failed to check for existing entry: %w", err)
	}
	if existing != nil && !existing.Expired(time.Now()) {
		if err := q.store.IncrementUsage(ctx, existing.ID); err != nil {
			logging.Warnf("QueryCache.Store: failed to bump existing entry %s: %v", existing.ID, err)
		}
		return nil
	}

	entry, err := q.buildEntry(ctx, question, normalized, hash, answer, contextSources, confidence, false)
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}
	if existing != nil {
		// Reuse the expired row's identity so the insert replaces it in every
		// backend instead of leaving a dead row behind.
		entry.ID = existing.ID
	}
	if err := q.store.Insert(ctx, entry); err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// StoreAsync persists an answer fire-and-forget: the response path never
// waits on embedding or storage, failures are logged and dropped.
func (q *QueryCache) StoreAsync(question, answer string, contextSources []string, confidence float32) {
	if !q.settings.Enabled {
		return
	}
	go func() {
		if err := q.Store(context.Background(), question, answer, contextSources, confidence); err != nil {
			logging.Warnf("QueryCache.StoreAsync: background store failed: %v", err)
		}
	}()
}

// buildEntry assembles a complete record: classification, document-side
// embedding and expiry stamping.
func (q *QueryCache) buildEntry(ctx context.Context, question, normalized, hash, answer string, contextSources []string, confidence float32, pinned bool) (*CacheEntry, error) {
	vec, err := q.provider.Embed(ctx, normalized, false)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}
	return q.newEntry(question, normalized, hash, answer, contextSources, confidence, pinned, vec), nil
}

// newEntry assembles a record around an already-computed embedding.
func (q *QueryCache) newEntry(question, normalized, hash, answer string, contextSources []string, confidence float32, pinned bool, vec []float32) *CacheEntry {
	intent := ClassifyIntent(normalized)
	metrics.RecordIntentClassification(intent)

	if contextSources == nil {
		contextSources = []string{}
	}

	now := time.Now()
	entry := &CacheEntry{
		ID:                 uuid.NewString(),
		Question:           question,
		QuestionNormalized: normalized,
		QuestionHash:       hash,
		Embedding:          vec,
		Answer:             answer,
		ContextSources:     contextSources,
		Intent:             intent,
		Confidence:         confidence,
		UsageCount:         1,
		IsPinned:           pinned,
		CreatedAt:          now,
		LastUsedAt:         now,
	}
	if maxAge := q.settings.MaxAge(); maxAge > 0 {
		entry.ExpiresAt = now.Add(maxAge)
	}
	return entry
}

// UpdateUsage bumps the usage counter for a served entry.
func (q *QueryCache) UpdateUsage(ctx context.Context, id string) error {
	return q.store.IncrementUsage(ctx, id)
}

// Pin marks the entry with the given fingerprint as exempt from age/usage
// cleanup. Pinned entries still honor hard expiry.
func (q *QueryCache) Pin(ctx context.Context, questionHash string) error {
	return q.store.Pin(ctx, questionHash)
}

// PinQuestion pins by raw question text.
func (q *QueryCache) PinQuestion(ctx context.Context, question string) error {
	return q.Pin(ctx, FingerprintQuestion(question))
}

// Warm pre-seeds the cache with curated question/answer pairs. Seeds are
// inserted pinned and spaced by the configured interval to respect embedding
// provider rate limits. A seed is skipped when its fingerprint already exists
// or when a semantically near-identical entry is already cached, so rephrased
// seed catalogues do not accumulate duplicates. Individual seed failures are
// logged and skipped; only context cancellation aborts the run. Returns the
// number of entries inserted.
func (q *QueryCache) Warm(ctx context.Context, seeds []SeedEntry) (int, error) {
	if !q.settings.Enabled {
		return 0, nil
	}

	ctx, span := tracing.StartSpan(ctx, tracing.SpanCacheWarm)
	defer span.End()

	interval := time.Duration(q.warm.IntervalMS) * time.Millisecond
	confidence := q.warm.Confidence

	inserted := 0
	for i, seed := range seeds {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
				return inserted, ctx.Err()
			case <-time.After(interval):
			}
		}

		normalized := Normalize(seed.Question)
		hash := Fingerprint(normalized)

		existing, err := q.store.GetByHash(ctx, hash)
		if err != nil {
			tracing.RecordError(span, err)
			logging.Warnf("QueryCache.Warm: probe failed for %q, skipping: %v", seed.Question, err)
			continue
		}
		if existing != nil {
			logging.Debugf("QueryCache.Warm: seed already cached, skipping: %q", seed.Question)
			continue
		}

		vec, err := q.provider.Embed(ctx, normalized, false)
		if err != nil {
			tracing.RecordError(span, err)
			logging.Warnf("QueryCache.Warm: embedding failed for %q, skipping: %v", seed.Question, err)
			continue
		}

		if q.settings.UseSemanticCache {
			candidates, err := q.store.FindSimilar(ctx, vec, q.settings.SemanticMatchThreshold, 1)
			if err != nil {
				tracing.RecordError(span, err)
				logging.Warnf("QueryCache.Warm: similarity probe failed for %q, skipping: %v", seed.Question, err)
				continue
			}
			if len(candidates) > 0 {
				logging.Debugf("QueryCache.Warm: near-identical entry already cached (similarity %.4f), skipping: %q",
					candidates[0].Similarity, seed.Question)
				continue
			}
		}

		entry := q.newEntry(seed.Question, normalized, hash, seed.Answer, nil, confidence, true, vec)
		if err := q.store.Insert(ctx, entry); err != nil {
			tracing.RecordError(span, err)
			logging.Warnf("QueryCache.Warm: insert failed for %q, skipping: %v", seed.Question, err)
			continue
		}
		inserted++
	}

	logging.LogEvent("cache_warmed", map[string]interface{}{
		"backend":  q.settings.BackendType,
		"seeds":    len(seeds),
		"inserted": inserted,
	})
	return inserted, nil
}

// Cleanup runs a bulk eviction sweep and records its completion time.
func (q *QueryCache) Cleanup(ctx context.Context, policy CleanupPolicy) (int, error) {
	ctx, span := tracing.StartSpan(ctx, tracing.SpanCacheCleanup)
	defer span.End()

	removed, err := q.store.Cleanup(ctx, policy)
	if err != nil {
		tracing.RecordError(span, err)
		return removed, err
	}

	now := time.Now()
	q.mu.Lock()
	q.lastCleanupTime = &now
	q.mu.Unlock()
	return removed, nil
}

// TopEntries surfaces the most reused entries, for the stats report.
func (q *QueryCache) TopEntries(ctx context.Context, n int) ([]CacheEntry, error) {
	return q.store.TopEntries(ctx, n)
}

// Stats merges store aggregates with the engine's hit/miss counters and the
// estimated savings. Every usage beyond an entry's first is an answer
// generation the cache absorbed.
func (q *QueryCache) Stats(ctx context.Context) (CacheStats, error) {
	storeStats, err := q.store.Stats(ctx)
	if err != nil {
		return CacheStats{}, err
	}
	metrics.UpdateCacheEntries(q.settings.BackendType, int(storeStats.TotalEntries))

	hits := atomic.LoadInt64(&q.hitCount)
	misses := atomic.LoadInt64(&q.missCount)

	stats := CacheStats{
		StoreStats: storeStats,
		HitCount:   hits,
		MissCount:  misses,
	}
	if total := hits + misses; total > 0 {
		stats.HitRatio = float64(hits) / float64(total)
	}

	if saved := storeStats.TotalUsage - storeStats.TotalEntries; saved > 0 {
		stats.APICallsSaved = saved
		stats.TokensSaved = saved * int64(q.settings.EstimatedTokensPerAnswer)
	}

	q.mu.Lock()
	stats.LastCleanupTime = q.lastCleanupTime
	q.mu.Unlock()
	return stats, nil
}

// Close releases the store and the embedding provider.
func (q *QueryCache) Close() error {
	if err := q.provider.Close(); err != nil {
		logging.Warnf("QueryCache: failed to close embedding provider: %v", err)
	}
	return q.store.Close()
}
