// Package cache implements a semantic query response cache: an exact-hash
// probe backed by a vector-similarity probe, in front of an expensive
// answer-generation pipeline.
package cache

import (
	"time"
)

// CacheEntry is a persisted question/answer record.
//
// question, questionNormalized, questionHash, embedding, answer,
// contextSources, intent and confidence are write-once: semantic hits reuse
// the stored answer, they never rewrite it. Only the usage fields and the pin
// flag mutate after creation.
type CacheEntry struct {
	ID                 string    `json:"id"`
	Question           string    `json:"question"`
	QuestionNormalized string    `json:"question_normalized"`
	QuestionHash       string    `json:"question_hash"`
	Embedding          []float32 `json:"embedding,omitempty"`
	Answer             string    `json:"answer"`
	ContextSources     []string  `json:"context_sources"`
	Intent             string    `json:"intent"`
	Confidence         float32   `json:"confidence"`
	UsageCount         int64     `json:"usage_count"`
	IsPinned           bool      `json:"is_pinned"`
	ExpiresAt          time.Time `json:"expires_at,omitempty"` // zero value means no expiry
	CreatedAt          time.Time `json:"created_at"`
	LastUsedAt         time.Time `json:"last_used_at"`
}

// Expired reports whether the entry's hard expiry has passed. Pinning does not
// override hard expiry.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && e.ExpiresAt.Before(now)
}

// ScoredEntry pairs a candidate entry with its similarity to the query vector.
type ScoredEntry struct {
	Entry      CacheEntry
	Similarity float32
}

// MatchKind distinguishes how a lookup was satisfied.
type MatchKind string

const (
	// MatchExact is a fingerprint match of the normalized question
	MatchExact MatchKind = "exact"

	// MatchHighSimilarity is a semantic candidate at or above the exact-match
	// threshold, treated as effectively identical
	MatchHighSimilarity MatchKind = "high_similarity"

	// MatchSemantic is a reusable semantic candidate at or above the semantic
	// threshold
	MatchSemantic MatchKind = "semantic"
)

// Match is a successful lookup result.
type Match struct {
	Entry      CacheEntry
	Similarity float32
	Kind       MatchKind
}

// SeedEntry is a curated question/answer pair used to warm the cache ahead of
// live traffic.
type SeedEntry struct {
	Question string `yaml:"question" json:"question"`
	Answer   string `yaml:"answer" json:"answer"`
}

// CleanupPolicy describes a bulk eviction sweep. Hard-expired entries are
// always removed, pin flag notwithstanding; the age/usage predicate removes
// only entries matching BOTH conditions, and KeepPinned exempts pinned entries
// from that predicate.
type CleanupPolicy struct {
	MinUsageThreshold int64
	MaxAgeDays        int
	KeepPinned        bool
}

// StoreStats holds aggregates computed by the similarity store.
type StoreStats struct {
	TotalEntries int64   `json:"total_entries"`
	TotalUsage   int64   `json:"total_usage"`
	AvgUsage     float64 `json:"avg_usage"`
}

// CacheStats is the full report exposed by the engine: store aggregates plus
// engine-level counters and estimated savings.
type CacheStats struct {
	StoreStats

	HitCount  int64   `json:"hit_count"`
	MissCount int64   `json:"miss_count"`
	HitRatio  float64 `json:"hit_ratio"`

	// APICallsSaved estimates answer generations avoided: every usage beyond
	// an entry's first is a call that never reached the LLM.
	APICallsSaved int64 `json:"api_calls_saved"`

	// TokensSaved multiplies APICallsSaved by the configured per-answer token
	// estimate.
	TokensSaved int64 `json:"tokens_saved"`

	LastCleanupTime *time.Time `json:"last_cleanup_time,omitempty"`
}

// validateEntry coerces a row loaded from a store into a usable entry,
// rejecting rows missing identity or payload fields. Stores call this at their
// decode boundary instead of trusting whatever shape the backend returned.
func validateEntry(e *CacheEntry) error {
	if e.ID == "" {
		return errMalformedRow("id")
	}
	if e.QuestionHash == "" {
		return errMalformedRow("question_hash")
	}
	if e.Answer == "" {
		return errMalformedRow("answer")
	}
	if e.UsageCount < 1 {
		e.UsageCount = 1
	}
	if e.ContextSources == nil {
		e.ContextSources = []string{}
	}
	if e.Intent == "" {
		e.Intent = IntentGeneral
	}
	return nil
}

type malformedRowError struct{ field string }

func (e malformedRowError) Error() string {
	return "malformed cache row: missing " + e.field
}

func errMalformedRow(field string) error { return malformedRowError{field: field} }
