package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/crumbworks/querycache/pkg/cache"
	"github.com/crumbworks/querycache/pkg/config"
)

func TestCache(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Cache Suite")
}

// stubProvider returns canned unit vectors keyed by normalized text, so
// similarity outcomes are exact and deterministic.
type stubProvider struct {
	vectors        map[string][]float32
	err            error
	errFor         map[string]error
	failOnCanceled bool
}

func (p *stubProvider) Embed(ctx context.Context, text string, _ bool) ([]float32, error) {
	if p.failOnCanceled && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if p.err != nil {
		return nil, p.err
	}
	if err, ok := p.errFor[text]; ok {
		return nil, err
	}
	if v, ok := p.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func (p *stubProvider) Dimensions() int { return 3 }
func (p *stubProvider) Model() string   { return "stub" }
func (p *stubProvider) Close() error    { return nil }

func defaultSettings() config.CacheSettings {
	maxAge := 168
	return config.CacheSettings{
		Enabled:                  true,
		BackendType:              "memory",
		UseSemanticCache:         true,
		ExactMatchThreshold:      0.98,
		SemanticMatchThreshold:   0.85,
		TopK:                     3,
		MaxAgeHours:              &maxAge,
		EstimatedTokensPerAnswer: 150,
	}
}

var _ = Describe("QueryCache Engine", func() {
	var (
		ctx      context.Context
		store    *cache.MemoryStore
		provider *stubProvider
		engine   *cache.QueryCache
	)

	newEngine := func(settings config.CacheSettings) *cache.QueryCache {
		return cache.NewQueryCache(store, provider, cache.EngineOptions{
			Settings: settings,
			Warm:     config.WarmSettings{IntervalMS: 1, Confidence: 0.9},
		})
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = cache.NewMemoryStore(cache.MemoryStoreOptions{Dimension: 3})
		provider = &stubProvider{vectors: map[string][]float32{
			"do you deliver":      {1, 0, 0},
			"do you do delivery":  {0.95, 0.31224990, 0},
			"can i get delivery":  {0.99, 0.14106736, 0},
			"what are your hours": {0, 1, 0},
		}}
		engine = newEngine(defaultSettings())
	})

	Describe("Store and Lookup", func() {
		It("round-trips a stored answer as an exact match", func() {
			err := engine.Store(ctx, "Do you deliver?", "Yes, within 5 miles.", []string{"faq.md"}, 0.95)
			Expect(err).NotTo(HaveOccurred())

			match, err := engine.Lookup(ctx, "Do you deliver?")
			Expect(err).NotTo(HaveOccurred())
			Expect(match).NotTo(BeNil())
			Expect(match.Kind).To(Equal(cache.MatchExact))
			Expect(match.Similarity).To(BeNumerically("==", 1.0))
			Expect(match.Entry.Answer).To(Equal("Yes, within 5 miles."))
			Expect(match.Entry.ContextSources).To(Equal([]string{"faq.md"}))
		})

		It("matches punctuation and casing variants exactly", func() {
			Expect(engine.Store(ctx, "do you deliver", "Yes.", nil, 0.9)).To(Succeed())

			match, err := engine.Lookup(ctx, "  DO YOU DELIVER??  ")
			Expect(err).NotTo(HaveOccurred())
			Expect(match).NotTo(BeNil())
			Expect(match.Kind).To(Equal(cache.MatchExact))
		})

		It("bumps usage on each hit", func() {
			Expect(engine.Store(ctx, "do you deliver", "Yes.", nil, 0.9)).To(Succeed())

			for i := 0; i < 3; i++ {
				match, err := engine.Lookup(ctx, "do you deliver")
				Expect(err).NotTo(HaveOccurred())
				Expect(match).NotTo(BeNil())
			}

			stored, err := store.GetByHash(ctx, cache.FingerprintQuestion("do you deliver"))
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.UsageCount).To(Equal(int64(4)))
		})

		It("classifies intent when storing", func() {
			Expect(engine.Store(ctx, "do you deliver", "Yes.", nil, 0.9)).To(Succeed())

			stored, err := store.GetByHash(ctx, cache.FingerprintQuestion("do you deliver"))
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Intent).To(Equal("delivery"))
		})

		It("stamps expiry from the max age setting", func() {
			Expect(engine.Store(ctx, "do you deliver", "Yes.", nil, 0.9)).To(Succeed())

			stored, err := store.GetByHash(ctx, cache.FingerprintQuestion("do you deliver"))
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.ExpiresAt).NotTo(BeZero())
			Expect(stored.ExpiresAt).To(BeTemporally("~", time.Now().Add(168*time.Hour), time.Minute))
		})

		It("bumps usage instead of rewriting an existing answer", func() {
			Expect(engine.Store(ctx, "do you deliver", "Yes.", nil, 0.9)).To(Succeed())
			Expect(engine.Store(ctx, "do you deliver", "A different answer.", nil, 0.9)).To(Succeed())

			stored, err := store.GetByHash(ctx, cache.FingerprintQuestion("do you deliver"))
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Answer).To(Equal("Yes."), "stored answers are write-once")
			Expect(stored.UsageCount).To(Equal(int64(2)))
		})

		It("replaces a hard-expired entry with the freshly generated answer", func() {
			past := time.Now().Add(-time.Hour)
			stale := &cache.CacheEntry{
				ID:                 "stale-delivery",
				Question:           "do you deliver",
				QuestionNormalized: "do you deliver",
				QuestionHash:       cache.FingerprintQuestion("do you deliver"),
				Embedding:          []float32{1, 0, 0},
				Answer:             "Old answer.",
				UsageCount:         7,
				CreatedAt:          past.Add(-168 * time.Hour),
				LastUsedAt:         past,
				ExpiresAt:          past,
			}
			Expect(store.Insert(ctx, stale)).To(Succeed())

			match, err := engine.Lookup(ctx, "do you deliver")
			Expect(err).NotTo(HaveOccurred())
			Expect(match).To(BeNil(), "hard-expired entries are not servable")

			Expect(engine.Store(ctx, "do you deliver", "Fresh answer.", nil, 0.9)).To(Succeed())

			match, err = engine.Lookup(ctx, "do you deliver")
			Expect(err).NotTo(HaveOccurred())
			Expect(match).NotTo(BeNil())
			Expect(match.Entry.Answer).To(Equal("Fresh answer."))
			Expect(match.Entry.ExpiresAt).To(BeTemporally(">", time.Now()))

			stats, err := store.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.TotalEntries).To(Equal(int64(1)), "the stale row is replaced, not duplicated")
		})
	})

	Describe("Semantic matching", func() {
		BeforeEach(func() {
			Expect(engine.Store(ctx, "do you deliver", "Yes, within 5 miles.", nil, 0.9)).To(Succeed())
		})

		It("serves a reworded question above the semantic threshold", func() {
			match, err := engine.Lookup(ctx, "do you do delivery")
			Expect(err).NotTo(HaveOccurred())
			Expect(match).NotTo(BeNil())
			Expect(match.Kind).To(Equal(cache.MatchSemantic))
			Expect(match.Similarity).To(BeNumerically(">=", 0.85))
			Expect(match.Entry.Answer).To(Equal("Yes, within 5 miles."))
		})

		It("labels near-identical candidates as high similarity", func() {
			match, err := engine.Lookup(ctx, "can i get delivery")
			Expect(err).NotTo(HaveOccurred())
			Expect(match).NotTo(BeNil())
			Expect(match.Kind).To(Equal(cache.MatchHighSimilarity))
			Expect(match.Similarity).To(BeNumerically(">=", 0.98))
		})

		It("misses below the semantic threshold", func() {
			match, err := engine.Lookup(ctx, "what are your hours")
			Expect(err).NotTo(HaveOccurred())
			Expect(match).To(BeNil())
		})

		It("still serves semantic hits when the caller's context is already canceled", func() {
			provider.failOnCanceled = true

			canceled, cancel := context.WithCancel(ctx)
			cancel()

			match, err := engine.Lookup(canceled, "do you do delivery")
			Expect(err).NotTo(HaveOccurred())
			Expect(match).NotTo(BeNil())
			Expect(match.Kind).To(Equal(cache.MatchSemantic))
		})

		It("skips the vector probe when semantic matching is disabled", func() {
			settings := defaultSettings()
			settings.UseSemanticCache = false
			engine = newEngine(settings)

			match, err := engine.Lookup(ctx, "do you do delivery")
			Expect(err).NotTo(HaveOccurred())
			Expect(match).To(BeNil())
		})
	})

	Describe("Failure degradation", func() {
		It("treats embedding failures as a miss, not an error", func() {
			Expect(engine.Store(ctx, "do you deliver", "Yes.", nil, 0.9)).To(Succeed())
			provider.err = errors.New("inference endpoint unavailable")

			match, err := engine.Lookup(ctx, "do you do delivery")
			Expect(err).NotTo(HaveOccurred())
			Expect(match).To(BeNil())
		})

		It("returns nothing when the cache is disabled", func() {
			settings := defaultSettings()
			settings.Enabled = false
			engine = newEngine(settings)

			match, err := engine.Lookup(ctx, "do you deliver")
			Expect(err).NotTo(HaveOccurred())
			Expect(match).To(BeNil())
			Expect(engine.Store(ctx, "do you deliver", "Yes.", nil, 0.9)).To(Succeed())

			stored, err := store.GetByHash(ctx, cache.FingerprintQuestion("do you deliver"))
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(BeNil(), "disabled engines never write")
		})
	})

	Describe("Warm", func() {
		seeds := []cache.SeedEntry{
			{Question: "Do you deliver?", Answer: "Yes, within 5 miles."},
			{Question: "What are your hours?", Answer: "Open 7am to 6pm."},
		}

		It("inserts pinned seed entries", func() {
			inserted, err := engine.Warm(ctx, seeds)
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(Equal(2))

			stored, err := store.GetByHash(ctx, cache.FingerprintQuestion("Do you deliver?"))
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).NotTo(BeNil())
			Expect(stored.IsPinned).To(BeTrue())
			Expect(stored.Confidence).To(BeNumerically("~", 0.9, 1e-6))
		})

		It("skips seeds that are already cached", func() {
			Expect(engine.Store(ctx, "do you deliver", "Yes.", nil, 0.9)).To(Succeed())

			inserted, err := engine.Warm(ctx, seeds)
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(Equal(1))
		})

		It("skips seeds semantically covered by an existing entry", func() {
			Expect(engine.Store(ctx, "do you deliver", "Yes, within 5 miles.", nil, 0.9)).To(Succeed())

			inserted, err := engine.Warm(ctx, []cache.SeedEntry{
				{Question: "Do you do delivery?", Answer: "Yes."},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(Equal(0))

			stored, err := store.GetByHash(ctx, cache.FingerprintQuestion("Do you do delivery?"))
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(BeNil(), "a rephrased seed never lands as a duplicate")
		})

		It("logs and skips a failing seed instead of aborting the run", func() {
			provider.errFor = map[string]error{
				"do you deliver": errors.New("inference endpoint unavailable"),
			}

			inserted, err := engine.Warm(ctx, seeds)
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(Equal(1))

			stored, err := store.GetByHash(ctx, cache.FingerprintQuestion("What are your hours?"))
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).NotTo(BeNil())
		})
	})

	Describe("Pin", func() {
		It("pins by raw question text", func() {
			Expect(engine.Store(ctx, "do you deliver", "Yes.", nil, 0.9)).To(Succeed())
			Expect(engine.PinQuestion(ctx, "Do You Deliver?")).To(Succeed())

			stored, err := store.GetByHash(ctx, cache.FingerprintQuestion("do you deliver"))
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.IsPinned).To(BeTrue())
		})

		It("errors on unknown questions", func() {
			Expect(engine.PinQuestion(ctx, "never stored")).NotTo(Succeed())
		})
	})

	Describe("Stats", func() {
		It("tracks hits, misses and estimated savings", func() {
			Expect(engine.Store(ctx, "do you deliver", "Yes.", nil, 0.9)).To(Succeed())

			// Two hits, one miss.
			for i := 0; i < 2; i++ {
				match, err := engine.Lookup(ctx, "do you deliver")
				Expect(err).NotTo(HaveOccurred())
				Expect(match).NotTo(BeNil())
			}
			match, err := engine.Lookup(ctx, "what are your hours")
			Expect(err).NotTo(HaveOccurred())
			Expect(match).To(BeNil())

			stats, err := engine.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.HitCount).To(Equal(int64(2)))
			Expect(stats.MissCount).To(Equal(int64(1)))
			Expect(stats.HitRatio).To(BeNumerically("~", 2.0/3.0, 1e-9))

			// One entry, usage 3: two answer generations were avoided.
			Expect(stats.TotalEntries).To(Equal(int64(1)))
			Expect(stats.TotalUsage).To(Equal(int64(3)))
			Expect(stats.APICallsSaved).To(Equal(int64(2)))
			Expect(stats.TokensSaved).To(Equal(int64(300)))
		})

		It("records the last cleanup time", func() {
			stats, err := engine.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.LastCleanupTime).To(BeNil())

			_, err = engine.Cleanup(ctx, cache.CleanupPolicy{MinUsageThreshold: 2, MaxAgeDays: 30, KeepPinned: true})
			Expect(err).NotTo(HaveOccurred())

			stats, err = engine.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.LastCleanupTime).NotTo(BeNil())
			Expect(*stats.LastCleanupTime).To(BeTemporally("~", time.Now(), time.Minute))
		})
	})
})
