package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crumbworks/querycache/pkg/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
cache:
  enabled: true
embedding:
  dimension: 256
`)

	cfg, err := config.Parse(path)
	require.NoError(t, err)

	assert.Equal(t, float32(config.DefaultExactMatchThreshold), cfg.Cache.ExactMatchThreshold)
	assert.Equal(t, float32(config.DefaultSemanticMatchThreshold), cfg.Cache.SemanticMatchThreshold)
	assert.Equal(t, config.DefaultTopK, cfg.Cache.TopK)
	assert.Equal(t, config.DefaultTokensPerAnswer, cfg.Cache.EstimatedTokensPerAnswer)
	require.NotNil(t, cfg.Cache.MaxAgeHours)
	assert.Equal(t, config.DefaultMaxAgeHours, *cfg.Cache.MaxAgeHours)
	assert.Equal(t, config.DefaultMaxAgeHours*time.Hour, cfg.Cache.MaxAge())
	assert.Equal(t, "memory", cfg.Cache.BackendType)
	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.Equal(t, config.DefaultEmbeddingTimeout, cfg.Embedding.TimeoutSeconds)
	assert.Equal(t, config.DefaultWarmIntervalMS, cfg.Warm.IntervalMS)
	assert.InDelta(t, config.DefaultWarmConfidence, float64(cfg.Warm.Confidence), 1e-6)
}

func TestParseFullConfig(t *testing.T) {
	path := writeConfig(t, `
cache:
  enabled: true
  backend_type: redis
  use_semantic_cache: true
  exact_match_threshold: 0.99
  semantic_match_threshold: 0.9
  top_k: 5
  max_age_hours: 72
  estimated_tokens_per_answer: 200
  redis:
    connection:
      host: cache.internal
      port: 6379
    index:
      name: querycache
      prefix: "querycache:"
      vector_field:
        name: embedding
        dimension: 1536
        metric_type: COSINE
embedding:
  provider: openai
  model: text-embedding-3-small
  dimension: 1536
  timeout_seconds: 10
`)

	cfg, err := config.Parse(path)
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Cache.BackendType)
	assert.Equal(t, float32(0.99), cfg.Cache.ExactMatchThreshold)
	require.NotNil(t, cfg.Cache.MaxAgeHours)
	assert.Equal(t, 72, *cfg.Cache.MaxAgeHours)
	assert.Equal(t, 72*time.Hour, cfg.Cache.MaxAge())
	require.NotNil(t, cfg.Cache.Redis)
	assert.Equal(t, "cache.internal", cfg.Cache.Redis.Connection.Host)
	assert.Equal(t, 1536, cfg.Cache.Redis.Index.VectorField.Dimension)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, 10, cfg.Embedding.TimeoutSeconds)
}

func TestParseExplicitZeroMaxAgeDisablesExpiry(t *testing.T) {
	path := writeConfig(t, `
cache:
  enabled: true
  max_age_hours: 0
`)

	cfg, err := config.Parse(path)
	require.NoError(t, err)

	require.NotNil(t, cfg.Cache.MaxAgeHours)
	assert.Zero(t, *cfg.Cache.MaxAgeHours)
	assert.Zero(t, cfg.Cache.MaxAge(), "an explicit zero means entries never expire")
}

func TestParseRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "thresholds out of range",
			content: `
cache:
  exact_match_threshold: 1.5
`,
		},
		{
			name: "exact threshold below semantic threshold",
			content: `
cache:
  exact_match_threshold: 0.5
  semantic_match_threshold: 0.9
`,
		},
		{
			name: "unknown backend",
			content: `
cache:
  backend_type: cassandra
`,
		},
		{
			name: "unknown embedding provider",
			content: `
embedding:
  provider: bedrock
`,
		},
		{
			name: "negative max age",
			content: `
cache:
  max_age_hours: -1
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestParseMissingFile(t *testing.T) {
	_, err := config.Parse(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestReplaceAndGet(t *testing.T) {
	cfg := &config.Config{}
	cfg.Cache.BackendType = "memory"
	config.Replace(cfg)
	assert.Same(t, cfg, config.Get())
}
