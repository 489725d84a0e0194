package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the query cache library and CLI.
type Config struct {
	Cache     CacheSettings     `yaml:"cache"`
	Embedding EmbeddingSettings `yaml:"embedding"`
	Logging   LoggingSettings   `yaml:"logging"`
	Tracing   TracingSettings   `yaml:"tracing"`
	Warm      WarmSettings      `yaml:"warm"`
}

// CacheSettings controls the cache engine and its similarity store backend.
type CacheSettings struct {
	// Enabled controls whether caching is active at all
	Enabled bool `yaml:"enabled"`

	// BackendType selects the similarity store: "memory", "milvus" or "redis"
	BackendType string `yaml:"backend_type"`

	// UseSemanticCache enables the vector-similarity stage after the exact probe
	UseSemanticCache bool `yaml:"use_semantic_cache"`

	// ExactMatchThreshold treats a semantic candidate as effectively identical (0.0-1.0)
	ExactMatchThreshold float32 `yaml:"exact_match_threshold"`

	// SemanticMatchThreshold is the floor for reusable semantic matches (0.0-1.0)
	SemanticMatchThreshold float32 `yaml:"semantic_match_threshold"`

	// TopK bounds the candidate set requested from the similarity store
	TopK int `yaml:"top_k"`

	// MaxAgeHours sets entry expiry. Omitted means DefaultMaxAgeHours; an
	// explicit 0 disables expiry entirely.
	MaxAgeHours *int `yaml:"max_age_hours,omitempty"`

	// EstimatedTokensPerAnswer is used for the tokens-saved estimate in stats
	EstimatedTokensPerAnswer int `yaml:"estimated_tokens_per_answer"`

	// MaxEntries bounds the in-memory backend; 0 means unbounded
	MaxEntries int `yaml:"max_entries,omitempty"`

	// Milvus specific settings
	Milvus *MilvusConfig `yaml:"milvus,omitempty"`

	// Redis specific settings
	Redis *RedisConfig `yaml:"redis,omitempty"`

	// BackendConfigPath points to a standalone backend configuration file
	// (Deprecated: prefer the inline milvus/redis sections)
	BackendConfigPath string `yaml:"backend_config_path,omitempty"`
}

// MaxAge resolves MaxAgeHours to a duration. Unset falls back to
// DefaultMaxAgeHours; an explicit 0 returns 0, meaning entries never expire.
func (c CacheSettings) MaxAge() time.Duration {
	if c.MaxAgeHours == nil {
		return time.Duration(DefaultMaxAgeHours) * time.Hour
	}
	return time.Duration(*c.MaxAgeHours) * time.Hour
}

// MilvusConfig holds connection and collection settings for the Milvus backend.
type MilvusConfig struct {
	Connection struct {
		Host    string `yaml:"host"`
		Port    int    `yaml:"port"`
		Timeout int    `yaml:"timeout"`
	} `yaml:"connection"`
	Collection struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
		VectorField struct {
			Name       string `yaml:"name"`
			Dimension  int    `yaml:"dimension"`
			MetricType string `yaml:"metric_type"`
		} `yaml:"vector_field"`
		Index struct {
			Type   string `yaml:"type"`
			Params struct {
				M              int `yaml:"M"`
				EfConstruction int `yaml:"efConstruction"`
			} `yaml:"params"`
		} `yaml:"index"`
	} `yaml:"collection"`
	Search struct {
		Params struct {
			Ef int `yaml:"ef"`
		} `yaml:"params"`
	} `yaml:"search"`
	Development struct {
		AutoCreateCollection    bool `yaml:"auto_create_collection"`
		DropCollectionOnStartup bool `yaml:"drop_collection_on_startup"`
	} `yaml:"development"`
}

// RedisConfig holds connection and index settings for the Redis backend.
type RedisConfig struct {
	Connection struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		Database int    `yaml:"database"`
		Timeout  int    `yaml:"timeout"`
	} `yaml:"connection"`
	Index struct {
		Name        string `yaml:"name"`
		Prefix      string `yaml:"prefix"`
		IndexType   string `yaml:"index_type"`
		VectorField struct {
			Name       string `yaml:"name"`
			Dimension  int    `yaml:"dimension"`
			MetricType string `yaml:"metric_type"`
		} `yaml:"vector_field"`
		Params struct {
			M              int `yaml:"M"`
			EfConstruction int `yaml:"efConstruction"`
		} `yaml:"params"`
	} `yaml:"index"`
	Development struct {
		AutoCreateIndex    bool `yaml:"auto_create_index"`
		DropIndexOnStartup bool `yaml:"drop_index_on_startup"`
	} `yaml:"development"`
}

// EmbeddingSettings selects and configures the embedding provider.
type EmbeddingSettings struct {
	// Provider is one of: "openai", "huggingface", "local"
	Provider string `yaml:"provider"`

	// Model names the embedding model, e.g. "text-embedding-3-small" or
	// "intfloat/e5-base-v2"
	Model string `yaml:"model"`

	// Dimension is the fixed embedding dimensionality for this deployment.
	// Mismatched vectors are rejected at the store boundary.
	Dimension int `yaml:"dimension"`

	// TimeoutSeconds bounds a single embedding call; expired calls degrade to
	// a cache miss
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// QueryPrefix is prepended to query-side text for asymmetric models
	// (e5-style "query: " convention)
	QueryPrefix string `yaml:"query_prefix,omitempty"`

	// BaseURL overrides the provider endpoint (self-hosted inference)
	BaseURL string `yaml:"base_url,omitempty"`
}

// LoggingSettings mirrors observability/logging.Config.
type LoggingSettings struct {
	Level       string `yaml:"level"`
	Encoding    string `yaml:"encoding"`
	Development bool   `yaml:"development"`
	AddCaller   bool   `yaml:"add_caller"`
}

// TracingSettings mirrors observability/tracing.Config.
type TracingSettings struct {
	Enabled          bool    `yaml:"enabled"`
	ExporterType     string  `yaml:"exporter_type"`
	ExporterEndpoint string  `yaml:"exporter_endpoint"`
	ExporterInsecure bool    `yaml:"exporter_insecure"`
	SamplingRate     float64 `yaml:"sampling_rate"`
	ServiceName      string  `yaml:"service_name"`
	ServiceVersion   string  `yaml:"service_version"`
}

// WarmSettings controls cache pre-seeding.
type WarmSettings struct {
	// SeedFile is a YAML list of question/answer pairs
	SeedFile string `yaml:"seed_file"`

	// IntervalMS is the delay between seed insertions, respecting embedding
	// provider rate limits
	IntervalMS int `yaml:"interval_ms"`

	// Confidence assigned to curated seed entries
	Confidence float32 `yaml:"confidence"`
}

// Default thresholds and limits applied when the config omits them.
const (
	DefaultExactMatchThreshold    = 0.98
	DefaultSemanticMatchThreshold = 0.85
	DefaultTopK                   = 3
	DefaultMaxAgeHours            = 24 * 7
	DefaultTokensPerAnswer        = 150
	DefaultEmbeddingTimeout       = 30
	DefaultWarmIntervalMS         = 100
	DefaultWarmConfidence         = 0.9
)

// applyDefaults fills unset fields with the documented defaults.
func (c *Config) applyDefaults() {
	if c.Cache.ExactMatchThreshold == 0 {
		c.Cache.ExactMatchThreshold = DefaultExactMatchThreshold
	}
	if c.Cache.SemanticMatchThreshold == 0 {
		c.Cache.SemanticMatchThreshold = DefaultSemanticMatchThreshold
	}
	if c.Cache.TopK == 0 {
		c.Cache.TopK = DefaultTopK
	}
	if c.Cache.EstimatedTokensPerAnswer == 0 {
		c.Cache.EstimatedTokensPerAnswer = DefaultTokensPerAnswer
	}
	if c.Cache.MaxAgeHours == nil {
		maxAge := DefaultMaxAgeHours
		c.Cache.MaxAgeHours = &maxAge
	}
	if c.Cache.BackendType == "" {
		c.Cache.BackendType = "memory"
	}
	if c.Embedding.TimeoutSeconds == 0 {
		c.Embedding.TimeoutSeconds = DefaultEmbeddingTimeout
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "local"
	}
	if c.Warm.IntervalMS == 0 {
		c.Warm.IntervalMS = DefaultWarmIntervalMS
	}
	if c.Warm.Confidence == 0 {
		c.Warm.Confidence = DefaultWarmConfidence
	}
}

// validate rejects configurations that cannot work at runtime.
func (c *Config) validate() error {
	if c.Cache.ExactMatchThreshold < 0 || c.Cache.ExactMatchThreshold > 1 {
		return fmt.Errorf("cache.exact_match_threshold must be in [0,1], got %f", c.Cache.ExactMatchThreshold)
	}
	if c.Cache.SemanticMatchThreshold < 0 || c.Cache.SemanticMatchThreshold > 1 {
		return fmt.Errorf("cache.semantic_match_threshold must be in [0,1], got %f", c.Cache.SemanticMatchThreshold)
	}
	if c.Cache.ExactMatchThreshold < c.Cache.SemanticMatchThreshold {
		return fmt.Errorf("cache.exact_match_threshold (%f) must be >= semantic_match_threshold (%f)",
			c.Cache.ExactMatchThreshold, c.Cache.SemanticMatchThreshold)
	}
	switch c.Cache.BackendType {
	case "memory", "milvus", "redis":
	default:
		return fmt.Errorf("cache.backend_type must be one of memory, milvus, redis; got %q", c.Cache.BackendType)
	}
	switch c.Embedding.Provider {
	case "openai", "huggingface", "local":
	default:
		return fmt.Errorf("embedding.provider must be one of openai, huggingface, local; got %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimension < 0 {
		return fmt.Errorf("embedding.dimension must be >= 0, got %d", c.Embedding.Dimension)
	}
	if c.Cache.MaxAgeHours != nil && *c.Cache.MaxAgeHours < 0 {
		return fmt.Errorf("cache.max_age_hours must be >= 0, got %d", *c.Cache.MaxAgeHours)
	}
	return nil
}
