// Package embedding provides text embedding providers for the query cache.
//
// A Provider turns a question into a fixed-length vector. The dimensionality
// is fixed per deployment; every provider validates the vectors it returns so
// a misconfigured model surfaces as an error instead of corrupting the
// similarity store.
package embedding

import (
	"context"
	"fmt"

	"github.com/crumbworks/querycache/pkg/config"
)

// ErrDimensionMismatch reports a vector whose length does not match the
// deployment's configured dimensionality. This is an integration error, not a
// transient one.
var ErrDimensionMismatch = fmt.Errorf("embedding dimension mismatch")

// Provider generates vector embeddings for text.
type Provider interface {
	// Embed creates an embedding for the given text. isQuery marks query-side
	// text so asymmetric models can apply their prefix convention; it never
	// changes the output shape.
	Embed(ctx context.Context, text string, isQuery bool) ([]float32, error)

	// Dimensions returns the dimensionality of vectors produced by this provider.
	Dimensions() int

	// Model returns the model identifier used by this provider.
	Model() string

	// Close releases any resources held by the provider.
	Close() error
}

// NewProvider creates an embedding provider from configuration.
func NewProvider(cfg config.EmbeddingSettings) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(cfg)
	case "huggingface":
		return NewHuggingFaceProvider(cfg)
	case "local", "":
		return NewLocalProvider(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %q", cfg.Provider)
	}
}

// checkDimension validates a returned vector against the configured
// dimensionality. A configured dimension of 0 means auto-detect from the
// first vector.
func checkDimension(vec []float32, want int) error {
	if want > 0 && len(vec) != want {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), want)
	}
	return nil
}
