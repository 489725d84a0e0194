package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/crumbworks/querycache/pkg/config"
	"github.com/crumbworks/querycache/pkg/observability/metrics"
)

// OpenAIProvider generates embeddings through the OpenAI embeddings API.
// The API key comes from the OPENAI_API_KEY environment variable, read by the
// SDK's default option chain.
type OpenAIProvider struct {
	client    openai.Client
	model     string
	dimension int
	timeout   time.Duration
}

// NewOpenAIProvider creates a provider backed by the OpenAI embeddings API.
func NewOpenAIProvider(cfg config.EmbeddingSettings) (*OpenAIProvider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai embedding provider requires a model name")
	}

	var opts []option.RequestOption
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIProvider{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
	}, nil
}

// Embed generates an embedding for the given text. OpenAI embedding models
// are symmetric, so isQuery is accepted but does not alter the request.
func (p *OpenAIProvider) Embed(ctx context.Context, text string, _ bool) ([]float32, error) {
	start := time.Now()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(p.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
	})
	if err != nil {
		metrics.RecordEmbedding("openai", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("openai embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		metrics.RecordEmbedding("openai", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("openai embedding response contained no data")
	}

	raw := resp.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}

	if err := checkDimension(vec, p.dimension); err != nil {
		metrics.RecordEmbedding("openai", "error", time.Since(start).Seconds())
		return nil, err
	}
	if p.dimension == 0 {
		p.dimension = len(vec)
	}

	metrics.RecordEmbedding("openai", "success", time.Since(start).Seconds())
	return vec, nil
}

// Dimensions returns the configured or auto-detected dimensionality.
func (p *OpenAIProvider) Dimensions() int { return p.dimension }

// Model returns the embedding model name.
func (p *OpenAIProvider) Model() string { return p.model }

// Close is a no-op for the HTTP-backed provider.
func (p *OpenAIProvider) Close() error { return nil }
