package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/crumbworks/querycache/pkg/config"
	"github.com/crumbworks/querycache/pkg/observability/metrics"
)

const defaultHuggingFaceBaseURL = "https://api-inference.huggingface.co/models"

// HuggingFaceProvider generates embeddings through the Hugging Face Inference
// API. The API token comes from the HUGGINGFACE_API_KEY environment variable.
//
// e5-style models are asymmetric: query-side text is prefixed ("query: ")
// before embedding so queries and documents land in comparable subspaces.
type HuggingFaceProvider struct {
	httpClient  *http.Client
	baseURL     string
	token       string
	model       string
	queryPrefix string
	dimension   int
}

// NewHuggingFaceProvider creates a provider backed by the HF Inference API.
func NewHuggingFaceProvider(cfg config.EmbeddingSettings) (*HuggingFaceProvider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("huggingface embedding provider requires a model name")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultHuggingFaceBaseURL
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HuggingFaceProvider{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		token:       os.Getenv("HUGGINGFACE_API_KEY"),
		model:       cfg.Model,
		queryPrefix: cfg.QueryPrefix,
		dimension:   cfg.Dimension,
	}, nil
}

type hfRequest struct {
	Inputs string `json:"inputs"`
}

// Embed generates an embedding for the given text, applying the query prefix
// when isQuery is set.
func (p *HuggingFaceProvider) Embed(ctx context.Context, text string, isQuery bool) ([]float32, error) {
	start := time.Now()

	if isQuery && p.queryPrefix != "" {
		text = p.queryPrefix + text
	}

	body, err := json.Marshal(hfRequest{Inputs: text})
	if err != nil {
		return nil, fmt.Errorf("failed to encode embedding request: %w", err)
	}

	url := fmt.Sprintf("%s/%s", p.baseURL, p.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		metrics.RecordEmbedding("huggingface", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("huggingface embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordEmbedding("huggingface", "error", time.Since(start).Seconds())
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("huggingface embedding request returned %d: %s", resp.StatusCode, snippet)
	}

	var vec []float32
	if err := json.NewDecoder(resp.Body).Decode(&vec); err != nil {
		metrics.RecordEmbedding("huggingface", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}

	if err := checkDimension(vec, p.dimension); err != nil {
		metrics.RecordEmbedding("huggingface", "error", time.Since(start).Seconds())
		return nil, err
	}
	if p.dimension == 0 {
		p.dimension = len(vec)
	}

	metrics.RecordEmbedding("huggingface", "success", time.Since(start).Seconds())
	return vec, nil
}

// Dimensions returns the configured or auto-detected dimensionality.
func (p *HuggingFaceProvider) Dimensions() int { return p.dimension }

// Model returns the embedding model name.
func (p *HuggingFaceProvider) Model() string { return p.model }

// Close is a no-op for the HTTP-backed provider.
func (p *HuggingFaceProvider) Close() error { return nil }
