package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

const defaultLocalDimension = 256

// LocalProvider produces deterministic hashed bag-of-words vectors without any
// network dependency. Quality is far below a real embedding model; it exists as
// an offline fallback and as a test double. Identical texts always map to
// identical unit vectors, and texts sharing words score high cosine
// similarity.
type LocalProvider struct {
	dimension int
}

// NewLocalProvider creates a local hashed embedding provider.
func NewLocalProvider(dimension int) *LocalProvider {
	if dimension <= 0 {
		dimension = defaultLocalDimension
	}
	return &LocalProvider{dimension: dimension}
}

// Embed produces the hashed embedding. isQuery is ignored: the hashing scheme
// is symmetric.
func (p *LocalProvider) Embed(_ context.Context, text string, _ bool) ([]float32, error) {
	vec := make([]float32, p.dimension)

	words := strings.Fields(normalizeLocal(text))
	for i, word := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		bucket := int(h.Sum32()) % p.dimension
		if bucket < 0 {
			bucket += p.dimension
		}

		// Two trigonometric components per word give nearby buckets partial
		// credit; position decay weights early words slightly higher.
		angle := float64(h.Sum32()%360) * math.Pi / 180
		weight := float32(1.0 / (1.0 + 0.1*float64(i)))
		vec[bucket] += float32(math.Cos(angle)) * weight
		vec[(bucket+1)%p.dimension] += float32(math.Sin(angle)) * weight
	}

	// Normalize to a unit vector so dot product equals cosine similarity
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum > 0 {
		norm := float32(math.Sqrt(sum))
		for i := range vec {
			vec[i] /= norm
		}
	}

	return vec, nil
}

func normalizeLocal(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return b.String()
}

// Dimensions returns the fixed dimensionality.
func (p *LocalProvider) Dimensions() int { return p.dimension }

// Model identifies the hashed fallback scheme.
func (p *LocalProvider) Model() string { return "local-hashed" }

// Close is a no-op.
func (p *LocalProvider) Close() error { return nil }
