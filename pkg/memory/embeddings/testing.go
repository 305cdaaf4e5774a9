package embeddings

import (
	"context"
	"strings"
	"sync/atomic"
)

// MockProvider generates deterministic embeddings for tests. It counts batch
// calls so cache behavior can be asserted.
type MockProvider struct {
	dimension  int
	BatchCalls atomic.Int64
	QueryCalls atomic.Int64
}

// NewMock creates a mock provider with the given dimensionality
func NewMock(dimension int) *MockProvider {
	return &MockProvider{dimension: dimension}
}

func (p *MockProvider) ID() string      { return "mock" }
func (p *MockProvider) Model() string   { return "mock-embed" }
func (p *MockProvider) Dimensions() int { return p.dimension }

// EmbedQuery generates a deterministic embedding based on a text hash
func (p *MockProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	p.QueryCalls.Add(1)
	return p.vector(text), nil
}

// EmbedBatch generates deterministic embeddings, zero vectors for empties
func (p *MockProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.BatchCalls.Add(1)
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			vectors[i] = ZeroVector(p.dimension)
			continue
		}
		vectors[i] = p.vector(text)
	}
	return vectors, nil
}

func (p *MockProvider) vector(text string) []float32 {
	// Unsigned so overflow never flips the sign; components stay in [0, 1)
	// and cosine scores stay non-negative.
	var hash uint64
	for _, c := range text {
		hash = hash*31 + uint64(c)
	}

	vec := make([]float32, p.dimension)
	for i := 0; i < p.dimension; i++ {
		vec[i] = float32((hash+uint64(i))%100) / 100.0
	}
	return vec
}
