package embeddings

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderKey(t *testing.T) {
	p := NewMock(16)
	assert.Equal(t, "mock:mock-embed", ProviderKey(p))
}

func TestErrorClassification(t *testing.T) {
	rateLimited := fmt.Errorf("%w: too many requests", ErrRateLimited)
	assert.True(t, IsRateLimited(rateLimited))
	assert.False(t, IsAuthentication(rateLimited))

	authFailed := fmt.Errorf("%w: bad key", ErrAuthentication)
	assert.True(t, IsAuthentication(authFailed))
	assert.False(t, IsRateLimited(authFailed))

	generic := NewError("request failed", fmt.Errorf("boom"))
	assert.False(t, IsRateLimited(generic))
	assert.False(t, IsAuthentication(generic))
	assert.EqualError(t, generic, "request failed")
	assert.EqualError(t, generic.Unwrap(), "boom")
}

func TestZeroVector(t *testing.T) {
	vec := ZeroVector(4)
	require.Len(t, vec, 4)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestMock_Deterministic(t *testing.T) {
	p := NewMock(32)
	ctx := context.Background()

	a, err := p.EmbedQuery(ctx, "hello world")
	require.NoError(t, err)
	b, err := p.EmbedQuery(ctx, "hello world")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)

	c, err := p.EmbedQuery(ctx, "different text")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestMock_NonNegativeComponents(t *testing.T) {
	p := NewMock(8)
	ctx := context.Background()

	// Long inputs overflow the rolling hash; components must still land in
	// [0, 1) so cosine scores between mock vectors stay non-negative.
	texts := []string{
		"short",
		strings.Repeat("a much longer text that pushes the rolling hash far past 64 bits ", 50),
	}
	for _, text := range texts {
		vec, err := p.EmbedQuery(ctx, text)
		require.NoError(t, err)
		for i, v := range vec {
			assert.GreaterOrEqual(t, v, float32(0), "component %d for %q", i, text[:min(10, len(text))])
			assert.Less(t, v, float32(1))
		}
	}
}

func TestMock_BatchZeroesEmpties(t *testing.T) {
	p := NewMock(8)

	vectors, err := p.EmbedBatch(context.Background(), []string{"text", "", "  "})
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	assert.NotEqual(t, ZeroVector(8), vectors[0])
	assert.Equal(t, ZeroVector(8), vectors[1])
	assert.Equal(t, ZeroVector(8), vectors[2])
	assert.Equal(t, int64(1), p.BatchCalls.Load())
}

func TestNewOpenAI_RequiresKey(t *testing.T) {
	_, err := NewOpenAI(Options{})
	assert.Error(t, err)
}

func TestNewOpenAI_Dimensions(t *testing.T) {
	tests := []struct {
		model string
		dims  int
	}{
		{"text-embedding-3-small", 1536},
		{"text-embedding-3-large", 3072},
		{"text-embedding-ada-002", 1536},
		{"some-future-model", 1536},
	}

	for _, tt := range tests {
		p, err := NewOpenAI(Options{APIKey: "sk-test", Model: tt.model})
		require.NoError(t, err)
		assert.Equal(t, tt.dims, p.Dimensions(), tt.model)
		assert.Equal(t, "openai", p.ID())
		assert.Equal(t, tt.model, p.Model())
	}
}

func TestNewZhipu_Defaults(t *testing.T) {
	p, err := NewZhipu(Options{APIKey: "zhipu-test"})
	require.NoError(t, err)
	assert.Equal(t, "zhipu", p.ID())
	assert.Equal(t, "embedding-2", p.Model())
	assert.Equal(t, 1024, p.Dimensions())

	p, err = NewZhipu(Options{APIKey: "zhipu-test", Model: "embedding-3"})
	require.NoError(t, err)
	assert.Equal(t, 2048, p.Dimensions())
}
