// Package embeddings defines the embedding provider boundary consumed by the
// memory engine, plus OpenAI-compatible implementations.
package embeddings

import (
	"context"
	"errors"
	"fmt"
)

// Provider generates vector embeddings from text.
type Provider interface {
	// ID returns the provider identifier, e.g. "openai".
	ID() string
	// Model returns the embedding model name.
	Model() string
	// Dimensions returns the embedding vector dimensionality.
	Dimensions() int
	// EmbedQuery embeds a single query text. Empty input returns a zero
	// vector of the correct dimensionality.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch embeds multiple texts. Empty items yield zero vectors at
	// their original positions rather than failing the batch.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ProviderKey returns the cache key prefix for a provider configuration.
func ProviderKey(p Provider) string {
	return fmt.Sprintf("%s:%s", p.ID(), p.Model())
}

// Error is a generic embedding failure (network, malformed response, ...).
type Error struct {
	msg string
	err error
}

func (e *Error) Error() string { return e.msg }
func (e *Error) Unwrap() error { return e.err }

// NewError wraps err as a generic embedding error.
func NewError(msg string, err error) *Error {
	return &Error{msg: msg, err: err}
}

// ErrRateLimited indicates the embedding API rejected the request due to
// rate limiting. Callers may retry later.
var ErrRateLimited = errors.New("embedding rate limit exceeded")

// ErrAuthentication indicates the embedding API rejected the credentials.
// Retrying is pointless until configuration changes.
var ErrAuthentication = errors.New("embedding authentication failed")

// IsRateLimited reports whether err is a rate-limit embedding failure.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsAuthentication reports whether err is an authentication embedding failure.
func IsAuthentication(err error) bool {
	return errors.Is(err, ErrAuthentication)
}

// ZeroVector returns a zero vector of the given dimensionality.
func ZeroVector(dims int) []float32 {
	return make([]float32, dims)
}
