package embeddings

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// openAIDimensions maps OpenAI embedding models to their dimensionality.
var openAIDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// zhipuDimensions maps Zhipu embedding models to their dimensionality.
var zhipuDimensions = map[string]int{
	"embedding-2": 1024,
	"embedding-3": 2048,
}

const zhipuBaseURL = "https://open.bigmodel.cn/api/paas/v4"

// OpenAIProvider implements Provider on top of any OpenAI-compatible
// embeddings endpoint.
type OpenAIProvider struct {
	id         string
	model      string
	dimensions int
	batchSize  int
	client     openai.Client
}

// Options configures an OpenAI-compatible provider.
type Options struct {
	APIKey     string
	BaseURL    string // empty means the provider default
	Model      string
	BatchSize  int
	MaxRetries int
	Timeout    time.Duration
}

// NewOpenAI creates a provider against the OpenAI embeddings API (or any
// compatible endpoint via Options.BaseURL).
func NewOpenAI(opts Options) (*OpenAIProvider, error) {
	return newProvider("openai", opts, openAIDimensions, 1536)
}

// NewZhipu creates a provider against the Zhipu embeddings API. It differs
// from OpenAI only in base URL and model dimension table.
func NewZhipu(opts Options) (*OpenAIProvider, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = zhipuBaseURL
	}
	if opts.Model == "" {
		opts.Model = "embedding-2"
	}
	return newProvider("zhipu", opts, zhipuDimensions, 1024)
}

func newProvider(id string, opts Options, dims map[string]int, defaultDims int) (*OpenAIProvider, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%s API key is required", id)
	}
	if opts.Model == "" {
		opts.Model = "text-embedding-3-small"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(opts.MaxRetries),
		option.WithRequestTimeout(opts.Timeout),
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	dimensions := defaultDims
	if d, ok := dims[opts.Model]; ok {
		dimensions = d
	}

	return &OpenAIProvider{
		id:         id,
		model:      opts.Model,
		dimensions: dimensions,
		batchSize:  opts.BatchSize,
		client:     openai.NewClient(clientOpts...),
	}, nil
}

// ID returns the provider identifier
func (p *OpenAIProvider) ID() string {
	return p.id
}

// Model returns the embedding model name
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Dimensions returns the embedding vector dimensionality
func (p *OpenAIProvider) Dimensions() int {
	return p.dimensions
}

// EmbedQuery embeds a single query text
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return ZeroVector(p.dimensions), nil
	}

	vectors, err := p.embed(ctx, []string{strings.TrimSpace(text)})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds multiple texts, padding empty inputs with zero vectors.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	// Strip empty items; they get zero vectors reinserted at their original
	// positions so a partially-empty batch never fails as a whole.
	var valid []string
	validIdx := make([]int, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) != "" {
			valid = append(valid, strings.TrimSpace(text))
			validIdx = append(validIdx, i)
		}
	}

	result := make([][]float32, len(texts))
	for i := range result {
		result[i] = ZeroVector(p.dimensions)
	}
	if len(valid) == 0 {
		return result, nil
	}

	var embedded [][]float32
	for start := 0; start < len(valid); start += p.batchSize {
		end := start + p.batchSize
		if end > len(valid) {
			end = len(valid)
		}
		vectors, err := p.embed(ctx, valid[start:end])
		if err != nil {
			return nil, err
		}
		embedded = append(embedded, vectors...)
	}

	for i, vec := range embedded {
		result[validIdx[i]] = vec
	}

	return result, nil
}

// embed issues one embeddings request and classifies failures.
func (p *OpenAIProvider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(p.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	})
	if err != nil {
		return nil, classifyError(err)
	}

	if len(resp.Data) != len(texts) {
		return nil, NewError(fmt.Sprintf("embedding response size mismatch: sent %d, got %d", len(texts), len(resp.Data)), nil)
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		vec := make([]float32, len(data.Embedding))
		for j, v := range data.Embedding {
			vec[j] = float32(v)
		}
		vectors[i] = vec
	}

	return vectors, nil
}

// classifyError maps an API failure onto the three embedding error kinds.
func classifyError(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		switch apierr.StatusCode {
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrAuthentication, err)
		}
	}
	return NewError(fmt.Sprintf("embedding request failed: %v", err), err)
}
