package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateChunking(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateChunking(ChunkConfig{Tokens: 400, Overlap: 80}))
	assert.NoError(t, v.ValidateChunking(ChunkConfig{Tokens: 1, Overlap: 0}))
	assert.Error(t, v.ValidateChunking(ChunkConfig{Tokens: 0}))
	assert.Error(t, v.ValidateChunking(ChunkConfig{Tokens: 10, Overlap: -1}))
	assert.Error(t, v.ValidateChunking(ChunkConfig{Tokens: 10, Overlap: 10}))
}

func TestValidateHybrid(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateHybrid(HybridConfig{VectorWeight: 0.7, TextWeight: 0.3, CandidateMultiplier: 2, MinScore: 0.5}))
	assert.NoError(t, v.ValidateHybrid(HybridConfig{VectorWeight: 0, TextWeight: 1, CandidateMultiplier: 1}))
	assert.Error(t, v.ValidateHybrid(HybridConfig{VectorWeight: -0.1, TextWeight: 1, CandidateMultiplier: 1}))
	assert.Error(t, v.ValidateHybrid(HybridConfig{CandidateMultiplier: 1}))
	assert.Error(t, v.ValidateHybrid(HybridConfig{VectorWeight: 1, CandidateMultiplier: 0}))
	assert.Error(t, v.ValidateHybrid(HybridConfig{VectorWeight: 1, CandidateMultiplier: 1, MinScore: 1.5}))
}

func TestValidateStrategy(t *testing.T) {
	v := NewValidator()

	for _, s := range []string{"summarize", "archive", "delete"} {
		assert.NoError(t, v.ValidateStrategy(s))
	}
	assert.Error(t, v.ValidateStrategy(""))
	assert.Error(t, v.ValidateStrategy("compress"))
}

func TestValidateEmbedding(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateEmbedding(EmbeddingConfig{Provider: "openai", APIKey: "sk-abc"}))
	assert.NoError(t, v.ValidateEmbedding(EmbeddingConfig{Provider: "zhipu", APIKey: "whatever"}))
	assert.NoError(t, v.ValidateEmbedding(EmbeddingConfig{Provider: "openai"})) // key from env later
	assert.Error(t, v.ValidateEmbedding(EmbeddingConfig{Provider: "openai", APIKey: "not-a-key"}))
	assert.Error(t, v.ValidateEmbedding(EmbeddingConfig{Provider: "carrier-pigeon"}))
	assert.Error(t, v.ValidateEmbedding(EmbeddingConfig{Provider: "openai", BatchSize: -1}))
}

func TestValidate_FullConfig(t *testing.T) {
	v := NewValidator()

	cfg := DefaultConfig()
	assert.NoError(t, v.Validate(cfg))

	cfg.WorkspaceDir = ""
	assert.Error(t, v.Validate(cfg))
}
