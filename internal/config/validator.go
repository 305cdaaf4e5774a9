package config

import (
	"fmt"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks a full configuration for semantic errors.
func (v *Validator) Validate(cfg *Config) error {
	if cfg.WorkspaceDir == "" {
		return fmt.Errorf("workspace_dir cannot be empty")
	}
	if err := v.ValidateChunking(cfg.Chunking); err != nil {
		return err
	}
	if err := v.ValidateHybrid(cfg.HybridSearch); err != nil {
		return err
	}
	if err := v.ValidateStrategy(cfg.ShortTerm.CompactionStrategy); err != nil {
		return err
	}
	if err := v.ValidateEmbedding(cfg.Embedding); err != nil {
		return err
	}
	return nil
}

// ValidateChunking validates chunking parameters
func (v *Validator) ValidateChunking(c ChunkConfig) error {
	if c.Tokens <= 0 {
		return fmt.Errorf("chunking.tokens must be positive, got %d", c.Tokens)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("chunking.overlap cannot be negative, got %d", c.Overlap)
	}
	if c.Overlap >= c.Tokens {
		return fmt.Errorf("chunking.overlap (%d) must be smaller than chunking.tokens (%d)", c.Overlap, c.Tokens)
	}
	return nil
}

// ValidateHybrid validates hybrid search parameters
func (v *Validator) ValidateHybrid(h HybridConfig) error {
	if h.VectorWeight < 0 || h.TextWeight < 0 {
		return fmt.Errorf("hybrid weights cannot be negative")
	}
	if h.VectorWeight+h.TextWeight == 0 {
		return fmt.Errorf("at least one hybrid weight must be positive")
	}
	if h.CandidateMultiplier < 1 {
		return fmt.Errorf("hybrid_search.candidate_multiplier must be at least 1, got %d", h.CandidateMultiplier)
	}
	if h.MinScore < 0 || h.MinScore > 1 {
		return fmt.Errorf("hybrid_search.min_score must be in [0, 1], got %f", h.MinScore)
	}
	return nil
}

// ValidateStrategy validates a compaction strategy name
func (v *Validator) ValidateStrategy(strategy string) error {
	switch strategy {
	case "summarize", "archive", "delete":
		return nil
	default:
		return fmt.Errorf("unknown compaction strategy: %q (must be summarize, archive or delete)", strategy)
	}
}

// ValidateEmbedding validates embedding provider settings
func (v *Validator) ValidateEmbedding(e EmbeddingConfig) error {
	switch e.Provider {
	case "", "openai", "zhipu":
	default:
		return fmt.Errorf("unknown embedding provider: %q", e.Provider)
	}

	// Key format check only when a key is present; an empty key is resolved
	// from the environment at initialize time.
	if e.APIKey != "" && e.Provider == "openai" && !strings.HasPrefix(e.APIKey, "sk-") {
		return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
	}

	if e.BatchSize < 0 {
		return fmt.Errorf("embedding.batch_size cannot be negative")
	}
	return nil
}
