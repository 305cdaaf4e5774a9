package config

// Config is the top-level configuration for the bitwise memory engine.
type Config struct {
	// Workspace directory holding MEMORY.md, memory/ and memory.db
	WorkspaceDir string `json:"workspace_dir" mapstructure:"workspace_dir"`

	// Database path (default: <workspace_dir>/memory.db)
	DBPath string `json:"db_path" mapstructure:"db_path"`

	// Embedding provider settings
	Embedding EmbeddingConfig `json:"embedding" mapstructure:"embedding"`

	// Vector index settings
	VectorEnabled bool `json:"vector_enabled" mapstructure:"vector_enabled"`

	// Chunking settings
	Chunking ChunkConfig `json:"chunking" mapstructure:"chunking"`

	// Hybrid search settings
	HybridSearch HybridConfig `json:"hybrid_search" mapstructure:"hybrid_search"`

	// Embedding cache settings
	EmbeddingCache CacheConfig `json:"embedding_cache" mapstructure:"embedding_cache"`

	// Sync settings
	Sync SyncConfig `json:"sync" mapstructure:"sync"`

	// Short-term memory settings
	ShortTerm ShortTermConfig `json:"short_term" mapstructure:"short_term"`

	// Logging settings
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// EmbeddingConfig holds embedding provider configuration
type EmbeddingConfig struct {
	Provider   string  `json:"provider" mapstructure:"provider"` // openai, zhipu
	APIKey     string  `json:"api_key" mapstructure:"api_key"`
	BaseURL    string  `json:"base_url" mapstructure:"base_url"`
	Model      string  `json:"model" mapstructure:"model"`
	BatchSize  int     `json:"batch_size" mapstructure:"batch_size"`
	MaxRetries int     `json:"max_retries" mapstructure:"max_retries"`
	TimeoutSec float64 `json:"timeout_sec" mapstructure:"timeout_sec"`
}

// ChunkConfig holds chunking configuration
type ChunkConfig struct {
	Tokens  int `json:"tokens" mapstructure:"tokens"`
	Overlap int `json:"overlap" mapstructure:"overlap"`
}

// MaxChars is the approximate chunk size limit (1 token ~ 4 chars).
func (c ChunkConfig) MaxChars() int {
	return c.Tokens * 4
}

// OverlapChars is the approximate overlap carried between chunks.
func (c ChunkConfig) OverlapChars() int {
	return c.Overlap * 4
}

// HybridConfig holds hybrid search configuration
type HybridConfig struct {
	VectorWeight        float64 `json:"vector_weight" mapstructure:"vector_weight"`
	TextWeight          float64 `json:"text_weight" mapstructure:"text_weight"`
	CandidateMultiplier int     `json:"candidate_multiplier" mapstructure:"candidate_multiplier"`
	MinScore            float64 `json:"min_score" mapstructure:"min_score"`
}

// Normalize rescales the two weights so they sum to 1.
func (h *HybridConfig) Normalize() {
	total := h.VectorWeight + h.TextWeight
	if total > 0 && total != 1.0 {
		h.VectorWeight /= total
		h.TextWeight /= total
	}
}

// CacheConfig holds embedding cache configuration
type CacheConfig struct {
	Enabled    bool `json:"enabled" mapstructure:"enabled"`
	MaxEntries int  `json:"max_entries" mapstructure:"max_entries"`
}

// SyncConfig holds file sync configuration
type SyncConfig struct {
	Watch           bool `json:"watch" mapstructure:"watch"`
	WatchDebounceMs int  `json:"watch_debounce_ms" mapstructure:"watch_debounce_ms"`
	IntervalMinutes int  `json:"interval_minutes" mapstructure:"interval_minutes"`
	OnSearch        bool `json:"on_search" mapstructure:"on_search"`
}

// ShortTermConfig holds short-term memory configuration
type ShortTermConfig struct {
	Enabled            bool   `json:"enabled" mapstructure:"enabled"`
	RetentionDays      int    `json:"retention_days" mapstructure:"retention_days"`
	CompactionStrategy string `json:"compaction_strategy" mapstructure:"compaction_strategy"` // summarize, archive, delete
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		WorkspaceDir:  "~/.bitwise",
		VectorEnabled: true,
		Embedding: EmbeddingConfig{
			Provider:   "openai",
			Model:      "text-embedding-3-small",
			BatchSize:  100,
			MaxRetries: 3,
			TimeoutSec: 60,
		},
		Chunking: ChunkConfig{
			Tokens:  400,
			Overlap: 80,
		},
		HybridSearch: HybridConfig{
			VectorWeight:        0.7,
			TextWeight:          0.3,
			CandidateMultiplier: 2,
			MinScore:            0.5,
		},
		EmbeddingCache: CacheConfig{
			Enabled:    true,
			MaxEntries: 10000,
		},
		Sync: SyncConfig{
			Watch:           true,
			WatchDebounceMs: 1000,
			IntervalMinutes: 0,
			OnSearch:        true,
		},
		ShortTerm: ShortTermConfig{
			Enabled:            true,
			RetentionDays:      7,
			CompactionStrategy: "summarize",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
	}
}
