package memory

import "time"

// Source partitions indexed content into logical categories.
type Source string

const (
	SourceMemory   Source = "memory"
	SourceSessions Source = "sessions"
	SourceSkills   Source = "skills"
	SourceDocs     Source = "docs"
)

// AllSources lists every known source tag.
var AllSources = []Source{SourceMemory, SourceSessions, SourceSkills, SourceDocs}

// Chunk is a bounded, line-addressable slice of a source file's text.
type Chunk struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	StartLine int               `json:"start_line"` // 1-indexed, inclusive
	EndLine   int               `json:"end_line"`   // 1-indexed, inclusive
	Hash      string            `json:"hash"`
	Path      string            `json:"path"`
	Source    Source            `json:"source"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ChunkRecord is the persisted form of a chunk.
type ChunkRecord struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Source    Source    `json:"source"`
	StartLine int       `json:"start_line"`
	EndLine   int       `json:"end_line"`
	Hash      string    `json:"hash"`
	Model     string    `json:"model"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding,omitempty"`
	UpdatedAt int64     `json:"updated_at"` // epoch seconds
}

// FileRecord tracks one indexed source file.
type FileRecord struct {
	Path   string `json:"path"`
	Source Source `json:"source"`
	Hash   string `json:"hash"`
	Mtime  int64  `json:"mtime"`
	Size   int64  `json:"size"`
}

// SearchResult is a ranked answer unit returned by the searcher.
type SearchResult struct {
	ChunkID   string            `json:"chunk_id"`
	Path      string            `json:"path"`
	Source    Source            `json:"source"`
	Text      string            `json:"text"`
	Snippet   string            `json:"snippet"`
	Score     float64           `json:"score"`
	StartLine int               `json:"start_line"`
	EndLine   int               `json:"end_line"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// VectorResult is one hit from the vector channel.
type VectorResult struct {
	ChunkID string
	Score   float64
}

// KeywordResult is one hit from the full-text channel.
type KeywordResult struct {
	ChunkID string
	Score   float64
}

// IndexResult reports the outcome of indexing one file.
type IndexResult struct {
	FilePath      string `json:"file_path"`
	ChunksIndexed int    `json:"chunks_indexed"`
	ChunksSkipped int    `json:"chunks_skipped"`
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
}

// SyncResult reports the outcome of syncing memory files.
type SyncResult struct {
	FilesSynced   int      `json:"files_synced"`
	FilesRemoved  int      `json:"files_removed"`
	ChunksIndexed int      `json:"chunks_indexed"`
	Errors        []string `json:"errors,omitempty"`
}

// CompactResult reports the outcome of compacting short-term memory.
type CompactResult struct {
	FilesCompacted     int `json:"files_compacted"`
	FilesArchived      int `json:"files_archived"`
	SummariesGenerated int `json:"summaries_generated"`
}

// Status is a read-only snapshot of the memory system.
type Status struct {
	Initialized   bool       `json:"initialized"`
	Files         int        `json:"files"`
	Chunks        int        `json:"chunks"`
	VectorEnabled bool       `json:"vector_enabled"`
	FTSEnabled    bool       `json:"fts_enabled"`
	Watching      bool       `json:"watching"`
	LastSync      *time.Time `json:"last_sync,omitempty"`
}

// Stats is a read-only statistics snapshot of the memory system.
type Stats struct {
	TotalFiles   int     `json:"total_files"`
	TotalChunks  int     `json:"total_chunks"`
	TotalVectors int     `json:"total_vectors"`
	CacheEntries int     `json:"cache_entries"`
	DBSizeBytes  int64   `json:"db_size_bytes"`
	AvgChunkSize float64 `json:"avg_chunk_size"`
}
