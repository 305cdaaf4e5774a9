package memory

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bitwiseai/bitwise/internal/config"
	"github.com/bitwiseai/bitwise/pkg/memory/embeddings"
)

// Indexer synchronizes file content into storage: hash-based change
// detection, chunking, cache-aware embedding and chunk/file upserts.
type Indexer struct {
	storage  *Storage
	provider embeddings.Provider
	chunker  *Chunker
	logger   zerolog.Logger
}

// NewIndexer creates a new indexer
func NewIndexer(storage *Storage, provider embeddings.Provider, chunkCfg config.ChunkConfig, logger zerolog.Logger) *Indexer {
	return &Indexer{
		storage:  storage,
		provider: provider,
		chunker:  NewChunker(chunkCfg),
		logger:   logger.With().Str("component", "memory-indexer").Logger(),
	}
}

// IndexFile indexes one file's content under (path, source). Idempotent:
// unchanged content short-circuits without touching chunks. Failures are
// reported in the result, never raised, so multi-file syncs continue past a
// bad file.
func (ix *Indexer) IndexFile(ctx context.Context, path, content string, source Source, mtime int64) IndexResult {
	contentHash := hashContent(content)

	storedHash, err := ix.storage.GetFileHash(path, source)
	if err != nil {
		return failedIndex(path, fmt.Errorf("failed to read stored hash: %w", err))
	}
	if storedHash == contentHash {
		// Unchanged fast path: report how many chunks were left alone.
		count, err := ix.countChunks(path, source)
		if err != nil {
			return failedIndex(path, err)
		}
		return IndexResult{
			FilePath:      path,
			ChunksSkipped: count,
			Success:       true,
		}
	}

	if mtime == 0 {
		if info, err := os.Stat(path); err == nil {
			mtime = info.ModTime().Unix()
		} else {
			mtime = time.Now().Unix()
		}
	}

	// Full replace: chunk boundaries shift with any edit, so stale chunks
	// are dropped wholesale rather than diffed.
	if _, err := ix.storage.DeleteChunksByPath(path, source); err != nil {
		return failedIndex(path, fmt.Errorf("failed to delete stale chunks: %w", err))
	}

	chunks := ix.chunker.Chunk(content, path, source, nil)
	if len(chunks) == 0 {
		// File became empty; the file record still tracks it.
		if err := ix.storage.UpsertFile(path, source, contentHash, mtime, int64(len(content))); err != nil {
			return failedIndex(path, fmt.Errorf("failed to upsert file record: %w", err))
		}
		return IndexResult{FilePath: path, Success: true}
	}

	vectors, err := ix.embedChunks(ctx, chunks)
	if err != nil {
		return failedIndex(path, err)
	}

	now := time.Now().Unix()
	for i, chunk := range chunks {
		record := ChunkRecord{
			ID:        chunk.ID,
			Path:      chunk.Path,
			Source:    chunk.Source,
			StartLine: chunk.StartLine,
			EndLine:   chunk.EndLine,
			Hash:      chunk.Hash,
			Model:     ix.provider.Model(),
			Text:      chunk.Text,
			UpdatedAt: now,
		}
		if i < len(vectors) {
			record.Embedding = vectors[i]
		}
		if err := ix.storage.UpsertChunk(record); err != nil {
			return failedIndex(path, fmt.Errorf("failed to upsert chunk %s: %w", chunk.ID, err))
		}
	}

	if err := ix.storage.UpsertFile(path, source, contentHash, mtime, int64(len(content))); err != nil {
		return failedIndex(path, fmt.Errorf("failed to upsert file record: %w", err))
	}

	ix.logger.Debug().
		Str("path", path).
		Str("source", string(source)).
		Int("chunks", len(chunks)).
		Msg("Indexed file")

	return IndexResult{
		FilePath:      path,
		ChunksIndexed: len(chunks),
		Success:       true,
	}
}

// IndexMemoryFile reads and indexes a memory file (MEMORY.md or memory/*.md).
func (ix *Indexer) IndexMemoryFile(ctx context.Context, path string) IndexResult {
	content, err := os.ReadFile(path)
	if err != nil {
		return failedIndex(path, fmt.Errorf("failed to read file: %w", err))
	}
	return ix.IndexFile(ctx, path, string(content), SourceMemory, 0)
}

// IndexDocument indexes arbitrary document content under source=docs.
func (ix *Indexer) IndexDocument(ctx context.Context, path, content string) IndexResult {
	return ix.IndexFile(ctx, path, content, SourceDocs, 0)
}

// SkillMetadata describes a skill for index enrichment.
type SkillMetadata struct {
	Name        string
	Description string
	Tags        []string
}

// IndexSkill indexes a skill under source=skills. Content is prefixed with a
// synthesized metadata header so semantic search favors metadata matches.
func (ix *Indexer) IndexSkill(ctx context.Context, path string, meta SkillMetadata, content string) IndexResult {
	return ix.IndexFile(ctx, path, skillIndexText(meta, content), SourceSkills, 0)
}

// DeleteIndex removes all index state for (path, source).
func (ix *Indexer) DeleteIndex(path string, source Source) error {
	if _, err := ix.storage.DeleteChunksByPath(path, source); err != nil {
		return err
	}
	return ix.storage.DeleteFile(path, source)
}

// embedChunks embeds chunk texts, consulting the embedding cache first and
// batching only the misses through the provider.
func (ix *Indexer) embedChunks(ctx context.Context, chunks []Chunk) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	providerKey := embeddings.ProviderKey(ix.provider)
	vectors := make([][]float32, len(chunks))

	var missing []string
	var missingIdx []int
	for i, chunk := range chunks {
		cached, err := ix.storage.GetCachedEmbedding(chunk.Hash, providerKey)
		if err == nil && cached != nil {
			vectors[i] = cached
			continue
		}
		missing = append(missing, chunk.Text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) > 0 {
		fresh, err := ix.provider.EmbedBatch(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks: %w", err)
		}
		for j, idx := range missingIdx {
			vectors[idx] = fresh[j]
			if err := ix.storage.CacheEmbedding(chunks[idx].Hash, providerKey, fresh[j]); err != nil {
				ix.logger.Warn().Err(err).Str("chunk_id", chunks[idx].ID).Msg("Failed to cache embedding")
			}
		}
	}

	return vectors, nil
}

// countChunks returns how many chunks are stored for (path, source).
func (ix *Indexer) countChunks(path string, source Source) (int, error) {
	chunks, err := ix.storage.GetChunksByPath(path, source)
	if err != nil {
		return 0, err
	}
	return len(chunks), nil
}

func failedIndex(path string, err error) IndexResult {
	return IndexResult{FilePath: path, Error: err.Error()}
}

// skillIndexText synthesizes the enriched index text for a skill.
func skillIndexText(meta SkillMetadata, content string) string {
	var parts []string
	if meta.Name != "" {
		parts = append(parts, "Skill: "+meta.Name)
	}
	if meta.Description != "" {
		parts = append(parts, "Description: "+meta.Description)
	}
	if len(meta.Tags) > 0 {
		parts = append(parts, "Tags: "+strings.Join(meta.Tags, ", "))
	}
	parts = append(parts, "---", content)
	return strings.Join(parts, "\n")
}
