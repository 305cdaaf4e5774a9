package memory

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitwiseai/bitwise/pkg/memory/embeddings"
)

func createTestIndexer(t *testing.T) (*Indexer, *Storage, *embeddings.MockProvider) {
	t.Helper()

	s := createTestStorage(t, false)
	provider := embeddings.NewMock(8)
	ix := NewIndexer(s, provider, testChunkConfig(), zerolog.Nop())
	return ix, s, provider
}

func TestIndexFile_New(t *testing.T) {
	ix, s, _ := createTestIndexer(t)

	res := ix.IndexFile(context.Background(), "a.md", "some memory content worth indexing", SourceMemory, 123)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 1, res.ChunksIndexed)
	assert.Equal(t, 0, res.ChunksSkipped)

	chunks, err := s.GetChunksByPath("a.md", SourceMemory)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "mock-embed", chunks[0].Model)
	assert.Len(t, chunks[0].Embedding, 8)

	hash, err := s.GetFileHash("a.md", SourceMemory)
	require.NoError(t, err)
	assert.Equal(t, hashContent("some memory content worth indexing"), hash)
}

func TestIndexFile_UnchangedFastPath(t *testing.T) {
	ix, _, provider := createTestIndexer(t)
	ctx := context.Background()

	content := "stable content that does not change"
	first := ix.IndexFile(ctx, "a.md", content, SourceMemory, 1)
	require.True(t, first.Success)

	callsAfterFirst := provider.BatchCalls.Load()

	second := ix.IndexFile(ctx, "a.md", content, SourceMemory, 2)
	require.True(t, second.Success)
	assert.Equal(t, 0, second.ChunksIndexed)
	assert.Equal(t, first.ChunksIndexed, second.ChunksSkipped)

	// No re-chunking, no re-embedding.
	assert.Equal(t, callsAfterFirst, provider.BatchCalls.Load())
}

func TestIndexFile_ChangedFullReplace(t *testing.T) {
	ix, s, _ := createTestIndexer(t)
	ctx := context.Background()

	long := strings.Repeat("original content line padding out\n", 10)
	res := ix.IndexFile(ctx, "a.md", long, SourceMemory, 1)
	require.True(t, res.Success)
	require.Greater(t, res.ChunksIndexed, 1)

	res = ix.IndexFile(ctx, "a.md", "short replacement", SourceMemory, 2)
	require.True(t, res.Success)
	assert.Equal(t, 1, res.ChunksIndexed)

	// Stale chunks are gone, not orphaned.
	chunks, err := s.GetChunksByPath("a.md", SourceMemory)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short replacement", chunks[0].Text)

	results, err := s.SearchFTS(ctx, "original padding", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIndexFile_EmptyContent(t *testing.T) {
	ix, s, _ := createTestIndexer(t)
	ctx := context.Background()

	res := ix.IndexFile(ctx, "a.md", "initial content", SourceMemory, 1)
	require.True(t, res.Success)

	res = ix.IndexFile(ctx, "a.md", "", SourceMemory, 2)
	require.True(t, res.Success)
	assert.Equal(t, 0, res.ChunksIndexed)

	// File record survives with zero chunks.
	chunks, err := s.GetChunksByPath("a.md", SourceMemory)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	hash, err := s.GetFileHash("a.md", SourceMemory)
	require.NoError(t, err)
	assert.Equal(t, hashContent(""), hash)
}

func TestIndexFile_CacheHitSkipsEmbedding(t *testing.T) {
	ix, s, provider := createTestIndexer(t)
	ctx := context.Background()

	content := "cacheable content shared between paths"
	res := ix.IndexFile(ctx, "a.md", content, SourceMemory, 1)
	require.True(t, res.Success)
	assert.Equal(t, int64(1), provider.BatchCalls.Load())

	// Same text under another path hits the cache for every chunk.
	res = ix.IndexFile(ctx, "b.md", content, SourceMemory, 1)
	require.True(t, res.Success)
	assert.Equal(t, int64(1), provider.BatchCalls.Load())

	_, _, cacheEntries, err := s.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 1, cacheEntries)
}

func TestIndexMemoryFile_ReadFailure(t *testing.T) {
	ix, _, _ := createTestIndexer(t)

	res := ix.IndexMemoryFile(context.Background(), filepath.Join(t.TempDir(), "missing.md"))
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}

func TestIndexMemoryFile(t *testing.T) {
	ix, s, _ := createTestIndexer(t)

	path := filepath.Join(t.TempDir(), "note.md")
	require.NoError(t, os.WriteFile(path, []byte("a note about deployments"), 0o644))

	res := ix.IndexMemoryFile(context.Background(), path)
	require.True(t, res.Success, res.Error)

	chunks, err := s.GetChunksByPath(path, SourceMemory)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestIndexSkill_MetadataEnrichment(t *testing.T) {
	ix, s, _ := createTestIndexer(t)
	ctx := context.Background()

	meta := SkillMetadata{
		Name:        "deploy",
		Description: "rolls out a release",
		Tags:        []string{"ops", "release"},
	}
	res := ix.IndexSkill(ctx, "skills/deploy.md", meta, "run the deploy script")
	require.True(t, res.Success, res.Error)

	chunks, err := s.GetChunksByPath("skills/deploy.md", SourceSkills)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	text := chunks[0].Text
	assert.Contains(t, text, "Skill: deploy")
	assert.Contains(t, text, "Description: rolls out a release")
	assert.Contains(t, text, "Tags: ops, release")
	assert.Contains(t, text, "run the deploy script")
}

func TestDeleteIndex(t *testing.T) {
	ix, s, _ := createTestIndexer(t)
	ctx := context.Background()

	res := ix.IndexDocument(ctx, "doc.md", "document body")
	require.True(t, res.Success)

	require.NoError(t, ix.DeleteIndex("doc.md", SourceDocs))

	chunks, err := s.GetChunksByPath("doc.md", SourceDocs)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	files, err := s.GetAllFiles(SourceDocs)
	require.NoError(t, err)
	assert.Empty(t, files)
}
