package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStorage(t *testing.T, vectorEnabled bool) *Storage {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	logger := zerolog.Nop()

	s, err := NewStorage(dbPath, vectorEnabled, logger)
	require.NoError(t, err)
	require.NoError(t, s.Initialize())

	t.Cleanup(func() { s.Close() })
	return s
}

func testChunkRecord(id, path, text string, embedding []float32) ChunkRecord {
	return ChunkRecord{
		ID:        id,
		Path:      path,
		Source:    SourceMemory,
		StartLine: 1,
		EndLine:   3,
		Hash:      hashText(text),
		Model:     "mock-embed",
		Text:      text,
		Embedding: embedding,
		UpdatedAt: time.Now().Unix(),
	}
}

func TestStorage_FileRoundTrip(t *testing.T) {
	s := createTestStorage(t, false)

	require.NoError(t, s.UpsertFile("a.md", SourceMemory, "hash1", 100, 42))

	hash, err := s.GetFileHash("a.md", SourceMemory)
	require.NoError(t, err)
	assert.Equal(t, "hash1", hash)

	// Unknown files report an empty hash, not an error.
	hash, err = s.GetFileHash("missing.md", SourceMemory)
	require.NoError(t, err)
	assert.Empty(t, hash)

	require.NoError(t, s.UpsertFile("a.md", SourceMemory, "hash2", 200, 43))
	hash, err = s.GetFileHash("a.md", SourceMemory)
	require.NoError(t, err)
	assert.Equal(t, "hash2", hash)

	files, err := s.GetAllFiles(SourceMemory)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, int64(200), files[0].Mtime)

	require.NoError(t, s.DeleteFile("a.md", SourceMemory))
	files, err = s.GetAllFiles(SourceMemory)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestStorage_ChunkRoundTrip(t *testing.T) {
	s := createTestStorage(t, false)

	record := testChunkRecord("c1", "a.md", "searchable chunk text", []float32{0.1, 0.2})
	require.NoError(t, s.UpsertChunk(record))

	got, err := s.GetChunkByID("c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, record.Text, got.Text)
	assert.Equal(t, record.Embedding, got.Embedding)
	assert.Equal(t, SourceMemory, got.Source)

	missing, err := s.GetChunkByID("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	chunks, err := s.GetChunksByPath("a.md", SourceMemory)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)

	count, err := s.GetChunkCount(SourceMemory)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStorage_FTSStaysInSyncWithChunks(t *testing.T) {
	s := createTestStorage(t, false)
	ctx := context.Background()

	require.NoError(t, s.UpsertChunk(testChunkRecord("c1", "a.md", "the quick brown fox", nil)))
	require.NoError(t, s.UpsertChunk(testChunkRecord("c2", "a.md", "an unrelated sentence", nil)))

	results, err := s.SearchFTS(ctx, "quick fox", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ChunkID)
	assert.Greater(t, results[0].Score, 0.0)
	assert.LessOrEqual(t, results[0].Score, 1.0)

	// Updates reindex through the triggers.
	updated := testChunkRecord("c1", "a.md", "slow green turtle", nil)
	require.NoError(t, s.UpsertChunk(updated))

	results, err = s.SearchFTS(ctx, "quick fox", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = s.SearchFTS(ctx, "turtle", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)

	// Deletes drop the FTS rows too.
	deleted, err := s.DeleteChunksByPath("a.md", SourceMemory)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	results, err = s.SearchFTS(ctx, "turtle", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStorage_FTSMalformedQuery(t *testing.T) {
	s := createTestStorage(t, false)

	// Quote characters are escaped rather than breaking the query.
	results, err := s.SearchFTS(context.Background(), `"unbalanced`, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = s.SearchFTS(context.Background(), "   ", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStorage_BruteForceVectorSearch(t *testing.T) {
	s := createTestStorage(t, false)
	ctx := context.Background()

	require.NoError(t, s.UpsertChunk(testChunkRecord("c1", "a.md", "one", []float32{1, 0})))
	require.NoError(t, s.UpsertChunk(testChunkRecord("c2", "a.md", "two", []float32{0, 1})))
	require.NoError(t, s.UpsertChunk(testChunkRecord("c3", "b.md", "three", []float32{0.9, 0.1})))

	results, err := s.SearchVectors(ctx, []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "c1", results[0].ChunkID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, "c3", results[1].ChunkID)
}

func TestStorage_NativeVectorMirror(t *testing.T) {
	s := createTestStorage(t, true)
	if !s.EnsureVectorTable(2) {
		t.Skip("sqlite-vec unavailable")
	}
	ctx := context.Background()

	require.NoError(t, s.UpsertChunk(testChunkRecord("c1", "a.md", "one", []float32{1, 0})))
	require.NoError(t, s.UpsertChunk(testChunkRecord("c2", "a.md", "two", []float32{0, 1})))

	results, err := s.SearchVectors(ctx, []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "c1", results[0].ChunkID)

	// Deleting chunks clears the vector mirror as well.
	_, err = s.DeleteChunksByPath("a.md", SourceMemory)
	require.NoError(t, err)

	results, err = s.SearchVectors(ctx, []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStorage_SourceFilteredSearch(t *testing.T) {
	s := createTestStorage(t, false)
	ctx := context.Background()

	docs := testChunkRecord("d1", "doc.md", "shared keyword in docs", []float32{1, 0})
	docs.Source = SourceDocs
	require.NoError(t, s.UpsertChunk(docs))
	require.NoError(t, s.UpsertChunk(testChunkRecord("m1", "mem.md", "shared keyword in memory", []float32{1, 0})))

	results, err := s.SearchFTS(ctx, "shared keyword", 10, []Source{SourceDocs})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d1", results[0].ChunkID)

	vecResults, err := s.SearchVectors(ctx, []float32{1, 0}, 10, []Source{SourceMemory})
	require.NoError(t, err)
	require.Len(t, vecResults, 1)
	assert.Equal(t, "m1", vecResults[0].ChunkID)
}

func TestStorage_EmbeddingCache(t *testing.T) {
	s := createTestStorage(t, false)

	vec, err := s.GetCachedEmbedding("h1", "mock:mock-embed")
	require.NoError(t, err)
	assert.Nil(t, vec)

	require.NoError(t, s.CacheEmbedding("h1", "mock:mock-embed", []float32{0.5, 0.6}))

	vec, err = s.GetCachedEmbedding("h1", "mock:mock-embed")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.6}, vec)

	// A different provider key misses.
	vec, err = s.GetCachedEmbedding("h1", "openai:text-embedding-3-small")
	require.NoError(t, err)
	assert.Nil(t, vec)
}

func TestStorage_PruneEmbeddingCache(t *testing.T) {
	s := createTestStorage(t, false)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.CacheEmbedding(hashText(string(rune('a'+i))), "mock:mock-embed", []float32{float32(i)}))
	}

	pruned, err := s.PruneEmbeddingCache(10)
	require.NoError(t, err)
	assert.Equal(t, 0, pruned)

	pruned, err = s.PruneEmbeddingCache(2)
	require.NoError(t, err)
	assert.Equal(t, 3, pruned)

	_, _, cacheEntries, err := s.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 2, cacheEntries)
}

func TestStorage_Stats(t *testing.T) {
	s := createTestStorage(t, false)

	require.NoError(t, s.UpsertFile("a.md", SourceMemory, "h", 1, 10))
	require.NoError(t, s.UpsertChunk(testChunkRecord("c1", "a.md", "text", nil)))

	files, chunks, cacheEntries, err := s.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 1, files)
	assert.Equal(t, 1, chunks)
	assert.Equal(t, 0, cacheEntries)
	assert.Greater(t, s.GetDBSize(), int64(0))
}

func TestCosineSimilarity(t *testing.T) {
	score, ok := cosineSimilarity([]float32{1, 0}, []float32{1, 0})
	require.True(t, ok)
	assert.InDelta(t, 1.0, score, 1e-9)

	score, ok = cosineSimilarity([]float32{1, 0}, []float32{0, 1})
	require.True(t, ok)
	assert.InDelta(t, 0.0, score, 1e-9)

	_, ok = cosineSimilarity([]float32{1, 0}, []float32{1})
	assert.False(t, ok)

	_, ok = cosineSimilarity([]float32{0, 0}, []float32{1, 0})
	assert.False(t, ok)
}
