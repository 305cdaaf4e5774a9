package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

// Storage is the single source of truth for files, chunks, the keyword
// index, the vector index and the embedding cache, over one SQLite file.
//
// Reads go straight to the WAL-mode database; multi-statement sequences are
// serialized by a coarse lock.
type Storage struct {
	db            *sql.DB
	dbPath        string
	logger        zerolog.Logger
	vectorEnabled bool

	mu          sync.Mutex
	vectorReady bool
	vectorDims  int
}

// NewStorage opens (creating if needed) the database file.
func NewStorage(dbPath string, vectorEnabled bool, logger zerolog.Logger) (*Storage, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_fts5=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL keeps readers unblocked while the indexer writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	return &Storage{
		db:            db,
		dbPath:        dbPath,
		logger:        logger.With().Str("component", "memory-storage").Logger(),
		vectorEnabled: vectorEnabled,
	}, nil
}

// Initialize creates the schema.
func (s *Storage) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stmt := range createTables {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}

	if _, err := s.db.Exec(createFTSTable); err != nil {
		return fmt.Errorf("failed to create FTS table: %w", err)
	}

	for _, stmt := range createFTSTriggers {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create FTS triggers: %w", err)
		}
	}

	if _, err := s.db.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_version', ?)",
		schemaVersion,
	); err != nil {
		return fmt.Errorf("failed to store schema version: %w", err)
	}

	return nil
}

// Close closes the database.
func (s *Storage) Close() error {
	return s.db.Close()
}

// EnsureVectorTable creates the vec0 table for the given dimensionality.
// Any failure degrades silently to the brute-force search path.
func (s *Storage) EnsureVectorTable(dimensions int) bool {
	if !s.vectorEnabled || dimensions <= 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.vectorReady && s.vectorDims == dimensions {
		return true
	}

	if _, err := s.db.Exec(createVectorTableSQL(dimensions)); err != nil {
		s.logger.Warn().Err(err).Msg("Vector table unavailable, falling back to brute-force search")
		s.vectorReady = false
		return false
	}

	s.vectorReady = true
	s.vectorDims = dimensions
	return true
}

// VectorReady reports whether the native vector index is active.
func (s *Storage) VectorReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vectorReady
}

// === File operations ===

// UpsertFile inserts or replaces a file record by path.
func (s *Storage) UpsertFile(path string, source Source, hash string, mtime, size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(upsertFileSQL, path, string(source), hash, mtime, size)
	return err
}

// DeleteFile deletes a file record, optionally scoped to a source.
func (s *Storage) DeleteFile(path string, source Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if source != "" {
		_, err := s.db.Exec("DELETE FROM files WHERE path = ? AND source = ?", path, string(source))
		return err
	}
	_, err := s.db.Exec("DELETE FROM files WHERE path = ?", path)
	return err
}

// GetFileHash returns the stored content hash for (path, source), or empty
// string when the file is not indexed.
func (s *Storage) GetFileHash(path string, source Source) (string, error) {
	var hash string
	err := s.db.QueryRow("SELECT hash FROM files WHERE path = ? AND source = ?", path, string(source)).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return hash, nil
}

// GetAllFiles returns all file records, optionally filtered by source.
func (s *Storage) GetAllFiles(source Source) ([]FileRecord, error) {
	var rows *sql.Rows
	var err error
	if source != "" {
		rows, err = s.db.Query("SELECT path, source, hash, mtime, size FROM files WHERE source = ?", string(source))
	} else {
		rows, err = s.db.Query("SELECT path, source, hash, mtime, size FROM files")
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []FileRecord
	for rows.Next() {
		var f FileRecord
		var src string
		if err := rows.Scan(&f.Path, &src, &f.Hash, &f.Mtime, &f.Size); err != nil {
			return nil, err
		}
		f.Source = Source(src)
		files = append(files, f)
	}
	return files, rows.Err()
}

// === Chunk operations ===

// UpsertChunk inserts or replaces a chunk by id, mirroring its embedding
// into the vector index when available.
func (s *Storage) UpsertChunk(record ChunkRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	embeddingJSON := encodeEmbedding(record.Embedding)
	updatedAt := record.UpdatedAt
	if updatedAt == 0 {
		updatedAt = time.Now().Unix()
	}

	_, err := s.db.Exec(upsertChunkSQL,
		record.ID, record.Path, string(record.Source),
		record.StartLine, record.EndLine,
		record.Hash, record.Model, record.Text,
		embeddingJSON, updatedAt,
	)
	if err != nil {
		return err
	}

	if s.vectorReady && len(record.Embedding) > 0 {
		if err := s.upsertVectorLocked(record.ID, record.Embedding); err != nil {
			s.logger.Warn().Err(err).Str("chunk_id", record.ID).Msg("Failed to mirror embedding into vector index")
		}
	}

	return nil
}

// upsertVectorLocked maintains the vec0 mirror. Caller holds s.mu.
func (s *Storage) upsertVectorLocked(chunkID string, embedding []float32) error {
	// vec0 virtual tables reject ON CONFLICT, so replace explicitly.
	if _, err := s.db.Exec("DELETE FROM chunks_vec WHERE chunk_id = ?", chunkID); err != nil {
		return err
	}
	_, err := s.db.Exec(
		"INSERT INTO chunks_vec (chunk_id, embedding) VALUES (?, ?)",
		chunkID, encodeEmbedding(embedding),
	)
	return err
}

// DeleteChunksByPath removes all chunks for (path, source) from the chunks
// table and the vector mirror. Returns the number of deleted chunks.
func (s *Storage) DeleteChunksByPath(path string, source Source) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The vector mirror is keyed separately, so collect ids up front.
	rows, err := s.db.Query("SELECT id FROM chunks WHERE path = ? AND source = ?", path, string(source))
	if err != nil {
		return 0, err
	}
	var chunkIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		chunkIDs = append(chunkIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	// FTS rows follow via triggers.
	result, err := s.db.Exec("DELETE FROM chunks WHERE path = ? AND source = ?", path, string(source))
	if err != nil {
		return 0, err
	}
	deleted, _ := result.RowsAffected()

	if s.vectorReady && len(chunkIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunkIDs)), ",")
		args := make([]interface{}, len(chunkIDs))
		for i, id := range chunkIDs {
			args[i] = id
		}
		if _, err := s.db.Exec("DELETE FROM chunks_vec WHERE chunk_id IN ("+placeholders+")", args...); err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("Failed to delete vector index rows")
		}
	}

	return int(deleted), nil
}

// GetChunksByPath returns all chunks for (path, source).
func (s *Storage) GetChunksByPath(path string, source Source) ([]ChunkRecord, error) {
	rows, err := s.db.Query(selectChunkSQL+" WHERE path = ? AND source = ?", path, string(source))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []ChunkRecord
	for rows.Next() {
		record, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, record)
	}
	return chunks, rows.Err()
}

// GetChunkByID returns one chunk, or nil when it does not exist.
func (s *Storage) GetChunkByID(chunkID string) (*ChunkRecord, error) {
	rows, err := s.db.Query(selectChunkSQL+" WHERE id = ?", chunkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	record, err := scanChunk(rows)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// GetChunkCount returns the chunk count, optionally filtered by source.
func (s *Storage) GetChunkCount(source Source) (int, error) {
	var count int
	var err error
	if source != "" {
		err = s.db.QueryRow("SELECT COUNT(*) FROM chunks WHERE source = ?", string(source)).Scan(&count)
	} else {
		err = s.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&count)
	}
	return count, err
}

// === Vector search ===

// SearchVectors returns the chunk ids most similar to queryVec, scored with
// higher-is-more-similar semantics. Prefers the native index; any failure
// there degrades to brute-force cosine similarity.
func (s *Storage) SearchVectors(ctx context.Context, queryVec []float32, limit int, sourceFilter []Source) ([]VectorResult, error) {
	if !s.VectorReady() {
		return s.searchVectorsBrute(ctx, queryVec, limit, sourceFilter)
	}

	results, err := s.searchVectorsNative(ctx, queryVec, limit, sourceFilter)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Native vector search failed, using brute-force fallback")
		return s.searchVectorsBrute(ctx, queryVec, limit, sourceFilter)
	}
	return results, nil
}

func (s *Storage) searchVectorsNative(ctx context.Context, queryVec []float32, limit int, sourceFilter []Source) ([]VectorResult, error) {
	fetch := limit
	if len(sourceFilter) > 0 {
		fetch = limit * 2 // post-filtered below
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT chunk_id, distance FROM chunks_vec WHERE embedding MATCH ? AND k = ?",
		encodeEmbedding(queryVec), fetch,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	wantSource := sourceSet(sourceFilter)

	var results []VectorResult
	for rows.Next() {
		var chunkID string
		var distance float64
		if err := rows.Scan(&chunkID, &distance); err != nil {
			return nil, err
		}

		if wantSource != nil {
			chunk, err := s.GetChunkByID(chunkID)
			if err != nil || chunk == nil || !wantSource[chunk.Source] {
				continue
			}
		}

		results = append(results, VectorResult{
			ChunkID: chunkID,
			Score:   1.0 - distance,
		})
		if len(results) >= limit {
			break
		}
	}
	return results, rows.Err()
}

func (s *Storage) searchVectorsBrute(ctx context.Context, queryVec []float32, limit int, sourceFilter []Source) ([]VectorResult, error) {
	var rows *sql.Rows
	var err error
	if len(sourceFilter) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(sourceFilter)), ",")
		args := make([]interface{}, len(sourceFilter))
		for i, src := range sourceFilter {
			args[i] = string(src)
		}
		rows, err = s.db.QueryContext(ctx,
			"SELECT id, embedding FROM chunks WHERE source IN ("+placeholders+") AND embedding != '[]'", args...)
	} else {
		rows, err = s.db.QueryContext(ctx, "SELECT id, embedding FROM chunks WHERE embedding != '[]'")
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []VectorResult
	for rows.Next() {
		var id, embeddingJSON string
		if err := rows.Scan(&id, &embeddingJSON); err != nil {
			return nil, err
		}
		embedding := decodeEmbedding(embeddingJSON)
		if len(embedding) == 0 {
			continue
		}

		score, ok := cosineSimilarity(queryVec, embedding)
		if !ok {
			continue
		}
		results = append(results, VectorResult{ChunkID: id, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// cosineSimilarity returns the cosine of the angle between a and b;
// ok is false when either vector has zero norm or lengths differ.
func cosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) != len(b) {
		return 0, false
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}

// === Keyword search ===

// SearchFTS runs a ranked full-text match. Query terms are ANDed together;
// BM25 rank is converted to a 0..1 higher-is-better score. Query syntax
// errors yield an empty result rather than propagating.
func (s *Storage) SearchFTS(ctx context.Context, query string, limit int, sourceFilter []Source) ([]KeywordResult, error) {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return nil, nil
	}
	quoted := make([]string, len(terms))
	for i, term := range terms {
		quoted[i] = `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
	}
	ftsQuery := strings.Join(quoted, " AND ")

	var rows *sql.Rows
	var err error
	if len(sourceFilter) == 1 {
		rows, err = s.db.QueryContext(ctx, searchFTSWithSourceSQL, ftsQuery, string(sourceFilter[0]), limit)
	} else {
		rows, err = s.db.QueryContext(ctx, searchFTSSQL, ftsQuery, limit)
	}
	if err != nil {
		// Malformed FTS queries are a caller-input problem, not a storage
		// failure.
		s.logger.Debug().Err(err).Str("query", query).Msg("FTS query failed")
		return nil, nil
	}
	defer rows.Close()

	var results []KeywordResult
	for rows.Next() {
		var chunkID string
		var rank float64
		if err := rows.Scan(&chunkID, &rank); err != nil {
			return nil, err
		}
		// BM25 rank is negative, more negative = more relevant.
		results = append(results, KeywordResult{
			ChunkID: chunkID,
			Score:   1.0 / (1.0 + math.Abs(rank)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Multi-source filters are applied after the fact.
	if len(sourceFilter) > 1 {
		wantSource := sourceSet(sourceFilter)
		filtered := results[:0]
		for _, r := range results {
			chunk, err := s.GetChunkByID(r.ChunkID)
			if err != nil || chunk == nil || !wantSource[chunk.Source] {
				continue
			}
			filtered = append(filtered, r)
			if len(filtered) >= limit {
				break
			}
		}
		results = filtered
	}

	return results, nil
}

// === Embedding cache ===

// GetCachedEmbedding returns the cached vector for (textHash, providerKey),
// or nil on a miss.
func (s *Storage) GetCachedEmbedding(textHash, providerKey string) ([]float32, error) {
	provider, model := splitProviderKey(providerKey)

	var embeddingJSON string
	err := s.db.QueryRow(
		"SELECT embedding FROM embedding_cache WHERE provider = ? AND model = ? AND provider_key = ? AND hash = ?",
		provider, model, providerKey, textHash,
	).Scan(&embeddingJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeEmbedding(embeddingJSON), nil
}

// CacheEmbedding stores a vector under (textHash, providerKey).
func (s *Storage) CacheEmbedding(textHash, providerKey string, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	provider, model := splitProviderKey(providerKey)
	_, err := s.db.Exec(cacheEmbeddingSQL,
		provider, model, providerKey, textHash,
		encodeEmbedding(embedding), len(embedding), time.Now().Unix(),
	)
	return err
}

// PruneEmbeddingCache evicts all but the maxEntries most-recently-updated
// cache rows. Returns the number of evicted rows.
func (s *Storage) PruneEmbeddingCache(maxEntries int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM embedding_cache").Scan(&count); err != nil {
		return 0, err
	}
	if count <= maxEntries {
		return 0, nil
	}

	result, err := s.db.Exec(pruneCacheSQL, maxEntries)
	if err != nil {
		return 0, err
	}
	removed, _ := result.RowsAffected()
	return int(removed), nil
}

// === Stats ===

// GetStats returns (files, chunks, cache entries).
func (s *Storage) GetStats() (int, int, int, error) {
	var files, chunks, cacheEntries int
	err := s.db.QueryRow(statsSQL).Scan(&files, &chunks, &cacheEntries)
	return files, chunks, cacheEntries, err
}

// GetDBSize returns the database file size in bytes.
func (s *Storage) GetDBSize() int64 {
	info, err := os.Stat(s.dbPath)
	if err != nil {
		return 0
	}
	return info.Size()
}

// === helpers ===

func scanChunk(rows *sql.Rows) (ChunkRecord, error) {
	var record ChunkRecord
	var source, embeddingJSON string
	if err := rows.Scan(
		&record.ID, &record.Path, &source,
		&record.StartLine, &record.EndLine,
		&record.Hash, &record.Model, &record.Text,
		&embeddingJSON, &record.UpdatedAt,
	); err != nil {
		return ChunkRecord{}, err
	}
	record.Source = Source(source)
	record.Embedding = decodeEmbedding(embeddingJSON)
	return record, nil
}

func encodeEmbedding(embedding []float32) string {
	if len(embedding) == 0 {
		return "[]"
	}
	data, err := json.Marshal(embedding)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeEmbedding(embeddingJSON string) []float32 {
	if embeddingJSON == "" || embeddingJSON == "[]" {
		return nil
	}
	var embedding []float32
	if err := json.Unmarshal([]byte(embeddingJSON), &embedding); err != nil {
		return nil
	}
	return embedding
}

func sourceSet(sources []Source) map[Source]bool {
	if len(sources) == 0 {
		return nil
	}
	set := make(map[Source]bool, len(sources))
	for _, s := range sources {
		set[s] = true
	}
	return set
}

func splitProviderKey(providerKey string) (string, string) {
	parts := strings.SplitN(providerKey, ":", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return parts[0], ""
}
