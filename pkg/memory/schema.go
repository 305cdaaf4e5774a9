package memory

import "fmt"

// schemaVersion is stamped into the meta table on initialize.
const schemaVersion = "1.0.0"

// createTables are the relational tables and their secondary indexes.
var createTables = []string{
	`CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS files (
		path TEXT PRIMARY KEY,
		source TEXT NOT NULL DEFAULT 'memory',
		hash TEXT NOT NULL,
		mtime INTEGER NOT NULL,
		size INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT 'memory',
		start_line INTEGER NOT NULL,
		end_line INTEGER NOT NULL,
		hash TEXT NOT NULL,
		model TEXT NOT NULL,
		text TEXT NOT NULL,
		embedding TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS embedding_cache (
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		provider_key TEXT NOT NULL,
		hash TEXT NOT NULL,
		embedding TEXT NOT NULL,
		dims INTEGER,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (provider, model, provider_key, hash)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_path ON chunks(path);`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source);`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_updated ON chunks(updated_at);`,
	`CREATE INDEX IF NOT EXISTS idx_files_source ON files(source);`,
}

// createFTSTable is the external-content FTS5 shadow of the chunks table.
// Column names must match the content table exactly or FTS row lookups fail.
const createFTSTable = `CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
	id,
	text,
	path,
	source,
	start_line,
	end_line,
	content='chunks',
	content_rowid='rowid'
);`

// createFTSTriggers keep chunks_fts in lockstep with chunks on every
// mutation path. Rowids are passed through explicitly so the external
// content stays aligned with chunks.rowid. The vector mirror is maintained
// imperatively instead.
var createFTSTriggers = []string{
	`CREATE TRIGGER IF NOT EXISTS chunks_fts_insert AFTER INSERT ON chunks BEGIN
		INSERT INTO chunks_fts(rowid, id, text, path, source, start_line, end_line)
		VALUES (new.rowid, new.id, new.text, new.path, new.source, new.start_line, new.end_line);
	END;`,
	`CREATE TRIGGER IF NOT EXISTS chunks_fts_delete AFTER DELETE ON chunks BEGIN
		INSERT INTO chunks_fts(chunks_fts, rowid, id, text, path, source, start_line, end_line)
		VALUES ('delete', old.rowid, old.id, old.text, old.path, old.source, old.start_line, old.end_line);
	END;`,
	`CREATE TRIGGER IF NOT EXISTS chunks_fts_update AFTER UPDATE ON chunks BEGIN
		INSERT INTO chunks_fts(chunks_fts, rowid, id, text, path, source, start_line, end_line)
		VALUES ('delete', old.rowid, old.id, old.text, old.path, old.source, old.start_line, old.end_line);
		INSERT INTO chunks_fts(rowid, id, text, path, source, start_line, end_line)
		VALUES (new.rowid, new.id, new.text, new.path, new.source, new.start_line, new.end_line);
	END;`,
}

// createVectorTableSQL builds the vec0 virtual table sized to the active
// embedding model.
func createVectorTableSQL(dimensions int) string {
	return fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_vec USING vec0(
		chunk_id TEXT PRIMARY KEY,
		embedding FLOAT[%d]
	);`, dimensions)
}

const (
	upsertFileSQL = `INSERT INTO files (path, source, hash, mtime, size)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			source = excluded.source,
			hash = excluded.hash,
			mtime = excluded.mtime,
			size = excluded.size;`

	upsertChunkSQL = `INSERT INTO chunks (id, path, source, start_line, end_line, hash, model, text, embedding, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path = excluded.path,
			source = excluded.source,
			start_line = excluded.start_line,
			end_line = excluded.end_line,
			hash = excluded.hash,
			model = excluded.model,
			text = excluded.text,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at;`

	selectChunkSQL = `SELECT id, path, source, start_line, end_line, hash, model, text, embedding, updated_at FROM chunks`

	searchFTSSQL = `SELECT id, rank FROM chunks_fts
		WHERE chunks_fts MATCH ? ORDER BY rank LIMIT ?;`

	searchFTSWithSourceSQL = `SELECT id, rank FROM chunks_fts
		WHERE chunks_fts MATCH ? AND source = ? ORDER BY rank LIMIT ?;`

	cacheEmbeddingSQL = `INSERT INTO embedding_cache (provider, model, provider_key, hash, embedding, dims, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider, model, provider_key, hash) DO UPDATE SET
			embedding = excluded.embedding,
			dims = excluded.dims,
			updated_at = excluded.updated_at;`

	pruneCacheSQL = `DELETE FROM embedding_cache
		WHERE rowid NOT IN (
			SELECT rowid FROM embedding_cache
			ORDER BY updated_at DESC
			LIMIT ?
		);`

	statsSQL = `SELECT
		(SELECT COUNT(*) FROM files),
		(SELECT COUNT(*) FROM chunks),
		(SELECT COUNT(*) FROM embedding_cache);`
)
