package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/bitwiseai/bitwise/internal/config"
	"github.com/bitwiseai/bitwise/internal/observability"
	"github.com/bitwiseai/bitwise/pkg/memory/embeddings"
)

const (
	longTermFile = "MEMORY.md"
	shortTermDir = "memory"
	archiveDir   = "archive"

	longTermTemplate = "# Long-term Memory\n\n" +
		"This file contains curated persistent memory for BitwiseAI.\n\n" +
		"## Contents\n\n"
)

// Manager is the facade over the memory engine: markdown files on disk,
// a SQLite index behind them, and hybrid search on top.
type Manager struct {
	cfg      *config.Config
	logger   zerolog.Logger
	storage  *Storage
	provider embeddings.Provider
	indexer  *Indexer
	searcher *Searcher
	watcher  Watcher
	cron     *cron.Cron

	workspaceDir string

	mu          sync.RWMutex
	initialized bool
	dirty       bool
	syncing     bool
	compacting  bool
	lastSync    *time.Time
}

// NewManager creates a manager. The provider may be nil, in which case
// Initialize builds one from the configured embedding settings.
func NewManager(cfg *config.Config, provider embeddings.Provider, logger zerolog.Logger) *Manager {
	return &Manager{
		cfg:          cfg,
		provider:     provider,
		logger:       logger.With().Str("component", "memory-manager").Logger(),
		workspaceDir: config.ExpandPath(cfg.WorkspaceDir),
		dirty:        true, // first sync always runs
	}
}

// Initialize opens storage, ensures the workspace files exist, runs one
// full sync, and starts the background watcher and periodic sync when
// configured. Safe to call once; repeated calls are no-ops.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if err := os.MkdirAll(m.ShortTermDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}

	dbPath := m.cfg.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(m.workspaceDir, "memory.db")
	}

	storage, err := NewStorage(config.ExpandPath(dbPath), m.cfg.VectorEnabled, m.logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	if err := storage.Initialize(); err != nil {
		storage.Close()
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	m.storage = storage

	if m.provider == nil {
		provider, err := buildProvider(m.cfg.Embedding)
		if err != nil {
			// Keyword search still works without embeddings.
			m.logger.Warn().Err(err).Msg("No embedding provider, vector search disabled")
		} else {
			m.provider = provider
		}
	}

	if m.provider != nil && m.cfg.VectorEnabled {
		storage.EnsureVectorTable(m.provider.Dimensions())
	}

	active := m.provider
	if active == nil {
		// Keyword-only mode: zero vectors keep the indexer path uniform
		// while the vector channel stays empty.
		active = noEmbedProvider{}
	}
	m.indexer = NewIndexer(storage, active, m.cfg.Chunking, m.logger)
	m.searcher = NewSearcher(storage, active, m.cfg.HybridSearch, m.logger)

	if err := m.ensureLongTermFile(); err != nil {
		return err
	}
	if m.cfg.ShortTerm.Enabled {
		if err := m.ensureDailyFile(time.Now()); err != nil {
			return err
		}
	}

	if _, err := m.Sync(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("Initial sync failed")
	}

	if m.cfg.Sync.Watch {
		debounce := time.Duration(m.cfg.Sync.WatchDebounceMs) * time.Millisecond
		m.watcher = NewWatcher(debounce, m.onFileChange, m.logger, false)
		if err := m.watcher.AddPath(m.workspaceDir); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to watch workspace")
		}
		if err := m.watcher.AddPath(m.ShortTermDir()); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to watch short-term directory")
		}
		if err := m.watcher.Start(); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to start watcher")
		}
	}

	if m.cfg.Sync.IntervalMinutes > 0 {
		m.cron = cron.New()
		spec := fmt.Sprintf("@every %dm", m.cfg.Sync.IntervalMinutes)
		if _, err := m.cron.AddFunc(spec, func() {
			if _, err := m.Sync(context.Background()); err != nil {
				m.logger.Warn().Err(err).Msg("Periodic sync failed")
			}
		}); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to schedule periodic sync")
		} else {
			m.cron.Start()
		}
	}

	m.mu.Lock()
	m.initialized = true
	m.mu.Unlock()

	m.logger.Info().Str("workspace", m.workspaceDir).Msg("Memory manager initialized")
	return nil
}

// LongTermPath is the curated persistent memory file.
func (m *Manager) LongTermPath() string {
	return filepath.Join(m.workspaceDir, longTermFile)
}

// ShortTermDir holds the dated daily memory files.
func (m *Manager) ShortTermDir() string {
	return filepath.Join(m.workspaceDir, shortTermDir)
}

func (m *Manager) dailyPath(t time.Time) string {
	return filepath.Join(m.ShortTermDir(), t.Format("2006-01-02")+".md")
}

// AppendToShortTerm appends a timestamped entry to today's daily file,
// creating it with a generated header when absent.
func (m *Manager) AppendToShortTerm(content string) error {
	if !m.cfg.ShortTerm.Enabled {
		return errors.New("short-term memory is disabled")
	}

	now := time.Now()
	if err := m.ensureDailyFile(now); err != nil {
		return err
	}

	entry := fmt.Sprintf("\n### %s\n\n%s\n", now.Format("15:04:05"), strings.TrimSpace(content))
	if err := appendFile(m.dailyPath(now), entry); err != nil {
		return fmt.Errorf("failed to append short-term entry: %w", err)
	}

	m.MarkDirty()
	return nil
}

// PromoteToLongTerm appends an entry to MEMORY.md with an optional summary
// line. Promotion is append-only; curation happens by editing the file.
func (m *Manager) PromoteToLongTerm(content, summary string) error {
	if err := m.ensureLongTermFile(); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n## Entry: %s\n\n", time.Now().Format(time.RFC3339))
	if summary != "" {
		fmt.Fprintf(&b, "**Summary:** %s\n\n", summary)
	}
	b.WriteString(strings.TrimSpace(content))
	b.WriteString("\n")

	if err := appendFile(m.LongTermPath(), b.String()); err != nil {
		return fmt.Errorf("failed to promote entry: %w", err)
	}

	m.MarkDirty()
	return nil
}

// Sync reindexes all memory markdown files and reconciles deletions. One
// sync runs at a time; a concurrent call returns an error rather than
// queueing.
func (m *Manager) Sync(ctx context.Context) (*SyncResult, error) {
	m.mu.Lock()
	if m.syncing {
		m.mu.Unlock()
		return nil, errors.New("sync already in progress")
	}
	m.syncing = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.syncing = false
		m.mu.Unlock()
	}()

	syncID := uuid.NewString()
	logger := m.logger.With().Str("sync_id", syncID).Logger()
	start := time.Now()
	logger.Debug().Msg("Starting sync")

	paths, err := m.memoryFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to list memory files: %w", err)
	}

	result := &SyncResult{}
	current := make(map[string]bool, len(paths))

	for _, path := range paths {
		current[path] = true
		res := m.indexer.IndexMemoryFile(ctx, path)
		if !res.Success {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", path, res.Error))
			continue
		}
		result.FilesSynced++
		result.ChunksIndexed += res.ChunksIndexed
	}

	// Reconcile deletions: indexed memory files that vanished from disk.
	indexed, err := m.storage.GetAllFiles(SourceMemory)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list indexed files: %v", err))
	} else {
		for _, f := range indexed {
			if current[f.Path] {
				continue
			}
			if err := m.indexer.DeleteIndex(f.Path, SourceMemory); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", f.Path, err))
				continue
			}
			result.FilesRemoved++
		}
	}

	if m.cfg.EmbeddingCache.Enabled && m.cfg.EmbeddingCache.MaxEntries > 0 {
		if pruned, err := m.storage.PruneEmbeddingCache(m.cfg.EmbeddingCache.MaxEntries); err != nil {
			logger.Warn().Err(err).Msg("Cache prune failed")
		} else if pruned > 0 {
			logger.Debug().Int("pruned", pruned).Msg("Pruned embedding cache")
		}
	}

	now := time.Now()
	m.mu.Lock()
	m.dirty = false
	m.lastSync = &now
	m.mu.Unlock()

	observability.RecordSync(time.Since(start), len(result.Errors) == 0)
	if files, chunks, _, err := m.storage.GetStats(); err == nil {
		observability.SetIndexSize(files, chunks)
	}

	logger.Info().
		Int("files_synced", result.FilesSynced).
		Int("files_removed", result.FilesRemoved).
		Int("chunks_indexed", result.ChunksIndexed).
		Int("errors", len(result.Errors)).
		Dur("duration", time.Since(start)).
		Msg("Sync completed")

	return result, nil
}

// Search runs a hybrid query, syncing first when the index is dirty or
// on-search sync is enabled. A set dirty flag forces the sync even with
// on-search sync turned off, so file changes are never invisible forever.
func (m *Manager) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	m.mu.RLock()
	dirty := m.dirty
	m.mu.RUnlock()

	if dirty || m.cfg.Sync.OnSearch {
		if _, err := m.Sync(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("Sync failed before search")
		}
	}

	start := time.Now()
	results, err := m.searcher.Search(ctx, query, opts)
	observability.RecordSearch(time.Since(start), err == nil)
	return results, err
}

// SearchSync always syncs before searching.
func (m *Manager) SearchSync(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	if _, err := m.Sync(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("Sync failed before search")
	}
	return m.searcher.Search(ctx, query, opts)
}

// SearchBySource runs a hybrid query restricted to one source tag.
func (m *Manager) SearchBySource(ctx context.Context, query string, source Source, maxResults int) ([]SearchResult, error) {
	return m.Search(ctx, query, SearchOptions{
		MaxResults:   maxResults,
		SourceFilter: []Source{source},
	})
}

// IndexDocument indexes external document content under source=docs.
func (m *Manager) IndexDocument(ctx context.Context, path, content string) IndexResult {
	return m.indexer.IndexDocument(ctx, path, content)
}

// IndexSkill indexes a skill with metadata enrichment under source=skills.
func (m *Manager) IndexSkill(ctx context.Context, path string, meta SkillMetadata, content string) IndexResult {
	return m.indexer.IndexSkill(ctx, path, meta, content)
}

// RemoveIndex drops index state for a path across all sources.
func (m *Manager) RemoveIndex(path string) error {
	var errs []string
	for _, source := range AllSources {
		if err := m.indexer.DeleteIndex(path, source); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", source, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to remove index for %s: %s", path, strings.Join(errs, "; "))
	}
	return nil
}

// MarkDirty flags the index as stale so the next search triggers a sync.
func (m *Manager) MarkDirty() {
	m.mu.Lock()
	m.dirty = true
	m.mu.Unlock()
}

// Status returns a read-only snapshot of the memory system.
func (m *Manager) Status() Status {
	m.mu.RLock()
	status := Status{
		Initialized: m.initialized,
		FTSEnabled:  true,
		LastSync:    m.lastSync,
	}
	m.mu.RUnlock()

	if m.storage != nil {
		files, chunks, _, err := m.storage.GetStats()
		if err == nil {
			status.Files = files
			status.Chunks = chunks
		}
		status.VectorEnabled = m.storage.VectorReady()
	}
	if m.watcher != nil {
		status.Watching = m.watcher.IsRunning()
	}
	return status
}

// Stats returns index statistics.
func (m *Manager) Stats() Stats {
	var stats Stats
	if m.storage == nil {
		return stats
	}

	files, chunks, cacheEntries, err := m.storage.GetStats()
	if err != nil {
		m.logger.Warn().Err(err).Msg("Failed to read stats")
		return stats
	}

	stats.TotalFiles = files
	stats.TotalChunks = chunks
	stats.CacheEntries = cacheEntries
	stats.DBSizeBytes = m.storage.GetDBSize()
	if m.storage.VectorReady() {
		stats.TotalVectors = chunks
	}
	if chunks > 0 {
		stats.AvgChunkSize = float64(stats.DBSizeBytes) / float64(chunks)
	}
	return stats
}

// Close stops background work and releases storage.
func (m *Manager) Close() error {
	if m.cron != nil {
		m.cron.Stop()
	}
	if m.watcher != nil {
		if err := m.watcher.Stop(); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to stop watcher")
		}
	}
	if m.storage != nil {
		return m.storage.Close()
	}
	return nil
}

// onFileChange is the watcher callback. Any change just marks the index
// dirty; the next sync reconciles content and deletions alike.
func (m *Manager) onFileChange(path string, change ChangeType) {
	m.logger.Debug().
		Str("path", path).
		Str("change", string(change)).
		Msg("Memory file changed")
	observability.RecordWatcherEvent(string(change))
	m.MarkDirty()
}

// memoryFiles lists MEMORY.md plus the daily files, skipping the archive.
func (m *Manager) memoryFiles() ([]string, error) {
	var paths []string

	if _, err := os.Stat(m.LongTermPath()); err == nil {
		paths = append(paths, m.LongTermPath())
	}

	entries, err := os.ReadDir(m.ShortTermDir())
	if err != nil {
		if os.IsNotExist(err) {
			return paths, nil
		}
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() || !isMarkdown(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(m.ShortTermDir(), entry.Name()))
	}
	return paths, nil
}

// ensureLongTermFile creates MEMORY.md with its template when absent.
func (m *Manager) ensureLongTermFile() error {
	path := m.LongTermPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(m.workspaceDir, 0o755); err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}
	if err := os.WriteFile(path, []byte(longTermTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to create %s: %w", longTermFile, err)
	}
	return nil
}

// ensureDailyFile creates today's short-term file with its header when
// absent.
func (m *Manager) ensureDailyFile(t time.Time) error {
	path := m.dailyPath(t)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(m.ShortTermDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create short-term directory: %w", err)
	}

	header := fmt.Sprintf("# Session %s\n\n## Metadata\n\n- Created: %s\n- Source: auto-generated\n\n## Content\n",
		t.Format("2006-01-02"), t.Format(time.RFC3339))
	if err := os.WriteFile(path, []byte(header), 0o644); err != nil {
		return fmt.Errorf("failed to create daily file: %w", err)
	}
	return nil
}

func appendFile(path, content string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(content)
	return err
}

// noEmbedProvider stands in when no embedding provider is configured. It
// produces empty vectors so indexing proceeds keyword-only.
type noEmbedProvider struct{}

func (noEmbedProvider) ID() string      { return "none" }
func (noEmbedProvider) Model() string   { return "none" }
func (noEmbedProvider) Dimensions() int { return 0 }

func (noEmbedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return nil, nil
}

func (noEmbedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

// buildProvider constructs the configured embedding provider, falling back
// to conventional environment variables for the key.
func buildProvider(cfg config.EmbeddingConfig) (embeddings.Provider, error) {
	opts := embeddings.Options{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		BatchSize:  cfg.BatchSize,
		MaxRetries: cfg.MaxRetries,
		Timeout:    time.Duration(cfg.TimeoutSec * float64(time.Second)),
	}

	switch cfg.Provider {
	case "zhipu":
		if opts.APIKey == "" {
			opts.APIKey = os.Getenv("ZHIPU_API_KEY")
		}
		return embeddings.NewZhipu(opts)
	case "", "openai":
		if opts.APIKey == "" {
			opts.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		return embeddings.NewOpenAI(opts)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}
