package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/bitwiseai/bitwise/internal/config"
	"github.com/bitwiseai/bitwise/pkg/memory/embeddings"
)

const snippetLength = 200

// Searcher merges vector-similarity and keyword retrieval into one weighted
// hybrid ranking.
type Searcher struct {
	storage  *Storage
	provider embeddings.Provider
	cfg      config.HybridConfig
	logger   zerolog.Logger
}

// NewSearcher creates a new hybrid searcher. Weights are normalized to sum
// to 1 here, once.
func NewSearcher(storage *Storage, provider embeddings.Provider, cfg config.HybridConfig, logger zerolog.Logger) *Searcher {
	if cfg.CandidateMultiplier < 1 {
		cfg.CandidateMultiplier = 2
	}
	cfg.Normalize()

	return &Searcher{
		storage:  storage,
		provider: provider,
		cfg:      cfg,
		logger:   logger.With().Str("component", "memory-searcher").Logger(),
	}
}

// SearchOptions configures one search call.
type SearchOptions struct {
	MaxResults   int
	MinScore     *float64 // nil means the configured default
	SourceFilter []Source
}

// Search runs the hybrid query: over-fetch candidates from both channels in
// parallel, merge by chunk id with weighted scores, filter on the merged
// score, then enrich survivors with full chunk data.
func (sr *Searcher) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	if opts.MaxResults <= 0 {
		opts.MaxResults = 10
	}
	minScore := sr.cfg.MinScore
	if opts.MinScore != nil {
		minScore = *opts.MinScore
	}

	candidates := opts.MaxResults * sr.cfg.CandidateMultiplier

	queryVec, err := sr.provider.EmbedQuery(ctx, query)
	if err != nil {
		// The keyword channel can still answer.
		sr.logger.Warn().Err(err).Msg("Query embedding failed, keyword-only search")
		queryVec = nil
	}

	var vectorResults []VectorResult
	var keywordResults []KeywordResult

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if queryVec == nil {
			return
		}
		results, err := sr.storage.SearchVectors(ctx, queryVec, candidates, opts.SourceFilter)
		if err != nil {
			sr.logger.Warn().Err(err).Msg("Vector search failed, using keyword only")
			return
		}
		vectorResults = results
	}()

	go func() {
		defer wg.Done()
		results, err := sr.storage.SearchFTS(ctx, query, candidates, opts.SourceFilter)
		if err != nil {
			sr.logger.Warn().Err(err).Msg("Keyword search failed, using vector only")
			return
		}
		keywordResults = results
	}()

	wg.Wait()

	merged := sr.merge(vectorResults, keywordResults)

	filtered := merged[:0]
	for _, r := range merged {
		if r.Score >= minScore {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) > opts.MaxResults {
		filtered = filtered[:opts.MaxResults]
	}

	return sr.enrich(filtered), nil
}

// SearchBySource searches within a single source tag.
func (sr *Searcher) SearchBySource(ctx context.Context, query string, source Source, maxResults int) ([]SearchResult, error) {
	return sr.Search(ctx, query, SearchOptions{
		MaxResults:   maxResults,
		SourceFilter: []Source{source},
	})
}

// UniqueSources returns all source tags present in the index.
func (sr *Searcher) UniqueSources() ([]Source, error) {
	files, err := sr.storage.GetAllFiles("")
	if err != nil {
		return nil, err
	}
	seen := make(map[Source]bool)
	var sources []Source
	for _, f := range files {
		if !seen[f.Source] {
			seen[f.Source] = true
			sources = append(sources, f.Source)
		}
	}
	return sources, nil
}

// merge combines the two channels keyed by chunk id. A chunk missing from
// one channel contributes 0 for that component. The result is a pure
// function of the inputs and configured weights.
func (sr *Searcher) merge(vectorResults []VectorResult, keywordResults []KeywordResult) []SearchResult {
	type channelScores struct {
		vector float64
		text   float64
	}

	byID := make(map[string]*channelScores)
	var order []string

	for _, vr := range vectorResults {
		if _, ok := byID[vr.ChunkID]; !ok {
			byID[vr.ChunkID] = &channelScores{}
			order = append(order, vr.ChunkID)
		}
		byID[vr.ChunkID].vector = vr.Score
	}
	for _, kr := range keywordResults {
		if _, ok := byID[kr.ChunkID]; !ok {
			byID[kr.ChunkID] = &channelScores{}
			order = append(order, kr.ChunkID)
		}
		byID[kr.ChunkID].text = kr.Score
	}

	merged := make([]SearchResult, 0, len(order))
	for _, id := range order {
		scores := byID[id]
		merged = append(merged, SearchResult{
			ChunkID: id,
			Score:   sr.cfg.VectorWeight*scores.vector + sr.cfg.TextWeight*scores.text,
		})
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})

	return merged
}

// enrich fills results with full chunk data. A chunk that vanished between
// ranking and enrichment (racing delete) passes through as-is.
func (sr *Searcher) enrich(results []SearchResult) []SearchResult {
	enriched := make([]SearchResult, 0, len(results))
	for _, r := range results {
		chunk, err := sr.storage.GetChunkByID(r.ChunkID)
		if err != nil || chunk == nil {
			enriched = append(enriched, r)
			continue
		}

		r.Path = chunk.Path
		r.Source = chunk.Source
		r.Text = chunk.Text
		r.Snippet = makeSnippet(chunk.Text)
		r.StartLine = chunk.StartLine
		r.EndLine = chunk.EndLine
		enriched = append(enriched, r)
	}
	return enriched
}

// makeSnippet truncates text to snippetLength characters with newlines
// collapsed. Truncation counts runes so multi-byte text is never split
// mid-character.
func makeSnippet(text string) string {
	runes := []rune(text)
	truncated := len(runes) > snippetLength
	if truncated {
		text = string(runes[:snippetLength])
	}
	snippet := strings.ReplaceAll(text, "\n", " ")
	if truncated {
		snippet += "..."
	}
	return snippet
}
