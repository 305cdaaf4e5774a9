package memory

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bitwiseai/bitwise/internal/observability"
)

const summaryMaxChars = 500

// CompactOptions overrides the configured retention settings for one run.
// Zero values fall back to the configuration.
type CompactOptions struct {
	RetentionDays int
	Strategy      string
}

// CompactShortTerm applies the retention strategy to daily files older than
// the retention window. Exactly one strategy runs per file, and only one
// compaction runs at a time. Files whose names do not parse as dates are
// left alone.
func (m *Manager) CompactShortTerm(opts CompactOptions) (*CompactResult, error) {
	if !m.cfg.ShortTerm.Enabled {
		return &CompactResult{}, nil
	}

	m.mu.Lock()
	if m.compacting {
		m.mu.Unlock()
		return nil, errors.New("compaction already in progress")
	}
	m.compacting = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.compacting = false
		m.mu.Unlock()
	}()

	retention := opts.RetentionDays
	if retention <= 0 {
		retention = m.cfg.ShortTerm.RetentionDays
	}
	strategy := opts.Strategy
	if strategy == "" {
		strategy = m.cfg.ShortTerm.CompactionStrategy
	}
	if strategy == "" {
		strategy = "summarize"
	}
	switch strategy {
	case "summarize", "archive", "delete":
	default:
		return nil, fmt.Errorf("unknown compaction strategy: %s", strategy)
	}

	cutoff := time.Now().AddDate(0, 0, -retention)

	entries, err := os.ReadDir(m.ShortTermDir())
	if err != nil {
		if os.IsNotExist(err) {
			return &CompactResult{}, nil
		}
		return nil, fmt.Errorf("failed to read short-term directory: %w", err)
	}

	result := &CompactResult{}
	for _, entry := range entries {
		if entry.IsDir() || !isMarkdown(entry.Name()) {
			continue
		}

		day, err := time.Parse("2006-01-02", strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())))
		if err != nil {
			continue
		}
		if !day.Before(cutoff) {
			continue
		}

		path := filepath.Join(m.ShortTermDir(), entry.Name())
		if err := m.compactFile(path, day, strategy, result); err != nil {
			m.logger.Warn().Err(err).Str("file", entry.Name()).Msg("Compaction failed for file")
			continue
		}
		result.FilesCompacted++
	}

	if result.FilesCompacted > 0 {
		m.MarkDirty()
		observability.RecordCompaction(strategy, result.FilesCompacted)
		m.logger.Info().
			Str("strategy", strategy).
			Int("files", result.FilesCompacted).
			Msg("Short-term compaction completed")
	}

	return result, nil
}

// compactFile applies one strategy to one expired daily file.
func (m *Manager) compactFile(path string, day time.Time, strategy string, result *CompactResult) error {
	switch strategy {
	case "summarize":
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		summary := summarize(string(content))
		entry := fmt.Sprintf("Compacted session %s", day.Format("2006-01-02"))
		if err := m.PromoteToLongTerm(entry, summary); err != nil {
			return err
		}
		result.SummariesGenerated++
		return m.removeShortTermFile(path)

	case "archive":
		dir := filepath.Join(m.ShortTermDir(), archiveDir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		dest := filepath.Join(dir, filepath.Base(path))
		if err := os.Rename(path, dest); err != nil {
			return err
		}
		result.FilesArchived++
		return m.indexer.DeleteIndex(path, SourceMemory)

	case "delete":
		return m.removeShortTermFile(path)

	default:
		return fmt.Errorf("unknown compaction strategy: %s", strategy)
	}
}

func (m *Manager) removeShortTermFile(path string) error {
	if err := os.Remove(path); err != nil {
		return err
	}
	return m.indexer.DeleteIndex(path, SourceMemory)
}

// summarize produces a single-line excerpt of the content. Truncation
// counts runes so multi-byte text is never split mid-character.
func summarize(content string) string {
	text := strings.TrimSpace(content)
	runes := []rune(text)
	truncated := len(runes) > summaryMaxChars
	if truncated {
		text = string(runes[:summaryMaxChars])
	}
	text = strings.ReplaceAll(text, "\n", " ")
	if truncated {
		text += "..."
	}
	return text
}
