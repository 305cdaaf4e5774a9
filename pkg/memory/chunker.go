package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/bitwiseai/bitwise/internal/config"
)

var headerPattern = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// Chunker splits markdown content into overlapping, size-bounded chunks.
type Chunker struct {
	cfg config.ChunkConfig
}

// NewChunker creates a new chunker
func NewChunker(cfg config.ChunkConfig) *Chunker {
	if cfg.Tokens <= 0 {
		cfg = config.DefaultConfig().Chunking
	}
	return &Chunker{cfg: cfg}
}

// Chunk splits content into ordered chunks with trailing line overlap.
// Line ranges are 1-indexed and inclusive relative to the original content.
func (c *Chunker) Chunk(content, path string, source Source, metadata map[string]string) []Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	lines := strings.Split(content, "\n")
	maxChars := c.cfg.MaxChars()
	overlapChars := c.cfg.OverlapChars()

	var chunks []Chunk
	chunkIdx := 0

	var buf []string
	bufStart := 0
	bufSize := 0

	for i, line := range lines {
		lineSize := len(line) + 1 // trailing newline

		if bufSize+lineSize > maxChars && len(buf) > 0 {
			chunks = append(chunks, c.seal(buf, path, source, bufStart, i-1, chunkIdx, metadata))
			chunkIdx++

			// Seed the next buffer with trailing overlap lines, carried
			// forward unchanged.
			overlapSize := 0
			var overlap []string
			for j := len(buf) - 1; j >= 0; j-- {
				l := buf[j]
				if overlapSize+len(l)+1 > overlapChars {
					break
				}
				overlap = append([]string{l}, overlap...)
				overlapSize += len(l) + 1
			}

			buf = overlap
			bufStart = i - len(overlap)
			bufSize = overlapSize
		}

		buf = append(buf, line)
		bufSize += lineSize
	}

	if len(buf) > 0 {
		chunks = append(chunks, c.seal(buf, path, source, bufStart, len(lines)-1, chunkIdx, metadata))
	}

	return chunks
}

// ChunkWithHeaders splits content preferring cuts at markdown heading
// boundaries. Content without headings falls back to plain chunking.
func (c *Chunker) ChunkWithHeaders(content, path string, source Source, metadata map[string]string) []Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	lines := strings.Split(content, "\n")

	headerAt := make(map[int]bool)
	for i, line := range lines {
		if headerPattern.MatchString(line) {
			headerAt[i] = true
		}
	}
	if len(headerAt) == 0 {
		return c.Chunk(content, path, source, metadata)
	}

	// The size budget is soft here: a section that outgrows it stays open
	// until the next heading, so headings start chunks. The hard cap bounds
	// headingless runs.
	maxChars := c.cfg.MaxChars()
	hardMax := maxChars * 2

	var chunks []Chunk
	chunkIdx := 0

	var buf []string
	bufStart := 0
	bufSize := 0

	seal := func(end int) {
		if len(buf) == 0 {
			return
		}
		chunks = append(chunks, c.seal(buf, path, source, bufStart, end, chunkIdx, metadata))
		chunkIdx++
	}

	for i, line := range lines {
		lineSize := len(line) + 1

		cut := headerAt[i] && bufSize+lineSize > maxChars
		if !cut && bufSize+lineSize > hardMax {
			cut = true
		}
		if cut && len(buf) > 0 {
			seal(i - 1)
			buf = nil
			bufStart = i
			bufSize = 0
		}

		buf = append(buf, line)
		bufSize += lineSize
	}

	seal(len(lines) - 1)

	return chunks
}

// seal builds a Chunk from buffered lines. start/end are 0-indexed here and
// stored 1-indexed.
func (c *Chunker) seal(buf []string, path string, source Source, start, end, idx int, metadata map[string]string) Chunk {
	text := strings.TrimRight(strings.Join(buf, "\n"), "\n")
	hash := hashText(text)

	return Chunk{
		ID:        chunkID(source, path, idx, hash),
		Text:      text,
		StartLine: start + 1,
		EndLine:   end + 1,
		Hash:      hash,
		Path:      path,
		Source:    source,
		Metadata:  metadata,
	}
}

// chunkID builds a deterministic chunk identity: identical content chunked
// identically produces identical ids, any text change changes the suffix.
func chunkID(source Source, path string, idx int, hash string) string {
	return fmt.Sprintf("%s:%s:%d:%s", source, path, idx, hash)
}

// hashText returns a short content hash used for chunk ids and cache keys.
func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}

// hashContent returns the full content hash used for file change detection.
func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
