package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/xxxsen/docqa/internal/model"
)

const (
	// DefaultChunkSize is the character budget of one chunk.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is the approximate overlap carried between chunks.
	// The overlap is realized as the last two sentences of the previous
	// chunk, so this value is an upper-bound hint rather than an exact size.
	DefaultChunkOverlap = 200
)

const sentenceSep = ". "

// Chunker splits extracted document text into overlapping, bounded-length
// chunks along sentence boundaries.
type Chunker struct {
	chunkSize int
	overlap   int
}

func New(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}
}

// Chunk splits text into chunks attributed to sourceID. Caller-supplied
// metadata is copied into every chunk. Empty or whitespace-only text yields
// no chunks and no error.
//
// Sentences accumulate into a buffer until the chunk budget overflows; the
// full buffer is then emitted and the next buffer is seeded with the last
// two sentences as overlap context. A single oversized sentence still forms
// its own chunk, so chunk length is bounded only approximately.
func (c *Chunker) Chunk(text, sourceID string, metadata map[string]interface{}) []model.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	units := splitSentences(text)
	var chunks []model.Chunk
	var buf []string
	bufLen := 0
	// floor bounds the substring search for chunk offsets; it trails the
	// previous chunk's start so overlapped prefixes are still found.
	floor := 0

	flush := func() {
		content := strings.TrimSpace(strings.Join(buf, " "))
		if content == "" {
			return
		}
		chunks = append(chunks, c.build(content, text, sourceID, len(chunks), metadata, &floor))
	}

	for _, unit := range units {
		addition := len(unit)
		if len(buf) > 0 {
			addition++
		}
		if bufLen+addition > c.chunkSize && len(buf) > 0 {
			flush()
			if c.overlap > 0 {
				tail := buf
				if len(tail) > 2 {
					tail = tail[len(tail)-2:]
				}
				buf = append(buf[:0:0], tail...)
			} else {
				buf = buf[:0]
			}
			bufLen = joinedLen(buf)
			if bufLen > 0 {
				bufLen++
			}
			bufLen += len(unit)
			buf = append(buf, unit)
			continue
		}
		buf = append(buf, unit)
		bufLen += addition
	}
	flush()
	return chunks
}

func (c *Chunker) build(content, source, sourceID string, index int, metadata map[string]interface{}, floor *int) model.Chunk {
	start, end := locate(source, content, *floor)
	if start+1 > *floor {
		*floor = start + 1
	}

	md := make(map[string]interface{}, len(metadata)+3)
	for k, v := range metadata {
		md[k] = v
	}
	md["chunk_id"] = index
	md["chunk_size"] = len(content)
	md["readability_score"] = FleschReadingEase(content)

	return model.Chunk{
		ID:         chunkID(sourceID, index),
		Content:    content,
		Source:     sourceID,
		ChunkIndex: index,
		StartChar:  start,
		EndChar:    end,
		Metadata:   md,
	}
}

// splitSentences cuts text on the ". " terminator and restores the period on
// every unit so rejoining units with a single space reproduces the original
// text verbatim.
func splitSentences(text string) []string {
	parts := strings.Split(text, sentenceSep)
	units := make([]string, 0, len(parts))
	for i, part := range parts {
		if i < len(parts)-1 {
			part += "."
		}
		if strings.TrimSpace(part) == "" {
			continue
		}
		units = append(units, part)
	}
	return units
}

func joinedLen(units []string) int {
	if len(units) == 0 {
		return 0
	}
	total := len(units) - 1
	for _, unit := range units {
		total += len(unit)
	}
	return total
}

// locate finds the chunk content inside the source text so start/end are
// real substring offsets. If whitespace normalization kept the content from
// matching verbatim, the floor position is used as an approximation.
func locate(source, content string, floor int) (int, int) {
	if floor < len(source) {
		if idx := strings.Index(source[floor:], content); idx >= 0 {
			start := floor + idx
			return start, start + len(content)
		}
	}
	if idx := strings.Index(source, content); idx >= 0 {
		return idx, idx + len(content)
	}
	end := floor + len(content)
	if end > len(source) {
		end = len(source)
	}
	return floor, end
}

func chunkID(sourceID string, index int) string {
	sum := sha256.Sum256([]byte(sourceID))
	return fmt.Sprintf("%s_%d", hex.EncodeToString(sum[:8]), index)
}
