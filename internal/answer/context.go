package answer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xxxsen/docqa/internal/model"
)

// NoContextFound is returned when there is nothing to assemble a context
// from. Prompts carry it verbatim so the model knows retrieval came up
// empty.
const NoContextFound = "No relevant context found."

// BuildContext assembles a labeled context block from retrieved chunks.
// Chunks are ordered by descending score, labeled "[Context i]" in that
// order and joined with blank lines. Assembly stops at the first chunk
// that would push the block past maxChars, chunks are never truncated.
func BuildContext(chunks []model.ScoredChunk, maxChars int) string {
	if len(chunks) == 0 {
		return NoContextFound
	}
	ordered := make([]model.ScoredChunk, len(chunks))
	copy(ordered, chunks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Score > ordered[j].Score
	})
	parts := make([]string, 0, len(ordered))
	total := 0
	for i, sc := range ordered {
		part := fmt.Sprintf("[Context %d] %s", i+1, sc.Chunk.Content)
		if total+len(part) > maxChars {
			break
		}
		parts = append(parts, part)
		total += len(part)
	}
	if len(parts) == 0 {
		return NoContextFound
	}
	return strings.Join(parts, "\n\n")
}
