package vectorindex

import (
	"context"
	"math"

	"github.com/xxxsen/docqa/internal/model"
)

// Stats summarizes one index for monitoring endpoints.
type Stats struct {
	TotalChunks int    `json:"total_chunks"`
	Dimension   int    `json:"dimension"`
	Backend     string `json:"backend"`
}

// Index stores chunks with their embeddings and serves similarity search.
// Implementations keep scores out of stored chunks, search results carry
// them separately.
type Index interface {
	// Upsert stores chunks in order, assigning each a positional vector_id.
	// Every chunk must carry an embedding of the index dimension.
	Upsert(ctx context.Context, chunks []model.Chunk) error
	// Search returns up to topK chunks ranked by inner-product similarity.
	// An empty index yields an empty result, not an error.
	Search(ctx context.Context, vector []float32, topK int) ([]model.ScoredChunk, error)
	// Head returns up to limit chunks in insertion order, for callers that
	// need raw context when no query vector is available.
	Head(ctx context.Context, limit int) ([]model.Chunk, error)
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)
	// Snapshot flushes the index to durable storage where the backend
	// supports it, and is a no-op otherwise.
	Snapshot(ctx context.Context) error
}

// normalize returns an L2-normalized copy of the vector, so inner product
// over stored vectors behaves as cosine similarity. Zero vectors are copied
// unchanged.
func normalize(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	var norm float64
	for _, v := range out {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return out
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range out {
		out[i] *= scale
	}
	return out
}

func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
