package vectorindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xxxsen/docqa/internal/model"
)

func removeIndexArtifact(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.Remove(filepath.Join(dir, name)))
}

func buildChunk(id string, embedding []float32) model.Chunk {
	return model.Chunk{
		ID:        id,
		Content:   "content of " + id,
		Source:    "doc-1",
		Embedding: embedding,
		Metadata:  map[string]interface{}{"chunk_id": id},
	}
}

func TestMemoryIndexSearchRanksByInnerProduct(t *testing.T) {
	ctx := context.Background()
	idx, err := NewMemoryIndex(ctx, 3, "")
	require.NoError(t, err)

	require.NoError(t, idx.Upsert(ctx, []model.Chunk{
		buildChunk("a", []float32{1, 0, 0}),
		buildChunk("b", []float32{0, 1, 0}),
		buildChunk("c", []float32{0.9, 0.1, 0}),
	}))

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "a", results[0].Chunk.ID)
	require.Equal(t, "c", results[1].Chunk.ID)
	require.Greater(t, results[0].Score, results[1].Score)
}

func TestMemoryIndexEmptySearch(t *testing.T) {
	ctx := context.Background()
	idx, err := NewMemoryIndex(ctx, 3, "")
	require.NoError(t, err)

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestMemoryIndexTopKClamped(t *testing.T) {
	ctx := context.Background()
	idx, err := NewMemoryIndex(ctx, 3, "")
	require.NoError(t, err)

	require.NoError(t, idx.Upsert(ctx, []model.Chunk{
		buildChunk("a", []float32{1, 0, 0}),
		buildChunk("b", []float32{0, 1, 0}),
	}))

	results, err := idx.Search(ctx, []float32{1, 1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestMemoryIndexDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx, err := NewMemoryIndex(ctx, 3, "")
	require.NoError(t, err)

	err = idx.Upsert(ctx, []model.Chunk{buildChunk("a", []float32{1, 0})})
	require.Error(t, err)

	_, err = idx.Search(ctx, []float32{1, 0}, 5)
	require.Error(t, err)
}

func TestMemoryIndexAssignsVectorID(t *testing.T) {
	ctx := context.Background()
	idx, err := NewMemoryIndex(ctx, 3, "")
	require.NoError(t, err)

	require.NoError(t, idx.Upsert(ctx, []model.Chunk{
		buildChunk("a", []float32{1, 0, 0}),
		buildChunk("b", []float32{0, 1, 0}),
	}))

	chunks, err := idx.Head(ctx, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.Equal(t, 0, chunks[0].Metadata["vector_id"])
	require.Equal(t, 1, chunks[1].Metadata["vector_id"])
}

func TestMemoryIndexUpsertDoesNotMutateInput(t *testing.T) {
	ctx := context.Background()
	idx, err := NewMemoryIndex(ctx, 3, "")
	require.NoError(t, err)

	input := []model.Chunk{buildChunk("a", []float32{1, 0, 0})}
	require.NoError(t, idx.Upsert(ctx, input))
	require.NotContains(t, input[0].Metadata, "vector_id")
}

func TestMemoryIndexNormalizesStoredVectors(t *testing.T) {
	ctx := context.Background()
	idx, err := NewMemoryIndex(ctx, 2, "")
	require.NoError(t, err)

	// same direction, wildly different magnitudes
	require.NoError(t, idx.Upsert(ctx, []model.Chunk{
		buildChunk("small", []float32{0.001, 0}),
		buildChunk("large", []float32{1000, 0}),
	}))

	results, err := idx.Search(ctx, []float32{5, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.InDelta(t, float64(results[0].Score), float64(results[1].Score), 1e-5)
}

func TestMemoryIndexClear(t *testing.T) {
	ctx := context.Background()
	idx, err := NewMemoryIndex(ctx, 3, "")
	require.NoError(t, err)

	require.NoError(t, idx.Upsert(ctx, []model.Chunk{buildChunk("a", []float32{1, 0, 0})}))
	require.NoError(t, idx.Clear(ctx))

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.TotalChunks)
}

func TestMemoryIndexPersistAndRestore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := NewMemoryIndex(ctx, 3, dir)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, []model.Chunk{
		buildChunk("a", []float32{1, 0, 0}),
		buildChunk("b", []float32{0, 1, 0}),
	}))

	restored, err := NewMemoryIndex(ctx, 3, dir)
	require.NoError(t, err)
	stats, err := restored.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.TotalChunks)

	results, err := restored.Search(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Equal(t, "a", results[0].Chunk.ID)
}

func TestMemoryIndexRestoreRequiresBothArtifacts(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := NewMemoryIndex(ctx, 3, dir)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, []model.Chunk{buildChunk("a", []float32{1, 0, 0})}))

	removeIndexArtifact(t, dir, chunksFileName)

	restored, err := NewMemoryIndex(ctx, 3, dir)
	require.NoError(t, err)
	stats, err := restored.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.TotalChunks)
}

func TestMemoryIndexRestoreSkipsOnDimensionChange(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := NewMemoryIndex(ctx, 3, dir)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, []model.Chunk{buildChunk("a", []float32{1, 0, 0})}))

	restored, err := NewMemoryIndex(ctx, 4, dir)
	require.NoError(t, err)
	stats, err := restored.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.TotalChunks)
}

func TestMemoryIndexConcurrentUpsertAndSnapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := NewMemoryIndex(ctx, 3, dir)
	require.NoError(t, err)

	const writers = 4
	const batches = 5
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < batches; i++ {
				chunk := buildChunk(fmt.Sprintf("c-%d-%d", w, i), []float32{1, float32(w), float32(i)})
				if err := idx.Upsert(ctx, []model.Chunk{chunk}); err != nil {
					t.Error(err)
					return
				}
				if err := idx.Snapshot(ctx); err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	restored, err := NewMemoryIndex(ctx, 3, dir)
	require.NoError(t, err)
	stats, err := restored.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, writers*batches, stats.TotalChunks)
}
