package embedcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls int
	texts int
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	c.calls++
	c.texts += len(texts)
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 1, 0, 0}
	}
	return out, nil
}

func (c *countingEmbedder) Dimension() int {
	return 4
}

func (c *countingEmbedder) ModelName() string {
	return "counting"
}

func TestLruEmbedderSkipsCachedTexts(t *testing.T) {
	ctx := context.Background()
	backend := &countingEmbedder{}
	emb := WrapLruCacheToEmbedder(backend, 16, time.Minute)

	first, err := emb.Embed(ctx, []string{"alpha", "beta"}, "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, 2, backend.texts)

	// "beta" is cached, only "gamma" reaches the backend
	second, err := emb.Embed(ctx, []string{"beta", "gamma"}, "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	require.Len(t, second, 2)
	require.Equal(t, 3, backend.texts)
	require.Equal(t, first[1], second[0])
}

func TestLruEmbedderFullHitSkipsBackend(t *testing.T) {
	ctx := context.Background()
	backend := &countingEmbedder{}
	emb := WrapLruCacheToEmbedder(backend, 16, time.Minute)

	_, err := emb.Embed(ctx, []string{"alpha"}, "")
	require.NoError(t, err)
	_, err = emb.Embed(ctx, []string{"alpha"}, "")
	require.NoError(t, err)
	require.Equal(t, 1, backend.calls)
}

func TestLruEmbedderKeyIncludesTaskType(t *testing.T) {
	ctx := context.Background()
	backend := &countingEmbedder{}
	emb := WrapLruCacheToEmbedder(backend, 16, time.Minute)

	_, err := emb.Embed(ctx, []string{"alpha"}, "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	_, err = emb.Embed(ctx, []string{"alpha"}, "RETRIEVAL_QUERY")
	require.NoError(t, err)
	require.Equal(t, 2, backend.calls)
}

func TestWrapLruCacheToEmbedderDisabled(t *testing.T) {
	backend := &countingEmbedder{}
	require.Equal(t, backend, WrapLruCacheToEmbedder(backend, 0, time.Minute))
	require.Equal(t, backend, WrapLruCacheToEmbedder(backend, 16, 0))
}
