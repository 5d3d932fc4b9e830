package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/docqa/internal/pkg/errs"
	"go.uber.org/zap"
)

type GeneratorEntry struct {
	Name      string
	Generator IGenerator
}

type EmbedderEntry struct {
	Name     string
	Embedder IEmbedder
}

type groupGenerator struct {
	items []GeneratorEntry
}

// NewGroupGenerator tries each generator in order and returns the first
// success. Context cancellation stops the chain immediately.
func NewGroupGenerator(items []GeneratorEntry) IGenerator {
	if len(items) == 0 {
		return nil
	}
	return &groupGenerator{items: items}
}

func (g *groupGenerator) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	var lastErr error
	for i, item := range g.items {
		if item.Generator == nil {
			continue
		}
		res, err := item.Generator.Generate(ctx, prompt, opts)
		if err == nil {
			if i > 0 {
				logutil.GetLogger(ctx).Info("generation served by fallback backend", zap.String("name", item.Name))
			}
			return res, nil
		}
		if isCanceled(err) {
			return "", err
		}
		lastErr = err
		logutil.GetLogger(ctx).Warn("generator failed", zap.Int("index", i), zap.String("name", item.Name), zap.Error(err))
	}
	if lastErr == nil {
		return "", fmt.Errorf("generator not configured")
	}
	return "", fmt.Errorf("%w: %s", errs.ErrLLM, lastErr.Error())
}

type groupEmbedder struct {
	items []EmbedderEntry
	dim   int
}

// NewGroupEmbedder tries each embedder in order. The first entry fixes the
// vector dimension for the whole group, so a fallback backend with a
// different native width gets its vectors conformed rather than changing
// the shape of the index mid-run.
func NewGroupEmbedder(items []EmbedderEntry) IEmbedder {
	if len(items) == 0 {
		return nil
	}
	dim := 0
	for _, item := range items {
		if item.Embedder == nil {
			continue
		}
		dim = item.Embedder.Dimension()
		break
	}
	return &groupEmbedder{items: items, dim: dim}
}

func (g *groupEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	var lastErr error
	for i, item := range g.items {
		if item.Embedder == nil {
			continue
		}
		res, err := item.Embedder.Embed(ctx, texts, taskType)
		if err == nil {
			if i > 0 {
				logutil.GetLogger(ctx).Info("embedding served by fallback backend",
					zap.String("name", item.Name), zap.Int("texts", len(texts)))
			}
			return g.conform(res), nil
		}
		if isCanceled(err) {
			return nil, err
		}
		lastErr = err
		logutil.GetLogger(ctx).Warn("embedder failed", zap.Int("index", i), zap.String("name", item.Name), zap.Error(err))
	}
	if lastErr == nil {
		return nil, fmt.Errorf("embedder not configured")
	}
	return nil, fmt.Errorf("%w: %s", errs.ErrEmbedding, lastErr.Error())
}

func (g *groupEmbedder) Dimension() int {
	return g.dim
}

func (g *groupEmbedder) ModelName() string {
	names := make([]string, 0, len(g.items))
	for _, item := range g.items {
		if item.Name == "" {
			continue
		}
		names = append(names, item.Name)
	}
	if len(names) == 0 {
		return ""
	}
	return strings.Join(names, "|")
}

// conform truncates or zero-pads every vector to the group dimension.
func (g *groupEmbedder) conform(vectors [][]float32) [][]float32 {
	if g.dim <= 0 {
		return vectors
	}
	for i, vec := range vectors {
		if len(vec) == g.dim {
			continue
		}
		if len(vec) > g.dim {
			vectors[i] = vec[:g.dim]
			continue
		}
		padded := make([]float32, g.dim)
		copy(padded, vec)
		vectors[i] = padded
	}
	return vectors
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
