package ai

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"
)

// localEmbedDim is the vector width of the hashing embedder. It is much
// smaller than remote embedding models, which is fine because local vectors
// are never mixed with remote ones in the same index.
const localEmbedDim = 256

// localEmbedder produces deterministic embeddings without any model file or
// network access. Tokens and token bigrams are feature-hashed into a fixed
// number of buckets and the result is L2-normalized, so texts sharing
// vocabulary still land near each other under inner-product search.
type localEmbedder struct {
	dim  int
	once sync.Once
}

func NewLocalEmbedder() IEmbedder {
	return &localEmbedder{dim: localEmbedDim}
}

func (e *localEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.once.Do(func() {
		if e.dim <= 0 {
			e.dim = localEmbedDim
		}
	})
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vectors = append(vectors, e.encode(text))
	}
	return vectors, nil
}

func (e *localEmbedder) Dimension() int {
	return localEmbedDim
}

func (e *localEmbedder) ModelName() string {
	return "local-hashing"
}

func (e *localEmbedder) encode(text string) []float32 {
	vec := make([]float32, e.dim)
	tokens := tokenize(text)
	for i, token := range tokens {
		e.addFeature(vec, token)
		if i > 0 {
			e.addFeature(vec, tokens[i-1]+" "+token)
		}
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}

// addFeature hashes one feature into its bucket with a hash-derived sign, so
// colliding features partially cancel instead of always accumulating.
func (e *localEmbedder) addFeature(vec []float32, feature string) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	bucket := int(sum % uint64(e.dim))
	if sum&(1<<63) != 0 {
		vec[bucket] -= 1
		return
	}
	vec[bucket] += 1
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
