package vectorindex

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/pkg/errs"
	"go.uber.org/zap"
)

const (
	indexFileName  = "index.bin"
	chunksFileName = "chunks.json"
)

// memoryIndex is a flat in-memory index with optional file persistence.
// Vectors are L2-normalized on insert and ranked by exhaustive inner
// product, which is exact and fast enough for corpus sizes this service
// targets.
type memoryIndex struct {
	mu      sync.RWMutex
	dim     int
	path    string
	vectors [][]float32
	chunks  []model.Chunk

	// persistMu serializes snapshot writers: upserts from concurrent
	// requests and the periodic snapshot job share the same .tmp paths.
	persistMu sync.Mutex
}

// NewMemoryIndex builds a flat index of the given dimension. A non-empty
// path enables persistence: the index writes a snapshot after every upsert
// and restores from it on startup. A snapshot is only restored when both
// artifacts are present and consistent, anything else starts empty.
func NewMemoryIndex(ctx context.Context, dim int, path string) (Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", dim)
	}
	idx := &memoryIndex{dim: dim, path: path}
	if path != "" {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
		idx.restore(ctx)
	}
	return idx, nil
}

func (m *memoryIndex) Upsert(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for i, chunk := range chunks {
		if len(chunk.Embedding) != m.dim {
			return fmt.Errorf("%w: chunk %d has dimension %d, index wants %d",
				errs.ErrVectorStore, i, len(chunk.Embedding), m.dim)
		}
	}
	m.mu.Lock()
	for _, chunk := range chunks {
		position := len(m.vectors)
		m.vectors = append(m.vectors, normalize(chunk.Embedding))
		stored := chunk
		stored.Metadata = chunk.CloneMetadata()
		if stored.Metadata == nil {
			stored.Metadata = map[string]interface{}{}
		}
		stored.Metadata["vector_id"] = position
		stored.Embedding = nil
		m.chunks = append(m.chunks, stored)
	}
	m.mu.Unlock()
	return m.Snapshot(ctx)
}

func (m *memoryIndex) Search(ctx context.Context, vector []float32, topK int) ([]model.ScoredChunk, error) {
	if len(vector) != m.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, index wants %d",
			errs.ErrVectorStore, len(vector), m.dim)
	}
	query := normalize(vector)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.vectors) == 0 || topK <= 0 {
		return []model.ScoredChunk{}, nil
	}
	scores := make([]model.ScoredChunk, 0, len(m.vectors))
	for i, vec := range m.vectors {
		scores = append(scores, model.ScoredChunk{
			Chunk: m.chunks[i],
			Score: dot(query, vec),
		})
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})
	if topK < len(scores) {
		scores = scores[:topK]
	}
	return scores, nil
}

func (m *memoryIndex) Head(ctx context.Context, limit int) ([]model.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.chunks) {
		limit = len(m.chunks)
	}
	out := make([]model.Chunk, limit)
	copy(out, m.chunks[:limit])
	return out, nil
}

func (m *memoryIndex) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.vectors = nil
	m.chunks = nil
	m.mu.Unlock()
	if m.path == "" {
		return nil
	}
	for _, name := range []string{indexFileName, chunksFileName} {
		if err := os.Remove(filepath.Join(m.path, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: remove %s: %s", errs.ErrVectorStore, name, err.Error())
		}
	}
	return nil
}

func (m *memoryIndex) Stats(ctx context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		TotalChunks: len(m.chunks),
		Dimension:   m.dim,
		Backend:     "memory",
	}, nil
}

func (m *memoryIndex) Snapshot(ctx context.Context) error {
	if m.path == "" {
		return nil
	}
	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	m.mu.RLock()
	vectors := m.vectors
	chunks := m.chunks
	m.mu.RUnlock()
	if err := m.writeVectors(vectors); err != nil {
		return fmt.Errorf("%w: persist vectors: %s", errs.ErrVectorStore, err.Error())
	}
	if err := m.writeChunks(chunks); err != nil {
		return fmt.Errorf("%w: persist chunks: %s", errs.ErrVectorStore, err.Error())
	}
	return nil
}

func (m *memoryIndex) writeVectors(vectors [][]float32) error {
	tmp := filepath.Join(m.path, indexFileName+".tmp")
	file, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(file).Encode(vectors); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(m.path, indexFileName))
}

func (m *memoryIndex) writeChunks(chunks []model.Chunk) error {
	data, err := json.Marshal(chunks)
	if err != nil {
		return err
	}
	tmp := filepath.Join(m.path, chunksFileName+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(m.path, chunksFileName))
}

// restore loads a previous snapshot. Any inconsistency leaves the index
// empty rather than failing startup.
func (m *memoryIndex) restore(ctx context.Context) {
	indexPath := filepath.Join(m.path, indexFileName)
	chunksPath := filepath.Join(m.path, chunksFileName)
	file, err := os.Open(indexPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logutil.GetLogger(ctx).Warn("skip index restore", zap.Error(err))
		}
		return
	}
	defer file.Close()
	var vectors [][]float32
	if err := gob.NewDecoder(file).Decode(&vectors); err != nil {
		logutil.GetLogger(ctx).Warn("skip index restore, corrupt vector file", zap.Error(err))
		return
	}
	data, err := os.ReadFile(chunksPath)
	if err != nil {
		logutil.GetLogger(ctx).Warn("skip index restore, chunk file missing", zap.Error(err))
		return
	}
	var chunks []model.Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		logutil.GetLogger(ctx).Warn("skip index restore, corrupt chunk file", zap.Error(err))
		return
	}
	if len(vectors) != len(chunks) {
		logutil.GetLogger(ctx).Warn("skip index restore, artifact mismatch",
			zap.Int("vectors", len(vectors)), zap.Int("chunks", len(chunks)))
		return
	}
	for _, vec := range vectors {
		if len(vec) != m.dim {
			logutil.GetLogger(ctx).Warn("skip index restore, dimension changed",
				zap.Int("stored", len(vec)), zap.Int("want", m.dim))
			return
		}
	}
	m.vectors = vectors
	m.chunks = chunks
	logutil.GetLogger(ctx).Info("restored vector index", zap.Int("chunks", len(chunks)))
}
