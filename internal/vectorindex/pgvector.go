package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"
	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/pkg/errs"
)

// pgIndex stores chunks in postgres with the pgvector extension. The <#>
// operator yields negative inner product, so ordering ascending by it ranks
// by similarity and negating it recovers the score.
type pgIndex struct {
	db  *sqlx.DB
	dim int
}

func NewPgIndex(db *sqlx.DB, dim int) (Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", dim)
	}
	return &pgIndex{db: db, dim: dim}, nil
}

type pgChunkRow struct {
	VectorID   int64   `db:"vector_id"`
	ChunkID    string  `db:"chunk_id"`
	Source     string  `db:"source"`
	ChunkIndex int     `db:"chunk_index"`
	StartChar  int     `db:"start_char"`
	EndChar    int     `db:"end_char"`
	Content    string  `db:"content"`
	Metadata   []byte  `db:"metadata"`
	Score      float32 `db:"score"`
}

func (p *pgIndex) Upsert(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for i, chunk := range chunks {
		if len(chunk.Embedding) != p.dim {
			return fmt.Errorf("%w: chunk %d has dimension %d, index wants %d",
				errs.ErrVectorStore, i, len(chunk.Embedding), p.dim)
		}
	}
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %s", errs.ErrVectorStore, err.Error())
	}
	defer tx.Rollback()
	query := `
		INSERT INTO doc_chunks (chunk_id, source, chunk_index, start_char, end_char, content, metadata, embedding, ctime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (chunk_id) DO UPDATE SET
			source = EXCLUDED.source,
			chunk_index = EXCLUDED.chunk_index,
			start_char = EXCLUDED.start_char,
			end_char = EXCLUDED.end_char,
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding,
			ctime = EXCLUDED.ctime
	`
	now := time.Now().Unix()
	for _, chunk := range chunks {
		meta, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("%w: encode metadata: %s", errs.ErrVectorStore, err.Error())
		}
		if _, err := tx.ExecContext(ctx, query,
			chunk.ID,
			chunk.Source,
			chunk.ChunkIndex,
			chunk.StartChar,
			chunk.EndChar,
			chunk.Content,
			meta,
			pgvector.NewVector(normalize(chunk.Embedding)),
			now,
		); err != nil {
			return fmt.Errorf("%w: insert chunk %s: %s", errs.ErrVectorStore, chunk.ID, err.Error())
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %s", errs.ErrVectorStore, err.Error())
	}
	return nil
}

func (p *pgIndex) Search(ctx context.Context, vector []float32, topK int) ([]model.ScoredChunk, error) {
	if len(vector) != p.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, index wants %d",
			errs.ErrVectorStore, len(vector), p.dim)
	}
	if topK <= 0 {
		return []model.ScoredChunk{}, nil
	}
	query := `
		SELECT vector_id, chunk_id, source, chunk_index, start_char, end_char, content, metadata,
			(embedding <#> $1) * -1 AS score
		FROM doc_chunks
		ORDER BY embedding <#> $1
		LIMIT $2
	`
	var rows []pgChunkRow
	if err := p.db.SelectContext(ctx, &rows, query, pgvector.NewVector(normalize(vector)), topK); err != nil {
		return nil, fmt.Errorf("%w: search: %s", errs.ErrVectorStore, err.Error())
	}
	out := make([]model.ScoredChunk, 0, len(rows))
	for _, row := range rows {
		chunk, err := row.toChunk()
		if err != nil {
			return nil, err
		}
		out = append(out, model.ScoredChunk{Chunk: chunk, Score: row.Score})
	}
	return out, nil
}

func (p *pgIndex) Head(ctx context.Context, limit int) ([]model.Chunk, error) {
	query := `
		SELECT vector_id, chunk_id, source, chunk_index, start_char, end_char, content, metadata, 0 AS score
		FROM doc_chunks
		ORDER BY vector_id
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	var rows []pgChunkRow
	if err := p.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("%w: list chunks: %s", errs.ErrVectorStore, err.Error())
	}
	out := make([]model.Chunk, 0, len(rows))
	for _, row := range rows {
		chunk, err := row.toChunk()
		if err != nil {
			return nil, err
		}
		out = append(out, chunk)
	}
	return out, nil
}

func (p *pgIndex) Clear(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `TRUNCATE doc_chunks`); err != nil {
		return fmt.Errorf("%w: clear: %s", errs.ErrVectorStore, err.Error())
	}
	return nil
}

func (p *pgIndex) Stats(ctx context.Context) (Stats, error) {
	var count int
	if err := p.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM doc_chunks`); err != nil {
		return Stats{}, fmt.Errorf("%w: stats: %s", errs.ErrVectorStore, err.Error())
	}
	return Stats{
		TotalChunks: count,
		Dimension:   p.dim,
		Backend:     "pgvector",
	}, nil
}

func (p *pgIndex) Snapshot(ctx context.Context) error {
	// rows are durable on commit, nothing to flush
	return nil
}

func (r *pgChunkRow) toChunk() (model.Chunk, error) {
	var meta map[string]interface{}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &meta); err != nil {
			return model.Chunk{}, fmt.Errorf("%w: decode metadata for %s: %s", errs.ErrVectorStore, r.ChunkID, err.Error())
		}
	}
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["vector_id"] = r.VectorID
	return model.Chunk{
		ID:         r.ChunkID,
		Content:    r.Content,
		Source:     r.Source,
		ChunkIndex: r.ChunkIndex,
		StartChar:  r.StartChar,
		EndChar:    r.EndChar,
		Metadata:   meta,
	}, nil
}
