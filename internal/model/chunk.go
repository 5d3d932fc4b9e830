package model

// Chunk is a bounded segment of a document's extracted text, the unit of
// storage and retrieval.
type Chunk struct {
	ID         string                 `json:"id"`
	Content    string                 `json:"content"`
	Source     string                 `json:"source"`
	ChunkIndex int                    `json:"chunk_index"`
	StartChar  int                    `json:"start_char"`
	EndChar    int                    `json:"end_char"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Embedding  []float32              `json:"embedding,omitempty"`
}

// CloneMetadata returns a copy of the chunk metadata so callers can annotate
// it without mutating stored state.
func (c *Chunk) CloneMetadata() map[string]interface{} {
	if c.Metadata == nil {
		return make(map[string]interface{})
	}
	out := make(map[string]interface{}, len(c.Metadata))
	for k, v := range c.Metadata {
		out[k] = v
	}
	return out
}

// ScoredChunk pairs a stored chunk with a per-query similarity score.
// The score lives here instead of on the chunk so a search never leaks
// query-time state into persisted chunks.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float32 `json:"score"`
}
