package model

// ProcessedDocument groups the chunks produced from one source together with
// document-level metadata.
type ProcessedDocument struct {
	Source         string                 `json:"source"`
	Filename       string                 `json:"filename"`
	Format         string                 `json:"format"`
	SizeBytes      int64                  `json:"size_bytes"`
	Chunks         []Chunk                `json:"chunks"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	ProcessingTime float64                `json:"processing_time"`
}

// ChunkCount reports the number of chunks; derived, never stored.
func (d *ProcessedDocument) ChunkCount() int {
	return len(d.Chunks)
}

// TotalContentLength reports the total character count across all chunks.
func (d *ProcessedDocument) TotalContentLength() int {
	total := 0
	for i := range d.Chunks {
		total += len(d.Chunks[i].Content)
	}
	return total
}
