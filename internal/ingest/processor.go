package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/docqa/internal/chunker"
	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/pkg/errs"
	"go.uber.org/zap"
)

// Processor handles one document end to end: fetch, text extraction and
// chunking. Concurrency across documents is the caller's concern.
type Processor struct {
	downloader *Downloader
	chunker    *chunker.Chunker
}

func NewProcessor(downloader *Downloader, chk *chunker.Chunker) *Processor {
	return &Processor{downloader: downloader, chunker: chk}
}

func (p *Processor) Process(ctx context.Context, source string) (*model.ProcessedDocument, error) {
	start := time.Now()
	dl, err := p.downloader.Fetch(ctx, source)
	if err != nil {
		return nil, err
	}
	defer p.downloader.Cleanup(dl)

	text, err := ExtractText(dl)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to process document %s: %s", errs.ErrDocumentProcessing, source, err.Error())
	}

	metadata := map[string]interface{}{
		"filename":     dl.Filename,
		"format":       dl.Format,
		"size_bytes":   dl.SizeBytes,
		"content_type": dl.ContentType,
		"url":          source,
	}
	chunks := p.chunker.Chunk(text, source, metadata)
	elapsed := time.Since(start).Seconds()
	metadata["processing_time"] = elapsed

	logutil.GetLogger(ctx).Info("processed document",
		zap.String("filename", dl.Filename),
		zap.Int("chunks", len(chunks)),
		zap.Float64("elapsed", elapsed))

	return &model.ProcessedDocument{
		Source:         source,
		Filename:       dl.Filename,
		Format:         dl.Format,
		SizeBytes:      dl.SizeBytes,
		Chunks:         chunks,
		Metadata:       metadata,
		ProcessingTime: elapsed,
	}, nil
}
