package service

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/pkg/errs"
	"github.com/xxxsen/docqa/internal/vectorindex"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxConcurrent  = 5
	defaultTopK           = 10
	fallbackContextChunks = 10

	taskTypeDocument = "RETRIEVAL_DOCUMENT"
	taskTypeQuery    = "RETRIEVAL_QUERY"

	snippetLimit        = 200
	topSnippetsPerQuery = 3
)

// DocumentProcessor turns one document source into chunks.
type DocumentProcessor interface {
	Process(ctx context.Context, source string) (*model.ProcessedDocument, error)
}

type Embedder interface {
	Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error)
}

type Answerer interface {
	Answer(ctx context.Context, question string, chunks []model.ScoredChunk) string
}

// QueryAnalyzer structures a raw question and expands it into search
// terms. Analysis can involve an LLM round trip, so the pipeline consults
// it only when the caller asked for detailed per-question metadata.
type QueryAnalyzer interface {
	Process(ctx context.Context, q string) model.QueryStructure
	SearchTerms(qs model.QueryStructure) []string
}

type PipelineConfig struct {
	MaxConcurrent int
	TopK          int
}

// Pipeline runs the full document QA flow: ingest documents concurrently,
// index their chunks and answer each question from retrieved context.
type Pipeline struct {
	processor DocumentProcessor
	embedder  Embedder
	index     vectorindex.Index
	answerer  Answerer
	analyzer  QueryAnalyzer
	cfg       PipelineConfig
}

func NewPipeline(
	processor DocumentProcessor,
	embedder Embedder,
	index vectorindex.Index,
	answerer Answerer,
	analyzer QueryAnalyzer,
	cfg PipelineConfig,
) *Pipeline {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	return &Pipeline{
		processor: processor,
		embedder:  embedder,
		index:     index,
		answerer:  answerer,
		analyzer:  analyzer,
		cfg:       cfg,
	}
}

type Result struct {
	Answers        []string `json:"answers"`
	ProcessingTime float64  `json:"processing_time"`
	DocumentCount  int      `json:"document_count"`
}

type DocumentInfo struct {
	URL            string  `json:"url"`
	Filename       string  `json:"filename"`
	SizeBytes      int64   `json:"size_bytes"`
	Format         string  `json:"format"`
	Chunks         int     `json:"chunks"`
	ProcessingTime float64 `json:"processing_time"`
}

type QueryInfo struct {
	Question        string   `json:"question"`
	Answer          string   `json:"answer"`
	Intent          string   `json:"intent"`
	Confidence      float64  `json:"confidence"`
	RelevantChunks  []string `json:"relevant_chunks"`
	SourceDocuments []string `json:"source_documents"`
	SearchTerms     []string `json:"search_terms,omitempty"`
}

type DetailedResult struct {
	Result
	Documents []DocumentInfo `json:"documents"`
	Queries   []QueryInfo    `json:"queries"`
}

// Run processes documents and answers questions, returning one answer per
// question in order. A failing document is skipped, a failing question
// yields an error string in its slot, neither aborts the run.
func (p *Pipeline) Run(ctx context.Context, documents []string, questions []string) (*Result, error) {
	detailed, err := p.run(ctx, documents, questions, false)
	if err != nil {
		return nil, err
	}
	return &detailed.Result, nil
}

// RunDetailed is Run plus per-document and per-question metadata.
func (p *Pipeline) RunDetailed(ctx context.Context, documents []string, questions []string) (*DetailedResult, error) {
	return p.run(ctx, documents, questions, true)
}

func (p *Pipeline) run(ctx context.Context, documents []string, questions []string, detailed bool) (*DetailedResult, error) {
	start := time.Now()
	logutil.GetLogger(ctx).Info("processing request",
		zap.Int("documents", len(documents)), zap.Int("questions", len(questions)))

	docs := p.processDocuments(ctx, documents)
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no documents could be processed", errs.ErrNoContent)
	}
	var allChunks []model.Chunk
	for _, doc := range docs {
		allChunks = append(allChunks, doc.Chunks...)
	}
	if len(allChunks) == 0 {
		return nil, fmt.Errorf("%w: documents produced no content", errs.ErrNoContent)
	}

	indexed := p.indexChunks(ctx, allChunks)

	out := &DetailedResult{
		Result: Result{
			Answers:       make([]string, 0, len(questions)),
			DocumentCount: len(docs),
		},
	}
	for _, question := range questions {
		answerText, info := p.answerQuestion(ctx, question, indexed, allChunks, detailed)
		out.Answers = append(out.Answers, answerText)
		if detailed {
			out.Queries = append(out.Queries, info)
		}
	}
	if detailed {
		for _, doc := range docs {
			out.Documents = append(out.Documents, DocumentInfo{
				URL:            doc.Source,
				Filename:       doc.Filename,
				SizeBytes:      doc.SizeBytes,
				Format:         doc.Format,
				Chunks:         len(doc.Chunks),
				ProcessingTime: doc.ProcessingTime,
			})
		}
	}
	out.ProcessingTime = time.Since(start).Seconds()
	logutil.GetLogger(ctx).Info("request processed",
		zap.Float64("elapsed", out.ProcessingTime), zap.Int("documents", out.DocumentCount))
	return out, nil
}

// Stats reports the state of the backing index.
func (p *Pipeline) Stats(ctx context.Context) (vectorindex.Stats, error) {
	if p.index == nil {
		return vectorindex.Stats{Backend: "none"}, nil
	}
	return p.index.Stats(ctx)
}

// ClearIndex drops all indexed chunks.
func (p *Pipeline) ClearIndex(ctx context.Context) error {
	if p.index == nil {
		return nil
	}
	return p.index.Clear(ctx)
}

// processDocuments ingests sources with bounded concurrency. Failures are
// logged and dropped so one bad document cannot sink the batch. Results
// keep the order of the input sources.
func (p *Pipeline) processDocuments(ctx context.Context, sources []string) []*model.ProcessedDocument {
	results := make([]*model.ProcessedDocument, len(sources))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrent)
	for i, source := range sources {
		g.Go(func() error {
			doc, err := p.processor.Process(gctx, source)
			if err != nil {
				logutil.GetLogger(gctx).Error("document processing failed",
					zap.String("source", source), zap.Error(err))
				return nil
			}
			mu.Lock()
			results[i] = doc
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	docs := make([]*model.ProcessedDocument, 0, len(results))
	for _, doc := range results {
		if doc != nil {
			docs = append(docs, doc)
		}
	}
	return docs
}

// indexChunks embeds and stores all chunks in one batch. On failure the
// pipeline degrades to answering from raw chunks instead of aborting.
func (p *Pipeline) indexChunks(ctx context.Context, chunks []model.Chunk) bool {
	if p.index == nil {
		return false
	}
	texts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		texts = append(texts, chunk.Content)
	}
	vectors, err := p.embedder.Embed(ctx, texts, taskTypeDocument)
	if err != nil {
		logutil.GetLogger(ctx).Warn("embedding failed, answering without index", zap.Error(err))
		return false
	}
	if len(vectors) != len(chunks) {
		logutil.GetLogger(ctx).Warn("embedding count mismatch, answering without index",
			zap.Int("chunks", len(chunks)), zap.Int("vectors", len(vectors)))
		return false
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}
	if err := p.index.Upsert(ctx, chunks); err != nil {
		logutil.GetLogger(ctx).Warn("index upsert failed, answering without index", zap.Error(err))
		return false
	}
	return true
}

func (p *Pipeline) answerQuestion(ctx context.Context, question string, indexed bool, allChunks []model.Chunk, detailed bool) (string, QueryInfo) {
	intent := "general"
	var searchTerms []string
	if detailed && p.analyzer != nil {
		qs := p.analyzer.Process(ctx, question)
		intent = qs.Intent
		searchTerms = p.analyzer.SearchTerms(qs)
	}

	relevant, err := p.retrieve(ctx, question, indexed, allChunks)
	if err != nil {
		logutil.GetLogger(ctx).Error("question processing failed",
			zap.String("question", question), zap.Error(err))
		msg := fmt.Sprintf("Unable to process question: %s", err.Error())
		return msg, QueryInfo{
			Question:        question,
			Answer:          fmt.Sprintf("Error: %s", err.Error()),
			Intent:          intent,
			Confidence:      0,
			RelevantChunks:  []string{},
			SourceDocuments: []string{},
		}
	}

	answerText := p.answerer.Answer(ctx, question, relevant)
	if !detailed {
		return answerText, QueryInfo{}
	}

	snippets := make([]string, 0, topSnippetsPerQuery)
	for _, sc := range relevant {
		if len(snippets) >= topSnippetsPerQuery {
			break
		}
		snippets = append(snippets, truncate(sc.Chunk.Content, snippetLimit))
	}
	seen := map[string]struct{}{}
	sources := make([]string, 0, len(relevant))
	for _, sc := range relevant {
		if _, ok := seen[sc.Chunk.Source]; ok {
			continue
		}
		seen[sc.Chunk.Source] = struct{}{}
		sources = append(sources, sc.Chunk.Source)
	}
	return answerText, QueryInfo{
		Question:        question,
		Answer:          answerText,
		Intent:          intent,
		Confidence:      0.85,
		RelevantChunks:  snippets,
		SourceDocuments: sources,
		SearchTerms:     searchTerms,
	}
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// retrieve finds the chunks to answer from: a semantic search when the
// index is live, otherwise the head of the raw chunk list.
func (p *Pipeline) retrieve(ctx context.Context, question string, indexed bool, allChunks []model.Chunk) ([]model.ScoredChunk, error) {
	if !indexed || p.index == nil {
		limit := fallbackContextChunks
		if limit > len(allChunks) {
			limit = len(allChunks)
		}
		out := make([]model.ScoredChunk, 0, limit)
		for _, chunk := range allChunks[:limit] {
			out = append(out, model.ScoredChunk{Chunk: chunk})
		}
		return out, nil
	}
	vectors, err := p.embedder.Embed(ctx, []string{question}, taskTypeQuery)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed question: got %d vectors", len(vectors))
	}
	return p.index.Search(ctx, vectors[0], p.cfg.TopK)
}
