package answer

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/model"
	"go.uber.org/zap"
)

const (
	defaultMaxContextChars = 8000
	fallbackSnippetLimit   = 300
	fallbackChunkScan      = 3

	noChunksAnswer = "I couldn't find relevant information in the provided documents to answer your question."
	noMatchAnswer  = "I found some potentially relevant information, but cannot provide a specific answer without more advanced processing capabilities."
)

const answerPromptTemplate = `
You are an expert document analyst specializing in insurance policies, contracts, and legal documents. Your role is to:

1. Analyze document content accurately and thoroughly
2. Provide precise answers based on the given context
3. Identify relevant clauses, terms, and conditions
4. Explain complex policy language in clear terms
5. Highlight important limitations, exclusions, or requirements
6. Maintain objectivity and accuracy in all responses

Based on the following context from policy documents, please answer the user's question accurately and comprehensively.

CONTEXT:
%s

QUESTION: %s

INSTRUCTIONS:
1. Answer based ONLY on the information provided in the context
2. If the context doesn't contain enough information to answer the question, say so clearly
3. Be specific and cite relevant details from the context
4. If there are specific conditions, requirements, or limitations, mention them
5. Use clear, professional language
6. If amounts, dates, or specific terms are mentioned in the context, include them in your answer

ANSWER:`

// LLM is the generation surface the answer layer needs. *ai.Manager
// satisfies it.
type LLM interface {
	Generate(ctx context.Context, prompt string, opts ai.GenerateOptions) (string, error)
	GenerateAvailable() bool
	MaxContextChars() int
}

type Generator struct {
	llm LLM
}

func NewGenerator(llm LLM) *Generator {
	return &Generator{llm: llm}
}

// Answer produces an answer for the question from the retrieved chunks.
// It never fails: any LLM problem degrades to a keyword-overlap answer
// assembled from the chunks themselves.
func (g *Generator) Answer(ctx context.Context, question string, chunks []model.ScoredChunk) string {
	if g.llm == nil || !g.llm.GenerateAvailable() {
		return g.fallbackAnswer(question, chunks)
	}
	maxChars := g.llm.MaxContextChars()
	if maxChars <= 0 {
		maxChars = defaultMaxContextChars
	}
	prompt := fmt.Sprintf(answerPromptTemplate, BuildContext(chunks, maxChars), question)
	res, err := g.llm.Generate(ctx, prompt, ai.GenerateOptions{
		Temperature:     0.2,
		TopP:            0.95,
		TopK:            40,
		MaxOutputTokens: 1500,
	})
	if err != nil {
		logutil.GetLogger(ctx).Warn("llm answer failed, using keyword fallback",
			zap.String("question", trim(question, 50)), zap.Error(err))
		return g.fallbackAnswer(question, chunks)
	}
	logutil.GetLogger(ctx).Info("generated answer", zap.String("question", trim(question, 50)))
	return res
}

// fallbackAnswer scans the top chunks for shared vocabulary with the
// question and stitches matching snippets together.
func (g *Generator) fallbackAnswer(question string, chunks []model.ScoredChunk) string {
	if len(chunks) == 0 {
		return noChunksAnswer
	}
	questionWords := wordSet(question)
	scan := len(chunks)
	if scan > fallbackChunkScan {
		scan = fallbackChunkScan
	}
	var relevant []string
	for _, sc := range chunks[:scan] {
		if !overlaps(questionWords, wordSet(sc.Chunk.Content)) {
			continue
		}
		relevant = append(relevant, trim(sc.Chunk.Content, fallbackSnippetLimit))
	}
	if len(relevant) == 0 {
		return noMatchAnswer
	}
	return "Based on the available documents:\n\n" + strings.Join(relevant, "\n\n")
}

func wordSet(text string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func overlaps(a, b map[string]struct{}) bool {
	for w := range a {
		if _, ok := b[w]; ok {
			return true
		}
	}
	return false
}

// trim cuts s to at most limit bytes, backing up so a multi-byte rune is
// never split.
func trim(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
