package answer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/model"
	"go.uber.org/zap"
)

const evaluationContextChars = 2000

const evaluationPromptTemplate = `
Evaluate the quality of this answer based on the question and context provided.

QUESTION: %s

ANSWER: %s

CONTEXT: %s

Please evaluate on these criteria:
1. Accuracy: Is the answer factually correct based on the context?
2. Completeness: Does it fully address the question?
3. Relevance: Is the answer directly relevant to the question?
4. Clarity: Is the answer clear and well-structured?

Respond in JSON format:
{
    "confidence": 0.0-1.0,
    "accuracy_score": 0.0-1.0,
    "completeness_score": 0.0-1.0,
    "relevance_score": 0.0-1.0,
    "clarity_score": 0.0-1.0,
    "reasoning": "Brief explanation of the evaluation"
}
`

const keyInfoPromptTemplate = `
Extract key information from the following text. Focus on:
- Important terms and conditions
- Amounts, dates, and numbers
- Requirements and eligibility criteria
- Exclusions and limitations
- Key entities (people, organizations, procedures, etc.)

TEXT: %s

Respond in JSON format with extracted information.
`

type Evaluation struct {
	Confidence        float64 `json:"confidence"`
	AccuracyScore     float64 `json:"accuracy_score"`
	CompletenessScore float64 `json:"completeness_score"`
	RelevanceScore    float64 `json:"relevance_score"`
	ClarityScore      float64 `json:"clarity_score"`
	Reasoning         string  `json:"reasoning"`
}

// GenerateStructured asks the LLM for a JSON object. The result is
// best-effort: any failure, including an unparseable response, reports
// absence instead of an error.
func (g *Generator) GenerateStructured(ctx context.Context, prompt string) (map[string]interface{}, bool) {
	if g.llm == nil || !g.llm.GenerateAvailable() {
		return nil, false
	}
	structured := prompt + "\n\nPlease respond in valid JSON format only. Do not include any text outside the JSON structure.\n"
	res, err := g.llm.Generate(ctx, structured, ai.GenerateOptions{
		Temperature:     0.1,
		MaxOutputTokens: 1000,
	})
	if err != nil {
		logutil.GetLogger(ctx).Warn("structured generation failed", zap.Error(err))
		return nil, false
	}
	out, ok := parseJSONObject(res)
	if !ok {
		logutil.GetLogger(ctx).Warn("could not parse llm response as json")
	}
	return out, ok
}

// EvaluateAnswerQuality scores an answer against its question and context.
// Without a usable LLM, or when evaluation fails, it returns a neutral
// placeholder rather than an error.
func (g *Generator) EvaluateAnswerQuality(ctx context.Context, question string, ans string, chunks []model.ScoredChunk) Evaluation {
	if g.llm == nil || !g.llm.GenerateAvailable() {
		return Evaluation{Confidence: 0.5, Reasoning: "Fallback evaluation"}
	}
	prompt := fmt.Sprintf(evaluationPromptTemplate, question, ans, BuildContext(chunks, evaluationContextChars))
	raw, ok := g.GenerateStructured(ctx, prompt)
	if !ok {
		return Evaluation{Confidence: 0.7, Reasoning: "Could not evaluate answer quality"}
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return Evaluation{Confidence: 0.7, Reasoning: "Could not evaluate answer quality"}
	}
	var eval Evaluation
	if err := json.Unmarshal(data, &eval); err != nil {
		return Evaluation{Confidence: 0.7, Reasoning: "Could not evaluate answer quality"}
	}
	return eval
}

// ExtractKeyInformation pulls structured facts out of raw text. Best
// effort, absent result on any failure.
func (g *Generator) ExtractKeyInformation(ctx context.Context, text string) (map[string]interface{}, bool) {
	if g.llm == nil || !g.llm.GenerateAvailable() {
		return nil, false
	}
	if len(text) > 4000 {
		text = text[:4000]
	}
	return g.GenerateStructured(ctx, fmt.Sprintf(keyInfoPromptTemplate, text))
}

// parseJSONObject decodes the whole response as JSON, then falls back to
// the outermost braced region for models that wrap JSON in prose.
func parseJSONObject(content string) (map[string]interface{}, bool) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(content), &out); err == nil {
		return out, true
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &out); err != nil {
		return nil, false
	}
	return out, true
}
