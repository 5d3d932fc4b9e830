package query

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/docqa/internal/model"
	"go.uber.org/zap"
)

var intentPatterns = map[string][]*regexp.Regexp{
	"coverage_check": {
		regexp.MustCompile(`(?i)cover(ed|age|s)?`),
		regexp.MustCompile(`(?i)eligible|eligibility`),
		regexp.MustCompile(`(?i)qualify|qualifies`),
		regexp.MustCompile(`(?i)include(d|s)?`),
		regexp.MustCompile(`(?i)benefit(s)?`),
	},
	"claim_processing": {
		regexp.MustCompile(`(?i)claim(s)?`),
		regexp.MustCompile(`(?i)reimburse(ment|d)?`),
		regexp.MustCompile(`(?i)pay(ment|s)?`),
		regexp.MustCompile(`(?i)approve(d|al)?`),
		regexp.MustCompile(`(?i)process(ing)?`),
	},
	"policy_terms": {
		regexp.MustCompile(`(?i)term(s)?`),
		regexp.MustCompile(`(?i)condition(s)?`),
		regexp.MustCompile(`(?i)requirement(s)?`),
		regexp.MustCompile(`(?i)rule(s)?`),
		regexp.MustCompile(`(?i)policy`),
	},
	"waiting_period": {
		regexp.MustCompile(`(?i)waiting period`),
		regexp.MustCompile(`(?i)wait(ing)?`),
		regexp.MustCompile(`(?i)grace period`),
		regexp.MustCompile(`(?i)effective date`),
	},
	"exclusions": {
		regexp.MustCompile(`(?i)exclusion(s)?`),
		regexp.MustCompile(`(?i)not cover(ed)?`),
		regexp.MustCompile(`(?i)exclude(d|s)?`),
		regexp.MustCompile(`(?i)limitation(s)?`),
	},
}

var (
	agePattern       = regexp.MustCompile(`(?i)(\d+)\s*year(s)?\s*old|age\s*(\d+)|(\d+)\s*yo`)
	amountPattern    = regexp.MustCompile(`(?i)\$([\d,]+(?:\.\d{2})?)|(\d+)\s*dollar(s)?`)
	durationPattern  = regexp.MustCompile(`(?i)(\d+)\s*(day|week|month|year)s?`)
	procedurePattern = regexp.MustCompile(`(?i)(surgery|operation|treatment|procedure|therapy)`)
	locationPattern  = regexp.MustCompile(`(?i)(hospital|clinic|facility|center|office)`)
	datePattern      = regexp.MustCompile(`(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})|(\d{4}[/-]\d{1,2}[/-]\d{1,2})`)

	whitespacePattern = regexp.MustCompile(`\s+`)
	cleanupPattern    = regexp.MustCompile(`[^\w\s\-\$\.,\?]`)
	wordPattern       = regexp.MustCompile(`[^\w]`)
	alphaPattern      = regexp.MustCompile(`^[a-zA-Z]+$`)
)

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`the a an and or but in on at to for
		of with by is are was were be been have has had do does did will
		would could should may might can this that these those i you he she
		it we they my your his her its our their`) {
		stopWords[w] = struct{}{}
	}
}

// Enhancer is the optional LLM hook used to refine rule-based analysis.
// *answer.Generator satisfies it.
type Enhancer interface {
	GenerateStructured(ctx context.Context, prompt string) (map[string]interface{}, bool)
}

// Processor turns free-form questions into a structured form that drives
// retrieval. Rule-based extraction always works, an LLM refines it when
// available.
type Processor struct {
	enhancer Enhancer
}

func NewProcessor(enhancer Enhancer) *Processor {
	return &Processor{enhancer: enhancer}
}

func (p *Processor) Process(ctx context.Context, q string) model.QueryStructure {
	logutil.GetLogger(ctx).Debug("processing query", zap.String("query", clip(q, 100)))
	cleaned := preprocess(q)
	intent := extractIntent(cleaned)
	entities := extractEntities(cleaned)
	keywords := extractKeywords(cleaned)

	if enhanced, ok := p.enhance(ctx, cleaned, intent, entities, keywords); ok {
		enhanced.OriginalQuery = q
		return enhanced
	}
	return model.QueryStructure{
		OriginalQuery: q,
		Intent:        intent,
		Entities:      entities,
		Keywords:      keywords,
		Confidence:    0.7,
	}
}

// SearchTerms expands a structured query into the terms worth embedding.
func (p *Processor) SearchTerms(qs model.QueryStructure) []string {
	terms := []string{qs.OriginalQuery}
	terms = append(terms, qs.Keywords...)

	if age, ok := qs.Entities["age"].(int); ok {
		terms = append(terms,
			fmt.Sprintf("%d years old", age),
			fmt.Sprintf("age %d", age),
			fmt.Sprintf("minimum age %d", age),
			fmt.Sprintf("maximum age %d", age),
		)
	}
	if amount, ok := qs.Entities["amount"].(float64); ok {
		terms = append(terms,
			fmt.Sprintf("$%.2f", amount),
			fmt.Sprintf("%v dollars", amount),
			fmt.Sprintf("cost %v", amount),
			fmt.Sprintf("limit %v", amount),
		)
	}
	if duration, ok := qs.Entities["duration"].(map[string]interface{}); ok {
		value := duration["value"]
		unit := duration["unit"]
		terms = append(terms,
			fmt.Sprintf("%v %v", value, unit),
			fmt.Sprintf("%v %vs", value, unit),
			fmt.Sprintf("period %v %v", value, unit),
		)
	}

	intentTerms := map[string][]string{
		"coverage_check":   {"coverage", "covered", "eligible", "benefits"},
		"claim_processing": {"claim", "reimbursement", "payment", "approval"},
		"policy_terms":     {"terms", "conditions", "requirements", "rules"},
		"waiting_period":   {"waiting period", "grace period", "effective date"},
		"exclusions":       {"exclusions", "not covered", "limitations"},
	}
	terms = append(terms, intentTerms[qs.Intent]...)

	seen := make(map[string]struct{}, len(terms))
	unique := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		unique = append(unique, term)
	}
	return unique
}

func preprocess(q string) string {
	cleaned := strings.ToLower(strings.TrimSpace(q))
	cleaned = whitespacePattern.ReplaceAllString(cleaned, " ")
	return cleanupPattern.ReplaceAllString(cleaned, "")
}

func extractIntent(q string) string {
	best := "general"
	bestScore := 0
	// deterministic iteration keeps ties stable
	for _, intent := range []string{"claim_processing", "coverage_check", "exclusions", "policy_terms", "waiting_period"} {
		score := 0
		for _, pattern := range intentPatterns[intent] {
			score += len(pattern.FindAllString(q, -1))
		}
		if score > bestScore {
			best = intent
			bestScore = score
		}
	}
	return best
}

func extractEntities(q string) map[string]interface{} {
	entities := map[string]interface{}{}

	if match := agePattern.FindStringSubmatch(q); match != nil {
		for _, group := range match[1:] {
			if group == "" {
				continue
			}
			if age, err := strconv.Atoi(group); err == nil {
				entities["age"] = age
				break
			}
		}
	}
	if match := amountPattern.FindStringSubmatch(q); match != nil {
		raw := match[1]
		if raw == "" {
			raw = match[2]
		}
		raw = strings.ReplaceAll(raw, ",", "")
		if amount, err := strconv.ParseFloat(raw, 64); err == nil {
			entities["amount"] = amount
		}
	}
	if match := durationPattern.FindStringSubmatch(q); match != nil {
		if value, err := strconv.Atoi(match[1]); err == nil {
			entities["duration"] = map[string]interface{}{
				"value": value,
				"unit":  strings.ToLower(match[2]),
			}
		}
	}
	if match := procedurePattern.FindStringSubmatch(q); match != nil {
		entities["procedure"] = strings.ToLower(match[1])
	}
	if match := locationPattern.FindStringSubmatch(q); match != nil {
		entities["location"] = strings.ToLower(match[1])
	}
	if match := datePattern.FindStringSubmatch(q); match != nil {
		entities["date"] = match[0]
	}
	return entities
}

func extractKeywords(q string) []string {
	var keywords []string
	for _, word := range strings.Fields(strings.ToLower(q)) {
		clean := wordPattern.ReplaceAllString(word, "")
		if len(clean) <= 2 || !alphaPattern.MatchString(clean) {
			continue
		}
		if _, ok := stopWords[clean]; ok {
			continue
		}
		keywords = append(keywords, clean)
	}
	return keywords
}

func (p *Processor) enhance(ctx context.Context, q, intent string, entities map[string]interface{}, keywords []string) (model.QueryStructure, bool) {
	if p.enhancer == nil {
		return model.QueryStructure{}, false
	}
	prompt := fmt.Sprintf(`
Analyze the following user query and extract structured information:

Query: "%s"

Please provide:
1. Intent (coverage_check, claim_processing, policy_terms, waiting_period, exclusions, or general)
2. Key entities (age, amount, duration, procedure, location, date, etc.)
3. Important keywords
4. Confidence score (0.0 to 1.0)

Current analysis:
- Intent: %s
- Entities: %v
- Keywords: %v

Respond in JSON format:
{
    "intent": "...",
    "entities": {},
    "keywords": [],
    "confidence": 0.0,
    "reasoning": "..."
}
`, q, intent, entities, keywords)

	raw, ok := p.enhancer.GenerateStructured(ctx, prompt)
	if !ok {
		return model.QueryStructure{}, false
	}
	out := model.QueryStructure{
		Intent:     intent,
		Entities:   entities,
		Keywords:   keywords,
		Confidence: 0.8,
	}
	if v, ok := raw["intent"].(string); ok && v != "" {
		out.Intent = v
	}
	if v, ok := raw["entities"].(map[string]interface{}); ok {
		out.Entities = v
	}
	if v, ok := raw["keywords"].([]interface{}); ok {
		words := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				words = append(words, s)
			}
		}
		out.Keywords = words
	}
	if v, ok := raw["confidence"].(float64); ok {
		out.Confidence = v
	}
	return out, true
}

func clip(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
