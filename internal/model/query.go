package model

// QueryStructure is the structured form of a user question produced by the
// query understanding layer.
type QueryStructure struct {
	OriginalQuery string                 `json:"original_query"`
	Intent        string                 `json:"intent"`
	Entities      map[string]interface{} `json:"entities"`
	Keywords      []string               `json:"keywords"`
	Confidence    float64                `json:"confidence"`
}
