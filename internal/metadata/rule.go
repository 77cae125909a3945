package metadata

// Rule is a write-time validation attached to a collection.
// Type is "field" (operator check on one field) or "expression" (expr-lang,
// violated when the expression evaluates to true).
type Rule struct {
	Type       string         `json:"type"`
	Definition RuleDefinition `json:"definition"`
	Compiled   any            `json:"-"`
}

type RuleDefinition struct {
	Field      string `json:"field,omitempty"`
	Operator   string `json:"operator,omitempty"` // min, max, min_length, max_length, pattern
	Value      any    `json:"value,omitempty"`
	Expression string `json:"expression,omitempty"`
	Message    string `json:"message,omitempty"`
	StopOnFail bool   `json:"stop_on_fail,omitempty"`
}
