package domain

type KeywordMatch struct {
	Keyword string         `json:"keyword"`
	Weight  float64        `json:"weight"`
	Context KeywordContext `json:"context,omitempty"`
	Partial bool           `json:"partial,omitempty"`
}

type SignalMatch struct {
	Label   string  `json:"label"`
	Weight  float64 `json:"weight"`
	Pattern string  `json:"pattern"`
}

type ClassificationCandidate struct {
	DocumentTypeID  string         `json:"document_type_id"`
	Code            string         `json:"code"`
	Label           string         `json:"label"`
	Confidence      float64        `json:"confidence"`
	MatchedKeywords []KeywordMatch `json:"matched_keywords"`
	MatchedSignals  []SignalMatch  `json:"matched_signals"`
}
