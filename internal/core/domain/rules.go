package domain

// DefaultAutoAssignThreshold applies to document types without their own cutoff.
const DefaultAutoAssignThreshold = 0.85

type KeywordContext string

const (
	KeywordContextAny    KeywordContext = ""
	KeywordContextTitle  KeywordContext = "title"
	KeywordContextBody   KeywordContext = "body"
	KeywordContextFooter KeywordContext = "footer"
)

type DocumentType struct {
	ID                  string  `json:"id" yaml:"id"`
	Code                string  `json:"code" yaml:"code"`
	Label               string  `json:"label" yaml:"label"`
	Active              bool    `json:"active" yaml:"active"`
	AutoAssignThreshold float64 `json:"auto_assign_threshold" yaml:"auto_assign_threshold"`
}

// Threshold returns the confidence needed to assign the type without review.
func (t DocumentType) Threshold() float64 {
	return t.ThresholdOr(DefaultAutoAssignThreshold)
}

// ThresholdOr is Threshold with a caller supplied default for types that do
// not configure a valid cutoff.
func (t DocumentType) ThresholdOr(fallback float64) float64 {
	if t.AutoAssignThreshold <= 0 || t.AutoAssignThreshold > 1 {
		return fallback
	}
	return t.AutoAssignThreshold
}

type KeywordRule struct {
	ID      string         `json:"id" yaml:"id"`
	Keyword string         `json:"keyword" yaml:"keyword"`
	Weight  float64        `json:"weight" yaml:"weight"`
	Context KeywordContext `json:"context,omitempty" yaml:"context,omitempty"`
}

type SignalRule struct {
	ID      string  `json:"id" yaml:"id"`
	Pattern string  `json:"pattern" yaml:"pattern"`
	Flags   string  `json:"flags,omitempty" yaml:"flags,omitempty"`
	Weight  float64 `json:"weight" yaml:"weight"`
	Label   string  `json:"label" yaml:"label"`
}

// TypeRules groups the classification rules of a single document type.
type TypeRules struct {
	Type     DocumentType  `json:"type" yaml:"type"`
	Keywords []KeywordRule `json:"keywords" yaml:"keywords"`
	Signals  []SignalRule  `json:"signals" yaml:"signals"`
}

// RuleSet is the classification rule set as stored, one entry per document type.
type RuleSet struct {
	Types []TypeRules `json:"types" yaml:"types"`
}

type PostProcessKind string

const (
	PostProcessText     PostProcessKind = "text"
	PostProcessDate     PostProcessKind = "date"
	PostProcessCurrency PostProcessKind = "currency"
	PostProcessIBAN     PostProcessKind = "iban"
	PostProcessSIREN    PostProcessKind = "siren"
	PostProcessSIRET    PostProcessKind = "siret"
	PostProcessAddress  PostProcessKind = "address"
	PostProcessPhone    PostProcessKind = "phone"
	PostProcessEmail    PostProcessKind = "email"
)

// ParsePostProcessKind maps stored values onto the closed set of kinds.
// Unknown or empty values fall back to plain text.
func ParsePostProcessKind(raw string) PostProcessKind {
	switch kind := PostProcessKind(raw); kind {
	case PostProcessDate, PostProcessCurrency, PostProcessIBAN, PostProcessSIREN,
		PostProcessSIRET, PostProcessAddress, PostProcessPhone, PostProcessEmail:
		return kind
	default:
		return PostProcessText
	}
}

type ExtractionRule struct {
	ID             string          `json:"id" yaml:"id"`
	DocumentTypeID string          `json:"document_type_id" yaml:"document_type_id"`
	FieldName      string          `json:"field_name" yaml:"field_name"`
	Pattern        string          `json:"pattern" yaml:"pattern"`
	Priority       int             `json:"priority" yaml:"priority"`
	PostProcess    PostProcessKind `json:"post_process,omitempty" yaml:"post_process,omitempty"`
}
