package domain

import (
	"strconv"
	"time"
)

type ValueKind string

const (
	ValueText   ValueKind = "text"
	ValueNumber ValueKind = "number"
	ValueDate   ValueKind = "date"
)

// FieldValue is a tagged union: only the member selected by Kind is meaningful.
type FieldValue struct {
	Kind   ValueKind `json:"kind"`
	Text   string    `json:"text,omitempty"`
	Number float64   `json:"number,omitempty"`
	Date   time.Time `json:"date,omitempty"`
}

func TextValue(s string) FieldValue { return FieldValue{Kind: ValueText, Text: s} }

func NumberValue(n float64) FieldValue { return FieldValue{Kind: ValueNumber, Number: n} }

func DateValue(t time.Time) FieldValue { return FieldValue{Kind: ValueDate, Date: t} }

// String renders the value the way it is shown to users.
func (v FieldValue) String() string {
	switch v.Kind {
	case ValueDate:
		return v.Date.Format("02/01/2006")
	case ValueNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	default:
		return v.Text
	}
}

type ExtractedField struct {
	FieldName    string     `json:"field_name"`
	Value        FieldValue `json:"value"`
	RawValue     string     `json:"raw_value"`
	Confidence   float64    `json:"confidence"`
	SourceRuleID string     `json:"source_rule_id"`
}
