package extract

import (
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/rental-doc-intake/internal/core/domain"
	"github.com/kirillkom/rental-doc-intake/internal/core/rules"
)

// ConfidenceWeights drive the additive confidence heuristic. The values are
// tuned defaults, not statistical estimates.
type ConfidenceWeights struct {
	Base            float64
	LongMatchBonus  float64
	VeryLongBonus   float64
	LongMatchChars  int
	VeryLongChars   int
	DateBonus       float64
	CurrencyBonus   float64
	IdentifierBonus float64
	ContactBonus    float64
}

func DefaultConfidenceWeights() ConfidenceWeights {
	return ConfidenceWeights{
		Base:            0.5,
		LongMatchBonus:  0.2,
		VeryLongBonus:   0.1,
		LongMatchChars:  10,
		VeryLongChars:   20,
		DateBonus:       0.3,
		CurrencyBonus:   0.2,
		IdentifierBonus: 0.3,
		ContactBonus:    0.2,
	}
}

type Options struct {
	Weights *ConfidenceWeights
	Logger  *slog.Logger
}

type Engine struct {
	weights ConfidenceWeights
	logger  *slog.Logger
}

func NewEngine(opts Options) *Engine {
	weights := DefaultConfidenceWeights()
	if opts.Weights != nil {
		weights = *opts.Weights
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{weights: weights, logger: logger}
}

// Extract runs every rule over text and returns all matches, ordered by field
// name then descending confidence. Rules must already be in priority order.
func (e *Engine) Extract(text, documentTypeID string, compiled []rules.CompiledExtractionRule) []domain.ExtractedField {
	out := make([]domain.ExtractedField, 0)
	if strings.TrimSpace(text) == "" {
		return out
	}

	for _, rule := range compiled {
		if rule.Err != nil || rule.Pattern == nil {
			e.logger.Debug("extraction_rule_skipped",
				"document_type_id", documentTypeID,
				"rule_id", rule.ID,
				"error", rule.Err,
			)
			continue
		}
		if rule.DocumentTypeID != "" && documentTypeID != "" && rule.DocumentTypeID != documentTypeID {
			continue
		}

		for _, m := range rule.Pattern.FindAllStringSubmatch(text, -1) {
			raw := matchValue(m)
			if strings.TrimSpace(raw) == "" {
				continue
			}
			result := e.postProcess(rule.PostProcess, raw)
			out = append(out, domain.ExtractedField{
				FieldName:    rule.FieldName,
				Value:        result.value,
				RawValue:     raw,
				Confidence:   e.confidence(raw, result),
				SourceRuleID: rule.ID,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FieldName != out[j].FieldName {
			return out[i].FieldName < out[j].FieldName
		}
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

func (e *Engine) confidence(raw string, result processed) float64 {
	score := e.weights.Base
	length := utf8.RuneCountInString(strings.TrimSpace(raw))
	if length > e.weights.LongMatchChars {
		score += e.weights.LongMatchBonus
	}
	if length > e.weights.VeryLongChars {
		score += e.weights.VeryLongBonus
	}
	if result.valid {
		score += result.bonus
	}
	if score > 1 {
		return 1
	}
	return score
}

// matchValue prefers the first non-empty capture group over the whole match.
func matchValue(m []string) string {
	for _, group := range m[1:] {
		if group != "" {
			return group
		}
	}
	return m[0]
}
