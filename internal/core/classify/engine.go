package classify

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/kirillkom/rental-doc-intake/internal/core/domain"
	"github.com/kirillkom/rental-doc-intake/internal/core/rules"
)

const (
	DefaultPartialCredit = 0.8
	DefaultMaxResults    = 3
)

type Options struct {
	// PartialCredit is the weight multiplier for a multi-word keyword whose
	// words all occur in the text without the exact phrase.
	PartialCredit float64
	MaxResults    int
	Logger        *slog.Logger
}

type Engine struct {
	partialCredit float64
	maxResults    int
	logger        *slog.Logger
}

func NewEngine(opts Options) *Engine {
	partial := opts.PartialCredit
	if partial <= 0 || partial > 1 {
		partial = DefaultPartialCredit
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		partialCredit: partial,
		maxResults:    maxResults,
		logger:        logger,
	}
}

// Classify ranks the active document types of set against text. Types with a
// zero score are left out; ties keep the rule set order.
func (e *Engine) Classify(text string, set *rules.ClassificationRules) []domain.ClassificationCandidate {
	out := make([]domain.ClassificationCandidate, 0, e.maxResults)
	if text == "" || set == nil {
		return out
	}

	lower := strings.ToLower(text)
	for _, ct := range set.Types {
		if !ct.Type.Active || ct.MaxScore <= 0 {
			continue
		}
		candidate, earned := e.scoreType(text, lower, ct)
		confidence := clamp01(earned / ct.MaxScore)
		if confidence <= 0 {
			continue
		}
		candidate.Confidence = confidence
		out = append(out, candidate)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	if len(out) > e.maxResults {
		out = out[:e.maxResults]
	}
	return out
}

func (e *Engine) scoreType(text, lower string, ct rules.CompiledType) (domain.ClassificationCandidate, float64) {
	candidate := domain.ClassificationCandidate{
		DocumentTypeID:  ct.Type.ID,
		Code:            ct.Type.Code,
		Label:           ct.Type.Label,
		MatchedKeywords: []domain.KeywordMatch{},
		MatchedSignals:  []domain.SignalMatch{},
	}

	var earned float64
	for _, kw := range ct.Keywords {
		weight, partial, ok := e.matchKeyword(lower, kw)
		if !ok {
			continue
		}
		earned += weight
		candidate.MatchedKeywords = append(candidate.MatchedKeywords, domain.KeywordMatch{
			Keyword: kw.Keyword,
			Weight:  weight,
			Context: kw.Context,
			Partial: partial,
		})
	}

	for _, sig := range ct.Signals {
		if sig.Err != nil || sig.Pattern == nil {
			e.logger.Debug("signal_rule_skipped", "document_type", ct.Type.Code, "rule_id", sig.ID, "error", sig.Err)
			continue
		}
		if !sig.Pattern.MatchString(text) {
			continue
		}
		earned += sig.Weight
		candidate.MatchedSignals = append(candidate.MatchedSignals, domain.SignalMatch{
			Label:   sig.Label,
			Weight:  sig.Weight,
			Pattern: sig.SignalRule.Pattern,
		})
	}

	return candidate, earned
}

func (e *Engine) matchKeyword(lower string, kw rules.CompiledKeyword) (weight float64, partial bool, ok bool) {
	if strings.Contains(lower, kw.Lower) {
		return kw.Weight, false, true
	}
	if !kw.MultiWord() {
		return 0, false, false
	}
	for _, word := range kw.Words {
		if !strings.Contains(lower, word) {
			return 0, false, false
		}
	}
	return kw.Weight * e.partialCredit, true, true
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
