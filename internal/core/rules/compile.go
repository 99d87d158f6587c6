package rules

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/kirillkom/rental-doc-intake/internal/core/domain"
)

// DefaultSignalFlags is used when a signal rule declares no flags.
const DefaultSignalFlags = "iu"

type CompiledKeyword struct {
	domain.KeywordRule
	Lower string
	Words []string
}

// MultiWord reports whether partial credit may apply to the keyword.
func (k CompiledKeyword) MultiWord() bool {
	return len(k.Words) > 1
}

// CompiledSignal holds either a usable Pattern or the compilation Err.
type CompiledSignal struct {
	domain.SignalRule
	Pattern *regexp.Regexp
	Err     error
}

type CompiledType struct {
	Type     domain.DocumentType
	Keywords []CompiledKeyword
	Signals  []CompiledSignal
	// MaxScore is the sum of every declared weight of the type.
	MaxScore float64
}

type ClassificationRules struct {
	Version string
	Types   []CompiledType
}

// Type looks up a document type by id.
func (r *ClassificationRules) Type(id string) (domain.DocumentType, bool) {
	if r == nil {
		return domain.DocumentType{}, false
	}
	for _, t := range r.Types {
		if t.Type.ID == id {
			return t.Type, true
		}
	}
	return domain.DocumentType{}, false
}

// CompiledExtractionRule holds either a usable Pattern or the compilation Err.
type CompiledExtractionRule struct {
	domain.ExtractionRule
	Pattern *regexp.Regexp
	Err     error
}

func CompileClassification(set domain.RuleSet, version string, logger *slog.Logger) *ClassificationRules {
	logger = orDefault(logger)
	out := &ClassificationRules{
		Version: version,
		Types:   make([]CompiledType, 0, len(set.Types)),
	}

	for _, tr := range set.Types {
		ct := CompiledType{
			Type:     tr.Type,
			Keywords: make([]CompiledKeyword, 0, len(tr.Keywords)),
			Signals:  make([]CompiledSignal, 0, len(tr.Signals)),
		}

		for _, kw := range tr.Keywords {
			kw.Weight = sanitizeWeight(logger, tr.Type.Code, kw.ID, kw.Weight)
			lower := strings.ToLower(strings.TrimSpace(kw.Keyword))
			if lower == "" {
				continue
			}
			ct.Keywords = append(ct.Keywords, CompiledKeyword{
				KeywordRule: kw,
				Lower:       lower,
				Words:       strings.Fields(lower),
			})
			ct.MaxScore += kw.Weight
		}

		for _, sig := range tr.Signals {
			sig.Weight = sanitizeWeight(logger, tr.Type.Code, sig.ID, sig.Weight)
			pattern, err := CompileSignalPattern(sig.Pattern, sig.Flags)
			if err != nil {
				logger.Warn("signal_rule_invalid",
					"document_type", tr.Type.Code,
					"rule_id", sig.ID,
					"pattern", sig.Pattern,
					"error", err,
				)
			}
			ct.Signals = append(ct.Signals, CompiledSignal{SignalRule: sig, Pattern: pattern, Err: err})
			ct.MaxScore += sig.Weight
		}

		out.Types = append(out.Types, ct)
	}
	return out
}

// CompileExtraction compiles extraction patterns case-insensitively and orders
// the rules by ascending priority, keeping input order among equal priorities.
func CompileExtraction(rules []domain.ExtractionRule, logger *slog.Logger) []CompiledExtractionRule {
	logger = orDefault(logger)
	out := make([]CompiledExtractionRule, 0, len(rules))
	for _, rule := range rules {
		rule.PostProcess = domain.ParsePostProcessKind(string(rule.PostProcess))
		pattern, err := regexp.Compile("(?i)" + rule.Pattern)
		if err != nil {
			err = fmt.Errorf("compile extraction pattern: %w", err)
			logger.Warn("extraction_rule_invalid",
				"document_type_id", rule.DocumentTypeID,
				"rule_id", rule.ID,
				"field", rule.FieldName,
				"error", err,
			)
			pattern = nil
		}
		out = append(out, CompiledExtractionRule{ExtractionRule: rule, Pattern: pattern, Err: err})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

// CompileSignalPattern translates declared regex flags into RE2 inline flags.
// "u", "g" and "y" are accepted and ignored: RE2 is Unicode-aware and matching
// is always a global test here.
func CompileSignalPattern(pattern, flags string) (*regexp.Regexp, error) {
	if strings.TrimSpace(flags) == "" {
		flags = DefaultSignalFlags
	}

	var inline strings.Builder
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			if !strings.ContainsRune(inline.String(), f) {
				inline.WriteRune(f)
			}
		case 'u', 'g', 'y', ' ':
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", f)
		}
	}

	expr := pattern
	if inline.Len() > 0 {
		expr = "(?" + inline.String() + ")" + pattern
	}
	compiled, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile signal pattern: %w", err)
	}
	return compiled, nil
}

func sanitizeWeight(logger *slog.Logger, typeCode, ruleID string, weight float64) float64 {
	if weight >= 0 {
		return weight
	}
	logger.Warn("rule_weight_negative", "document_type", typeCode, "rule_id", ruleID, "weight", weight)
	return 0
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
