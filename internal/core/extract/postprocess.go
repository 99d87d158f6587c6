package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/kirillkom/rental-doc-intake/internal/core/domain"
)

// processed is the outcome of a post-processing handler. Valid reports whether
// the value passed the format-specific sanity check.
type processed struct {
	value domain.FieldValue
	valid bool
	bonus float64
}

var (
	datePattern  = regexp.MustCompile(`^(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{2}|\d{4})$`)
	ibanPattern  = regexp.MustCompile(`^[A-Z]{2}\d{2}[A-Z0-9]{11,30}$`)
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[a-z]{2,}$`)
)

func (e *Engine) postProcess(kind domain.PostProcessKind, raw string) processed {
	switch kind {
	case domain.PostProcessDate:
		return e.processDate(raw)
	case domain.PostProcessCurrency:
		return e.processCurrency(raw)
	case domain.PostProcessIBAN:
		return e.processIBAN(raw)
	case domain.PostProcessSIREN:
		return e.processBusinessID(raw, 9)
	case domain.PostProcessSIRET:
		return e.processBusinessID(raw, 14)
	case domain.PostProcessEmail:
		return e.processEmail(raw)
	case domain.PostProcessPhone:
		return e.processPhone(raw)
	default:
		// address and plain text only get whitespace normalization.
		return processed{value: domain.TextValue(collapseSpaces(raw))}
	}
}

func (e *Engine) processDate(raw string) processed {
	date, ok := ParseFrenchDate(raw)
	if !ok {
		return processed{value: domain.TextValue(strings.TrimSpace(raw))}
	}
	return processed{value: domain.DateValue(date), valid: true, bonus: e.weights.DateBonus}
}

// ParseFrenchDate accepts DD/MM/YYYY, DD-MM-YYYY and DD.MM.YYYY. Two-digit
// years pivot at 50: 00-49 map to 20xx, 50-99 to 19xx.
func ParseFrenchDate(raw string) (time.Time, bool) {
	m := datePattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if len(m[3]) == 2 {
		if year < 50 {
			year += 2000
		} else {
			year += 1900
		}
	}
	if day < 1 || day > 31 || month < 1 || month > 12 {
		return time.Time{}, false
	}

	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if date.Year() != year || int(date.Month()) != month || date.Day() != day {
		return time.Time{}, false
	}
	return date, true
}

func (e *Engine) processCurrency(raw string) processed {
	amount := ParseEuroAmount(raw)
	out := processed{value: domain.NumberValue(amount)}
	if amount > 0 {
		out.valid = true
		out.bonus = e.weights.CurrencyBonus
	}
	return out
}

// ParseEuroAmount keeps digits and separators; whichever of '.' and ',' occurs
// last is the decimal separator. Unparseable input yields 0.
func ParseEuroAmount(raw string) float64 {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' {
			return r
		}
		return -1
	}, raw)
	if cleaned == "" {
		return 0
	}

	lastDot := strings.LastIndex(cleaned, ".")
	lastComma := strings.LastIndex(cleaned, ",")
	decimalSep, thousandSep := ".", ","
	if lastComma > lastDot {
		decimalSep, thousandSep = ",", "."
	}

	cleaned = strings.ReplaceAll(cleaned, thousandSep, "")
	if idx := strings.LastIndex(cleaned, decimalSep); idx >= 0 {
		cleaned = strings.ReplaceAll(cleaned[:idx], decimalSep, "") + "." + cleaned[idx+1:]
	}

	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return amount
}

func (e *Engine) processIBAN(raw string) processed {
	normalized := strings.ToUpper(keepAlphaNum(raw))
	out := processed{value: domain.TextValue(normalized)}
	if ibanPattern.MatchString(normalized) {
		out.valid = true
		out.bonus = e.weights.IdentifierBonus
	}
	return out
}

func (e *Engine) processBusinessID(raw string, length int) processed {
	digits := keepDigits(raw)
	out := processed{value: domain.TextValue(digits)}
	if len(digits) == length {
		out.valid = true
		out.bonus = e.weights.IdentifierBonus
	}
	return out
}

func (e *Engine) processEmail(raw string) processed {
	normalized := strings.ToLower(collapseSpaces(raw))
	out := processed{value: domain.TextValue(normalized)}
	if emailPattern.MatchString(normalized) {
		out.valid = true
		out.bonus = e.weights.ContactBonus
	}
	return out
}

func (e *Engine) processPhone(raw string) processed {
	normalized := collapseSpaces(raw)
	out := processed{value: domain.TextValue(normalized)}
	if n := len(keepDigits(normalized)); n >= 10 && n <= 15 {
		out.valid = true
		out.bonus = e.weights.ContactBonus
	}
	return out
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func keepDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

func keepAlphaNum(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
