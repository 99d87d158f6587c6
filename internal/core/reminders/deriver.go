package reminders

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/rental-doc-intake/internal/core/domain"
)

// Anchor selects how the reference date of a rule is read from a field.
type Anchor string

const (
	// AnchorDate reads a date field and schedules relative to it.
	AnchorDate Anchor = "date"
	// AnchorYear reads a year field and schedules on a fixed calendar day of it.
	AnchorYear Anchor = "year"
)

// Rule turns one extracted field of matching document types into reminders.
// LeadDays yields one reminder per entry, due that many days before the
// reference date. AlertOffsetsDays are copied onto every emitted reminder.
type Rule struct {
	Kind             string
	Title            string
	DocumentTypes    []string
	Field            string
	Anchor           Anchor
	LeadDays         []int
	Month            time.Month
	Day              int
	AlertOffsetsDays []int
}

func (r Rule) appliesTo(code string) bool {
	for _, c := range r.DocumentTypes {
		if strings.EqualFold(c, code) {
			return true
		}
	}
	return false
}

func DefaultRules() []Rule {
	return []Rule{
		{
			Kind:          "assurance_expiration",
			Title:         "Attestation d'assurance à renouveler",
			DocumentTypes: []string{"ATTESTATION_ASSURANCE", "ASSURANCE_HABITATION", "ASSURANCE_PNO"},
			Field:         "date_expiration",
			Anchor:        AnchorDate,
			LeadDays:      []int{30, 7},
		},
		{
			Kind:             "dpe_fin_validite",
			Title:            "Diagnostic de performance énergétique à refaire",
			DocumentTypes:    []string{"DPE"},
			Field:            "date_fin_validite",
			Anchor:           AnchorDate,
			LeadDays:         []int{30},
			AlertOffsetsDays: []int{7},
		},
		{
			Kind:             "taxe_fonciere_paiement",
			Title:            "Paiement de la taxe foncière",
			DocumentTypes:    []string{"TAXE_FONCIERE"},
			Field:            "annee",
			Anchor:           AnchorYear,
			Month:            time.October,
			Day:              15,
			AlertOffsetsDays: []int{30, 15, 7},
		},
	}
}

type Deriver struct {
	rules []Rule
}

// NewDeriver uses DefaultRules when no rule is given.
func NewDeriver(rules ...Rule) *Deriver {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Deriver{rules: rules}
}

// Derive is pure: DocumentID and OwnerID are left for the caller to fill.
// Fields are expected in extraction order, so the first field with a usable
// value for a name is the most confident one.
func (d *Deriver) Derive(documentTypeCode string, fields []domain.ExtractedField) []domain.Reminder {
	out := make([]domain.Reminder, 0)
	for _, rule := range d.rules {
		if !rule.appliesTo(documentTypeCode) {
			continue
		}
		switch rule.Anchor {
		case AnchorDate:
			ref, ok := firstDate(fields, rule.Field)
			if !ok {
				continue
			}
			for _, lead := range rule.LeadDays {
				due := ref.AddDate(0, 0, -lead)
				out = append(out, rule.reminder(due, fmt.Sprintf("%s (échéance le %s, J-%d)", rule.Title, ref.Format("02/01/2006"), lead)))
			}
		case AnchorYear:
			year, ok := firstYear(fields, rule.Field)
			if !ok {
				continue
			}
			due := time.Date(year, rule.Month, rule.Day, 0, 0, 0, 0, time.UTC)
			out = append(out, rule.reminder(due, fmt.Sprintf("%s %d", rule.Title, year)))
		}
	}
	return out
}

func (r Rule) reminder(due time.Time, title string) domain.Reminder {
	offsets := make([]int, len(r.AlertOffsetsDays))
	copy(offsets, r.AlertOffsetsDays)
	return domain.Reminder{
		Kind:             r.Kind,
		Title:            title,
		DueDate:          domain.DateOnly(due),
		AlertOffsetsDays: offsets,
		AutoCreated:      true,
	}
}

func firstDate(fields []domain.ExtractedField, name string) (time.Time, bool) {
	for _, f := range fields {
		if f.FieldName == name && f.Value.Kind == domain.ValueDate && !f.Value.Date.IsZero() {
			return domain.DateOnly(f.Value.Date), true
		}
	}
	return time.Time{}, false
}

func firstYear(fields []domain.ExtractedField, name string) (int, bool) {
	for _, f := range fields {
		if f.FieldName != name {
			continue
		}
		var year int
		switch f.Value.Kind {
		case domain.ValueNumber:
			year = int(f.Value.Number)
		case domain.ValueDate:
			year = f.Value.Date.Year()
		default:
			parsed, err := strconv.Atoi(strings.TrimSpace(f.Value.Text))
			if err != nil {
				continue
			}
			year = parsed
		}
		if year >= 1900 && year <= 2999 {
			return year, true
		}
	}
	return 0, false
}
