package pdf

import (
	"context"
	"testing"
)

func TestExtractTextRejectsNonPDF(t *testing.T) {
	if _, err := NewExtractor(nil).ExtractText(context.Background(), []byte("not a pdf"), "application/pdf"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestJoinPagesSkipsEmptyPages(t *testing.T) {
	got := joinPages([]string{"Avis de taxe foncière", "", "Montant à payer"})
	if got != "Avis de taxe foncière\n\nMontant à payer" {
		t.Fatalf("unexpected text %q", got)
	}
}
