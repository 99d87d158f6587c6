package plaintext

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/rental-doc-intake/internal/core/domain"
)

// pageBreak is the form feed some scanners emit between pages.
const pageBreak = "\f"

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) ExtractText(_ context.Context, data []byte, mimeType string) (domain.TextResult, error) {
	if !utf8.Valid(data) {
		return domain.TextResult{}, fmt.Errorf("unsupported binary content for %s", mimeType)
	}

	raw := strings.TrimPrefix(string(data), "\ufeff")
	pages := make([]string, 0)
	for _, page := range strings.Split(raw, pageBreak) {
		page = strings.TrimSpace(page)
		if page == "" {
			continue
		}
		pages = append(pages, page)
	}
	return domain.TextResult{
		Text:  strings.Join(pages, "\n\n"),
		Pages: pages,
	}, nil
}
