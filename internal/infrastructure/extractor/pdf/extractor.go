package pdf

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/rental-doc-intake/internal/core/domain"
)

// Extractor reads the embedded text layer of a PDF, one entry per page.
// Scanned PDFs without a text layer produce empty pages.
type Extractor struct {
	logger *slog.Logger
}

func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

func (e *Extractor) ExtractText(ctx context.Context, data []byte, _ string) (domain.TextResult, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return domain.TextResult{}, fmt.Errorf("open pdf: %w", err)
	}

	total := reader.NumPage()
	pages := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return domain.TextResult{}, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			e.logger.Warn("pdf_page_null", "page", i)
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return domain.TextResult{}, fmt.Errorf("read pdf page %d: %w", i, err)
		}
		pages = append(pages, strings.TrimSpace(text))
	}

	e.logger.Debug("pdf_text_extracted", "pages", total, "bytes", len(data))
	return domain.TextResult{
		Text:  joinPages(pages),
		Pages: pages,
	}, nil
}

func joinPages(pages []string) string {
	nonEmpty := make([]string, 0, len(pages))
	for _, p := range pages {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "\n\n")
}
