package spreadsheet

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/rental-doc-intake/internal/core/domain"
)

// Extractor renders each worksheet as one page: cells separated by tabs,
// rows by newlines.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) ExtractText(ctx context.Context, data []byte, _ string) (domain.TextResult, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return domain.TextResult{}, fmt.Errorf("open workbook: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	pages := make([]string, 0, len(sheets))
	for _, sheet := range sheets {
		if err := ctx.Err(); err != nil {
			return domain.TextResult{}, err
		}
		rows, err := book.GetRows(sheet)
		if err != nil {
			return domain.TextResult{}, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t ")
			if line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}

	text := make([]string, 0, len(pages))
	for _, p := range pages {
		if p != "" {
			text = append(text, p)
		}
	}
	return domain.TextResult{
		Text:  strings.Join(text, "\n\n"),
		Pages: pages,
	}, nil
}
