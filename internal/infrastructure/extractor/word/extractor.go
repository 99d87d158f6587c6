package word

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"code.sajari.com/docconv/v2"

	"github.com/kirillkom/rental-doc-intake/internal/core/domain"
	"github.com/kirillkom/rental-doc-intake/internal/infrastructure/extractor"
)

// Extractor converts Word documents to plain text. Word has no stable page
// boundaries, so the whole body is returned as a single page. Legacy .doc
// files need the wvText tool on PATH.
type Extractor struct {
	logger *slog.Logger
}

func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

func (e *Extractor) ExtractText(ctx context.Context, data []byte, mimeType string) (domain.TextResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.TextResult{}, err
	}
	if mimeType != extractor.MimeDOC {
		mimeType = extractor.MimeDOCX
	}

	res, err := docconv.Convert(bytes.NewReader(data), mimeType, false)
	if err != nil {
		return domain.TextResult{}, fmt.Errorf("convert word document: %w", err)
	}

	text := strings.TrimSpace(res.Body)
	if text == "" {
		e.logger.Warn("word_text_empty", "mime_type", mimeType, "bytes", len(data))
	}
	e.logger.Debug("word_text_extracted", "mime_type", mimeType, "chars", len(text))
	return domain.TextResult{
		Text:  text,
		Pages: []string{text},
	}, nil
}
