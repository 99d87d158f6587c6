package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/kirillkom/rental-doc-intake/internal/core/domain"
	"github.com/kirillkom/rental-doc-intake/internal/core/ports"
)

const (
	MimePDF  = "application/pdf"
	MimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeDOC  = "application/msword"
	MimeZip  = "application/zip"
)

// Router picks a TextProducer by MIME type. Declared types that are missing
// or generic are replaced by a content sniff.
type Router struct {
	byType map[string]ports.TextProducer
	text   ports.TextProducer
	logger *slog.Logger
}

func NewRouter(text ports.TextProducer, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		byType: make(map[string]ports.TextProducer),
		text:   text,
		logger: logger,
	}
}

// Handle registers producer for the given media types.
func (r *Router) Handle(producer ports.TextProducer, mimeTypes ...string) *Router {
	for _, mt := range mimeTypes {
		r.byType[normalizeMime(mt)] = producer
	}
	return r
}

func (r *Router) ExtractText(ctx context.Context, data []byte, mimeType string) (domain.TextResult, error) {
	mt := normalizeMime(mimeType)
	if mt == "" || mt == "application/octet-stream" {
		sniffed := normalizeMime(http.DetectContentType(data))
		r.logger.Debug("mime_sniffed", "declared", mimeType, "detected", sniffed)
		mt = sniffed
	}

	if producer, ok := r.byType[mt]; ok {
		return producer.ExtractText(ctx, data, mt)
	}
	// Office files sniff as plain zip archives.
	if mt == MimeZip {
		if office := officeType(data); office != "" {
			if producer, ok := r.byType[office]; ok {
				r.logger.Debug("mime_sniffed", "declared", mimeType, "detected", office)
				return producer.ExtractText(ctx, data, office)
			}
		}
	}
	if strings.HasPrefix(mt, "text/") && r.text != nil {
		return r.text.ExtractText(ctx, data, mt)
	}
	return domain.TextResult{}, domain.WrapError(domain.ErrInvalidInput, "extract text", fmt.Errorf("unsupported mime type %q", mimeType))
}

// officeType tells OOXML documents apart by the parts stored in the archive.
func officeType(data []byte) string {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ""
	}
	for _, f := range archive.File {
		switch {
		case strings.HasPrefix(f.Name, "word/"):
			return MimeDOCX
		case strings.HasPrefix(f.Name, "xl/"):
			return MimeXLSX
		}
	}
	return ""
}

func normalizeMime(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(raw)
	}
	return mt
}
