package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/kirillkom/rental-doc-intake/internal/core/domain"
)

type producerStub struct {
	name string
	mime string
}

func (p *producerStub) ExtractText(_ context.Context, _ []byte, mimeType string) (domain.TextResult, error) {
	p.mime = mimeType
	return domain.TextResult{Text: p.name}, nil
}

func newTestRouter() (*Router, *producerStub, *producerStub, *producerStub) {
	text := &producerStub{name: "text"}
	pdf := &producerStub{name: "pdf"}
	xlsx := &producerStub{name: "xlsx"}
	docx := &producerStub{name: "docx"}
	r := NewRouter(text, nil).
		Handle(text, "text/plain", "text/csv").
		Handle(pdf, MimePDF).
		Handle(xlsx, MimeXLSX).
		Handle(docx, MimeDOCX, MimeDOC)
	return r, text, pdf, xlsx
}

func zipArchive(t *testing.T, names ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("Create(%s) error = %v", name, err)
		}
		if _, err := w.Write([]byte("<xml/>")); err != nil {
			t.Fatalf("Write(%s) error = %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return buf.Bytes()
}

func TestRouterDispatchesByDeclaredType(t *testing.T) {
	r, _, _, _ := newTestRouter()
	cases := map[string]string{
		"application/pdf":           "pdf",
		"Application/PDF":           "pdf",
		"text/plain; charset=utf-8": "text",
		MimeXLSX:                    "xlsx",
		MimeDOCX:                    "docx",
		MimeDOC:                     "docx",
		"text/markdown":             "text",
	}
	for mimeType, want := range cases {
		got, err := r.ExtractText(context.Background(), []byte("x"), mimeType)
		if err != nil {
			t.Fatalf("%s: ExtractText() error = %v", mimeType, err)
		}
		if got.Text != want {
			t.Fatalf("%s: routed to %q, want %q", mimeType, got.Text, want)
		}
	}
}

func TestRouterSniffsGenericTypes(t *testing.T) {
	r, _, pdf, _ := newTestRouter()
	got, err := r.ExtractText(context.Background(), []byte("%PDF-1.7\n..."), "application/octet-stream")
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	if got.Text != "pdf" || pdf.mime != MimePDF {
		t.Fatalf("expected pdf producer, got %q (%q)", got.Text, pdf.mime)
	}
}

func TestRouterInspectsZipArchives(t *testing.T) {
	r, _, _, xlsx := newTestRouter()
	cases := []struct {
		name  string
		parts []string
		want  string
	}{
		{name: "workbook", parts: []string{"[Content_Types].xml", "xl/workbook.xml"}, want: "xlsx"},
		{name: "word document", parts: []string{"[Content_Types].xml", "word/document.xml"}, want: "docx"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.ExtractText(context.Background(), zipArchive(t, tc.parts...), "")
			if err != nil {
				t.Fatalf("ExtractText() error = %v", err)
			}
			if got.Text != tc.want {
				t.Fatalf("routed to %q, want %q", got.Text, tc.want)
			}
		})
	}
	if xlsx.mime != MimeXLSX {
		t.Fatalf("xlsx producer expected its own mime type, got %q", xlsx.mime)
	}

	_, err := r.ExtractText(context.Background(), zipArchive(t, "photos/a.jpg"), "application/octet-stream")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("plain zip archives must be rejected, got %v", err)
	}
}

func TestRouterRejectsUnsupportedType(t *testing.T) {
	r, _, _, _ := newTestRouter()
	_, err := r.ExtractText(context.Background(), []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, "image/png")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
