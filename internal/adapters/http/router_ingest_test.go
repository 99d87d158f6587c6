package httpadapter

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/rental-doc-intake/internal/config"
)

func multipartUpload(t *testing.T, fields map[string]string, content string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("WriteField() error = %v", err)
		}
	}
	part, err := writer.CreateFormFile("file", "quittance.txt")
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return &body, writer.FormDataContentType()
}

func TestHealthzEndpoint(t *testing.T) {
	handler := newTestHandler(config.Config{}, newTestDependencies())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestUploadDocumentSuccess(t *testing.T) {
	deps := newTestDependencies()
	ingest := &ingestFake{}
	deps.Ingestor = ingest
	handler := newTestHandler(config.Config{}, deps)

	body, contentType := multipartUpload(t, map[string]string{"owner_id": "owner-7"}, "Quittance de loyer")
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}

	var docResp map[string]any
	if err := json.NewDecoder(res.Body).Decode(&docResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if docResp["id"] != "doc-1" || docResp["owner_id"] != "owner-7" {
		t.Fatalf("unexpected response: %+v", docResp)
	}
}

func TestUploadDocumentReadsOwnerFromHeader(t *testing.T) {
	deps := newTestDependencies()
	ingest := &ingestFake{}
	deps.Ingestor = ingest
	handler := newTestHandler(config.Config{}, deps)

	body, contentType := multipartUpload(t, nil, "Quittance de loyer")
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(ownerHeader, "owner-h")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted || ingest.lastOwner != "owner-h" {
		t.Fatalf("expected header owner, got code=%d owner=%q", res.Code, ingest.lastOwner)
	}
}

func TestUploadDocumentMissingMultipartField(t *testing.T) {
	handler := newTestHandler(config.Config{}, newTestDependencies())

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewBufferString("plain-text"))
	req.Header.Set("Content-Type", "text/plain")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestGetDocumentIncludesFields(t *testing.T) {
	handler := newTestHandler(config.Config{}, newTestDependencies())

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/doc-9", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var resp struct {
		Document struct {
			ID string `json:"id"`
		} `json:"document"`
		Fields []struct {
			FieldName string `json:"field_name"`
		} `json:"fields"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Document.ID != "doc-9" || len(resp.Fields) != 1 || resp.Fields[0].FieldName != "date_fin_validite" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestListRemindersEndpoint(t *testing.T) {
	handler := newTestHandler(config.Config{}, newTestDependencies())

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/doc-9/reminders", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var resp struct {
		Reminders []struct {
			DocumentID string `json:"document_id"`
		} `json:"reminders"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Reminders) != 1 || resp.Reminders[0].DocumentID != "doc-9" {
		t.Fatalf("unexpected response %+v", resp)
	}
}
