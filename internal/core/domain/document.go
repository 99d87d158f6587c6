package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

type DocumentStatus string

const (
	StatusUploaded    DocumentStatus = "uploaded"
	StatusProcessing  DocumentStatus = "processing"
	StatusClassified  DocumentStatus = "classified"
	StatusNeedsReview DocumentStatus = "needs_review"
	StatusExtracted   DocumentStatus = "extracted"
	StatusFailed      DocumentStatus = "failed"
)

type OCRStatus string

const (
	OCRStatusPending OCRStatus = "pending"
	OCRStatusDone    OCRStatus = "done"
	OCRStatusFailed  OCRStatus = "failed"
)

type Document struct {
	ID               string         `json:"id"`
	OwnerID          string         `json:"owner_id"`
	Filename         string         `json:"filename"`
	MimeType         string         `json:"mime_type"`
	StoragePath      string         `json:"storage_path"`
	DocumentTypeID   string         `json:"document_type_id,omitempty"`
	DocumentTypeCode string         `json:"document_type_code,omitempty"`
	Confidence       float64        `json:"confidence,omitempty"`
	OCRStatus        OCRStatus      `json:"ocr_status"`
	OCRText          string         `json:"-"`
	Indexed          bool           `json:"indexed"`
	Status           DocumentStatus `json:"status"`
	Error            string         `json:"error,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        *time.Time     `json:"deleted_at,omitempty"`
}

// TextResult is what the OCR boundary hands back for one document.
type TextResult struct {
	Text  string   `json:"text"`
	Pages []string `json:"pages"`
}

// TypeAssignment is the outcome of the classify stage persisted on a document.
type TypeAssignment struct {
	DocumentTypeID   string
	DocumentTypeCode string
	Confidence       float64
	Candidates       []ClassificationCandidate
}

// ValidateDocumentID rejects ids that cannot stand as a single token of a
// message subject: wildcards, token separators and whitespace.
func ValidateDocumentID(id string) error {
	if id == "" {
		return WrapError(ErrInvalidInput, "validate document id", errors.New("document id is required"))
	}
	if strings.ContainsAny(id, ".*>") || strings.IndexFunc(id, unicode.IsSpace) >= 0 {
		return WrapError(ErrInvalidInput, "validate document id", fmt.Errorf("%q contains a reserved character", id))
	}
	return nil
}
