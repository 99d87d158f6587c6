package ports

import (
	"context"
	"io"

	"github.com/kirillkom/rental-doc-intake/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, ownerID, filename, mimeType string, body io.Reader) (*domain.Document, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// DocumentClassifier ranks candidate document types for a text.
type DocumentClassifier interface {
	ClassifyDocument(ctx context.Context, text string) ([]domain.ClassificationCandidate, error)
}

// FieldExtractor pulls structured fields out of a text for a known document type.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, text, documentTypeID string) ([]domain.ExtractedField, error)
}

// JobScheduler accepts pipeline jobs.
type JobScheduler interface {
	EnqueueJob(ctx context.Context, jobType domain.JobType, documentID string, payload map[string]string) (string, error)
}

// RuleCacheInvalidator drops cached rule sets after rule edits.
type RuleCacheInvalidator interface {
	InvalidateRuleCache(ctx context.Context) error
}

// JobEventStream follows job status transitions of one document. The returned
// function unsubscribes and must be called by the caller.
type JobEventStream interface {
	SubscribeJobEvents(ctx context.Context, documentID string, handler func(domain.JobEvent)) (func() error, error)
}

// ExtractedFieldReader lists the persisted fields of a document.
type ExtractedFieldReader interface {
	ListExtractedFields(ctx context.Context, documentID string) ([]domain.ExtractedField, error)
}

// ReminderReader lists the reminders attached to a document.
type ReminderReader interface {
	ListByDocument(ctx context.Context, documentID string) ([]domain.Reminder, error)
}
