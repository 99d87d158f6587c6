package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/rental-doc-intake/internal/core/domain"
)

// RuleRepository reads the externally owned, versioned rule sets.
type RuleRepository interface {
	LoadClassificationRules(ctx context.Context) (domain.RuleSet, error)
	LoadExtractionRules(ctx context.Context, documentTypeID string) ([]domain.ExtractionRule, error)
	// ConfigVersion returns "" when the store has no version yet.
	ConfigVersion(ctx context.Context) (string, error)
}

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveOCRResult(ctx context.Context, id string, result domain.TextResult) error
	MarkOCRFailed(ctx context.Context, id string, errMessage string) error
	SaveClassification(ctx context.Context, id string, assignment domain.TypeAssignment, status domain.DocumentStatus) error
	ReplaceExtractedFields(ctx context.Context, id string, fields []domain.ExtractedField) error
	ListExtractedFields(ctx context.Context, id string) ([]domain.ExtractedField, error)
	MarkIndexed(ctx context.Context, id string) error
	ListSoftDeletedBefore(ctx context.Context, cutoff time.Time) ([]domain.Document, error)
	Purge(ctx context.Context, id string) error
}

// ReminderStore persists reminders derived from extracted fields.
type ReminderStore interface {
	ReminderExists(ctx context.Context, key domain.ReminderKey) (bool, error)
	CreateReminder(ctx context.Context, reminder *domain.Reminder) error
}

// BlobStore stores raw document bytes.
type BlobStore interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// TextProducer is the OCR boundary.
type TextProducer interface {
	ExtractText(ctx context.Context, data []byte, mimeType string) (domain.TextResult, error)
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// JobBroker carries job requests, job events and rule invalidations between processes.
type JobBroker interface {
	RequestJob(ctx context.Context, req domain.JobRequest) (string, error)
	ServeJobRequests(ctx context.Context, handler func(context.Context, domain.JobRequest) (string, error)) error
	PublishJobEvent(ctx context.Context, event domain.JobEvent) error
	SubscribeJobEvents(ctx context.Context, documentID string, handler func(domain.JobEvent)) (func() error, error)
	PublishRulesInvalidated(ctx context.Context) error
	SubscribeRulesInvalidated(ctx context.Context, handler func(context.Context)) error
}
