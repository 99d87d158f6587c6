package httpadapter

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/kirillkom/rental-doc-intake/internal/config"
	"github.com/kirillkom/rental-doc-intake/internal/core/domain"
)

type ingestFake struct {
	err       error
	lastOwner string
}

func (f *ingestFake) Upload(_ context.Context, ownerID, filename, mimeType string, body io.Reader) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastOwner = ownerID
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", io.EOF)
	}

	now := time.Now().UTC()
	return &domain.Document{
		ID:          "doc-1",
		OwnerID:     ownerID,
		Filename:    filename,
		MimeType:    mimeType,
		StoragePath: "doc-1_" + filename,
		OCRStatus:   domain.OCRStatusPending,
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

type docsFake struct {
	err error
}

func (f docsFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Document{ID: id, Filename: "dpe.pdf", MimeType: "application/pdf", Status: domain.StatusExtracted}, nil
}

func (f docsFake) ListExtractedFields(context.Context, string) ([]domain.ExtractedField, error) {
	return []domain.ExtractedField{{
		FieldName:  "date_fin_validite",
		Value:      domain.DateValue(time.Date(2034, 3, 1, 0, 0, 0, 0, time.UTC)),
		RawValue:   "01/03/2034",
		Confidence: 0.8,
	}}, nil
}

func (f docsFake) ListByDocument(_ context.Context, documentID string) ([]domain.Reminder, error) {
	return []domain.Reminder{{ID: "r1", DocumentID: documentID, Kind: "dpe_fin_validite", AlertOffsetsDays: []int{7}}}, nil
}

type classifierFake struct {
	candidates []domain.ClassificationCandidate
	err        error
}

func (f classifierFake) ClassifyDocument(context.Context, string) ([]domain.ClassificationCandidate, error) {
	return f.candidates, f.err
}

type extractorFake struct{}

func (extractorFake) ExtractFields(_ context.Context, text, documentTypeID string) ([]domain.ExtractedField, error) {
	if documentTypeID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract fields", io.ErrUnexpectedEOF)
	}
	return []domain.ExtractedField{{FieldName: "montant", Value: domain.NumberValue(650), RawValue: text}}, nil
}

type jobsFake struct {
	err     error
	lastDoc string
	lastTyp domain.JobType
}

func (f *jobsFake) EnqueueJob(_ context.Context, jobType domain.JobType, documentID string, _ map[string]string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.lastDoc = documentID
	f.lastTyp = jobType
	return string(jobType) + ":" + documentID + ":1", nil
}

type eventsFake struct {
	events       []domain.JobEvent
	unsubscribed atomic.Bool
	subscribed   atomic.Int32
}

func (f *eventsFake) SubscribeJobEvents(_ context.Context, _ string, handler func(domain.JobEvent)) (func() error, error) {
	f.subscribed.Add(1)
	for _, e := range f.events {
		handler(e)
	}
	return func() error {
		f.unsubscribed.Store(true)
		return nil
	}, nil
}

type rulesFake struct {
	calls atomic.Int32
	err   error
}

func (f *rulesFake) InvalidateRuleCache(context.Context) error {
	f.calls.Add(1)
	return f.err
}

type metricsFake struct {
	classifications []string
	jobRequests     int
}

func (f *metricsFake) RecordClassification(outcome string) {
	f.classifications = append(f.classifications, outcome)
}

func (f *metricsFake) RecordJobRequest(string, error) {
	f.jobRequests++
}

func newTestDependencies() Dependencies {
	docs := docsFake{}
	return Dependencies{
		Ingestor:   &ingestFake{},
		Documents:  docs,
		Fields:     docs,
		Reminders:  docs,
		Classifier: classifierFake{},
		Extractor:  extractorFake{},
		Jobs:       &jobsFake{},
		Events:     &eventsFake{},
		Rules:      &rulesFake{},
	}
}

func newTestHandler(cfg config.Config, deps Dependencies) http.Handler {
	return NewRouter(cfg, deps).Handler()
}
