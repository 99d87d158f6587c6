package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"sync"
	"time"

	"github.com/kirillkom/rental-doc-intake/internal/core/domain"
)

type docRepoFake struct {
	mu        sync.Mutex
	docs      map[string]*domain.Document
	fields    map[string][]domain.ExtractedField
	assigned  map[string]domain.TypeAssignment
	purged    []string
	purgeErr  map[string]error
	getErr    error
	createErr error
}

func newDocRepoFake(docs ...*domain.Document) *docRepoFake {
	f := &docRepoFake{
		docs:     map[string]*domain.Document{},
		fields:   map[string][]domain.ExtractedField{},
		assigned: map[string]domain.TypeAssignment{},
		purgeErr: map[string]error{},
	}
	for _, doc := range docs {
		f.docs[doc.ID] = doc
	}
	return f
}

func (f *docRepoFake) Create(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	return nil
}

func (f *docRepoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New(id))
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *docRepoFake) doc(id string) *domain.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[id]
}

func (f *docRepoFake) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	doc.Status = status
	doc.Error = errMessage
	return nil
}

func (f *docRepoFake) SaveOCRResult(_ context.Context, id string, result domain.TextResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc := f.docs[id]
	doc.OCRText = result.Text
	doc.OCRStatus = domain.OCRStatusDone
	return nil
}

func (f *docRepoFake) MarkOCRFailed(_ context.Context, id string, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc := f.docs[id]
	doc.OCRStatus = domain.OCRStatusFailed
	doc.Error = errMessage
	return nil
}

func (f *docRepoFake) SaveClassification(_ context.Context, id string, assignment domain.TypeAssignment, status domain.DocumentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc := f.docs[id]
	doc.DocumentTypeID = assignment.DocumentTypeID
	doc.DocumentTypeCode = assignment.DocumentTypeCode
	doc.Confidence = assignment.Confidence
	doc.Status = status
	f.assigned[id] = assignment
	return nil
}

func (f *docRepoFake) ReplaceExtractedFields(_ context.Context, id string, fields []domain.ExtractedField) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fields[id] = append([]domain.ExtractedField(nil), fields...)
	return nil
}

func (f *docRepoFake) ListExtractedFields(_ context.Context, id string) ([]domain.ExtractedField, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ExtractedField(nil), f.fields[id]...), nil
}

func (f *docRepoFake) MarkIndexed(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	doc.Indexed = true
	return nil
}

func (f *docRepoFake) ListSoftDeletedBefore(_ context.Context, cutoff time.Time) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Document
	for _, doc := range f.docs {
		if doc.DeletedAt != nil && doc.DeletedAt.Before(cutoff) {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (f *docRepoFake) Purge(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.purgeErr[id]; err != nil {
		return err
	}
	delete(f.docs, id)
	f.purged = append(f.purged, id)
	return nil
}

type blobStoreFake struct {
	mu        sync.Mutex
	objects   map[string][]byte
	deleted   []string
	saveErr   error
	deleteErr map[string]error
}

func newBlobStoreFake() *blobStoreFake {
	return &blobStoreFake{objects: map[string][]byte{}, deleteErr: map[string]error{}}
}

func (f *blobStoreFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = raw
	return nil
}

func (f *blobStoreFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.objects[key]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *blobStoreFake) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deleteErr[key]; err != nil {
		return err
	}
	if _, ok := f.objects[key]; !ok {
		return fs.ErrNotExist
	}
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

type producerFake struct {
	result domain.TextResult
	err    error
	mime   string
}

func (f *producerFake) ExtractText(_ context.Context, data []byte, mimeType string) (domain.TextResult, error) {
	f.mime = mimeType
	if f.err != nil {
		return domain.TextResult{}, f.err
	}
	if f.result.Text == "" {
		return domain.TextResult{Text: string(data), Pages: []string{string(data)}}, nil
	}
	return f.result, nil
}

type reminderStoreFake struct {
	mu      sync.Mutex
	created []domain.Reminder
}

func (f *reminderStoreFake) ReminderExists(_ context.Context, key domain.ReminderKey) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.created {
		if r.Key() == key {
			return true, nil
		}
	}
	return false, nil
}

func (f *reminderStoreFake) CreateReminder(_ context.Context, reminder *domain.Reminder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, *reminder)
	return nil
}

type ruleRepoFake struct {
	set        domain.RuleSet
	extraction map[string][]domain.ExtractionRule
	version    string
	loads      int
}

func (f *ruleRepoFake) LoadClassificationRules(context.Context) (domain.RuleSet, error) {
	f.loads++
	return f.set, nil
}

func (f *ruleRepoFake) LoadExtractionRules(_ context.Context, documentTypeID string) ([]domain.ExtractionRule, error) {
	f.loads++
	return f.extraction[documentTypeID], nil
}

func (f *ruleRepoFake) ConfigVersion(context.Context) (string, error) {
	return f.version, nil
}

type queueFake struct {
	documentID string
	err        error
}

func (f *queueFake) PublishDocumentIngested(_ context.Context, documentID string) error {
	if f.err != nil {
		return f.err
	}
	f.documentID = documentID
	return nil
}

func (f *queueFake) SubscribeDocumentIngested(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

type brokerFake struct {
	mu            sync.Mutex
	requests      []domain.JobRequest
	events        []domain.JobEvent
	invalidations int
	requestErr    error
	subscribedDoc string
}

func (f *brokerFake) RequestJob(_ context.Context, req domain.JobRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.requestErr != nil {
		return "", f.requestErr
	}
	f.requests = append(f.requests, req)
	return "remote-job-1", nil
}

func (f *brokerFake) ServeJobRequests(context.Context, func(context.Context, domain.JobRequest) (string, error)) error {
	return errors.New("not implemented")
}

func (f *brokerFake) PublishJobEvent(_ context.Context, event domain.JobEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *brokerFake) eventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func (f *brokerFake) SubscribeJobEvents(_ context.Context, documentID string, _ func(domain.JobEvent)) (func() error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribedDoc = documentID
	return func() error { return nil }, nil
}

func (f *brokerFake) PublishRulesInvalidated(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidations++
	return nil
}

func (f *brokerFake) SubscribeRulesInvalidated(context.Context, func(context.Context)) error {
	return errors.New("not implemented")
}

// rentalRules is a small rule set: QUITTANCE is easy to reach, DPE needs a
// signal match on top of its keyword.
func rentalRules() *ruleRepoFake {
	return &ruleRepoFake{
		version: "v1",
		set: domain.RuleSet{Types: []domain.TypeRules{
			{
				Type:     domain.DocumentType{ID: "t-quittance", Code: "QUITTANCE", Label: "Quittance de loyer", Active: true},
				Keywords: []domain.KeywordRule{{ID: "k1", Keyword: "quittance", Weight: 10}},
			},
			{
				Type:     domain.DocumentType{ID: "t-dpe", Code: "DPE", Label: "Diagnostic de performance énergétique", Active: true, AutoAssignThreshold: 0.9},
				Keywords: []domain.KeywordRule{{ID: "k2", Keyword: "diagnostic de performance", Weight: 5}},
				Signals:  []domain.SignalRule{{ID: "s1", Pattern: `classe\s+[A-G]`, Weight: 5, Label: "energy class"}},
			},
		}},
		extraction: map[string][]domain.ExtractionRule{
			"t-dpe": {
				{ID: "e1", DocumentTypeID: "t-dpe", FieldName: "date_fin_validite", Pattern: `valable jusqu'au\s+(\d{2}/\d{2}/\d{4})`, PostProcess: domain.PostProcessDate},
			},
			"t-quittance": {
				{ID: "e2", DocumentTypeID: "t-quittance", FieldName: "montant", Pattern: `montant\s*:\s*([\d\s,.]+)\s*€`, PostProcess: domain.PostProcessCurrency},
			},
		},
	}
}
