package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/rental-doc-intake/internal/core/classify"
	"github.com/kirillkom/rental-doc-intake/internal/core/domain"
	"github.com/kirillkom/rental-doc-intake/internal/core/extract"
	"github.com/kirillkom/rental-doc-intake/internal/core/jobs"
	"github.com/kirillkom/rental-doc-intake/internal/core/reminders"
	"github.com/kirillkom/rental-doc-intake/internal/core/rules"
)

var stageNow = time.Date(2025, time.January, 10, 12, 0, 0, 0, time.UTC)

type stageDeps struct {
	repo      *docRepoFake
	blobs     *blobStoreFake
	producer  *producerFake
	reminders *reminderStoreFake
	rules     *ruleRepoFake
}

func newStageDeps(docs ...*domain.Document) *stageDeps {
	return &stageDeps{
		repo:      newDocRepoFake(docs...),
		blobs:     newBlobStoreFake(),
		producer:  &producerFake{},
		reminders: &reminderStoreFake{},
		rules:     rentalRules(),
	}
}

func (d *stageDeps) stages() *PipelineStages {
	return NewPipelineStages(
		d.repo,
		d.blobs,
		d.producer,
		d.reminders,
		rules.NewCache(d.rules, rules.CacheOptions{}),
		classify.NewEngine(classify.Options{}),
		extract.NewEngine(extract.Options{}),
		reminders.NewDeriver(),
		StageConfig{Now: func() time.Time { return stageNow }},
		nil,
	)
}

func docJob(jobType domain.JobType, id string, payload map[string]string) domain.Job {
	return domain.Job{ID: string(jobType) + ":" + id, Type: jobType, TargetDocumentID: id, Payload: payload}
}

func TestOCRStoresTextAndAdvances(t *testing.T) {
	deps := newStageDeps(&domain.Document{ID: "d1", StoragePath: "d1_quittance.txt", MimeType: "text/plain"})
	deps.blobs.objects["d1_quittance.txt"] = []byte("Quittance de loyer")

	result, err := deps.stages().OCR(context.Background(), docJob(domain.JobTypeOCR, "d1", nil))
	if err != nil {
		t.Fatalf("OCR() error = %v", err)
	}
	if !result.Advance {
		t.Fatal("successful ocr must advance")
	}
	doc := deps.repo.doc("d1")
	if doc.OCRText != "Quittance de loyer" || doc.OCRStatus != domain.OCRStatusDone || doc.Status != domain.StatusProcessing {
		t.Fatalf("unexpected document state %+v", doc)
	}
	if deps.producer.mime != "text/plain" {
		t.Fatalf("expected mime type to reach producer, got %q", deps.producer.mime)
	}
}

func TestOCRFailureMarksDocument(t *testing.T) {
	deps := newStageDeps(&domain.Document{ID: "d1", StoragePath: "d1.pdf", MimeType: "application/pdf"})
	deps.blobs.objects["d1.pdf"] = []byte("%PDF")
	deps.producer.err = errors.New("unreadable pdf")

	result, err := deps.stages().OCR(context.Background(), docJob(domain.JobTypeOCR, "d1", nil))
	if err == nil || result.Advance {
		t.Fatalf("expected failure without advance, got %+v, %v", result, err)
	}
	doc := deps.repo.doc("d1")
	if doc.OCRStatus != domain.OCRStatusFailed || doc.Error == "" {
		t.Fatalf("expected ocr failure recorded, got %+v", doc)
	}
}

func TestOCRUnsupportedTypeFailsWithoutRetry(t *testing.T) {
	deps := newStageDeps(&domain.Document{ID: "d1", StoragePath: "d1.png", MimeType: "image/png"})
	deps.blobs.objects["d1.png"] = []byte{0x89, 'P', 'N', 'G'}
	deps.producer.err = domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New(`unsupported mime type "image/png"`))

	_, err := deps.stages().OCR(context.Background(), docJob(domain.JobTypeOCR, "d1", nil))
	if !jobs.IsPermanent(err) || !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected permanent ErrInvalidInput, got %v", err)
	}
	if deps.repo.doc("d1").OCRStatus != domain.OCRStatusFailed {
		t.Fatal("expected ocr failure recorded")
	}
}

func TestOCRBackendErrorStaysRetryable(t *testing.T) {
	deps := newStageDeps(&domain.Document{ID: "d1", StoragePath: "d1.pdf", MimeType: "application/pdf"})
	deps.blobs.objects["d1.pdf"] = []byte("%PDF")
	deps.producer.err = errors.New("unreadable pdf")

	_, err := deps.stages().OCR(context.Background(), docJob(domain.JobTypeOCR, "d1", nil))
	if err == nil || jobs.IsPermanent(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestClassifyAutoAssignsAboveThreshold(t *testing.T) {
	deps := newStageDeps(&domain.Document{ID: "d1", OCRText: "Quittance de loyer - janvier"})

	result, err := deps.stages().Classify(context.Background(), docJob(domain.JobTypeClassify, "d1", nil))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if !result.Advance || result.Payload[PayloadDocumentTypeID] != "t-quittance" || result.Payload[PayloadDocumentTypeCode] != "QUITTANCE" {
		t.Fatalf("unexpected result %+v", result)
	}
	doc := deps.repo.doc("d1")
	if doc.Status != domain.StatusClassified || doc.DocumentTypeID != "t-quittance" || doc.Confidence != 1 {
		t.Fatalf("unexpected document state %+v", doc)
	}
}

func TestClassifyBelowThresholdNeedsReview(t *testing.T) {
	deps := newStageDeps(&domain.Document{ID: "d1", OCRText: "Diagnostic de performance énergétique"})

	result, err := deps.stages().Classify(context.Background(), docJob(domain.JobTypeClassify, "d1", nil))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if result.Advance {
		t.Fatal("classification below the type threshold must not advance")
	}
	doc := deps.repo.doc("d1")
	if doc.Status != domain.StatusNeedsReview || doc.DocumentTypeID != "" || doc.Confidence != 0.5 {
		t.Fatalf("unexpected document state %+v", doc)
	}
	if got := deps.repo.assigned["d1"].Candidates; len(got) != 1 || got[0].Code != "DPE" {
		t.Fatalf("expected candidates to be persisted, got %+v", got)
	}
}

func TestClassifyUsesPerTypeThreshold(t *testing.T) {
	deps := newStageDeps(&domain.Document{ID: "d1", OCRText: "Diagnostic de performance énergétique, classe C"})
	stages := deps.stages()

	result, err := stages.Classify(context.Background(), docJob(domain.JobTypeClassify, "d1", nil))
	if err != nil || !result.Advance {
		t.Fatalf("expected DPE auto-assignment, got %+v, %v", result, err)
	}
}

func TestClassifyEmptyTextNeedsReview(t *testing.T) {
	deps := newStageDeps(&domain.Document{ID: "d1"})

	result, err := deps.stages().Classify(context.Background(), docJob(domain.JobTypeClassify, "d1", nil))
	if err != nil || result.Advance {
		t.Fatalf("expected no advance, got %+v, %v", result, err)
	}
	if deps.repo.doc("d1").Status != domain.StatusNeedsReview {
		t.Fatal("expected needs_review")
	}
}

func TestExtractRequiresDocumentType(t *testing.T) {
	deps := newStageDeps(&domain.Document{ID: "d1", OCRText: "valable jusqu'au 01/03/2034"})

	_, err := deps.stages().Extract(context.Background(), docJob(domain.JobTypeExtract, "d1", nil))
	if !domain.IsKind(err, domain.ErrNoDocumentType) || !jobs.IsPermanent(err) {
		t.Fatalf("expected permanent ErrNoDocumentType, got %v", err)
	}
}

func TestExtractPersistsFields(t *testing.T) {
	deps := newStageDeps(&domain.Document{ID: "d1", OCRText: "DPE valable jusqu'au 01/03/2034"})
	payload := map[string]string{PayloadDocumentTypeID: "t-dpe", PayloadDocumentTypeCode: "DPE"}

	result, err := deps.stages().Extract(context.Background(), docJob(domain.JobTypeExtract, "d1", payload))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !result.Advance || result.Payload[PayloadDocumentTypeCode] != "DPE" {
		t.Fatalf("unexpected result %+v", result)
	}
	fields := deps.repo.fields["d1"]
	if len(fields) != 1 || fields[0].Value.Kind != domain.ValueDate {
		t.Fatalf("unexpected fields %+v", fields)
	}
	if deps.repo.doc("d1").Status != domain.StatusExtracted {
		t.Fatal("expected extracted status")
	}
}

func TestRemindersAreIdempotent(t *testing.T) {
	deps := newStageDeps(&domain.Document{ID: "d1", OwnerID: "owner-1", DocumentTypeCode: "ATTESTATION_ASSURANCE"})
	deps.repo.fields["d1"] = []domain.ExtractedField{
		{FieldName: "date_expiration", Value: domain.DateValue(time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC)), Confidence: 0.8},
	}
	stages := deps.stages()
	job := docJob(domain.JobTypeReminders, "d1", nil)

	for i := 0; i < 2; i++ {
		if _, err := stages.Reminders(context.Background(), job); err != nil {
			t.Fatalf("Reminders() run %d error = %v", i+1, err)
		}
	}

	if len(deps.reminders.created) != 2 {
		t.Fatalf("expected 2 reminders after two runs, got %d", len(deps.reminders.created))
	}
	seen := map[domain.ReminderKey]bool{}
	for _, r := range deps.reminders.created {
		if seen[r.Key()] {
			t.Fatalf("duplicate reminder %+v", r)
		}
		seen[r.Key()] = true
		if r.OwnerID != "owner-1" || r.DocumentID != "d1" || r.ID == "" || !r.AutoCreated {
			t.Fatalf("unexpected reminder %+v", r)
		}
	}
}

func TestIndexMarksDocument(t *testing.T) {
	deps := newStageDeps(&domain.Document{ID: "d1"})
	if _, err := deps.stages().Index(context.Background(), docJob(domain.JobTypeIndex, "d1", nil)); err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if !deps.repo.doc("d1").Indexed {
		t.Fatal("expected indexed flag")
	}
}

func TestGCPurgesExpiredDocumentsAndContinuesOnFailure(t *testing.T) {
	old := stageNow.Add(-40 * 24 * time.Hour)
	recent := stageNow.Add(-10 * 24 * time.Hour)
	deps := newStageDeps(
		&domain.Document{ID: "d1", StoragePath: "k1", DeletedAt: &old},
		&domain.Document{ID: "d2", StoragePath: "k2", DeletedAt: &old},
		&domain.Document{ID: "d3", StoragePath: "k3", DeletedAt: &old},
		&domain.Document{ID: "d4", StoragePath: "k4", DeletedAt: &recent},
		&domain.Document{ID: "d5", StoragePath: "k5"},
	)
	for _, key := range []string{"k1", "k2", "k4", "k5"} {
		deps.blobs.objects[key] = []byte("x")
	}
	deps.blobs.deleteErr["k2"] = errors.New("permission denied")

	if _, err := deps.stages().GC(context.Background(), domain.Job{Type: domain.JobTypeGC}); err != nil {
		t.Fatalf("GC() error = %v", err)
	}

	for _, id := range []string{"d1", "d3"} {
		if deps.repo.doc(id) != nil {
			t.Fatalf("expected %s to be purged", id)
		}
	}
	for _, id := range []string{"d2", "d4", "d5"} {
		if deps.repo.doc(id) == nil {
			t.Fatalf("expected %s to be kept", id)
		}
	}
	if _, ok := deps.blobs.objects["k4"]; !ok {
		t.Fatal("recently deleted document blob must be kept")
	}
}

func TestPipelineRunsEveryStage(t *testing.T) {
	deps := newStageDeps(&domain.Document{ID: "d1", OwnerID: "owner-1", StoragePath: "d1_dpe.txt", MimeType: "text/plain"})
	deps.blobs.objects["d1_dpe.txt"] = []byte("Diagnostic de performance énergétique\nClasse D\nValable jusqu'au 01/03/2034")

	o := jobs.New(jobs.Options{RetryBackoff: time.Millisecond})
	deps.stages().Register(o)
	sub := o.Subscribe("d1")
	defer o.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = o.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	if _, err := o.Enqueue(domain.JobTypeOCR, "d1", nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	succeeded := map[domain.JobType]bool{}
	timeout := time.After(2 * time.Second)
	for !(succeeded[domain.JobTypeIndex] && succeeded[domain.JobTypeReminders]) {
		select {
		case event := <-sub.Events():
			if event.Status == domain.JobStatusFailed {
				t.Fatalf("stage failed: %+v", event)
			}
			if event.Status == domain.JobStatusSuccess {
				succeeded[event.JobType] = true
			}
		case <-timeout:
			t.Fatalf("pipeline did not finish, succeeded=%v", succeeded)
		}
	}

	doc := deps.repo.doc("d1")
	if !doc.Indexed || doc.DocumentTypeCode != "DPE" || doc.Status != domain.StatusExtracted {
		t.Fatalf("unexpected final document %+v", doc)
	}
	deps.reminders.mu.Lock()
	defer deps.reminders.mu.Unlock()
	if len(deps.reminders.created) != 1 {
		t.Fatalf("expected one DPE reminder, got %+v", deps.reminders.created)
	}
	if want := time.Date(2034, time.January, 30, 0, 0, 0, 0, time.UTC); !deps.reminders.created[0].DueDate.Equal(want) {
		t.Fatalf("unexpected due date %s", deps.reminders.created[0].DueDate)
	}
}
