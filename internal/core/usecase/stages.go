package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/rental-doc-intake/internal/core/classify"
	"github.com/kirillkom/rental-doc-intake/internal/core/domain"
	"github.com/kirillkom/rental-doc-intake/internal/core/extract"
	"github.com/kirillkom/rental-doc-intake/internal/core/jobs"
	"github.com/kirillkom/rental-doc-intake/internal/core/ports"
	"github.com/kirillkom/rental-doc-intake/internal/core/reminders"
	"github.com/kirillkom/rental-doc-intake/internal/core/rules"
)

const (
	DefaultGCRetention = 30 * 24 * time.Hour

	PayloadDocumentTypeID   = "document_type_id"
	PayloadDocumentTypeCode = "document_type_code"
)

type StageConfig struct {
	AutoAssignThreshold float64
	GCRetention         time.Duration
	Now                 func() time.Time
}

// PipelineStages implements one jobs.Handler per job type.
type PipelineStages struct {
	repo      ports.DocumentRepository
	blobs     ports.BlobStore
	producer  ports.TextProducer
	reminders ports.ReminderStore
	cache     *rules.Cache
	classify  *classify.Engine
	extract   *extract.Engine
	deriver   *reminders.Deriver
	cfg       StageConfig
	logger    *slog.Logger
}

func NewPipelineStages(
	repo ports.DocumentRepository,
	blobs ports.BlobStore,
	producer ports.TextProducer,
	reminderStore ports.ReminderStore,
	cache *rules.Cache,
	classifier *classify.Engine,
	extractor *extract.Engine,
	deriver *reminders.Deriver,
	cfg StageConfig,
	logger *slog.Logger,
) *PipelineStages {
	if cfg.AutoAssignThreshold <= 0 || cfg.AutoAssignThreshold > 1 {
		cfg.AutoAssignThreshold = domain.DefaultAutoAssignThreshold
	}
	if cfg.GCRetention <= 0 {
		cfg.GCRetention = DefaultGCRetention
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineStages{
		repo:      repo,
		blobs:     blobs,
		producer:  producer,
		reminders: reminderStore,
		cache:     cache,
		classify:  classifier,
		extract:   extractor,
		deriver:   deriver,
		cfg:       cfg,
		logger:    logger,
	}
}

// Register binds every stage to the orchestrator.
func (s *PipelineStages) Register(o *jobs.Orchestrator) {
	o.Register(domain.JobTypeOCR, jobs.HandlerFunc(s.OCR))
	o.Register(domain.JobTypeClassify, jobs.HandlerFunc(s.Classify))
	o.Register(domain.JobTypeExtract, jobs.HandlerFunc(s.Extract))
	o.Register(domain.JobTypeIndex, jobs.HandlerFunc(s.Index))
	o.Register(domain.JobTypeReminders, jobs.HandlerFunc(s.Reminders))
	o.Register(domain.JobTypeGC, jobs.HandlerFunc(s.GC))
}

func (s *PipelineStages) OCR(ctx context.Context, job domain.Job) (domain.StageResult, error) {
	doc, err := s.loadDocument(ctx, job.TargetDocumentID)
	if err != nil {
		return domain.StageResult{}, err
	}
	if err := s.repo.UpdateStatus(ctx, doc.ID, domain.StatusProcessing, ""); err != nil {
		return domain.StageResult{}, fmt.Errorf("set status=processing: %w", err)
	}

	result, err := s.readText(ctx, doc)
	if err != nil {
		if markErr := s.repo.MarkOCRFailed(ctx, doc.ID, err.Error()); markErr != nil {
			return domain.StageResult{}, fmt.Errorf("%w; mark ocr failed: %v", err, markErr)
		}
		if domain.IsKind(err, domain.ErrInvalidInput) {
			return domain.StageResult{}, jobs.Permanent(err)
		}
		return domain.StageResult{}, err
	}

	if err := s.repo.SaveOCRResult(ctx, doc.ID, result); err != nil {
		return domain.StageResult{}, fmt.Errorf("save ocr result: %w", err)
	}
	s.logger.Info("ocr_completed", "document_id", doc.ID, "pages", len(result.Pages), "chars", len(result.Text))
	return domain.StageResult{Advance: true}, nil
}

func (s *PipelineStages) readText(ctx context.Context, doc *domain.Document) (domain.TextResult, error) {
	rc, err := s.blobs.Open(ctx, doc.StoragePath)
	if err != nil {
		return domain.TextResult{}, fmt.Errorf("open blob: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return domain.TextResult{}, fmt.Errorf("read blob: %w", err)
	}
	result, err := s.producer.ExtractText(ctx, data, doc.MimeType)
	if err != nil {
		return domain.TextResult{}, fmt.Errorf("extract text: %w", err)
	}
	return result, nil
}

// Classify auto-assigns the top candidate only when it reaches the cutoff of
// its document type; otherwise the document waits for review and the chain
// stops here.
func (s *PipelineStages) Classify(ctx context.Context, job domain.Job) (domain.StageResult, error) {
	doc, err := s.loadDocument(ctx, job.TargetDocumentID)
	if err != nil {
		return domain.StageResult{}, err
	}
	ruleSet, err := s.cache.ClassificationRules(ctx)
	if err != nil {
		return domain.StageResult{}, fmt.Errorf("load classification rules: %w", err)
	}

	candidates := s.classify.Classify(doc.OCRText, ruleSet)
	assignment := domain.TypeAssignment{Candidates: candidates}
	status := domain.StatusNeedsReview
	result := domain.StageResult{}

	if len(candidates) > 0 {
		top := candidates[0]
		assignment.Confidence = top.Confidence
		threshold := s.cfg.AutoAssignThreshold
		if docType, ok := ruleSet.Type(top.DocumentTypeID); ok {
			threshold = docType.ThresholdOr(threshold)
		}
		if top.Confidence >= threshold {
			assignment.DocumentTypeID = top.DocumentTypeID
			assignment.DocumentTypeCode = top.Code
			status = domain.StatusClassified
			result = domain.StageResult{
				Advance: true,
				Payload: map[string]string{
					PayloadDocumentTypeID:   top.DocumentTypeID,
					PayloadDocumentTypeCode: top.Code,
				},
			}
		}
	}

	if err := s.repo.SaveClassification(ctx, doc.ID, assignment, status); err != nil {
		return domain.StageResult{}, fmt.Errorf("save classification: %w", err)
	}
	s.logger.Info("document_classified",
		"document_id", doc.ID,
		"status", status,
		"document_type_code", assignment.DocumentTypeCode,
		"confidence", assignment.Confidence,
		"candidates", len(candidates),
		"rules_version", ruleSet.Version,
	)
	return result, nil
}

func (s *PipelineStages) Extract(ctx context.Context, job domain.Job) (domain.StageResult, error) {
	doc, err := s.loadDocument(ctx, job.TargetDocumentID)
	if err != nil {
		return domain.StageResult{}, err
	}
	typeID := job.Payload[PayloadDocumentTypeID]
	typeCode := job.Payload[PayloadDocumentTypeCode]
	if typeID == "" {
		typeID, typeCode = doc.DocumentTypeID, doc.DocumentTypeCode
	}
	if typeID == "" {
		return domain.StageResult{}, jobs.Permanent(domain.WrapError(domain.ErrNoDocumentType, "extract fields", fmt.Errorf("document %s", doc.ID)))
	}

	compiled, err := s.cache.ExtractionRules(ctx, typeID)
	if err != nil {
		return domain.StageResult{}, fmt.Errorf("load extraction rules: %w", err)
	}
	fields := s.extract.Extract(doc.OCRText, typeID, compiled)

	if err := s.repo.ReplaceExtractedFields(ctx, doc.ID, fields); err != nil {
		return domain.StageResult{}, fmt.Errorf("save extracted fields: %w", err)
	}
	if err := s.repo.UpdateStatus(ctx, doc.ID, domain.StatusExtracted, ""); err != nil {
		return domain.StageResult{}, fmt.Errorf("set status=extracted: %w", err)
	}
	s.logger.Info("fields_extracted", "document_id", doc.ID, "document_type_id", typeID, "fields", len(fields))
	return domain.StageResult{
		Advance: true,
		Payload: map[string]string{
			PayloadDocumentTypeID:   typeID,
			PayloadDocumentTypeCode: typeCode,
		},
	}, nil
}

// Index only flips the indexed flag; there is no search engine behind it.
func (s *PipelineStages) Index(ctx context.Context, job domain.Job) (domain.StageResult, error) {
	if err := s.repo.MarkIndexed(ctx, job.TargetDocumentID); err != nil {
		return domain.StageResult{}, fmt.Errorf("mark indexed: %w", err)
	}
	return domain.StageResult{}, nil
}

// Reminders is idempotent: reminders already stored under the same
// (document, kind, due date) are skipped.
func (s *PipelineStages) Reminders(ctx context.Context, job domain.Job) (domain.StageResult, error) {
	doc, err := s.loadDocument(ctx, job.TargetDocumentID)
	if err != nil {
		return domain.StageResult{}, err
	}
	code := doc.DocumentTypeCode
	if code == "" {
		code = job.Payload[PayloadDocumentTypeCode]
	}
	fields, err := s.repo.ListExtractedFields(ctx, doc.ID)
	if err != nil {
		return domain.StageResult{}, fmt.Errorf("list extracted fields: %w", err)
	}

	created, skipped := 0, 0
	for _, reminder := range s.deriver.Derive(code, fields) {
		reminder.DocumentID = doc.ID
		reminder.OwnerID = doc.OwnerID

		exists, err := s.reminders.ReminderExists(ctx, reminder.Key())
		if err != nil {
			return domain.StageResult{}, fmt.Errorf("check reminder: %w", err)
		}
		if exists {
			skipped++
			continue
		}

		reminder.ID = uuid.NewString()
		reminder.CreatedAt = s.cfg.Now().UTC()
		if err := s.reminders.CreateReminder(ctx, &reminder); err != nil {
			return domain.StageResult{}, fmt.Errorf("create reminder: %w", err)
		}
		created++
	}

	s.logger.Info("reminders_derived", "document_id", doc.ID, "document_type_code", code, "created", created, "skipped", skipped)
	return domain.StageResult{}, nil
}

// GC purges documents soft-deleted before the retention window. A failure on
// one document is logged and the run moves on to the next one.
func (s *PipelineStages) GC(ctx context.Context, _ domain.Job) (domain.StageResult, error) {
	cutoff := s.cfg.Now().Add(-s.cfg.GCRetention)
	docs, err := s.repo.ListSoftDeletedBefore(ctx, cutoff)
	if err != nil {
		return domain.StageResult{}, fmt.Errorf("list soft-deleted documents: %w", err)
	}

	purged, failed := 0, 0
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return domain.StageResult{}, err
		}
		if err := s.blobs.Delete(ctx, doc.StoragePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			failed++
			s.logger.Error("gc_blob_delete_failed", "document_id", doc.ID, "storage_path", doc.StoragePath, "error", err)
			continue
		}
		if err := s.repo.Purge(ctx, doc.ID); err != nil {
			failed++
			s.logger.Error("gc_purge_failed", "document_id", doc.ID, "error", err)
			continue
		}
		purged++
	}

	s.logger.Info("gc_completed", "cutoff", cutoff, "candidates", len(docs), "purged", purged, "failed", failed)
	return domain.StageResult{}, nil
}

func (s *PipelineStages) loadDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := s.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}
