package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/rental-doc-intake/internal/core/classify"
	"github.com/kirillkom/rental-doc-intake/internal/core/domain"
	"github.com/kirillkom/rental-doc-intake/internal/core/extract"
	"github.com/kirillkom/rental-doc-intake/internal/core/jobs"
	"github.com/kirillkom/rental-doc-intake/internal/core/ports"
	"github.com/kirillkom/rental-doc-intake/internal/core/rules"
)

var errNoOrchestrator = errors.New("no job orchestrator in this process")

// IntakeService is the surface the surrounding application calls into.
// The orchestrator is nil in processes that only submit jobs remotely.
type IntakeService struct {
	cache      *rules.Cache
	classifier *classify.Engine
	extractor  *extract.Engine
	jobs       *jobs.Orchestrator
	broker     ports.JobBroker
	logger     *slog.Logger
}

func NewIntakeService(
	cache *rules.Cache,
	classifier *classify.Engine,
	extractor *extract.Engine,
	orchestrator *jobs.Orchestrator,
	broker ports.JobBroker,
	logger *slog.Logger,
) *IntakeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntakeService{
		cache:      cache,
		classifier: classifier,
		extractor:  extractor,
		jobs:       orchestrator,
		broker:     broker,
		logger:     logger,
	}
}

func (s *IntakeService) ClassifyDocument(ctx context.Context, text string) ([]domain.ClassificationCandidate, error) {
	ruleSet, err := s.cache.ClassificationRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("load classification rules: %w", err)
	}
	return s.classifier.Classify(text, ruleSet), nil
}

func (s *IntakeService) ExtractFields(ctx context.Context, text, documentTypeID string) ([]domain.ExtractedField, error) {
	if strings.TrimSpace(documentTypeID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract fields", errors.New("document type id is required"))
	}
	compiled, err := s.cache.ExtractionRules(ctx, documentTypeID)
	if err != nil {
		return nil, fmt.Errorf("load extraction rules: %w", err)
	}
	return s.extractor.Extract(text, documentTypeID, compiled), nil
}

func (s *IntakeService) EnqueueJob(_ context.Context, jobType domain.JobType, documentID string, payload map[string]string) (string, error) {
	if s.jobs == nil {
		return "", domain.WrapError(domain.ErrTemporary, "enqueue job", errNoOrchestrator)
	}
	return s.jobs.Enqueue(jobType, documentID, payload)
}

// HandleJobRequest serves job submissions arriving from other processes.
func (s *IntakeService) HandleJobRequest(ctx context.Context, req domain.JobRequest) (string, error) {
	jobType, err := domain.ParseJobType(string(req.Type))
	if err != nil {
		return "", err
	}
	return s.EnqueueJob(ctx, jobType, req.DocumentID, req.Payload)
}

// SubscribeToDocumentJobs must be paired with Unsubscribe.
func (s *IntakeService) SubscribeToDocumentJobs(documentID string) (*jobs.Subscription, error) {
	if s.jobs == nil {
		return nil, domain.WrapError(domain.ErrTemporary, "subscribe to document jobs", errNoOrchestrator)
	}
	return s.jobs.Subscribe(documentID), nil
}

func (s *IntakeService) Unsubscribe(sub *jobs.Subscription) {
	if s.jobs != nil {
		s.jobs.Unsubscribe(sub)
	}
}

// SubscribeJobEvents follows one document's jobs from the local orchestrator,
// or through the broker when this process does not run one.
func (s *IntakeService) SubscribeJobEvents(ctx context.Context, documentID string, handler func(domain.JobEvent)) (func() error, error) {
	if s.jobs == nil {
		if s.broker == nil {
			return nil, domain.WrapError(domain.ErrTemporary, "subscribe job events", errNoOrchestrator)
		}
		return s.broker.SubscribeJobEvents(ctx, documentID, handler)
	}

	sub, err := s.SubscribeToDocumentJobs(documentID)
	if err != nil {
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range sub.Events() {
			handler(event)
		}
	}()
	return func() error {
		s.Unsubscribe(sub)
		<-done
		return nil
	}, nil
}

// InvalidateRuleCache clears the local cache and tells the other processes
// to do the same.
func (s *IntakeService) InvalidateRuleCache(ctx context.Context) error {
	s.cache.Invalidate()
	s.logger.Info("rule_cache_invalidated")
	if s.broker == nil {
		return nil
	}
	if err := s.broker.PublishRulesInvalidated(ctx); err != nil {
		return fmt.Errorf("broadcast rule invalidation: %w", err)
	}
	return nil
}

// RemoteJobScheduler submits jobs to the worker process over the broker.
type RemoteJobScheduler struct {
	broker ports.JobBroker
}

func NewRemoteJobScheduler(broker ports.JobBroker) *RemoteJobScheduler {
	return &RemoteJobScheduler{broker: broker}
}

func (s *RemoteJobScheduler) EnqueueJob(ctx context.Context, jobType domain.JobType, documentID string, payload map[string]string) (string, error) {
	jobID, err := s.broker.RequestJob(ctx, domain.JobRequest{
		Type:       jobType,
		DocumentID: documentID,
		Payload:    payload,
	})
	if err != nil {
		return "", fmt.Errorf("request job: %w", err)
	}
	return jobID, nil
}
