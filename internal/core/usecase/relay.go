package usecase

import (
	"context"
	"log/slog"

	"github.com/kirillkom/rental-doc-intake/internal/core/domain"
	"github.com/kirillkom/rental-doc-intake/internal/core/jobs"
	"github.com/kirillkom/rental-doc-intake/internal/core/ports"
)

// JobEventRelay forwards every job transition to the broker and records
// exhausted jobs on their document. It subscribes on construction so no
// transition is missed; Run must be called to drain and release it.
type JobEventRelay struct {
	orchestrator *jobs.Orchestrator
	sub          *jobs.Subscription
	broker       ports.JobBroker
	repo         ports.DocumentRepository
	logger       *slog.Logger
}

func NewJobEventRelay(
	orchestrator *jobs.Orchestrator,
	broker ports.JobBroker,
	repo ports.DocumentRepository,
	logger *slog.Logger,
) *JobEventRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobEventRelay{
		orchestrator: orchestrator,
		sub:          orchestrator.SubscribeAll(),
		broker:       broker,
		repo:         repo,
		logger:       logger,
	}
}

// Run blocks until ctx is done.
func (r *JobEventRelay) Run(ctx context.Context) error {
	defer r.orchestrator.Unsubscribe(r.sub)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-r.sub.Events():
			if !ok {
				return nil
			}
			r.handle(ctx, event)
		}
	}
}

func (r *JobEventRelay) handle(ctx context.Context, event domain.JobEvent) {
	if r.broker != nil {
		if err := r.broker.PublishJobEvent(ctx, event); err != nil {
			r.logger.Warn("job_event_publish_failed", "job_id", event.JobID, "status", event.Status, "error", err)
		}
	}
	if event.Status != domain.JobStatusFailed || event.DocumentID == "" || r.repo == nil {
		return
	}
	if err := r.repo.UpdateStatus(ctx, event.DocumentID, domain.StatusFailed, event.Error); err != nil {
		r.logger.Error("document_mark_failed_error", "document_id", event.DocumentID, "job_id", event.JobID, "error", err)
	}
}
