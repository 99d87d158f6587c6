package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kirillkom/rental-doc-intake/internal/core/domain"
)

const (
	DefaultMaxAttempts  = 3
	DefaultRetryBackoff = time.Second
	defaultEventBuffer  = 32
)

var ErrAlreadyRunning = errors.New("orchestrator already running")

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks a handler error that no retry can fix. The job fails on the
// attempt that returned it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Handler executes one stage of the pipeline.
type Handler interface {
	Handle(ctx context.Context, job domain.Job) (domain.StageResult, error)
}

type HandlerFunc func(ctx context.Context, job domain.Job) (domain.StageResult, error)

func (f HandlerFunc) Handle(ctx context.Context, job domain.Job) (domain.StageResult, error) {
	return f(ctx, job)
}

// Observer receives lifecycle notifications, typically for metrics.
// JobFinished fires after every attempt; a retried attempt reports pending.
type Observer interface {
	JobStarted(jobType domain.JobType)
	JobFinished(jobType domain.JobType, status domain.JobStatus, duration time.Duration)
	JobRetried(jobType domain.JobType)
	QueueDepth(depth int)
}

type Options struct {
	MaxAttempts  int
	RetryBackoff time.Duration
	// JobTimeout bounds a single handler execution. Zero disables it.
	JobTimeout  time.Duration
	EventBuffer int
	Now         func() time.Time
	Logger      *slog.Logger
	Observer    Observer
}

// chain lists the stages enqueued after a stage succeeds with Advance set.
var chain = map[domain.JobType][]domain.JobType{
	domain.JobTypeOCR:      {domain.JobTypeClassify},
	domain.JobTypeClassify: {domain.JobTypeExtract},
	domain.JobTypeExtract:  {domain.JobTypeIndex, domain.JobTypeReminders},
}

// Orchestrator is an in-memory job queue drained by a single consumer loop.
// Jobs are not persisted; terminal jobs leave the queue.
type Orchestrator struct {
	opts     Options
	logger   *slog.Logger
	handlers map[domain.JobType]Handler

	mu    sync.Mutex
	queue []*domain.Job
	seq   uint64
	subs  map[string]map[*Subscription]struct{}
	all   map[*Subscription]struct{}

	wake    chan struct{}
	running atomic.Bool
}

func New(opts Options) *Orchestrator {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryBackoff < 0 {
		opts.RetryBackoff = 0
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		opts:     opts,
		logger:   logger,
		handlers: make(map[domain.JobType]Handler),
		subs:     make(map[string]map[*Subscription]struct{}),
		all:      make(map[*Subscription]struct{}),
		wake:     make(chan struct{}, 1),
	}
}

// Register binds a handler to a job type. It must be called before Run.
func (o *Orchestrator) Register(jobType domain.JobType, h Handler) {
	o.handlers[jobType] = h
}

func (o *Orchestrator) Enqueue(jobType domain.JobType, documentID string, payload map[string]string) (string, error) {
	if _, ok := o.handlers[jobType]; !ok {
		return "", domain.WrapError(domain.ErrUnknownJobType, "enqueue job", fmt.Errorf("%q has no handler", jobType))
	}
	if documentID == "" && jobType != domain.JobTypeGC {
		return "", domain.WrapError(domain.ErrInvalidInput, "enqueue job", errors.New("document id is required"))
	}

	now := o.opts.Now()
	o.mu.Lock()
	o.seq++
	job := &domain.Job{
		ID:               fmt.Sprintf("%s:%s:%d:%d", jobType, documentID, now.UnixNano(), o.seq),
		Type:             jobType,
		TargetDocumentID: documentID,
		Payload:          copyPayload(payload),
		Status:           domain.JobStatusPending,
		MaxAttempts:      o.opts.MaxAttempts,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	o.queue = append(o.queue, job)
	depth := len(o.queue)
	o.emitLocked(job)
	o.mu.Unlock()

	o.observeDepth(depth)
	o.logger.Debug("job_enqueued", "job_id", job.ID, "job_type", jobType, "document_id", documentID)
	o.signal()
	return job.ID, nil
}

// Run drains the queue one job at a time until ctx is done. Only one Run may
// be active per orchestrator.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer o.running.Store(false)

	for {
		job := o.next()
		if job == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-o.wake:
			}
			continue
		}

		backoff := o.execute(ctx, job)
		if backoff > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Job returns a copy of a queued job. Terminal jobs are no longer queued.
func (o *Orchestrator) Job(id string) (domain.Job, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, job := range o.queue {
		if job.ID == id {
			return snapshot(job), true
		}
	}
	return domain.Job{}, false
}

// Pending returns the number of jobs still in the queue.
func (o *Orchestrator) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

func (o *Orchestrator) next() *domain.Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, job := range o.queue {
		if job.Status == domain.JobStatusPending {
			now := o.opts.Now()
			job.Status = domain.JobStatusProcessing
			job.UpdatedAt = now
			if job.StartedAt == nil {
				job.StartedAt = &now
			}
			o.emitLocked(job)
			return job
		}
	}
	return nil
}

// execute runs the job and returns how long the loop must wait before the
// next pull.
func (o *Orchestrator) execute(ctx context.Context, job *domain.Job) time.Duration {
	o.mu.Lock()
	view := snapshot(job)
	o.mu.Unlock()

	if o.opts.Observer != nil {
		o.opts.Observer.JobStarted(job.Type)
	}
	started := time.Now()
	result, err := o.invoke(ctx, view)
	duration := time.Since(started)

	if err == nil {
		o.finish(job, domain.JobStatusSuccess, "")
		o.observeFinished(job.Type, domain.JobStatusSuccess, duration)
		o.logger.Info("job_succeeded",
			"job_id", job.ID,
			"job_type", job.Type,
			"document_id", job.TargetDocumentID,
			"duration_ms", duration.Milliseconds(),
			"advance", result.Advance,
		)
		if result.Advance {
			for _, nextType := range chain[job.Type] {
				if _, enqueueErr := o.Enqueue(nextType, job.TargetDocumentID, result.Payload); enqueueErr != nil {
					o.logger.Error("job_chain_failed",
						"job_id", job.ID,
						"next_job_type", nextType,
						"document_id", job.TargetDocumentID,
						"error", enqueueErr,
					)
				}
			}
		}
		return 0
	}

	o.mu.Lock()
	job.Attempts++
	attempts := job.Attempts
	job.Error = err.Error()
	job.UpdatedAt = o.opts.Now()
	o.mu.Unlock()

	permanent := IsPermanent(err)
	if attempts < job.MaxAttempts && !permanent {
		o.mu.Lock()
		job.Status = domain.JobStatusPending
		o.emitLocked(job)
		o.mu.Unlock()
		o.observeFinished(job.Type, domain.JobStatusPending, duration)
		if o.opts.Observer != nil {
			o.opts.Observer.JobRetried(job.Type)
		}
		backoff := o.opts.RetryBackoff * time.Duration(attempts)
		o.logger.Warn("job_retry_scheduled",
			"job_id", job.ID,
			"job_type", job.Type,
			"document_id", job.TargetDocumentID,
			"attempts", attempts,
			"backoff_ms", backoff.Milliseconds(),
			"error", err,
		)
		return backoff
	}

	o.finish(job, domain.JobStatusFailed, err.Error())
	o.observeFinished(job.Type, domain.JobStatusFailed, duration)
	o.logger.Error("job_failed",
		"job_id", job.ID,
		"job_type", job.Type,
		"document_id", job.TargetDocumentID,
		"attempts", attempts,
		"permanent", permanent,
		"error", err,
	)
	return 0
}

func (o *Orchestrator) invoke(ctx context.Context, job domain.Job) (result domain.StageResult, err error) {
	handler := o.handlers[job.Type]
	if o.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.JobTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panic: %v", r)
		}
	}()
	return handler.Handle(ctx, job)
}

// finish marks the job terminal, notifies subscribers and removes it.
func (o *Orchestrator) finish(job *domain.Job, status domain.JobStatus, errMessage string) {
	o.mu.Lock()
	now := o.opts.Now()
	job.Status = status
	job.Error = errMessage
	job.UpdatedAt = now
	job.FinishedAt = &now
	o.emitLocked(job)
	for i, queued := range o.queue {
		if queued == job {
			o.queue = append(o.queue[:i], o.queue[i+1:]...)
			break
		}
	}
	depth := len(o.queue)
	o.mu.Unlock()
	o.observeDepth(depth)
}

func (o *Orchestrator) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) observeDepth(depth int) {
	if o.opts.Observer != nil {
		o.opts.Observer.QueueDepth(depth)
	}
}

func (o *Orchestrator) observeFinished(jobType domain.JobType, status domain.JobStatus, duration time.Duration) {
	if o.opts.Observer != nil {
		o.opts.Observer.JobFinished(jobType, status, duration)
	}
}

func snapshot(job *domain.Job) domain.Job {
	out := *job
	out.Payload = copyPayload(job.Payload)
	return out
}

func copyPayload(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
