package jobs

import (
	"sync"

	"github.com/kirillkom/rental-doc-intake/internal/core/domain"
)

// Subscription delivers job events until it is passed to Unsubscribe.
type Subscription struct {
	documentID string
	events     chan domain.JobEvent
	closeOnce  sync.Once
}

// Events is closed by Unsubscribe.
func (s *Subscription) Events() <-chan domain.JobEvent {
	return s.events
}

func (s *Subscription) DocumentID() string {
	return s.documentID
}

// Subscribe returns a subscription for every transition of jobs targeting
// documentID.
func (o *Orchestrator) Subscribe(documentID string) *Subscription {
	sub := &Subscription{documentID: documentID, events: make(chan domain.JobEvent, o.opts.EventBuffer)}
	o.mu.Lock()
	defer o.mu.Unlock()
	set, ok := o.subs[documentID]
	if !ok {
		set = make(map[*Subscription]struct{})
		o.subs[documentID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// SubscribeAll returns a subscription for every job transition, including
// jobs without a target document.
func (o *Orchestrator) SubscribeAll() *Subscription {
	sub := &Subscription{events: make(chan domain.JobEvent, o.opts.EventBuffer)}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.all[sub] = struct{}{}
	return sub
}

func (o *Orchestrator) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.all, sub)
	if set, ok := o.subs[sub.documentID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(o.subs, sub.documentID)
		}
	}
	sub.closeOnce.Do(func() { close(sub.events) })
}

// Subscribers returns the number of registered per-document subscriptions.
func (o *Orchestrator) Subscribers(documentID string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subs[documentID])
}

// emitLocked must be called with o.mu held. Slow subscribers lose events
// rather than stall the worker loop.
func (o *Orchestrator) emitLocked(job *domain.Job) {
	event := domain.JobEvent{
		JobID:      job.ID,
		JobType:    job.Type,
		DocumentID: job.TargetDocumentID,
		Status:     job.Status,
		Attempts:   job.Attempts,
		Error:      job.Error,
		At:         job.UpdatedAt,
	}
	deliver := func(sub *Subscription) {
		select {
		case sub.events <- event:
		default:
			o.logger.Warn("job_event_dropped", "job_id", job.ID, "document_id", sub.documentID, "status", job.Status)
		}
	}
	for sub := range o.subs[job.TargetDocumentID] {
		deliver(sub)
	}
	for sub := range o.all {
		deliver(sub)
	}
}
