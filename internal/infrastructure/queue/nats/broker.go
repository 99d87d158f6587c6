package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/rental-doc-intake/internal/core/domain"
)

// systemToken replaces the document id in event subjects of jobs that
// target no document.
const systemToken = "_system"

type jobReply struct {
	JobID string `json:"job_id,omitempty"`
	Kind  string `json:"kind,omitempty"`
	Error string `json:"error,omitempty"`
}

// RequestJob asks a worker to enqueue req and returns the job id it assigned.
// Requests are not retried: a lost reply could otherwise enqueue twice.
func (q *Queue) RequestJob(ctx context.Context, req domain.JobRequest) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal job request: %w", err)
	}
	msg, err := q.conn.RequestWithContext(ctx, q.subjects.Jobs, data)
	if err != nil {
		return "", asTemporary("nats request job", err)
	}

	var reply jobReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return "", fmt.Errorf("decode job reply: %w", err)
	}
	if reply.Error != "" {
		return "", errorFromReply(reply)
	}
	return reply.JobID, nil
}

// ServeJobRequests answers job requests until ctx ends. Workers share the
// subject through a queue group so each request is handled once.
func (q *Queue) ServeJobRequests(ctx context.Context, handler func(context.Context, domain.JobRequest) (string, error)) error {
	sub, err := q.conn.QueueSubscribe(q.subjects.Jobs, "workers", func(msg *nats.Msg) {
		var reply jobReply
		var req domain.JobRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			reply = replyFromError(domain.WrapError(domain.ErrInvalidInput, "decode job request", err))
		} else if jobID, err := handler(ctx, req); err != nil {
			reply = replyFromError(err)
		} else {
			reply.JobID = jobID
		}

		data, err := json.Marshal(reply)
		if err != nil {
			q.logger.Error("job_reply_encode_failed", "error", err)
			return
		}
		if err := msg.Respond(data); err != nil {
			q.logger.Warn("job_reply_failed", "job_type", string(req.Type), "document_id", req.DocumentID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe jobs: %w", err)
	}
	return q.serveUntilDone(ctx, sub)
}

func (q *Queue) PublishJobEvent(ctx context.Context, event domain.JobEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal job event: %w", err)
	}
	subject, err := eventSubject(q.subjects.EventPrefix, event.DocumentID)
	if err != nil {
		return err
	}
	return q.publish(ctx, subject, data)
}

// SubscribeJobEvents delivers the events of one document, or of every
// document when documentID is empty. The returned func unsubscribes.
func (q *Queue) SubscribeJobEvents(_ context.Context, documentID string, handler func(domain.JobEvent)) (func() error, error) {
	subject := q.subjects.EventPrefix + ".>"
	if documentID != "" {
		var err error
		if subject, err = eventSubject(q.subjects.EventPrefix, documentID); err != nil {
			return nil, err
		}
	}

	sub, err := q.conn.Subscribe(subject, func(msg *nats.Msg) {
		var event domain.JobEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			q.logger.Warn("job_event_decode_failed", "subject", msg.Subject, "error", err)
			return
		}
		handler(event)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe events: %w", err)
	}
	if err := q.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("nats flush: %w", err)
	}
	return sub.Unsubscribe, nil
}

func (q *Queue) PublishRulesInvalidated(ctx context.Context) error {
	return q.publish(ctx, q.subjects.Rules, []byte(strconv.FormatInt(time.Now().UTC().UnixNano(), 10)))
}

// SubscribeRulesInvalidated uses a plain subscription: every process holding
// a rule cache must see the broadcast.
func (q *Queue) SubscribeRulesInvalidated(ctx context.Context, handler func(context.Context)) error {
	sub, err := q.conn.Subscribe(q.subjects.Rules, func(_ *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		handler(ctx)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe rules: %w", err)
	}
	return q.serveUntilDone(ctx, sub)
}

func eventSubject(prefix, documentID string) (string, error) {
	if documentID == "" {
		return prefix + "." + systemToken, nil
	}
	if err := domain.ValidateDocumentID(documentID); err != nil {
		return "", err
	}
	return prefix + "." + documentID, nil
}

func replyFromError(err error) jobReply {
	return jobReply{Error: err.Error(), Kind: domain.ErrorCode(err)}
}

func errorFromReply(reply jobReply) error {
	remote := errors.New(reply.Error)
	if kind := domain.KindFromCode(reply.Kind); kind != nil {
		return domain.WrapError(kind, "remote enqueue", remote)
	}
	return fmt.Errorf("remote enqueue: %w", remote)
}
