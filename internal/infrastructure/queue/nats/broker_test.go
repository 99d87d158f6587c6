package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/rental-doc-intake/internal/core/domain"
)

func TestEventSubject(t *testing.T) {
	if got, err := eventSubject("intake.events", "d1"); err != nil || got != "intake.events.d1" {
		t.Fatalf("unexpected subject %q, %v", got, err)
	}
	if got, err := eventSubject("intake.events", ""); err != nil || got != "intake.events._system" {
		t.Fatalf("unexpected system subject %q, %v", got, err)
	}
}

func TestEventSubjectRejectsWildcards(t *testing.T) {
	for _, id := range []string{">", "*", "d1.>", "a.b", "d 1", "d1\n"} {
		if got, err := eventSubject("intake.events", id); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("%q: expected ErrInvalidInput, got %q, %v", id, got, err)
		}
	}
}

func TestJobReplyKeepsErrorKinds(t *testing.T) {
	cases := []error{domain.ErrUnknownJobType, domain.ErrInvalidInput, domain.ErrTemporary, domain.ErrDocumentNotFound}
	for _, kind := range cases {
		reply := replyFromError(domain.WrapError(kind, "enqueue", errors.New("boom")))
		if err := errorFromReply(reply); !domain.IsKind(err, kind) {
			t.Fatalf("kind %v lost across reply: %v", kind, err)
		}
	}

	reply := replyFromError(errors.New("plain"))
	err := errorFromReply(reply)
	if domain.IsKind(err, domain.ErrTemporary) || err == nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestAsTemporary(t *testing.T) {
	err := asTemporary("nats request job", fmt.Errorf("request: %w", nats.ErrNoResponders))
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected no responders to be temporary, got %v", err)
	}
	err = asTemporary("nats publish", nats.ErrBadSubject)
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("bad subject must stay permanent, got %v", err)
	}
	if asTemporary("nats publish", context.Canceled) != context.Canceled {
		t.Fatalf("context errors must pass through unchanged")
	}
}

func TestSubjectsWithDefaults(t *testing.T) {
	got := Subjects{Ingest: "custom.ingest"}.withDefaults()
	if got.Ingest != "custom.ingest" || got.Jobs != "intake.jobs" || got.EventPrefix != "intake.events" || got.Rules != "intake.rules.invalidate" {
		t.Fatalf("unexpected subjects %+v", got)
	}
}
