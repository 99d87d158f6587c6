package domain

import (
	"fmt"
	"time"
)

type JobType string

const (
	JobTypeOCR       JobType = "ocr"
	JobTypeClassify  JobType = "classify"
	JobTypeExtract   JobType = "extract"
	JobTypeIndex     JobType = "index"
	JobTypeReminders JobType = "reminders"
	JobTypeGC        JobType = "gc"
)

// ParseJobType validates a job type coming from outside the process.
func ParseJobType(raw string) (JobType, error) {
	switch t := JobType(raw); t {
	case JobTypeOCR, JobTypeClassify, JobTypeExtract, JobTypeIndex, JobTypeReminders, JobTypeGC:
		return t, nil
	default:
		return "", WrapError(ErrUnknownJobType, "parse job type", fmt.Errorf("%q", raw))
	}
}

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSuccess    JobStatus = "success"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the job leaves the queue in this status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailed
}

type Job struct {
	ID               string            `json:"id"`
	Type             JobType           `json:"type"`
	TargetDocumentID string            `json:"target_document_id,omitempty"`
	Payload          map[string]string `json:"payload,omitempty"`
	Status           JobStatus         `json:"status"`
	Attempts         int               `json:"attempts"`
	MaxAttempts      int               `json:"max_attempts"`
	Error            string            `json:"error,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	StartedAt        *time.Time        `json:"started_at,omitempty"`
	FinishedAt       *time.Time        `json:"finished_at,omitempty"`
}

// JobRequest asks a worker process to enqueue a job.
type JobRequest struct {
	Type       JobType           `json:"type"`
	DocumentID string            `json:"document_id,omitempty"`
	Payload    map[string]string `json:"payload,omitempty"`
}

// JobEvent is emitted on every job status transition.
type JobEvent struct {
	JobID      string    `json:"job_id"`
	JobType    JobType   `json:"job_type"`
	DocumentID string    `json:"document_id,omitempty"`
	Status     JobStatus `json:"status"`
	Attempts   int       `json:"attempts"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// StageResult is what a stage handler reports back to the orchestrator.
// Advance tells whether the next stage of the chain may run.
type StageResult struct {
	Advance bool
	Payload map[string]string
}
