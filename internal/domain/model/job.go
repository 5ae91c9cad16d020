package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"coachhire-ai/internal/domain"
)

// FlowName is the closed set of job names the worker understands.
type FlowName string

const (
	FlowEnquiryIntake   FlowName = "flow2:enquiry-intake"
	FlowBidEvaluation   FlowName = "flow3:bid-evaluation"
	FlowQuoteGeneration FlowName = "flow4:quote-generation"
	FlowJobConfirmation FlowName = "flow6:job-confirmation"

	quoteGenerationAlias = "quote-generation"
)

// Flows lists every job name in pipeline order.
var Flows = []FlowName{FlowEnquiryIntake, FlowBidEvaluation, FlowQuoteGeneration, FlowJobConfirmation}

// ParseFlowName resolves a job name, including the legacy quote-generation alias.
func ParseFlowName(s string) (FlowName, error) {
	s = strings.TrimSpace(s)
	if s == quoteGenerationAlias {
		return FlowQuoteGeneration, nil
	}
	for _, f := range Flows {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnknownFlow, s)
}

// Short returns the name without its flow number, e.g. "enquiry-intake".
func (f FlowName) Short() string {
	if i := strings.IndexByte(string(f), ':'); i >= 0 {
		return string(f)[i+1:]
	}
	return string(f)
}

type JobStatus string

const (
	JobStatusWaiting   JobStatus = "waiting"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobPayload carries entity ids only; handlers reload state from storage.
type JobPayload struct {
	EnquiryID       string `json:"enquiryId,omitempty"`
	InboundEmailID  string `json:"inboundEmailId,omitempty"`
	SupplierQuoteID string `json:"supplierQuoteId,omitempty"`
	SupplierID      string `json:"supplierId,omitempty"`
	CustomerQuoteID string `json:"customerQuoteId,omitempty"`
	BookingID       string `json:"bookingId,omitempty"`
	PipelineID      string `json:"pipelineId,omitempty"`
	ResumeStep      string `json:"resumeStep,omitempty"`
}

// JobOptions override the per-flow queue defaults for a single enqueue.
type JobOptions struct {
	MaxAttempts int
	BackoffBase time.Duration
	Priority    int
	Delay       time.Duration
}

type Job struct {
	ID          string
	Name        FlowName
	Payload     JobPayload
	Status      JobStatus
	Attempts    int
	MaxAttempts int
	BackoffBase time.Duration
	Priority    int
	RunAt       time.Time
	LockedBy    string
	LockedUntil *time.Time
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	FinishedAt  *time.Time
}

// NewJob builds a waiting job and assigns a pipeline id when the payload has none.
func NewJob(name FlowName, payload JobPayload, opts JobOptions, now time.Time) *Job {
	if payload.PipelineID == "" {
		payload.PipelineID = NewPipelineID()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 5 * time.Second
	}
	return &Job{
		ID:          uuid.NewString(),
		Name:        name,
		Payload:     payload,
		Status:      JobStatusWaiting,
		MaxAttempts: opts.MaxAttempts,
		BackoffBase: opts.BackoffBase,
		Priority:    opts.Priority,
		RunAt:       now.Add(opts.Delay),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Backoff returns the delay before the next attempt: base * 2^(attempts-1).
func (j *Job) Backoff() time.Duration {
	n := j.Attempts
	if n < 1 {
		n = 1
	}
	if n > 16 {
		n = 16
	}
	return j.BackoffBase * time.Duration(1<<uint(n-1))
}

// Exhausted reports whether the current attempt was the last allowed one.
func (j *Job) Exhausted() bool { return j.Attempts >= j.MaxAttempts }

// NewPipelineID returns a time-sortable correlation id.
func NewPipelineID() string { return ulid.Make().String() }
