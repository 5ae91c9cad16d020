// Package pipeline runs the four business flows as ordered steps. Each step
// passes through the cost guard (AI steps only) and the confidence gate, and
// leaves exactly one decision-log entry per action it takes.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/adapter"
	"coachhire-ai/internal/domain/ports/repository"
)

// Outcome is what a step proposes before the gate decides on it.
type Outcome struct {
	Output     json.RawMessage
	Confidence float64
	Flags      []model.PolicyFlag
	// Escalate forces a review task regardless of confidence.
	Escalate model.ReviewReason
	Detail   map[string]any

	// AI is set when the output came from a billed model call.
	AI         bool
	ModelID    string
	CostMicros int64
	LatencyMs  int64
	OverBudget bool
	Fallback   bool
}

// Step is one unit of a flow.
type Step struct {
	Name string
	Task model.TaskType
	// Done reports that the step's effect is already persisted.
	Done func(s *State) bool
	// Propose computes the step's output. AI steps call Runner.infer.
	Propose func(ctx context.Context, s *State) (*Outcome, error)
	// Apply persists out. It must tolerate being called again with the same output.
	Apply func(ctx context.Context, tx repository.Tx, s *State, out json.RawMessage) error
}

// Flow is an ordered list of steps over one business entity.
type Flow struct {
	Name  model.FlowName
	Load  func(ctx context.Context, s *State) error
	Steps []Step
}

// State carries the entities one run works on. Steps refresh it in Apply.
type State struct {
	Job        *model.Job
	PipelineID string

	Enquiry       *model.Enquiry
	Email         *model.InboundEmail
	Quotes        []*model.SupplierQuote
	Suppliers     map[string]*model.Supplier
	Winner        *model.SupplierQuote
	CustomerQuote *model.CustomerQuote
	Booking       *model.Booking
	Ranking       []RankedBid

	outbox []adapter.Notification
}

// Notify queues a notification that is sent only after the step commits.
func (s *State) Notify(n adapter.Notification) { s.outbox = append(s.outbox, n) }

// Entity names the business object a review task should point at.
func (s *State) Entity() model.EntityRef {
	switch {
	case s.Booking != nil:
		return model.EntityRef{Type: model.EntityBooking, ID: s.Booking.ID}
	case s.Enquiry != nil:
		return model.EntityRef{Type: model.EntityEnquiry, ID: s.Enquiry.ID}
	case s.Email != nil:
		return model.EntityRef{Type: model.EntityInboundEmail, ID: s.Email.ID}
	}
	p := s.Job.Payload
	switch {
	case p.BookingID != "":
		return model.EntityRef{Type: model.EntityBooking, ID: p.BookingID}
	case p.EnquiryID != "":
		return model.EntityRef{Type: model.EntityEnquiry, ID: p.EnquiryID}
	case p.InboundEmailID != "":
		return model.EntityRef{Type: model.EntityInboundEmail, ID: p.InboundEmailID}
	case p.CustomerQuoteID != "":
		return model.EntityRef{Type: model.EntityCustomerQuote, ID: p.CustomerQuoteID}
	}
	return model.EntityRef{}
}

// StepError tags a retryable failure with the step and task it came from.
type StepError struct {
	Step string
	Task model.TaskType
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("step %s: %v", e.Step, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }

func stepTask(err error) model.TaskType {
	var se *StepError
	if errors.As(err, &se) {
		return se.Task
	}
	return ""
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, errors.New("empty output")
	}
	err := json.Unmarshal(raw, &v)
	return v, err
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
