package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/adapter"
	"coachhire-ai/internal/domain/ports/repository"
	ports "coachhire-ai/internal/domain/ports/usecase"
	"coachhire-ai/internal/infra/logging"
	"coachhire-ai/internal/infra/metrics"
	"coachhire-ai/internal/infra/telemetry"
	"coachhire-ai/internal/usecase"
)

type Deps struct {
	Tx             repository.TransactionManager
	Enquiries      repository.EnquiryRepository
	Emails         repository.InboundEmailRepository
	Suppliers      repository.SupplierRepository
	SupplierQuotes repository.SupplierQuoteRepository
	CustomerQuotes repository.CustomerQuoteRepository
	Bookings       repository.BookingRepository
	Decisions      repository.DecisionLogRepository
	Config         usecase.AIConfigService
	Costs          usecase.CostGuard
	Gate           *usecase.ConfidenceGate
	Reviews        usecase.ReviewTracker
	Queue          ports.Enqueuer
	Notifier       adapter.Notifier
	Inference      *Inference
}

// Runner executes flows step by step. The decision log doubles as the
// checkpoint: a step that already has an entry for this pipeline is never
// proposed again, so retries neither repeat AI calls nor duplicate entries.
type Runner struct {
	Deps
	flows map[model.FlowName]*Flow
	now   func() time.Time
	log   *zerolog.Logger
}

func NewRunner(d Deps, logger *zerolog.Logger) *Runner {
	l := logger.With().Str("component", "PipelineRunner").Logger()
	r := &Runner{Deps: d, now: time.Now, log: &l}
	r.flows = map[model.FlowName]*Flow{}
	for _, f := range []*Flow{r.intakeFlow(), r.bidEvaluationFlow(), r.quoteGenerationFlow(), r.jobConfirmationFlow()} {
		r.flows[f.Name] = f
	}
	return r
}

type stepResult int

const (
	stepNext stepResult = iota
	stepHalt
)

// Run executes job's flow. A nil return covers both completion and a
// non-error stop (open review, dismissed review, cancelled enquiry).
func (r *Runner) Run(ctx context.Context, job *model.Job) error {
	flow, ok := r.flows[job.Name]
	if !ok {
		return domain.Permanent(fmt.Errorf("%w: %q", domain.ErrUnknownFlow, job.Name))
	}
	enabled, err := r.Config.FlowEnabled(ctx, job.Name)
	if err != nil {
		return err
	}
	if !enabled {
		return domain.ErrFlowDisabled
	}

	s := &State{Job: job, PipelineID: job.Payload.PipelineID}
	ctx = logging.WithPipelineID(ctx, s.PipelineID)
	if job.Payload.EnquiryID != "" {
		ctx = logging.WithEnquiryID(ctx, job.Payload.EnquiryID)
	}
	log := logging.With(ctx, r.log)

	if err := flow.Load(ctx, s); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Permanent(fmt.Errorf("load %s: %w", flow.Name, err))
		}
		return err
	}
	if job.Payload.ResumeStep != "" {
		log.Info().Str("resume_step", job.Payload.ResumeStep).Msg("resuming pipeline after review")
	}

	for _, st := range flow.Steps {
		if r.cancelled(ctx, s) {
			log.Info().Str("step", st.Name).Msg("enquiry cancelled, stopping pipeline")
			return nil
		}
		res, err := r.runStep(ctx, flow, st, s)
		if err != nil {
			return err
		}
		if res == stepHalt {
			return nil
		}
	}
	log.Info().Msg("pipeline completed")
	return nil
}

func (r *Runner) cancelled(ctx context.Context, s *State) bool {
	if s.Enquiry == nil {
		return false
	}
	e, err := r.Enquiries.FindByID(ctx, repository.NoTX, s.Enquiry.ID)
	if err != nil {
		return false
	}
	return e.Status == model.EnquiryCancelled
}

func (r *Runner) runStep(ctx context.Context, flow *Flow, st Step, s *State) (stepResult, error) {
	if st.Done != nil && st.Done(s) {
		return stepNext, nil
	}
	ctx, span := telemetry.Tracer().Start(ctx, flow.Name.Short()+"."+st.Name, trace.WithAttributes(
		attribute.String("pipeline.id", s.PipelineID),
		attribute.String("pipeline.step", st.Name),
		attribute.String("ai.task", string(st.Task)),
	))
	defer span.End()
	log := logging.With(ctx, r.log).With().Str("step", st.Name).Logger()

	esc, err := r.Decisions.Find(ctx, repository.NoTX, s.PipelineID, st.Name, model.ActionEscalated)
	switch {
	case err == nil:
		return r.resumeEscalated(ctx, flow, st, s, esc, &log)
	case !errors.Is(err, domain.ErrNotFound):
		return stepHalt, err
	}

	for _, a := range []model.DecisionAction{model.ActionOverridden, model.ActionAutoExecuted} {
		prev, err := r.Decisions.Find(ctx, repository.NoTX, s.PipelineID, st.Name, a)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return stepHalt, err
		}
		log.Debug().Str("action", string(a)).Msg("step already decided, re-applying logged output")
		if err := r.commit(ctx, st, s, nil, prev.Output); err != nil {
			return stepHalt, &StepError{Step: st.Name, Task: st.Task, Err: err}
		}
		return stepNext, nil
	}

	o, err := st.Propose(ctx, s)
	if err != nil {
		if errors.Is(err, domain.ErrDeferred) || domain.IsPermanent(err) {
			return stepHalt, err
		}
		return stepHalt, &StepError{Step: st.Name, Task: st.Task, Err: err}
	}

	reason, err := r.decide(ctx, st, o)
	if err != nil {
		return stepHalt, err
	}
	if reason != "" {
		return stepHalt, r.escalate(ctx, flow, st, s, o, reason, &log)
	}

	entry := r.entry(flow, st, s, o, model.ActionAutoExecuted)
	if err := r.commit(ctx, st, s, entry, o.Output); err != nil {
		return stepHalt, &StepError{Step: st.Name, Task: st.Task, Err: err}
	}
	metrics.IncPipelineStep(string(flow.Name), st.Name, string(model.ActionAutoExecuted))
	log.Info().Float64("confidence", o.Confidence).Bool("fallback", o.Fallback).Msg("step auto-executed")
	return stepNext, nil
}

// decide returns the review reason, or "" to auto-execute. Outputs that did
// not come from a model call only escalate on a policy reason.
func (r *Runner) decide(ctx context.Context, st Step, o *Outcome) (model.ReviewReason, error) {
	if o.Escalate != "" {
		return o.Escalate, nil
	}
	if !o.AI {
		if len(o.Flags) > 0 {
			return o.Flags[0].Reason(), nil
		}
		return "", nil
	}
	d, err := r.Gate.Evaluate(ctx, st.Task, o.Confidence, o.Flags)
	if err != nil {
		return "", err
	}
	if d.Outcome == usecase.GateEscalate {
		return d.Reason, nil
	}
	return "", nil
}

func (r *Runner) entry(flow *Flow, st Step, s *State, o *Outcome, a model.DecisionAction) *model.AiDecisionLog {
	e := model.NewDecisionLog(s.PipelineID, flow.Name, st.Name, st.Task, a)
	e.Confidence = o.Confidence
	e.CostMicros = o.CostMicros
	e.LatencyMs = o.LatencyMs
	e.ModelID = o.ModelID
	e.Entity = s.Entity()
	e.Output = o.Output
	e.OverBudget = o.OverBudget
	e.Fallback = o.Fallback
	return e
}

// commit appends entry (when given) and applies out in one transaction, then
// flushes notifications the step queued.
func (r *Runner) commit(ctx context.Context, st Step, s *State, entry *model.AiDecisionLog, out json.RawMessage) error {
	s.outbox = nil
	err := r.Tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if entry != nil {
			if _, err := r.Decisions.Append(ctx, tx, entry); err != nil {
				return err
			}
		}
		return st.Apply(ctx, tx, s, out)
	})
	if err != nil {
		s.outbox = nil
		return err
	}
	r.flush(ctx, s)
	return nil
}

func (r *Runner) flush(ctx context.Context, s *State) {
	for _, n := range s.outbox {
		r.notify(ctx, n)
	}
	s.outbox = nil
}

func (r *Runner) notify(ctx context.Context, n adapter.Notification) {
	if r.Notifier == nil {
		return
	}
	if err := r.Notifier.Notify(ctx, n); err != nil {
		r.log.Warn().Err(err).Str("channel", string(n.Channel)).Msg("notification failed")
	}
}

func (r *Runner) escalate(ctx context.Context, flow *Flow, st Step, s *State, o *Outcome, reason model.ReviewReason, log *zerolog.Logger) error {
	detail := map[string]any{
		"payload":    s.Job.Payload,
		"confidence": o.Confidence,
	}
	if len(o.Output) > 0 {
		detail["proposal"] = o.Output
	}
	if len(o.Flags) > 0 {
		detail["flags"] = o.Flags
	}
	for k, v := range o.Detail {
		detail[k] = v
	}

	var (
		task    *model.HumanReviewTask
		created bool
	)
	err := r.Tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		task, created, err = r.Reviews.Create(ctx, tx, usecase.CreateReviewInput{
			TaskType:   st.Task,
			Reason:     reason,
			Entity:     s.Entity(),
			PipelineID: s.PipelineID,
			Flow:       flow.Name,
			Step:       st.Name,
			Detail:     mustJSON(detail),
		})
		if err != nil {
			return err
		}
		e := r.entry(flow, st, s, o, model.ActionEscalated)
		e.ReviewTaskID = task.ID
		_, err = r.Decisions.Append(ctx, tx, e)
		return err
	})
	if err != nil {
		return &StepError{Step: st.Name, Task: st.Task, Err: err}
	}
	metrics.IncPipelineStep(string(flow.Name), st.Name, string(model.ActionEscalated))
	log.Warn().Str("reason", string(reason)).Str("review_id", task.ID).Float64("confidence", o.Confidence).
		Msg("step escalated to human review")
	if created {
		r.notify(ctx, adapter.Notification{
			Channel: adapter.ChannelOps,
			Subject: fmt.Sprintf("Review needed: %s", reason),
			Body: fmt.Sprintf("%s step %s needs a decision (%s %s). Review task %s.",
				flow.Name, st.Name, task.Entity.Type, task.Entity.ID, task.ID),
			Meta: map[string]string{"review_id": task.ID, "pipeline_id": s.PipelineID},
		})
	}
	return nil
}

func (r *Runner) resumeEscalated(ctx context.Context, flow *Flow, st Step, s *State, esc *model.AiDecisionLog, log *zerolog.Logger) (stepResult, error) {
	var (
		task *model.HumanReviewTask
		err  error
	)
	if esc.ReviewTaskID != "" {
		task, err = r.Reviews.Get(ctx, esc.ReviewTaskID)
	} else {
		task, err = r.Reviews.FindByKey(ctx, s.PipelineID, st.Name)
	}
	if err != nil {
		return stepHalt, err
	}

	switch task.Status {
	case model.ReviewDismissed:
		log.Info().Str("review_id", task.ID).Msg("review dismissed, pipeline halted for manual handling")
		return stepHalt, nil
	case model.ReviewResolved:
	default:
		log.Info().Str("review_id", task.ID).Str("status", string(task.Status)).Msg("awaiting human review")
		return stepHalt, nil
	}

	out := esc.Output
	if len(task.Override) > 0 && string(task.Override) != "null" {
		out = task.Override
	}
	if len(out) == 0 {
		return stepHalt, domain.Permanent(fmt.Errorf("%w: review %s resolved without an override for step %s",
			domain.ErrInvalidArgument, task.ID, st.Name))
	}
	e := model.NewDecisionLog(s.PipelineID, flow.Name, st.Name, st.Task, model.ActionOverridden)
	e.Confidence = esc.Confidence
	e.ModelID = esc.ModelID
	e.Entity = s.Entity()
	e.Output = out
	e.ReviewTaskID = task.ID
	if err := r.commit(ctx, st, s, e, out); err != nil {
		if isBadOverride(err) {
			return stepHalt, domain.Permanent(err)
		}
		return stepHalt, &StepError{Step: st.Name, Task: st.Task, Err: err}
	}
	metrics.IncPipelineStep(string(flow.Name), st.Name, string(model.ActionOverridden))
	log.Info().Str("review_id", task.ID).Str("resolved_by", task.ResolvedBy).Msg("human decision applied")
	return stepNext, nil
}

func isBadOverride(err error) bool {
	var se *json.SyntaxError
	var te *json.UnmarshalTypeError
	return errors.As(err, &se) || errors.As(err, &te) || errors.Is(err, domain.ErrInvalidArgument)
}

// HandleExhausted opens the AI_FAILURE review task for a job that used its
// last attempt. The dedupe key is per job, so a job gets exactly one.
func (r *Runner) HandleExhausted(ctx context.Context, job *model.Job, cause error) error {
	s := &State{Job: job, PipelineID: job.Payload.PipelineID}
	task := stepTask(cause)
	if task == "" {
		task = firstTask(job.Name)
	}
	detail := mustJSON(map[string]any{
		"payload":  job.Payload,
		"error":    cause.Error(),
		"attempts": job.Attempts,
		"jobId":    job.ID,
	})
	var (
		rt      *model.HumanReviewTask
		created bool
	)
	err := r.Tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		rt, created, err = r.Reviews.Create(ctx, tx, usecase.CreateReviewInput{
			TaskType:   task,
			Reason:     model.ReasonAIFailure,
			Entity:     s.Entity(),
			PipelineID: s.PipelineID,
			Flow:       job.Name,
			Step:       "exhausted:" + job.ID,
			Detail:     detail,
		})
		return err
	})
	if err != nil {
		return err
	}
	if created {
		r.notify(ctx, adapter.Notification{
			Channel: adapter.ChannelOps,
			Subject: "AI failure: " + string(job.Name),
			Body:    fmt.Sprintf("Job %s failed after %d attempts: %v. Review task %s.", job.ID, job.Attempts, cause, rt.ID),
			Meta:    map[string]string{"review_id": rt.ID, "pipeline_id": s.PipelineID},
		})
	}
	return nil
}

// Resume is the review resolution hook: it re-enqueues the owning flow under
// the same pipeline id, in the resolving transaction, so the runner picks up
// at the reviewed step.
func (r *Runner) Resume(ctx context.Context, tx repository.Tx, t *model.HumanReviewTask) error {
	var d struct {
		Payload model.JobPayload `json:"payload"`
	}
	if len(t.Detail) > 0 {
		if err := json.Unmarshal(t.Detail, &d); err != nil {
			return fmt.Errorf("decode review detail: %w", err)
		}
	}
	p := d.Payload
	p.PipelineID = t.PipelineID
	p.ResumeStep = t.Step
	if p.EnquiryID == "" && t.Entity.Type == model.EntityEnquiry {
		p.EnquiryID = t.Entity.ID
	}
	if p.BookingID == "" && t.Entity.Type == model.EntityBooking {
		p.BookingID = t.Entity.ID
	}
	job, err := r.Queue.Enqueue(ctx, tx, t.Flow, p, nil)
	if err != nil {
		return err
	}
	r.log.Info().Str("review_id", t.ID).Str("job_id", job.ID).Str("pipeline_id", t.PipelineID).
		Str("flow", string(t.Flow)).Msg("pipeline re-enqueued after review")
	return nil
}

func firstTask(f model.FlowName) model.TaskType {
	switch f {
	case model.FlowEnquiryIntake:
		return model.TaskEmailParser
	case model.FlowBidEvaluation:
		return model.TaskBidEvaluator
	case model.FlowQuoteGeneration:
		return model.TaskMarkupCalculator
	}
	return model.TaskJobDocuments
}
