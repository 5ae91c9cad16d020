package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"coachhire-ai/internal/config"
	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/repository"
	"coachhire-ai/internal/domain/ports/usecase"
	"coachhire-ai/internal/infra/logging"
	"coachhire-ai/internal/infra/metrics"
	"coachhire-ai/internal/infra/telemetry"
)

// ErrLeaseExpired is the exhaustion cause of a job whose worker stopped
// renewing it before recording an outcome.
var ErrLeaseExpired = errors.New("lease expired before the job finished")

// Handler executes one claimed job. A nil error completes it.
type Handler func(ctx context.Context, job *model.Job) error

// ExhaustedHook runs once when a job has used its last attempt.
type ExhaustedHook func(ctx context.Context, job *model.Job, cause error) error

// FlowGate reports whether a job name may run right now.
type FlowGate interface {
	FlowEnabled(ctx context.Context, flow model.FlowName) (bool, error)
}

// Queue is the durable named work queue: producers enqueue rows, consumers
// claim them under a lease and record the outcome.
type Queue struct {
	jobs      repository.JobRepository
	limiter   repository.RateLimiter
	cfg       config.QueueConfig
	gate      FlowGate
	exhausted ExhaustedHook
	workerID  string
	now       func() time.Time
	log       *zerolog.Logger
}

var _ usecase.Enqueuer = (*Queue)(nil)

func NewQueue(jobs repository.JobRepository, limiter repository.RateLimiter, cfg config.QueueConfig, logger *zerolog.Logger) *Queue {
	host, _ := os.Hostname()
	l := logger.With().Str("component", "Queue").Logger()
	return &Queue{
		jobs:     jobs,
		limiter:  limiter,
		cfg:      cfg,
		workerID: fmt.Sprintf("%s-%s", host, uuid.NewString()[:8]),
		now:      time.Now,
		log:      &l,
	}
}

func (q *Queue) SetGate(g FlowGate)          { q.gate = g }
func (q *Queue) OnExhausted(h ExhaustedHook) { q.exhausted = h }
func (q *Queue) WorkerID() string            { return q.workerID }

// Jobs exposes the job store for read-only admin listings.
func (q *Queue) Jobs() repository.JobRepository { return q.jobs }

func (q *Queue) Enqueue(ctx context.Context, tx repository.Tx, name model.FlowName, payload model.JobPayload, opts *model.JobOptions) (*model.Job, error) {
	flow, err := model.ParseFlowName(string(name))
	if err != nil {
		return nil, err
	}
	if err := model.ValidatePayload(flow, payload); err != nil {
		return nil, err
	}
	fc := q.cfg.For(string(flow))
	o := model.JobOptions{MaxAttempts: fc.MaxAttempts, BackoffBase: fc.BackoffBase, Priority: fc.Priority}
	if opts != nil {
		if opts.MaxAttempts > 0 {
			o.MaxAttempts = opts.MaxAttempts
		}
		if opts.BackoffBase > 0 {
			o.BackoffBase = opts.BackoffBase
		}
		if opts.Priority != 0 {
			o.Priority = opts.Priority
		}
		o.Delay = opts.Delay
	}
	job := model.NewJob(flow, payload, o, q.now().UTC())
	if err := q.jobs.Insert(ctx, tx, job); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}
	metrics.IncJobEnqueued(string(flow))
	q.log.Debug().Str("job_id", job.ID).Str("flow", string(flow)).Str("pipeline_id", job.Payload.PipelineID).Msg("job enqueued")
	return job, nil
}

// Consume runs fc.Concurrency claim loops for name until ctx is cancelled.
// Executions across all processes sharing the limiter stay under
// fc.RateLimit per fc.RateWindow.
func (q *Queue) Consume(ctx context.Context, name model.FlowName, h Handler, fc config.FlowQueueConfig) {
	n := fc.Concurrency
	if n <= 0 {
		n = 1
	}
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		go func(slot int) {
			defer func() { done <- struct{}{} }()
			q.loop(ctx, name, h, fc, slot)
		}(i)
	}
	for i := 0; i < n; i++ {
		<-done
	}
	q.log.Info().Str("flow", string(name)).Msg("consumer stopped")
}

func (q *Queue) loop(ctx context.Context, name model.FlowName, h Handler, fc config.FlowQueueConfig, slot int) {
	idle := q.cfg.PollInterval
	if idle <= 0 {
		idle = 500 * time.Millisecond
	}
	for ctx.Err() == nil {
		if q.gate != nil {
			ok, err := q.gate.FlowEnabled(ctx, name)
			if err != nil {
				q.log.Warn().Err(err).Str("flow", string(name)).Msg("toggle lookup failed")
			}
			if !ok {
				sleep(ctx, q.cfg.DeferDelay)
				continue
			}
		}
		job, err := q.jobs.Claim(ctx, name, q.workerID, q.cfg.Lease, q.now().UTC())
		if errors.Is(err, domain.ErrNotFound) {
			sleep(ctx, idle)
			continue
		}
		if err != nil {
			if ctx.Err() == nil {
				q.log.Error().Err(err).Str("flow", string(name)).Msg("claim failed")
			}
			sleep(ctx, idle)
			continue
		}

		waitStart := time.Now()
		if err := q.limiter.Wait(ctx, "queue:"+string(name), fc.RateLimit, fc.RateWindow); err != nil {
			// shutting down with a claimed job: hand it back untouched
			_ = q.jobs.Defer(context.Background(), job.ID, q.workerID, q.now().UTC(), "released on shutdown")
			return
		}
		if time.Since(waitStart) > 10*time.Millisecond {
			metrics.IncRateLimited(string(name))
		}
		q.execute(ctx, job, h, slot)
	}
}

func (q *Queue) execute(ctx context.Context, job *model.Job, h Handler, slot int) {
	ctx = logging.WithJobID(ctx, job.ID)
	ctx = logging.WithFlow(ctx, string(job.Name))
	ctx = logging.WithPipelineID(ctx, job.Payload.PipelineID)
	ctx, span := telemetry.Tracer().Start(ctx, "job "+job.Name.Short(), trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.flow", string(job.Name)),
		attribute.Int("job.attempt", job.Attempts),
	))
	defer span.End()
	log := logging.With(ctx, q.log)

	start := time.Now()
	err := runTask(ctx, func(ctx context.Context) error { return h(ctx, job) })
	ms := time.Since(start).Milliseconds()
	// outcome writes must land even when the consumer is shutting down
	bg := context.WithoutCancel(ctx)
	now := q.now().UTC()

	var outcome string
	switch {
	case err == nil:
		outcome = "completed"
		err = q.jobs.Complete(bg, job.ID, q.workerID, now)
	case errors.Is(err, domain.ErrDeferred), errors.Is(err, domain.ErrFlowDisabled):
		outcome = "deferred"
		log.Info().Str("reason", err.Error()).Msg("job deferred")
		err = q.jobs.Defer(bg, job.ID, q.workerID, now.Add(q.cfg.DeferDelay), err.Error())
	case domain.IsPermanent(err):
		outcome = "failed"
		span.SetStatus(codes.Error, err.Error())
		log.Error().Err(err).Int("attempt", job.Attempts).Msg("job failed permanently")
		err = q.jobs.Fail(bg, job.ID, q.workerID, err.Error(), now)
	case job.Exhausted():
		outcome = "exhausted"
		span.SetStatus(codes.Error, err.Error())
		log.Error().Err(err).Int("attempt", job.Attempts).Msg("job exhausted its attempts")
		if q.exhausted != nil {
			if herr := q.exhausted(bg, job, err); herr != nil {
				log.Error().Err(herr).Msg("exhaustion hook failed")
			}
		}
		err = q.jobs.Fail(bg, job.ID, q.workerID, err.Error(), now)
	default:
		outcome = "retried"
		delay := job.Backoff()
		log.Warn().Err(err).Int("attempt", job.Attempts).Dur("backoff", delay).Msg("job failed, retrying")
		metrics.IncJobRetry(string(job.Name))
		err = q.jobs.Retry(bg, job.ID, q.workerID, now.Add(delay), err.Error())
	}
	metrics.ObserveJob(string(job.Name), outcome, ms)
	if errors.Is(err, domain.ErrConflict) {
		log.Warn().Str("outcome", outcome).Msg("lease lost before outcome was recorded")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("outcome", outcome).Msg("could not record job outcome")
		return
	}
	log.Info().Str("outcome", outcome).Int64("duration_ms", ms).Int("slot", slot).Msg("job finished")
}

// ReapExpired returns jobs whose lease ran out to the queue. A job that
// crashed or hung on its last attempt is failed and goes through the
// exhaustion hook like any other exhausted job.
func (q *Queue) ReapExpired(ctx context.Context) (int, int, error) {
	requeued, failed, err := q.jobs.RequeueExpired(ctx, q.now().UTC())
	if err != nil {
		return 0, 0, err
	}
	metrics.AddJobsReaped(requeued, len(failed))
	for _, job := range failed {
		jctx := logging.WithJobID(logging.WithFlow(ctx, string(job.Name)), job.ID)
		log := logging.With(jctx, q.log)
		log.Error().Int("attempt", job.Attempts).Msg("lease expired on the last attempt")
		metrics.ObserveJob(string(job.Name), "exhausted", 0)
		if q.exhausted == nil {
			continue
		}
		if herr := q.exhausted(jctx, job, ErrLeaseExpired); herr != nil {
			log.Error().Err(herr).Msg("exhaustion hook failed")
		}
	}
	return requeued, len(failed), nil
}

// PurgeFinished deletes completed and failed jobs older than the retention window.
func (q *Queue) PurgeFinished(ctx context.Context) (int, error) {
	n, err := q.jobs.PurgeFinished(ctx, q.now().UTC().Add(-q.cfg.Retention))
	if err != nil {
		return 0, err
	}
	metrics.AddJobsPurged(n)
	return n, nil
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = time.Second
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
