package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
)

// FlowRunner executes one flow for one job.
type FlowRunner interface {
	Run(ctx context.Context, job *model.Job) error
	HandleExhausted(ctx context.Context, job *model.Job, cause error) error
}

// Dispatcher maps the closed set of job names onto the runner. It is the only
// executor of pipeline work and holds no state of its own.
type Dispatcher struct {
	queue    *Queue
	handlers map[model.FlowName]Handler
	log      *zerolog.Logger
}

func NewDispatcher(q *Queue, runner FlowRunner, logger *zerolog.Logger) *Dispatcher {
	l := logger.With().Str("component", "Dispatcher").Logger()
	d := &Dispatcher{queue: q, handlers: make(map[model.FlowName]Handler, len(model.Flows)), log: &l}
	for _, f := range model.Flows {
		d.handlers[f] = runner.Run
	}
	q.OnExhausted(runner.HandleExhausted)
	return d
}

func (d *Dispatcher) Handle(ctx context.Context, job *model.Job) error {
	h, ok := d.handlers[job.Name]
	if !ok {
		return domain.Permanent(fmt.Errorf("%w: %q", domain.ErrUnknownFlow, job.Name))
	}
	return h(ctx, job)
}

// Start runs one consumer per job name and blocks until ctx is cancelled and
// every consumer has drained.
func (d *Dispatcher) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, f := range model.Flows {
		fc := d.queue.cfg.For(string(f))
		d.log.Info().Str("flow", string(f)).Int("concurrency", fc.Concurrency).
			Int("rate_limit", fc.RateLimit).Dur("rate_window", fc.RateWindow).Msg("starting consumer")
		wg.Add(1)
		go func(f model.FlowName) {
			defer wg.Done()
			d.queue.Consume(ctx, f, d.Handle, fc)
		}(f)
	}
	wg.Wait()
}
