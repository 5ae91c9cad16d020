package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
)

// Task is one unit of fire-and-forget background work.
type Task func(ctx context.Context) error

var (
	ErrPoolFull    = errors.New("worker pool queue full")
	ErrPoolStopped = errors.New("worker pool stopped")
)

// Pool runs tasks on a fixed set of goroutines, notification delivery being
// the main user. Submit never blocks. Stop closes intake and drains what is
// already queued.
type Pool struct {
	size  int
	tasks chan Task
	wg    sync.WaitGroup
	log   *zerolog.Logger

	mu      sync.RWMutex
	stopped bool
}

func NewPool(size int, logger *zerolog.Logger) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	l := logger.With().Str("component", "Pool").Logger()
	return &Pool{size: size, tasks: make(chan Task, size*8), log: &l}
}

// Start launches the workers. Tasks receive ctx.
func (p *Pool) Start(ctx context.Context) {
	for i := range p.size {
		p.wg.Add(1)
		go p.work(ctx, i)
	}
}

func (p *Pool) work(ctx context.Context, id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		if err := runTask(ctx, task); err != nil {
			p.log.Warn().Err(err).Int("worker", id).Msg("background task failed")
		}
	}
}

// Submit queues task, or returns ErrPoolFull when the buffer is saturated.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errors.New("worker: nil task")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrPoolFull
	}
}

// Stop is idempotent. It returns once every queued task has run.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.tasks)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func runTask(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(ctx)
}
