package sched

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"coachhire-ai/internal/domain/ports/repository"
)

// TaskFunc does one round of housekeeping and reports how many items it touched.
type TaskFunc func(ctx context.Context) (int, error)

// Task is one periodic housekeeping job. Leader tasks run on a single worker
// process at a time, guarded by a lock held for the duration of the round.
type Task struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Leader   bool
	Run      TaskFunc
}

// Scheduler ticks every registered task on its own interval.
type Scheduler struct {
	tasks  []Task
	locker repository.Locker
	log    *zerolog.Logger
	wg     sync.WaitGroup
}

func NewScheduler(locker repository.Locker, logger *zerolog.Logger) *Scheduler {
	l := logger.With().Str("component", "Scheduler").Logger()
	return &Scheduler{locker: locker, log: &l}
}

func (s *Scheduler) Add(t Task) {
	if t.Interval <= 0 {
		t.Interval = time.Minute
	}
	if t.Timeout <= 0 || t.Timeout > t.Interval {
		t.Timeout = t.Interval
	}
	s.tasks = append(s.tasks, t)
}

// Start launches one goroutine per task; they stop when ctx ends.
func (s *Scheduler) Start(ctx context.Context) {
	for _, t := range s.tasks {
		s.wg.Add(1)
		go func(t Task) {
			defer s.wg.Done()
			s.loop(ctx, t)
		}(t)
	}
}

// Wait blocks until every task loop has returned.
func (s *Scheduler) Wait() { s.wg.Wait() }

func (s *Scheduler) loop(ctx context.Context, t Task) {
	log := s.log.With().Str("task", t.Name).Logger()
	log.Info().Dur("interval", t.Interval).Bool("leader", t.Leader).Msg("Starting scheduled task")
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Stopping scheduled task")
			return
		case <-ticker.C:
			n, ran, err := s.RunOnce(ctx, t)
			switch {
			case err != nil:
				log.Error().Err(err).Msg("scheduled task error")
			case !ran:
				log.Debug().Msg("another worker holds the lock")
			case n > 0:
				log.Info().Int("count", n).Msg("scheduled task done")
			}
		}
	}
}

// RunOnce runs a single round of t. ran is false when a leader task's lock is
// held elsewhere.
func (s *Scheduler) RunOnce(ctx context.Context, t Task) (n int, ran bool, err error) {
	if t.Leader && s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, "sched:"+t.Name, t.Interval)
		if err != nil {
			return 0, false, fmt.Errorf("lock %s: %w", t.Name, err)
		}
		if !ok {
			return 0, false, nil
		}
		defer func() {
			// the round may have been cut short by ctx; release on a fresh context
			uctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if uerr := s.locker.Unlock(uctx, "sched:"+t.Name, token); uerr != nil {
				s.log.Warn().Err(uerr).Str("task", t.Name).Msg("unlock failed")
			}
		}()
	}
	runCtx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()
	n, err = t.Run(runCtx)
	return n, true, err
}
