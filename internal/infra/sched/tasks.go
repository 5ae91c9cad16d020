package sched

import (
	"context"

	"coachhire-ai/internal/config"
)

type LeaseReaper interface {
	ReapExpired(ctx context.Context) (requeued, failed int, err error)
}

type JobPurger interface {
	PurgeFinished(ctx context.Context) (int, error)
}

type BidExpirer interface {
	ExpireOverdueBids(ctx context.Context) (int, error)
}

// Housekeeping registers the worker's standard periodic tasks. stats may be nil
// when there is no connection pool to report on.
func Housekeeping(s *Scheduler, cfg config.SchedulerConfig, reaper LeaseReaper, purger JobPurger, bids BidExpirer, stats func()) {
	s.Add(Task{
		Name:     "lease-reaper",
		Interval: cfg.LeaseReapInterval,
		Leader:   true,
		Run: func(ctx context.Context) (int, error) {
			requeued, failed, err := reaper.ReapExpired(ctx)
			return requeued + failed, err
		},
	})
	s.Add(Task{
		Name:     "retention-janitor",
		Interval: cfg.RetentionInterval,
		Leader:   true,
		Run:      purger.PurgeFinished,
	})
	s.Add(Task{
		Name:     "bid-expiry",
		Interval: cfg.BidExpiryInterval,
		Leader:   true,
		Run:      bids.ExpireOverdueBids,
	})
	if stats != nil {
		s.Add(Task{
			Name:     "db-stats",
			Interval: cfg.DBStatsInterval,
			Run: func(context.Context) (int, error) {
				stats()
				return 0, nil
			},
		})
	}
}
