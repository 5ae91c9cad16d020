package repository

import (
	"context"
	"time"

	"coachhire-ai/internal/domain/model"
)

type JobFilter struct {
	Name   model.FlowName
	Status model.JobStatus
	Limit  int
}

type JobRepository interface {
	Insert(ctx context.Context, tx Tx, job *model.Job) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Job, error)
	List(ctx context.Context, tx Tx, f JobFilter) ([]*model.Job, error)

	// Claim atomically picks the next due waiting job of the given name, marks it
	// active under a lease and counts the attempt. Returns domain.ErrNotFound when idle.
	Claim(ctx context.Context, name model.FlowName, workerID string, lease time.Duration, now time.Time) (*model.Job, error)

	// The following require the job to still be active and leased by workerID.
	Complete(ctx context.Context, id, workerID string, now time.Time) error
	Retry(ctx context.Context, id, workerID string, runAt time.Time, lastErr string) error
	Fail(ctx context.Context, id, workerID string, lastErr string, now time.Time) error
	// Defer returns the job to waiting without spending the attempt.
	Defer(ctx context.Context, id, workerID string, runAt time.Time, reason string) error

	// RequeueExpired recovers active jobs whose lease ran out. Jobs with no
	// attempt left are failed and returned so the caller can escalate them.
	RequeueExpired(ctx context.Context, now time.Time) (requeued int, failed []*model.Job, err error)
	// PurgeFinished deletes completed and failed jobs finished before cutoff.
	PurgeFinished(ctx context.Context, before time.Time) (int, error)
}
