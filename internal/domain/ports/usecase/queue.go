package usecase

import (
	"context"

	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/repository"
)

// Enqueuer is the producer side of the job queue.
type Enqueuer interface {
	// Enqueue persists a waiting job (inside tx when given) and never blocks on
	// consumers. Storage failures surface as domain.ErrQueueUnavailable.
	Enqueue(ctx context.Context, tx repository.Tx, name model.FlowName, payload model.JobPayload, opts *model.JobOptions) (*model.Job, error)
}
