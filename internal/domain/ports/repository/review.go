package repository

import (
	"context"

	"coachhire-ai/internal/domain/model"
)

type ReviewFilter struct {
	Status model.ReviewStatus
	Reason model.ReviewReason
	Limit  int
}

type ReviewTaskRepository interface {
	// Create inserts t unless a task with the same dedupe key exists, in which
	// case the existing task is returned with created=false.
	Create(ctx context.Context, tx Tx, t *model.HumanReviewTask) (*model.HumanReviewTask, bool, error)
	FindByID(ctx context.Context, tx Tx, id string) (*model.HumanReviewTask, error)
	FindByDedupeKey(ctx context.Context, tx Tx, key string) (*model.HumanReviewTask, error)
	List(ctx context.Context, tx Tx, f ReviewFilter) ([]*model.HumanReviewTask, error)
	// Update persists t only if the stored row still has fromStatus and fromVersion.
	// Returns domain.ErrConflict otherwise.
	Update(ctx context.Context, tx Tx, t *model.HumanReviewTask, fromStatus model.ReviewStatus, fromVersion int) error
}
