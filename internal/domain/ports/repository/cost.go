package repository

import (
	"context"
	"time"

	"coachhire-ai/internal/domain/model"
)

type CostRepository interface {
	// Reserve records rec only when the day's spend plus rec.CostMicros stays at or
	// below ceilingMicros (a negative ceiling disables the check). The check and the
	// write are atomic across workers. Returns the spend before the reservation and
	// domain.ErrBudgetExceeded when refused.
	Reserve(ctx context.Context, rec *model.AiCostRecord, ceilingMicros int64) (int64, error)
	// Settle replaces a reservation's amount with the actual cost.
	Settle(ctx context.Context, id string, actualMicros int64) error
	SpentSince(ctx context.Context, tx Tx, since time.Time) (int64, error)
	SpentByTaskSince(ctx context.Context, tx Tx, since time.Time) (map[model.TaskType]int64, error)
}
