package repository

import (
	"context"

	"coachhire-ai/internal/domain/model"
)

type AiConfigRepository interface {
	Get(ctx context.Context, tx Tx, key string) (*model.AiConfigEntry, error)
	// Put writes the value and bumps the version (last write wins).
	Put(ctx context.Context, tx Tx, e *model.AiConfigEntry) error
	List(ctx context.Context, tx Tx) ([]*model.AiConfigEntry, error)
}
