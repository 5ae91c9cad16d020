package repository

import (
	"context"

	"coachhire-ai/internal/domain/model"
)

// ModelPricingRepository stores per-model token prices. Model names match
// case-insensitively; deactivated rows stay readable by name so historical
// cost records keep resolving.
type ModelPricingRepository interface {
	GetByModelName(ctx context.Context, tx Tx, name string) (*model.ModelPricing, error)
	Create(ctx context.Context, tx Tx, p *model.ModelPricing) error
	Update(ctx context.Context, tx Tx, p *model.ModelPricing) error
	ListActive(ctx context.Context, tx Tx) ([]*model.ModelPricing, error)
}
