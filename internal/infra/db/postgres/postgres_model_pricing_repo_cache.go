package postgres

import (
	"context"
	"strings"
	"time"

	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/repository"
	red "coachhire-ai/internal/infra/redis"
)

var _ repository.ModelPricingRepository = (*cachedModelPricingRepo)(nil)

const activePricingKey = "model_pricing:active"

func pricingKey(name string) string { return "model_pricing:" + strings.ToLower(name) }

// cachedModelPricingRepo serves the per-call price lookups of Inference from
// Redis. Writes go to Postgres first and then drop the row and the active
// list, so a reader racing the write cannot re-cache the old row for long.
type cachedModelPricingRepo struct {
	repository.ModelPricingRepository
	byName *red.ReadThrough[*model.ModelPricing]
	active *red.ReadThrough[[]*model.ModelPricing]
}

func NewModelPricingRepoCacheDecorator(inner repository.ModelPricingRepository, cache red.Cache, ttl time.Duration) repository.ModelPricingRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &cachedModelPricingRepo{
		ModelPricingRepository: inner,
		byName:                 red.NewReadThrough[*model.ModelPricing](cache, "model_pricing", ttl),
		active:                 red.NewReadThrough[[]*model.ModelPricing](cache, "model_pricing_list", ttl),
	}
}

func (r *cachedModelPricingRepo) GetByModelName(ctx context.Context, tx repository.Tx, name string) (*model.ModelPricing, error) {
	if tx != nil {
		return r.ModelPricingRepository.GetByModelName(ctx, tx, name)
	}
	return r.byName.Load(ctx, pricingKey(name), func(ctx context.Context) (*model.ModelPricing, error) {
		return r.ModelPricingRepository.GetByModelName(ctx, tx, name)
	})
}

func (r *cachedModelPricingRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.ModelPricing, error) {
	if tx != nil {
		return r.ModelPricingRepository.ListActive(ctx, tx)
	}
	return r.active.Load(ctx, activePricingKey, func(ctx context.Context) ([]*model.ModelPricing, error) {
		return r.ModelPricingRepository.ListActive(ctx, tx)
	})
}

func (r *cachedModelPricingRepo) Create(ctx context.Context, tx repository.Tx, p *model.ModelPricing) error {
	if err := r.ModelPricingRepository.Create(ctx, tx, p); err != nil {
		return err
	}
	r.byName.Drop(ctx, pricingKey(p.ModelName), activePricingKey)
	return nil
}

func (r *cachedModelPricingRepo) Update(ctx context.Context, tx repository.Tx, p *model.ModelPricing) error {
	if err := r.ModelPricingRepository.Update(ctx, tx, p); err != nil {
		return err
	}
	r.byName.Drop(ctx, pricingKey(p.ModelName), activePricingKey)
	return nil
}
