package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/repository"
)

// PricingUseCase is the admin surface over model prices. Cost Guard reads the
// same rows through Inference to estimate and bill calls.
type PricingUseCase interface {
	List(ctx context.Context) ([]*model.ModelPricing, error)
	Get(ctx context.Context, modelName string) (*model.ModelPricing, error)
	// Create fails with ErrAlreadyExists while the model has an active price.
	Create(ctx context.Context, modelName string, inputPer1K, outputPer1K int64, expectedOutput int) (*model.ModelPricing, error)
	Update(ctx context.Context, modelName string, change PriceChange) (*model.ModelPricing, error)
	// Delete retires the active price. Retiring twice is not an error.
	Delete(ctx context.Context, modelName string) error
	// EnsureDefaults prices the built-in models that were never priced and
	// reports how many rows it added.
	EnsureDefaults(ctx context.Context) (int, error)
}

// PriceChange is a partial update; nil fields keep their current value.
type PriceChange struct {
	InputPer1KMicros     *int64
	OutputPer1KMicros    *int64
	ExpectedOutputTokens *int
}

func (c PriceChange) apply(p *model.ModelPricing) error {
	if c.InputPer1KMicros != nil {
		p.InputPer1KMicros = *c.InputPer1KMicros
	}
	if c.OutputPer1KMicros != nil {
		p.OutputPer1KMicros = *c.OutputPer1KMicros
	}
	if c.ExpectedOutputTokens != nil {
		p.ExpectedOutputTokens = *c.ExpectedOutputTokens
	}
	return validPrice(p)
}

func validPrice(p *model.ModelPricing) error {
	if p.ModelName == "" || p.InputPer1KMicros < 0 || p.OutputPer1KMicros < 0 || p.ExpectedOutputTokens < 0 {
		return fmt.Errorf("%w: model name required and prices must not be negative", domain.ErrInvalidArgument)
	}
	return nil
}

// DefaultModelPricing is the list price, in micro-USD per 1K tokens, of the
// models the worker ships configured for.
func DefaultModelPricing() []*model.ModelPricing {
	return []*model.ModelPricing{
		model.NewModelPricing("gpt-4o-mini", 150, 600, 400, true),
		model.NewModelPricing("gpt-4o", 2500, 10000, 400, true),
		model.NewModelPricing("gemini-2.0-flash", 100, 400, 400, true),
		model.NewModelPricing("fake", 0, 0, 0, true),
	}
}

type pricingUC struct {
	prices repository.ModelPricingRepository
	log    *zerolog.Logger
}

var _ PricingUseCase = (*pricingUC)(nil)

func NewPricingUseCase(prices repository.ModelPricingRepository, logger *zerolog.Logger) PricingUseCase {
	l := logger.With().Str("component", "Pricing").Logger()
	return &pricingUC{prices: prices, log: &l}
}

func modelKey(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func (uc *pricingUC) List(ctx context.Context) ([]*model.ModelPricing, error) {
	return uc.prices.ListActive(ctx, repository.NoTX)
}

func (uc *pricingUC) Get(ctx context.Context, modelName string) (*model.ModelPricing, error) {
	return uc.prices.GetByModelName(ctx, repository.NoTX, modelKey(modelName))
}

func (uc *pricingUC) Create(ctx context.Context, modelName string, inputPer1K, outputPer1K int64, expectedOutput int) (*model.ModelPricing, error) {
	p := model.NewModelPricing(modelKey(modelName), inputPer1K, outputPer1K, expectedOutput, true)
	if err := validPrice(p); err != nil {
		return nil, err
	}
	switch cur, err := uc.Get(ctx, p.ModelName); {
	case err == nil && cur.Active:
		return nil, domain.ErrAlreadyExists
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}
	if err := uc.prices.Create(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}
	uc.log.Info().Str("model", p.ModelName).Int64("input_per_1k", inputPer1K).Int64("output_per_1k", outputPer1K).Msg("model priced")
	return p, nil
}

func (uc *pricingUC) Update(ctx context.Context, modelName string, change PriceChange) (*model.ModelPricing, error) {
	p, err := uc.Get(ctx, modelName)
	if err != nil {
		return nil, err
	}
	if err := change.apply(p); err != nil {
		return nil, err
	}
	if err := uc.prices.Update(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}
	uc.log.Info().Str("model", p.ModelName).Int64("input_per_1k", p.InputPer1KMicros).Int64("output_per_1k", p.OutputPer1KMicros).Msg("model price changed")
	return p, nil
}

func (uc *pricingUC) Delete(ctx context.Context, modelName string) error {
	p, err := uc.Get(ctx, modelName)
	if err != nil || !p.Active {
		return err
	}
	p.Active = false
	if err := uc.prices.Update(ctx, repository.NoTX, p); err != nil {
		return err
	}
	uc.log.Info().Str("model", p.ModelName).Msg("model price retired")
	return nil
}

func (uc *pricingUC) EnsureDefaults(ctx context.Context) (int, error) {
	added := 0
	for _, p := range DefaultModelPricing() {
		_, err := uc.prices.GetByModelName(ctx, repository.NoTX, p.ModelName)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return added, err
		}
		if err := uc.prices.Create(ctx, repository.NoTX, p); err != nil {
			return added, fmt.Errorf("price %s: %w", p.ModelName, err)
		}
		added++
	}
	return added, nil
}
