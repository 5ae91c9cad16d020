//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"

	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
)

func TestModelPricingRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	repo := NewModelPricingRepo(testPool)
	ctx := context.Background()

	t.Run("should create and find model pricing", func(t *testing.T) {
		cleanup(t)

		p := model.NewModelPricing("gpt-4o-mini", 150, 600, 400, true)
		if err := repo.Create(ctx, nil, p); err != nil {
			t.Fatalf("Failed to create new pricing: %v", err)
		}
		found, err := repo.GetByModelName(ctx, nil, "GPT-4o-mini")
		if err != nil {
			t.Fatalf("GetByModelName failed: %v", err)
		}
		if found.InputPer1KMicros != 150 || found.ExpectedOutputTokens != 400 {
			t.Errorf("unexpected pricing %+v", found)
		}
	})

	t.Run("should refuse a second active row for the same model", func(t *testing.T) {
		cleanup(t)

		_ = repo.Create(ctx, nil, model.NewModelPricing("gpt-4o", 2500, 10000, 400, true))
		err := repo.Create(ctx, nil, model.NewModelPricing("gpt-4o", 1, 1, 1, true))
		if !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("should update and soft delete", func(t *testing.T) {
		cleanup(t)

		p := model.NewModelPricing("gpt-4o", 100, 400, 300, true)
		_ = repo.Create(ctx, nil, p)
		p.InputPer1KMicros = 120
		if err := repo.Update(ctx, nil, p); err != nil {
			t.Fatalf("Failed to update pricing: %v", err)
		}
		got, _ := repo.GetByModelName(ctx, nil, "gpt-4o")
		if got == nil || got.InputPer1KMicros != 120 {
			t.Fatal("Pricing record was not updated correctly")
		}

		p.Active = false
		_ = repo.Update(ctx, nil, p)
		retired, err := repo.GetByModelName(ctx, nil, "gpt-4o")
		if err != nil || retired.Active {
			t.Fatalf("a retired row should stay readable and inactive, got %+v %v", retired, err)
		}
		list, _ := repo.ListActive(ctx, nil)
		if len(list) != 0 {
			t.Fatalf("expected no active pricing, got %d", len(list))
		}
		if err := repo.Create(ctx, nil, model.NewModelPricing("gpt-4o", 90, 300, 300, true)); err != nil {
			t.Fatalf("re-create after soft delete: %v", err)
		}
		current, err := repo.GetByModelName(ctx, nil, "gpt-4o")
		if err != nil || !current.Active || current.InputPer1KMicros != 90 {
			t.Fatalf("the active row should win over the retired one, got %+v %v", current, err)
		}
	})

	t.Run("update of a missing row", func(t *testing.T) {
		cleanup(t)
		err := repo.Update(ctx, nil, model.NewModelPricing("ghost", 1, 1, 1, true))
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}
