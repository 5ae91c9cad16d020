//go:build integration

package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
)

func TestCostRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	repo := NewCostRepo(testPool, NewTxManager(testPool))
	ctx := context.Background()
	now := time.Now().UTC()
	day := model.DayStart(now)

	t.Run("concurrent reservations never overshoot the ceiling", func(t *testing.T) {
		cleanup(t)
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			allowed int
		)
		for i := 0; i < 30; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				rec := model.NewCostRecord(model.TaskQuoteContent, "p", "gpt-4o-mini", 100_000, now)
				if _, err := repo.Reserve(ctx, rec, 800_000); err == nil {
					mu.Lock()
					allowed++
					mu.Unlock()
				} else if !errors.Is(err, domain.ErrBudgetExceeded) {
					t.Errorf("unexpected error %v", err)
				}
			}()
		}
		wg.Wait()
		if allowed != 8 {
			t.Fatalf("expected 8 reservations, got %d", allowed)
		}
		spent, err := repo.SpentSince(ctx, nil, day)
		if err != nil || spent != 800_000 {
			t.Fatalf("expected 800000 spent, got %d %v", spent, err)
		}
	})

	t.Run("negative ceiling always reserves", func(t *testing.T) {
		cleanup(t)
		rec := model.NewCostRecord(model.TaskEmailParser, "p", "m", 5_000_000, now)
		before, err := repo.Reserve(ctx, rec, -1)
		if err != nil || before != 0 {
			t.Fatalf("expected a free reservation, got %d %v", before, err)
		}
	})

	t.Run("settle replaces the estimate", func(t *testing.T) {
		cleanup(t)
		rec := model.NewCostRecord(model.TaskBidEvaluator, "p", "m", 1_000, now)
		_, _ = repo.Reserve(ctx, rec, -1)
		other := model.NewCostRecord(model.TaskQuoteContent, "p", "m", 500, now)
		_, _ = repo.Reserve(ctx, other, -1)
		if err := repo.Settle(ctx, rec.ID, 250); err != nil {
			t.Fatalf("settle: %v", err)
		}
		spent, _ := repo.SpentSince(ctx, nil, day)
		if spent != 750 {
			t.Fatalf("expected 750, got %d", spent)
		}
		byTask, _ := repo.SpentByTaskSince(ctx, nil, day)
		if byTask[model.TaskBidEvaluator] != 250 || byTask[model.TaskQuoteContent] != 500 {
			t.Fatalf("unexpected breakdown %v", byTask)
		}
		if err := repo.Settle(ctx, "missing", 1); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}
