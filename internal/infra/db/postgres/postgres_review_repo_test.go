//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/repository"
)

func TestReviewRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	repo := NewReviewRepo(testPool)
	ctx := context.Background()
	entity := model.EntityRef{Type: model.EntityEnquiry, ID: "enq-1"}

	t.Run("create is idempotent per dedupe key", func(t *testing.T) {
		cleanup(t)
		first := model.NewReviewTask(model.TaskEnquiryAnalyzer, model.ReasonLowConfidence, entity, "pipe-1", model.FlowEnquiryIntake, "analyze")
		first.Detail = json.RawMessage(`{"confidence":0.4}`)
		got, created, err := repo.Create(ctx, nil, first)
		if err != nil || !created {
			t.Fatalf("expected created, got %v %v", created, err)
		}
		if string(got.Detail) != `{"confidence": 0.4}` && string(got.Detail) != `{"confidence":0.4}` {
			t.Fatalf("detail did not round-trip: %s", got.Detail)
		}

		dup := model.NewReviewTask(model.TaskEnquiryAnalyzer, model.ReasonAIFailure, entity, "pipe-1", model.FlowEnquiryIntake, "analyze")
		got, created, err = repo.Create(ctx, nil, dup)
		if err != nil || created {
			t.Fatalf("expected the existing task, got %v %v", created, err)
		}
		if got.ID != first.ID || got.Reason != model.ReasonLowConfidence {
			t.Fatalf("expected the first task back, got %+v", got)
		}
	})

	t.Run("update is optimistic", func(t *testing.T) {
		cleanup(t)
		task := model.NewReviewTask(model.TaskBidEvaluator, model.ReasonAnomalousPricing, entity, "pipe-2", model.FlowBidEvaluation, "evaluate")
		_, _, _ = repo.Create(ctx, nil, task)

		claimed := *task
		claimed.Status = model.ReviewInReview
		claimed.AssignedTo = "ops@example.com"
		claimed.Version = 2
		if err := repo.Update(ctx, nil, &claimed, model.ReviewPending, 1); err != nil {
			t.Fatalf("update: %v", err)
		}

		stale := *task
		stale.Status = model.ReviewDismissed
		stale.Version = 2
		if err := repo.Update(ctx, nil, &stale, model.ReviewPending, 1); !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
		missing := *task
		missing.ID = "nope"
		if err := repo.Update(ctx, nil, &missing, model.ReviewPending, 1); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		resolved := claimed
		now := time.Now().UTC()
		resolved.Status = model.ReviewResolved
		resolved.ResolvedBy = "ops@example.com"
		resolved.ResolvedAt = &now
		resolved.Override = json.RawMessage(`{"markupPercent":18}`)
		resolved.Version = 3
		if err := repo.Update(ctx, nil, &resolved, model.ReviewInReview, 2); err != nil {
			t.Fatalf("resolve: %v", err)
		}
		got, _ := repo.FindByDedupeKey(ctx, nil, task.DedupeKey)
		if got.Status != model.ReviewResolved || got.Version != 3 || got.ResolvedAt == nil || len(got.Override) == 0 {
			t.Fatalf("unexpected stored task %+v", got)
		}
	})

	t.Run("list filters by status", func(t *testing.T) {
		cleanup(t)
		for i, step := range []string{"a", "b", "c"} {
			task := model.NewReviewTask(model.TaskQuoteContent, model.ReasonLowConfidence, entity, "pipe-3", model.FlowQuoteGeneration, step)
			if i == 2 {
				task.Status = model.ReviewDismissed
			}
			_, _, _ = repo.Create(ctx, nil, task)
		}
		pending, err := repo.List(ctx, nil, repository.ReviewFilter{Status: model.ReviewPending})
		if err != nil || len(pending) != 2 {
			t.Fatalf("expected 2 pending, got %d %v", len(pending), err)
		}
		limited, _ := repo.List(ctx, nil, repository.ReviewFilter{Limit: 1})
		if len(limited) != 1 {
			t.Fatalf("expected limit 1, got %d", len(limited))
		}
	})
}
