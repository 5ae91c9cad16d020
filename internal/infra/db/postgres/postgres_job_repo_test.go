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
	"coachhire-ai/internal/domain/ports/repository"
)

func TestJobRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	repo := NewJobRepo(testPool, NewTxManager(testPool))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("claim honours priority and run_at", func(t *testing.T) {
		cleanup(t)
		low := model.NewJob(model.FlowEnquiryIntake, model.JobPayload{InboundEmailID: "m-1"}, model.JobOptions{}, now)
		high := model.NewJob(model.FlowEnquiryIntake, model.JobPayload{InboundEmailID: "m-2"}, model.JobOptions{Priority: 5}, now)
		later := model.NewJob(model.FlowEnquiryIntake, model.JobPayload{InboundEmailID: "m-3"}, model.JobOptions{Priority: 9, Delay: time.Hour}, now)
		for _, j := range []*model.Job{low, high, later} {
			if err := repo.Insert(ctx, nil, j); err != nil {
				t.Fatalf("insert: %v", err)
			}
		}

		got, err := repo.Claim(ctx, model.FlowEnquiryIntake, "w1", time.Minute, now)
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		if got.ID != high.ID || got.Status != model.JobStatusActive || got.Attempts != 1 || got.LockedBy != "w1" {
			t.Fatalf("unexpected claim %+v", got)
		}
		if got.Payload.InboundEmailID != "m-2" || got.Payload.PipelineID != high.Payload.PipelineID {
			t.Fatalf("payload did not round-trip: %+v", got.Payload)
		}
		if got.BackoffBase != high.BackoffBase {
			t.Fatalf("backoff did not round-trip: %v", got.BackoffBase)
		}
		got, _ = repo.Claim(ctx, model.FlowEnquiryIntake, "w1", time.Minute, now)
		if got.ID != low.ID {
			t.Fatalf("expected the low priority job next, got %s", got.ID)
		}
		if _, err := repo.Claim(ctx, model.FlowEnquiryIntake, "w1", time.Minute, now); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("delayed job must not be claimable yet, got %v", err)
		}
	})

	t.Run("concurrent claims never share a job", func(t *testing.T) {
		cleanup(t)
		const jobs = 20
		for i := 0; i < jobs; i++ {
			_ = repo.Insert(ctx, nil, model.NewJob(model.FlowBidEvaluation, model.JobPayload{EnquiryID: "e"}, model.JobOptions{}, now))
		}
		var (
			mu   sync.Mutex
			seen = map[string]int{}
			wg   sync.WaitGroup
		)
		for w := 0; w < 5; w++ {
			wg.Add(1)
			go func(worker string) {
				defer wg.Done()
				for {
					j, err := repo.Claim(ctx, model.FlowBidEvaluation, worker, time.Minute, now)
					if err != nil {
						return
					}
					mu.Lock()
					seen[j.ID]++
					mu.Unlock()
				}
			}(string(rune('a' + w)))
		}
		wg.Wait()
		if len(seen) != jobs {
			t.Fatalf("expected %d distinct claims, got %d", jobs, len(seen))
		}
		for id, n := range seen {
			if n != 1 {
				t.Fatalf("job %s claimed %d times", id, n)
			}
		}
	})

	t.Run("only the lease holder may finish", func(t *testing.T) {
		cleanup(t)
		j := model.NewJob(model.FlowQuoteGeneration, model.JobPayload{EnquiryID: "e"}, model.JobOptions{}, now)
		_ = repo.Insert(ctx, nil, j)
		_, _ = repo.Claim(ctx, model.FlowQuoteGeneration, "owner", time.Minute, now)

		if err := repo.Complete(ctx, j.ID, "intruder", now); !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
		if err := repo.Complete(ctx, "missing", "owner", now); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := repo.Complete(ctx, j.ID, "owner", now); err != nil {
			t.Fatalf("complete: %v", err)
		}
		got, _ := repo.FindByID(ctx, nil, j.ID)
		if got.Status != model.JobStatusCompleted || got.FinishedAt == nil || got.LockedBy != "" {
			t.Fatalf("unexpected job after complete %+v", got)
		}
	})

	t.Run("defer gives the attempt back", func(t *testing.T) {
		cleanup(t)
		j := model.NewJob(model.FlowJobConfirmation, model.JobPayload{BookingID: "b"}, model.JobOptions{}, now)
		_ = repo.Insert(ctx, nil, j)
		_, _ = repo.Claim(ctx, model.FlowJobConfirmation, "w", time.Minute, now)
		if err := repo.Defer(ctx, j.ID, "w", now.Add(time.Minute), "budget paused"); err != nil {
			t.Fatalf("defer: %v", err)
		}
		got, _ := repo.FindByID(ctx, nil, j.ID)
		if got.Attempts != 0 || got.Status != model.JobStatusWaiting || got.LastError != "budget paused" {
			t.Fatalf("unexpected job after defer %+v", got)
		}
	})

	t.Run("retry then fail", func(t *testing.T) {
		cleanup(t)
		j := model.NewJob(model.FlowEnquiryIntake, model.JobPayload{InboundEmailID: "m"}, model.JobOptions{MaxAttempts: 2}, now)
		_ = repo.Insert(ctx, nil, j)
		_, _ = repo.Claim(ctx, model.FlowEnquiryIntake, "w", time.Minute, now)
		if err := repo.Retry(ctx, j.ID, "w", now, "provider timeout"); err != nil {
			t.Fatalf("retry: %v", err)
		}
		_, _ = repo.Claim(ctx, model.FlowEnquiryIntake, "w", time.Minute, now)
		if err := repo.Fail(ctx, j.ID, "w", "provider timeout", now); err != nil {
			t.Fatalf("fail: %v", err)
		}
		failed, _ := repo.List(ctx, nil, repository.JobFilter{Status: model.JobStatusFailed})
		if len(failed) != 1 || failed[0].Attempts != 2 {
			t.Fatalf("unexpected failed list %+v", failed)
		}
	})

	t.Run("expired leases are requeued or failed", func(t *testing.T) {
		cleanup(t)
		spare := model.NewJob(model.FlowBidEvaluation, model.JobPayload{EnquiryID: "a"}, model.JobOptions{MaxAttempts: 3}, now)
		last := model.NewJob(model.FlowEnquiryIntake, model.JobPayload{InboundEmailID: "b"}, model.JobOptions{MaxAttempts: 1}, now)
		_ = repo.Insert(ctx, nil, spare)
		_ = repo.Insert(ctx, nil, last)
		_, _ = repo.Claim(ctx, model.FlowBidEvaluation, "dead", time.Second, now)
		_, _ = repo.Claim(ctx, model.FlowEnquiryIntake, "dead", time.Second, now)

		requeued, failed, err := repo.RequeueExpired(ctx, now.Add(time.Minute))
		if err != nil {
			t.Fatalf("requeue: %v", err)
		}
		if requeued != 1 || len(failed) != 1 {
			t.Fatalf("expected 1 requeued and 1 failed, got %d and %d", requeued, len(failed))
		}
		if failed[0].ID != last.ID || failed[0].Payload.InboundEmailID != "b" {
			t.Fatalf("the failed job should come back with its payload, got %+v", failed[0])
		}
		got, _ := repo.FindByID(ctx, nil, spare.ID)
		if got.Status != model.JobStatusWaiting {
			t.Fatalf("expected waiting, got %s", got.Status)
		}

		n, err := repo.PurgeFinished(ctx, now.Add(2*time.Minute))
		if err != nil || n != 1 {
			t.Fatalf("expected one purged job, got %d %v", n, err)
		}
	})
}
