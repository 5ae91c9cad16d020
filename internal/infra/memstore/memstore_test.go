//go:build !integration

package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/repository"
)

func TestJobRepo_ClaimLifecycle(t *testing.T) {
	ctx := context.Background()
	r := NewJobRepo()
	now := time.Now().UTC()

	low := model.NewJob(model.FlowBidEvaluation, model.JobPayload{EnquiryID: "e1"}, model.JobOptions{}, now)
	high := model.NewJob(model.FlowBidEvaluation, model.JobPayload{EnquiryID: "e2"}, model.JobOptions{Priority: 5}, now)
	later := model.NewJob(model.FlowBidEvaluation, model.JobPayload{EnquiryID: "e3"}, model.JobOptions{Priority: 9, Delay: time.Hour}, now)
	for _, j := range []*model.Job{low, high, later} {
		require.NoError(t, r.Insert(ctx, repository.NoTX, j))
	}

	got, err := r.Claim(ctx, model.FlowBidEvaluation, "w1", time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, high.ID, got.ID)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, model.JobStatusActive, got.Status)

	assert.ErrorIs(t, r.Complete(ctx, got.ID, "other", now), domain.ErrConflict)
	require.NoError(t, r.Defer(ctx, got.ID, "w1", now, "waiting for bids"))
	again, err := r.FindByID(ctx, repository.NoTX, got.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Attempts, "deferral must not spend an attempt")

	_, err = r.Claim(ctx, model.FlowEnquiryIntake, "w1", time.Minute, now)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestJobRepo_RequeueExpired(t *testing.T) {
	ctx := context.Background()
	r := NewJobRepo()
	now := time.Now().UTC()
	a := model.NewJob(model.FlowEnquiryIntake, model.JobPayload{EnquiryID: "a"}, model.JobOptions{MaxAttempts: 1}, now)
	b := model.NewJob(model.FlowEnquiryIntake, model.JobPayload{EnquiryID: "b"}, model.JobOptions{MaxAttempts: 3}, now.Add(time.Second))
	require.NoError(t, r.Insert(ctx, nil, a))
	require.NoError(t, r.Insert(ctx, nil, b))
	_, err := r.Claim(ctx, model.FlowEnquiryIntake, "w", time.Second, now)
	require.NoError(t, err)
	_, err = r.Claim(ctx, model.FlowEnquiryIntake, "w", time.Second, now.Add(time.Second))
	require.NoError(t, err)

	requeued, failed, err := r.RequeueExpired(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)
	require.Len(t, failed, 1)
	assert.Equal(t, a.ID, failed[0].ID)
	assert.Equal(t, model.JobStatusFailed, failed[0].Status)
}

func TestCostRepo_ReserveIsAtomic(t *testing.T) {
	ctx := context.Background()
	r := NewCostRepo()
	now := time.Now().UTC()

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := model.NewCostRecord(model.TaskQuoteContent, "p", "m", 10, now)
			if _, err := r.Reserve(ctx, rec, 95); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 9, admitted)
	spent, err := r.SpentSince(ctx, nil, model.DayStart(now))
	require.NoError(t, err)
	assert.LessOrEqual(t, spent, int64(95))
}

func TestReviewRepo_DedupeAndOptimisticUpdate(t *testing.T) {
	ctx := context.Background()
	r := NewReviewRepo()
	task := model.NewReviewTask(model.TaskBidEvaluator, model.ReasonLowConfidence, model.EntityRef{Type: model.EntityEnquiry, ID: "e"}, "p1", model.FlowBidEvaluation, "select_winner")
	got, created, err := r.Create(ctx, nil, task)
	require.NoError(t, err)
	assert.True(t, created)

	dup := model.NewReviewTask(model.TaskBidEvaluator, model.ReasonLowConfidence, task.Entity, "p1", model.FlowBidEvaluation, "select_winner")
	again, created, err := r.Create(ctx, nil, dup)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, got.ID, again.ID)

	upd := *got
	upd.Status = model.ReviewInReview
	upd.Version = 2
	require.NoError(t, r.Update(ctx, nil, &upd, model.ReviewPending, 1))
	assert.ErrorIs(t, r.Update(ctx, nil, &upd, model.ReviewPending, 1), domain.ErrConflict)
}

func TestTxManager_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	st := New()
	now := time.Now().UTC()
	require.NoError(t, st.Enquiries.Save(ctx, nil, &model.Enquiry{ID: "e1", Status: model.EnquirySentToSuppliers, Version: 1}))
	task := model.NewReviewTask(model.TaskBidEvaluator, model.ReasonLowConfidence, model.EntityRef{Type: model.EntityEnquiry, ID: "e1"}, "p1", model.FlowBidEvaluation, "select_winner")
	_, _, err := st.Reviews.Create(ctx, nil, task)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = st.Tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		require.NoError(t, st.Enquiries.CompareAndSetStatus(ctx, tx, "e1", model.EnquirySentToSuppliers, model.EnquiryBidsComplete))
		upd, err := st.Reviews.FindByID(ctx, tx, task.ID)
		require.NoError(t, err)
		upd.Status = model.ReviewResolved
		upd.Version++
		require.NoError(t, st.Reviews.Update(ctx, tx, upd, model.ReviewPending, 1))
		require.NoError(t, st.Jobs.Insert(ctx, tx, &model.Job{ID: "j1", Name: model.FlowBidEvaluation, Status: model.JobStatusWaiting, RunAt: now}))
		ok, err := st.Decisions.Append(ctx, tx, &model.AiDecisionLog{PipelineID: "p1", Step: "select_winner", Action: model.ActionOverridden})
		require.NoError(t, err)
		require.True(t, ok)
		return boom
	})
	require.ErrorIs(t, err, boom)

	e, err := st.Enquiries.FindByID(ctx, nil, "e1")
	require.NoError(t, err)
	assert.Equal(t, model.EnquirySentToSuppliers, e.Status)
	assert.Equal(t, 1, e.Version)
	got, err := st.Reviews.FindByID(ctx, nil, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewPending, got.Status)
	_, err = st.Jobs.FindByID(ctx, nil, "j1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = st.Decisions.Find(ctx, nil, "p1", "select_winner", model.ActionOverridden)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// a committed transaction keeps its writes
	require.NoError(t, st.Tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return st.Enquiries.CompareAndSetStatus(ctx, tx, "e1", model.EnquirySentToSuppliers, model.EnquiryBidsComplete)
	}))
	e, err = st.Enquiries.FindByID(ctx, nil, "e1")
	require.NoError(t, err)
	assert.Equal(t, model.EnquiryBidsComplete, e.Status)
}

func TestRateLimiter_HardCeiling(t *testing.T) {
	l := NewRateLimiter()
	base := time.Unix(1_700_000_000, 0)
	clock := base
	l.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		assert.Zero(t, l.admit("q", 3, time.Minute))
	}
	wait := l.admit("q", 3, time.Minute)
	assert.Greater(t, wait, 59*time.Second)

	clock = base.Add(time.Minute + time.Millisecond)
	assert.Zero(t, l.admit("q", 3, time.Minute))
}

func TestRateLimiter_WaitHonoursContext(t *testing.T) {
	l := NewRateLimiter()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, l.Wait(ctx, "k", 1, time.Hour))
	assert.ErrorIs(t, l.Wait(ctx, "k", 1, time.Hour), context.DeadlineExceeded)
}

func TestLocker(t *testing.T) {
	ctx := context.Background()
	l := NewLocker()
	tok, ok, err := l.TryLock(ctx, "reaper", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, _ = l.TryLock(ctx, "reaper", time.Minute)
	assert.False(t, ok)
	require.NoError(t, l.Unlock(ctx, "reaper", tok))
	_, ok, _ = l.TryLock(ctx, "reaper", time.Minute)
	assert.True(t, ok)
}
