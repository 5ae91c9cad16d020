//go:build !integration

package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coachhire-ai/internal/config"
	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/repository"
	"coachhire-ai/internal/infra/memstore"
)

func testQueue(t *testing.T) (*Queue, *memstore.JobRepo) {
	t.Helper()
	jobs := memstore.NewJobRepo()
	log := zerolog.Nop()
	cfg := config.QueueConfig{
		PollInterval: 2 * time.Millisecond,
		Lease:        time.Minute,
		DeferDelay:   5 * time.Millisecond,
		Retention:    time.Hour,
		Defaults: config.FlowQueueConfig{
			Concurrency: 2,
			MaxAttempts: 3,
			BackoffBase: time.Millisecond,
		},
	}
	return NewQueue(jobs, memstore.NewRateLimiter(), cfg, &log), jobs
}

func consume(t *testing.T, q *Queue, name model.FlowName, h Handler, fc config.FlowQueueConfig) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Consume(ctx, name, h, fc)
		close(done)
	}()
	return func() {
		cancel()
		<-done
	}
}

func waitStatus(t *testing.T, jobs *memstore.JobRepo, id string, want model.JobStatus) *model.Job {
	t.Helper()
	var got *model.Job
	require.Eventually(t, func() bool {
		j, err := jobs.FindByID(context.Background(), repository.NoTX, id)
		if err != nil {
			return false
		}
		got = j
		return j.Status == want
	}, 2*time.Second, 2*time.Millisecond)
	return got
}

func TestEnqueue_Validation(t *testing.T) {
	q, _ := testQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, nil, "flow9:unknown", model.JobPayload{EnquiryID: "e"}, nil)
	assert.ErrorIs(t, err, domain.ErrUnknownFlow)
	assert.True(t, domain.IsPermanent(err))

	_, err = q.Enqueue(ctx, nil, model.FlowBidEvaluation, model.JobPayload{}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)

	job, err := q.Enqueue(ctx, nil, "quote-generation", model.JobPayload{EnquiryID: "e", SupplierQuoteID: "sq"}, nil)
	require.NoError(t, err)
	assert.Equal(t, model.FlowQuoteGeneration, job.Name)
	assert.NotEmpty(t, job.Payload.PipelineID)
	assert.Equal(t, 3, job.MaxAttempts)
}

type brokenJobs struct{ repository.JobRepository }

func (brokenJobs) Insert(context.Context, repository.Tx, *model.Job) error {
	return errors.New("connection refused")
}

func TestEnqueue_StorageFailureIsQueueUnavailable(t *testing.T) {
	log := zerolog.Nop()
	q := NewQueue(brokenJobs{}, memstore.NewRateLimiter(), config.QueueConfig{}, &log)
	_, err := q.Enqueue(context.Background(), nil, model.FlowBidEvaluation, model.JobPayload{EnquiryID: "e"}, nil)
	assert.ErrorIs(t, err, domain.ErrQueueUnavailable)
}

func TestConsume_RetriesWithBackoffThenCompletes(t *testing.T) {
	q, jobs := testQueue(t)
	job, err := q.Enqueue(context.Background(), nil, model.FlowBidEvaluation, model.JobPayload{EnquiryID: "e"}, nil)
	require.NoError(t, err)

	var calls int32
	stop := consume(t, q, model.FlowBidEvaluation, func(ctx context.Context, j *model.Job) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			return domain.ErrProviderTimeout
		}
		return nil
	}, q.cfg.For(string(model.FlowBidEvaluation)))
	defer stop()

	got := waitStatus(t, jobs, job.ID, model.JobStatusCompleted)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestConsume_ExhaustionRunsHookOnceAndFails(t *testing.T) {
	q, jobs := testQueue(t)
	var hooked int32
	q.OnExhausted(func(ctx context.Context, j *model.Job, cause error) error {
		atomic.AddInt32(&hooked, 1)
		assert.ErrorIs(t, cause, domain.ErrProviderTimeout)
		return nil
	})
	job, err := q.Enqueue(context.Background(), nil, model.FlowEnquiryIntake, model.JobPayload{EnquiryID: "e"}, nil)
	require.NoError(t, err)

	stop := consume(t, q, model.FlowEnquiryIntake, func(ctx context.Context, j *model.Job) error {
		return domain.ErrProviderTimeout
	}, q.cfg.For(string(model.FlowEnquiryIntake)))
	defer stop()

	got := waitStatus(t, jobs, job.ID, model.JobStatusFailed)
	assert.Equal(t, 3, got.Attempts)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hooked))
}

func TestConsume_PermanentErrorFailsWithoutRetry(t *testing.T) {
	q, jobs := testQueue(t)
	var hooked int32
	q.OnExhausted(func(context.Context, *model.Job, error) error { atomic.AddInt32(&hooked, 1); return nil })
	job, err := q.Enqueue(context.Background(), nil, model.FlowEnquiryIntake, model.JobPayload{EnquiryID: "e"}, nil)
	require.NoError(t, err)

	stop := consume(t, q, model.FlowEnquiryIntake, func(ctx context.Context, j *model.Job) error {
		return domain.NewConfigError("supplier_selection_weights", "weights sum to 90")
	}, q.cfg.For(string(model.FlowEnquiryIntake)))
	defer stop()

	got := waitStatus(t, jobs, job.ID, model.JobStatusFailed)
	assert.Equal(t, 1, got.Attempts)
	assert.Zero(t, atomic.LoadInt32(&hooked))
}

func TestConsume_DeferDoesNotSpendAttempts(t *testing.T) {
	q, jobs := testQueue(t)
	job, err := q.Enqueue(context.Background(), nil, model.FlowBidEvaluation, model.JobPayload{EnquiryID: "e"}, nil)
	require.NoError(t, err)

	var calls int32
	stop := consume(t, q, model.FlowBidEvaluation, func(ctx context.Context, j *model.Job) error {
		if atomic.AddInt32(&calls, 1) <= 4 {
			return domain.ErrDeferred
		}
		return nil
	}, q.cfg.For(string(model.FlowBidEvaluation)))
	defer stop()

	got := waitStatus(t, jobs, job.ID, model.JobStatusCompleted)
	assert.Equal(t, 1, got.Attempts)
}

func TestConsume_PanicIsRetryable(t *testing.T) {
	q, jobs := testQueue(t)
	job, err := q.Enqueue(context.Background(), nil, model.FlowBidEvaluation, model.JobPayload{EnquiryID: "e"}, nil)
	require.NoError(t, err)

	var calls int32
	stop := consume(t, q, model.FlowBidEvaluation, func(ctx context.Context, j *model.Job) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			panic("boom")
		}
		return nil
	}, q.cfg.For(string(model.FlowBidEvaluation)))
	defer stop()

	waitStatus(t, jobs, job.ID, model.JobStatusCompleted)
}

func TestConsume_ConcurrencyCeiling(t *testing.T) {
	q, jobs := testQueue(t)
	var ids []string
	for i := 0; i < 8; i++ {
		j, err := q.Enqueue(context.Background(), nil, model.FlowJobConfirmation, model.JobPayload{BookingID: "b"}, nil)
		require.NoError(t, err)
		ids = append(ids, j.ID)
	}

	var running, peak int32
	stop := consume(t, q, model.FlowJobConfirmation, func(ctx context.Context, j *model.Job) error {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	}, config.FlowQueueConfig{Concurrency: 2})
	defer stop()

	for _, id := range ids {
		waitStatus(t, jobs, id, model.JobStatusCompleted)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestConsume_RateLimitIsHardCeiling(t *testing.T) {
	q, jobs := testQueue(t)
	var ids []string
	for i := 0; i < 3; i++ {
		j, err := q.Enqueue(context.Background(), nil, model.FlowQuoteGeneration, model.JobPayload{EnquiryID: "e", SupplierQuoteID: "sq"}, nil)
		require.NoError(t, err)
		ids = append(ids, j.ID)
	}

	var mu sync.Mutex
	var starts []time.Time
	window := 150 * time.Millisecond
	stop := consume(t, q, model.FlowQuoteGeneration, func(ctx context.Context, j *model.Job) error {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		return nil
	}, config.FlowQueueConfig{Concurrency: 3, RateLimit: 2, RateWindow: window})
	defer stop()

	for _, id := range ids {
		waitStatus(t, jobs, id, model.JobStatusCompleted)
	}
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, starts, 3)
	first, last := starts[0], starts[0]
	for _, s := range starts {
		if s.Before(first) {
			first = s
		}
		if s.After(last) {
			last = s
		}
	}
	assert.GreaterOrEqual(t, last.Sub(first), window-10*time.Millisecond)
}

type toggle struct{ on atomic.Bool }

func (g *toggle) FlowEnabled(context.Context, model.FlowName) (bool, error) { return g.on.Load(), nil }

func TestConsume_DisabledFlowIsNotClaimed(t *testing.T) {
	q, jobs := testQueue(t)
	g := &toggle{}
	q.SetGate(g)
	job, err := q.Enqueue(context.Background(), nil, model.FlowEnquiryIntake, model.JobPayload{EnquiryID: "e"}, nil)
	require.NoError(t, err)

	stop := consume(t, q, model.FlowEnquiryIntake, func(context.Context, *model.Job) error { return nil },
		q.cfg.For(string(model.FlowEnquiryIntake)))
	defer stop()

	time.Sleep(30 * time.Millisecond)
	got, err := jobs.FindByID(context.Background(), nil, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusWaiting, got.Status)
	assert.Zero(t, got.Attempts)

	g.on.Store(true)
	waitStatus(t, jobs, job.ID, model.JobStatusCompleted)
}

func TestReapAndPurge(t *testing.T) {
	q, jobs := testQueue(t)
	ctx := context.Background()
	job, err := q.Enqueue(ctx, nil, model.FlowBidEvaluation, model.JobPayload{EnquiryID: "e"}, nil)
	require.NoError(t, err)
	_, err = jobs.Claim(ctx, model.FlowBidEvaluation, "dead-worker", -time.Second, time.Now().UTC())
	require.NoError(t, err)

	requeued, failed, err := q.ReapExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)
	assert.Zero(t, failed)

	got, _ := jobs.FindByID(ctx, nil, job.ID)
	assert.Equal(t, model.JobStatusWaiting, got.Status)

	n, err := q.PurgeFinished(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReapExpired_LastAttemptRunsExhaustionHook(t *testing.T) {
	q, jobs := testQueue(t)
	ctx := context.Background()
	var (
		mu     sync.Mutex
		hooked []string
	)
	q.OnExhausted(func(_ context.Context, j *model.Job, cause error) error {
		mu.Lock()
		defer mu.Unlock()
		assert.ErrorIs(t, cause, ErrLeaseExpired)
		assert.Equal(t, "e-last", j.Payload.EnquiryID)
		hooked = append(hooked, j.ID)
		return nil
	})
	last, err := q.Enqueue(ctx, nil, model.FlowBidEvaluation, model.JobPayload{EnquiryID: "e-last"}, &model.JobOptions{MaxAttempts: 1})
	require.NoError(t, err)
	_, err = jobs.Claim(ctx, model.FlowBidEvaluation, "dead-worker", -time.Second, time.Now().UTC())
	require.NoError(t, err)

	requeued, failed, err := q.ReapExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, requeued)
	assert.Equal(t, 1, failed)

	got, _ := jobs.FindByID(ctx, nil, last.ID)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{last.ID}, hooked)

	// a second sweep finds nothing and must not escalate again
	_, failed, err = q.ReapExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, failed)
	assert.Len(t, hooked, 1)
}
