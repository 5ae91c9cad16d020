//go:build !integration

package usecase_test

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/adapter"
	"coachhire-ai/internal/domain/ports/repository"
	"coachhire-ai/internal/domain/ports/usecase"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// =============================
// Transactions
// =============================

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately without a real transaction unless overridden.
func (m *MockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, fn)
	}
	return fn(ctx, nil)
}

// =============================
// Review tasks
// =============================

type MockReviewRepo struct {
	mu    sync.Mutex
	byID  map[string]*model.HumanReviewTask
	byKey map[string]string

	CreateFunc func(ctx context.Context, t *model.HumanReviewTask) (*model.HumanReviewTask, bool, error)
	UpdateFunc func(ctx context.Context, t *model.HumanReviewTask, from model.ReviewStatus, version int) error
}

var _ repository.ReviewTaskRepository = (*MockReviewRepo)(nil)

func NewMockReviewRepo() *MockReviewRepo {
	return &MockReviewRepo{byID: map[string]*model.HumanReviewTask{}, byKey: map[string]string{}}
}

func (r *MockReviewRepo) Create(ctx context.Context, _ repository.Tx, t *model.HumanReviewTask) (*model.HumanReviewTask, bool, error) {
	if r.CreateFunc != nil {
		return r.CreateFunc(ctx, t)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byKey[t.DedupeKey]; ok {
		cp := *r.byID[id]
		return &cp, false, nil
	}
	cp := *t
	r.byID[t.ID] = &cp
	r.byKey[t.DedupeKey] = t.ID
	out := cp
	return &out, true, nil
}

func (r *MockReviewRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.HumanReviewTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *MockReviewRepo) FindByDedupeKey(ctx context.Context, tx repository.Tx, key string) (*model.HumanReviewTask, error) {
	r.mu.Lock()
	id, ok := r.byKey[key]
	r.mu.Unlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.FindByID(ctx, tx, id)
}

func (r *MockReviewRepo) List(_ context.Context, _ repository.Tx, f repository.ReviewFilter) ([]*model.HumanReviewTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.HumanReviewTask, 0)
	for _, t := range r.byID {
		if (f.Status == "" || t.Status == f.Status) && (f.Reason == "" || t.Reason == f.Reason) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MockReviewRepo) Update(ctx context.Context, _ repository.Tx, t *model.HumanReviewTask, from model.ReviewStatus, version int) error {
	if r.UpdateFunc != nil {
		if err := r.UpdateFunc(ctx, t, from, version); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[t.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Status != from || cur.Version != version {
		return domain.ErrConflict
	}
	cp := *t
	r.byID[t.ID] = &cp
	return nil
}

// =============================
// Queue and notifications
// =============================

type MockEnqueuer struct {
	mu   sync.Mutex
	Jobs []*model.Job

	EnqueueFunc func(ctx context.Context, name model.FlowName, payload model.JobPayload) (*model.Job, error)
}

var _ usecase.Enqueuer = (*MockEnqueuer)(nil)

func (m *MockEnqueuer) Enqueue(ctx context.Context, _ repository.Tx, name model.FlowName, payload model.JobPayload, _ *model.JobOptions) (*model.Job, error) {
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(ctx, name, payload)
	}
	if err := model.ValidatePayload(name, payload); err != nil {
		return nil, err
	}
	j := model.NewJob(name, payload, model.JobOptions{}, time.Now())
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Jobs = append(m.Jobs, j)
	return j, nil
}

func (m *MockEnqueuer) Count(name model.FlowName) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, j := range m.Jobs {
		if j.Name == name {
			n++
		}
	}
	return n
}

type MockNotifier struct {
	mu   sync.Mutex
	Sent []adapter.Notification

	NotifyFunc func(ctx context.Context, n adapter.Notification) error
}

var _ adapter.Notifier = (*MockNotifier)(nil)

func (m *MockNotifier) Notify(ctx context.Context, n adapter.Notification) error {
	if m.NotifyFunc != nil {
		return m.NotifyFunc(ctx, n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, n)
	return nil
}
