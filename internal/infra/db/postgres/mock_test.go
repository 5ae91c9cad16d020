//go:build !integration

package postgres

import (
	"context"
	"sync"
	"time"

	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/repository"
	red "coachhire-ai/internal/infra/redis"
)

type mockInnerPricingRepo struct {
	CreateFunc         func(ctx context.Context, tx repository.Tx, p *model.ModelPricing) error
	UpdateFunc         func(ctx context.Context, tx repository.Tx, p *model.ModelPricing) error
	GetByModelNameFunc func(ctx context.Context, tx repository.Tx, name string) (*model.ModelPricing, error)
	ListActiveFunc     func(ctx context.Context, tx repository.Tx) ([]*model.ModelPricing, error)
}

func (m *mockInnerPricingRepo) Create(ctx context.Context, tx repository.Tx, p *model.ModelPricing) error {
	return m.CreateFunc(ctx, tx, p)
}
func (m *mockInnerPricingRepo) Update(ctx context.Context, tx repository.Tx, p *model.ModelPricing) error {
	return m.UpdateFunc(ctx, tx, p)
}
func (m *mockInnerPricingRepo) GetByModelName(ctx context.Context, tx repository.Tx, name string) (*model.ModelPricing, error) {
	return m.GetByModelNameFunc(ctx, tx, name)
}
func (m *mockInnerPricingRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.ModelPricing, error) {
	return m.ListActiveFunc(ctx, tx)
}

type mockInnerConfigRepo struct {
	GetFunc  func(ctx context.Context, tx repository.Tx, key string) (*model.AiConfigEntry, error)
	PutFunc  func(ctx context.Context, tx repository.Tx, e *model.AiConfigEntry) error
	ListFunc func(ctx context.Context, tx repository.Tx) ([]*model.AiConfigEntry, error)
}

func (m *mockInnerConfigRepo) Get(ctx context.Context, tx repository.Tx, key string) (*model.AiConfigEntry, error) {
	return m.GetFunc(ctx, tx, key)
}
func (m *mockInnerConfigRepo) Put(ctx context.Context, tx repository.Tx, e *model.AiConfigEntry) error {
	return m.PutFunc(ctx, tx, e)
}
func (m *mockInnerConfigRepo) List(ctx context.Context, tx repository.Tx) ([]*model.AiConfigEntry, error) {
	return m.ListFunc(ctx, tx)
}

// memRedis is a map-backed red.Cache that records deletes.
type memRedis struct {
	mu      sync.Mutex
	data    map[string]string
	deleted []string
	GetErr  error
}

var _ red.Cache = (*memRedis)(nil)

func newMemRedis() *memRedis { return &memRedis{data: map[string]string{}} }

func (m *memRedis) Set(_ context.Context, key string, val []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = string(val)
	return nil
}

func (m *memRedis) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, red.ErrCacheMiss
	}
	return []byte(v), nil
}

func (m *memRedis) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
		m.deleted = append(m.deleted, k)
	}
	return nil
}
