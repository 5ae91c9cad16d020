package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/repository"
)

type DecisionLogRepo struct {
	mu      sync.Mutex
	entries []*model.AiDecisionLog
	keys    map[string]struct{}
}

var _ repository.DecisionLogRepository = (*DecisionLogRepo)(nil)

func NewDecisionLogRepo() *DecisionLogRepo {
	return &DecisionLogRepo{keys: map[string]struct{}{}}
}

func decisionKey(pipelineID, step string, a model.DecisionAction) string {
	return pipelineID + "|" + step + "|" + string(a)
}

func (r *DecisionLogRepo) Append(_ context.Context, tx repository.Tx, e *model.AiDecisionLog) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := decisionKey(e.PipelineID, e.Step, e.Action)
	if _, dup := r.keys[k]; dup {
		return false, nil
	}
	r.keys[k] = struct{}{}
	cp := *e
	r.entries = append(r.entries, &cp)
	onRollback(tx, func() { r.remove(k, &cp) })
	return true, nil
}

func (r *DecisionLogRepo) remove(k string, e *model.AiDecisionLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.keys, k)
	for i, cur := range r.entries {
		if cur == e {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}

func (r *DecisionLogRepo) Find(_ context.Context, _ repository.Tx, pipelineID, step string, a model.DecisionAction) (*model.AiDecisionLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.PipelineID == pipelineID && e.Step == step && e.Action == a {
			cp := *e
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *DecisionLogRepo) ListByPipeline(_ context.Context, _ repository.Tx, pipelineID string) ([]*model.AiDecisionLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.AiDecisionLog, 0)
	for _, e := range r.entries {
		if e.PipelineID == pipelineID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// CostRepo serialises Reserve under one mutex, which is the in-process
// equivalent of the daily counter row lock.
type CostRepo struct {
	mu      sync.Mutex
	records map[string]*model.AiCostRecord
}

var _ repository.CostRepository = (*CostRepo)(nil)

func NewCostRepo() *CostRepo { return &CostRepo{records: map[string]*model.AiCostRecord{}} }

func (r *CostRepo) spent(since time.Time) int64 {
	var sum int64
	for _, rec := range r.records {
		if !rec.CreatedAt.Before(since) {
			sum += rec.CostMicros
		}
	}
	return sum
}

func (r *CostRepo) Reserve(_ context.Context, rec *model.AiCostRecord, ceiling int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	before := r.spent(model.DayStart(rec.CreatedAt))
	if ceiling >= 0 && (before >= ceiling || before+rec.CostMicros > ceiling) {
		return before, domain.ErrBudgetExceeded
	}
	cp := *rec
	r.records[rec.ID] = &cp
	return before, nil
}

func (r *CostRepo) Settle(_ context.Context, id string, actual int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	rec.CostMicros = actual
	rec.Settled = true
	return nil
}

func (r *CostRepo) SpentSince(_ context.Context, _ repository.Tx, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spent(since), nil
}

func (r *CostRepo) SpentByTaskSince(_ context.Context, _ repository.Tx, since time.Time) (map[model.TaskType]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[model.TaskType]int64{}
	for _, rec := range r.records {
		if !rec.CreatedAt.Before(since) {
			out[rec.TaskType] += rec.CostMicros
		}
	}
	return out, nil
}

type ReviewRepo struct {
	mu    sync.Mutex
	byID  map[string]*model.HumanReviewTask
	byKey map[string]string
}

var _ repository.ReviewTaskRepository = (*ReviewRepo)(nil)

func NewReviewRepo() *ReviewRepo {
	return &ReviewRepo{byID: map[string]*model.HumanReviewTask{}, byKey: map[string]string{}}
}

func cloneReview(t *model.HumanReviewTask) *model.HumanReviewTask {
	cp := *t
	if t.ResolvedAt != nil {
		ts := *t.ResolvedAt
		cp.ResolvedAt = &ts
	}
	return &cp
}

func (r *ReviewRepo) Create(_ context.Context, tx repository.Tx, t *model.HumanReviewTask) (*model.HumanReviewTask, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byKey[t.DedupeKey]; ok {
		return cloneReview(r.byID[id]), false, nil
	}
	onRollback(tx, restoreEntry(&r.mu, r.byKey, t.DedupeKey))
	onRollback(tx, restoreEntry(&r.mu, r.byID, t.ID))
	r.byID[t.ID] = cloneReview(t)
	r.byKey[t.DedupeKey] = t.ID
	return cloneReview(t), true, nil
}

func (r *ReviewRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.HumanReviewTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneReview(t), nil
}

func (r *ReviewRepo) FindByDedupeKey(_ context.Context, _ repository.Tx, key string) (*model.HumanReviewTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byKey[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneReview(r.byID[id]), nil
}

func (r *ReviewRepo) List(_ context.Context, _ repository.Tx, f repository.ReviewFilter) ([]*model.HumanReviewTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.HumanReviewTask, 0)
	for _, t := range r.byID {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Reason != "" && t.Reason != f.Reason {
			continue
		}
		out = append(out, cloneReview(t))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *ReviewRepo) Update(_ context.Context, tx repository.Tx, t *model.HumanReviewTask, from model.ReviewStatus, version int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[t.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Status != from || cur.Version != version {
		return domain.ErrConflict
	}
	onRollback(tx, restoreEntry(&r.mu, r.byID, t.ID))
	r.byID[t.ID] = cloneReview(t)
	return nil
}

type AiConfigRepo struct {
	mu      sync.Mutex
	entries map[string]*model.AiConfigEntry
}

var _ repository.AiConfigRepository = (*AiConfigRepo)(nil)

func NewAiConfigRepo() *AiConfigRepo { return &AiConfigRepo{entries: map[string]*model.AiConfigEntry{}} }

func (r *AiConfigRepo) Get(_ context.Context, _ repository.Tx, key string) (*model.AiConfigEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

// Put is last-write-wins and bumps the version.
func (r *AiConfigRepo) Put(_ context.Context, tx repository.Tx, e *model.AiConfigEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	onRollback(tx, restoreEntry(&r.mu, r.entries, e.Key))
	e.Version = 1
	if cur, ok := r.entries[e.Key]; ok {
		e.Version = cur.Version + 1
	}
	cp := *e
	r.entries[e.Key] = &cp
	return nil
}

func (r *AiConfigRepo) List(_ context.Context, _ repository.Tx) ([]*model.AiConfigEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.AiConfigEntry, 0, len(r.entries))
	for _, e := range r.entries {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Key < out[b].Key })
	return out, nil
}

type ModelPricingRepo struct {
	mu      sync.Mutex
	byModel map[string]*model.ModelPricing
}

var _ repository.ModelPricingRepository = (*ModelPricingRepo)(nil)

func NewModelPricingRepo() *ModelPricingRepo {
	return &ModelPricingRepo{byModel: map[string]*model.ModelPricing{}}
}

func (r *ModelPricingRepo) GetByModelName(_ context.Context, _ repository.Tx, name string) (*model.ModelPricing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byModel[strings.ToLower(name)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *ModelPricingRepo) Create(_ context.Context, tx repository.Tx, p *model.ModelPricing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := strings.ToLower(p.ModelName)
	if cur, ok := r.byModel[k]; ok && cur.Active {
		return domain.ErrAlreadyExists
	}
	onRollback(tx, restoreEntry(&r.mu, r.byModel, k))
	cp := *p
	r.byModel[k] = &cp
	return nil
}

func (r *ModelPricingRepo) Update(_ context.Context, tx repository.Tx, p *model.ModelPricing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := strings.ToLower(p.ModelName)
	if _, ok := r.byModel[k]; !ok {
		return domain.ErrNotFound
	}
	onRollback(tx, restoreEntry(&r.mu, r.byModel, k))
	cp := *p
	cp.UpdatedAt = time.Now()
	r.byModel[k] = &cp
	return nil
}

func (r *ModelPricingRepo) ListActive(_ context.Context, _ repository.Tx) ([]*model.ModelPricing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.ModelPricing, 0)
	for _, p := range r.byModel {
		if p.Active {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ModelName < out[b].ModelName })
	return out, nil
}
