package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/repository"
)

type JobRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
}

var _ repository.JobRepository = (*JobRepo)(nil)

func NewJobRepo() *JobRepo { return &JobRepo{jobs: map[string]*model.Job{}} }

func cloneJob(j *model.Job) *model.Job {
	cp := *j
	if j.LockedUntil != nil {
		t := *j.LockedUntil
		cp.LockedUntil = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}

func (r *JobRepo) Insert(_ context.Context, tx repository.Tx, j *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[j.ID]; ok {
		return domain.ErrAlreadyExists
	}
	onRollback(tx, restoreEntry(&r.mu, r.jobs, j.ID))
	r.jobs[j.ID] = cloneJob(j)
	return nil
}

func (r *JobRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneJob(j), nil
}

func (r *JobRepo) List(_ context.Context, _ repository.Tx, f repository.JobFilter) ([]*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Job, 0)
	for _, j := range r.jobs {
		if f.Name != "" && j.Name != f.Name {
			continue
		}
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		out = append(out, cloneJob(j))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Claim picks the due waiting job with the highest priority, then the earliest run time.
func (r *JobRepo) Claim(_ context.Context, name model.FlowName, workerID string, lease time.Duration, now time.Time) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pick *model.Job
	for _, j := range r.jobs {
		if j.Name != name || j.Status != model.JobStatusWaiting || j.RunAt.After(now) {
			continue
		}
		if pick == nil || j.Priority > pick.Priority ||
			(j.Priority == pick.Priority && j.RunAt.Before(pick.RunAt)) ||
			(j.Priority == pick.Priority && j.RunAt.Equal(pick.RunAt) && j.CreatedAt.Before(pick.CreatedAt)) {
			pick = j
		}
	}
	if pick == nil {
		return nil, domain.ErrNotFound
	}
	until := now.Add(lease)
	pick.Status = model.JobStatusActive
	pick.Attempts++
	pick.LockedBy = workerID
	pick.LockedUntil = &until
	pick.UpdatedAt = now
	return cloneJob(pick), nil
}

func (r *JobRepo) owned(id, workerID string) (*model.Job, error) {
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if j.Status != model.JobStatusActive || j.LockedBy != workerID {
		return nil, domain.ErrConflict
	}
	return j, nil
}

func (r *JobRepo) Complete(_ context.Context, id, workerID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, err := r.owned(id, workerID)
	if err != nil {
		return err
	}
	j.Status = model.JobStatusCompleted
	j.LockedBy, j.LockedUntil = "", nil
	j.FinishedAt = &now
	j.UpdatedAt = now
	return nil
}

func (r *JobRepo) Retry(_ context.Context, id, workerID string, runAt time.Time, lastErr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, err := r.owned(id, workerID)
	if err != nil {
		return err
	}
	j.Status = model.JobStatusWaiting
	j.LockedBy, j.LockedUntil = "", nil
	j.RunAt = runAt
	j.LastError = lastErr
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *JobRepo) Fail(_ context.Context, id, workerID string, lastErr string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, err := r.owned(id, workerID)
	if err != nil {
		return err
	}
	j.Status = model.JobStatusFailed
	j.LockedBy, j.LockedUntil = "", nil
	j.LastError = lastErr
	j.FinishedAt = &now
	j.UpdatedAt = now
	return nil
}

// Defer returns the job to waiting without spending the attempt it claimed.
func (r *JobRepo) Defer(_ context.Context, id, workerID string, runAt time.Time, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, err := r.owned(id, workerID)
	if err != nil {
		return err
	}
	j.Status = model.JobStatusWaiting
	j.LockedBy, j.LockedUntil = "", nil
	if j.Attempts > 0 {
		j.Attempts--
	}
	j.RunAt = runAt
	j.LastError = reason
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *JobRepo) RequeueExpired(_ context.Context, now time.Time) (int, []*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	requeued := 0
	var failed []*model.Job
	for _, j := range r.jobs {
		if j.Status != model.JobStatusActive || j.LockedUntil == nil || j.LockedUntil.After(now) {
			continue
		}
		j.LockedBy, j.LockedUntil = "", nil
		j.UpdatedAt = now
		if j.Exhausted() {
			j.Status = model.JobStatusFailed
			j.LastError = "lease expired"
			t := now
			j.FinishedAt = &t
			cp := *j
			failed = append(failed, &cp)
			continue
		}
		j.Status = model.JobStatusWaiting
		j.RunAt = now
		requeued++
	}
	return requeued, failed, nil
}

func (r *JobRepo) PurgeFinished(_ context.Context, before time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, j := range r.jobs {
		if (j.Status == model.JobStatusCompleted || j.Status == model.JobStatusFailed) &&
			j.FinishedAt != nil && j.FinishedAt.Before(before) {
			delete(r.jobs, id)
			n++
		}
	}
	return n, nil
}
