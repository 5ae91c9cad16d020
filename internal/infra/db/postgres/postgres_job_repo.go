package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *jobRepo {
	return &jobRepo{pool: pool, tm: tm}
}

const jobColumns = `id, name, payload, status, attempts, max_attempts, backoff_base_ms, priority,
  run_at, locked_by, locked_until, last_error, created_at, updated_at, finished_at`

func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		j         model.Job
		name      string
		status    string
		payload   []byte
		backoffMs int64
	)
	err := row.Scan(&j.ID, &name, &payload, &status, &j.Attempts, &j.MaxAttempts, &backoffMs, &j.Priority,
		&j.RunAt, &j.LockedBy, &j.LockedUntil, &j.LastError, &j.CreatedAt, &j.UpdatedAt, &j.FinishedAt)
	if err != nil {
		return nil, scanErr(err)
	}
	if err := json.Unmarshal(payload, &j.Payload); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	j.Name = model.FlowName(name)
	j.Status = model.JobStatus(status)
	j.BackoffBase = time.Duration(backoffMs) * time.Millisecond
	return &j, nil
}

func (r *jobRepo) Insert(ctx context.Context, tx repository.Tx, j *model.Job) error {
	payload, err := json.Marshal(j.Payload)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO jobs (` + jobColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15);`
	_, err = execSQL(ctx, r.pool, tx, q,
		j.ID, string(j.Name), payload, string(j.Status), j.Attempts, j.MaxAttempts, j.BackoffBase.Milliseconds(), j.Priority,
		j.RunAt, j.LockedBy, j.LockedUntil, j.LastError, j.CreatedAt, j.UpdatedAt, j.FinishedAt)
	return err
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	row, err := queryRow(ctx, r.pool, tx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *jobRepo) List(ctx context.Context, tx repository.Tx, f repository.JobFilter) ([]*model.Job, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Name != "" {
		args = append(args, string(f.Name))
		where = append(where, fmt.Sprintf("name = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	q := `SELECT ` + jobColumns + ` FROM jobs`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*model.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

// Claim locks one due row with SKIP LOCKED so concurrent workers never pick
// the same job, then marks it active under the lease in the same statement.
func (r *jobRepo) Claim(ctx context.Context, name model.FlowName, workerID string, lease time.Duration, now time.Time) (*model.Job, error) {
	const q = `
UPDATE jobs SET
  status = 'active',
  attempts = attempts + 1,
  locked_by = $2,
  locked_until = $3,
  updated_at = $4
WHERE id = (
  SELECT id FROM jobs
   WHERE name = $1 AND status = 'waiting' AND run_at <= $4
   ORDER BY priority DESC, run_at, created_at
   LIMIT 1
   FOR UPDATE SKIP LOCKED)
RETURNING ` + jobColumns + `;`
	row, err := queryRow(ctx, r.pool, nil, q, string(name), workerID, now.Add(lease), now)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

// finish applies a terminal or retry update to a job this worker still owns.
func (r *jobRepo) finish(ctx context.Context, id, workerID, set string, args ...interface{}) error {
	q := `UPDATE jobs SET ` + set + `, locked_by = '', locked_until = NULL
WHERE id = $1 AND status = 'active' AND locked_by = $2;`
	tag, err := execSQL(ctx, r.pool, nil, q, append([]interface{}{id, workerID}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.FindByID(ctx, nil, id); errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return domain.ErrConflict
	}
	return nil
}

func (r *jobRepo) Complete(ctx context.Context, id, workerID string, now time.Time) error {
	return r.finish(ctx, id, workerID, `status = 'completed', finished_at = $3, updated_at = $3`, now)
}

func (r *jobRepo) Retry(ctx context.Context, id, workerID string, runAt time.Time, lastErr string) error {
	return r.finish(ctx, id, workerID, `status = 'waiting', run_at = $3, last_error = $4, updated_at = now()`, runAt, lastErr)
}

func (r *jobRepo) Fail(ctx context.Context, id, workerID string, lastErr string, now time.Time) error {
	return r.finish(ctx, id, workerID, `status = 'failed', last_error = $3, finished_at = $4, updated_at = $4`, lastErr, now)
}

func (r *jobRepo) Defer(ctx context.Context, id, workerID string, runAt time.Time, reason string) error {
	return r.finish(ctx, id, workerID,
		`status = 'waiting', attempts = GREATEST(attempts - 1, 0), run_at = $3, last_error = $4, updated_at = now()`, runAt, reason)
}

// RequeueExpired runs both updates in one transaction so a row is counted once.
func (r *jobRepo) RequeueExpired(ctx context.Context, now time.Time) (int, []*model.Job, error) {
	var (
		requeued int
		failed   []*model.Job
	)
	err := r.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		failed = nil
		rows, err := queryRows(ctx, r.pool, tx, `
UPDATE jobs SET status = 'failed', last_error = 'lease expired', finished_at = $1, updated_at = $1,
  locked_by = '', locked_until = NULL
WHERE status = 'active' AND locked_until <= $1 AND attempts >= max_attempts
RETURNING `+jobColumns+`;`, now)
		if err != nil {
			return err
		}
		for rows.Next() {
			j, err := scanJob(rows)
			if err != nil {
				rows.Close()
				return err
			}
			failed = append(failed, j)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return mapErr(err)
		}
		tag, err := execSQL(ctx, r.pool, tx, `
UPDATE jobs SET status = 'waiting', run_at = $1, updated_at = $1, locked_by = '', locked_until = NULL
WHERE status = 'active' AND locked_until <= $1;`, now)
		if err != nil {
			return err
		}
		requeued = int(tag.RowsAffected())
		return nil
	})
	return requeued, failed, err
}

func (r *jobRepo) PurgeFinished(ctx context.Context, before time.Time) (int, error) {
	tag, err := execSQL(ctx, r.pool, nil, `
DELETE FROM jobs WHERE status IN ('completed', 'failed') AND finished_at < $1;`, before)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
