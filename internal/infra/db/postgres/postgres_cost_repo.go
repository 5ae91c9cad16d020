package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/repository"
)

var _ repository.CostRepository = (*costRepo)(nil)

// costRepo keeps individual cost records plus a per-day counter row. The
// counter's row lock is what makes check-and-reserve atomic across workers.
type costRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewCostRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *costRepo {
	return &costRepo{pool: pool, tm: tm}
}

// lockDay makes sure the day row exists and locks it for the rest of tx.
func (r *costRepo) lockDay(ctx context.Context, tx repository.Tx, day time.Time) (int64, error) {
	if _, err := execSQL(ctx, r.pool, tx, `
INSERT INTO ai_cost_daily (day, spent_micros) VALUES ($1, 0) ON CONFLICT (day) DO NOTHING;`, day); err != nil {
		return 0, err
	}
	row, err := queryRow(ctx, r.pool, tx, `SELECT spent_micros FROM ai_cost_daily WHERE day = $1 FOR UPDATE;`, day)
	if err != nil {
		return 0, err
	}
	var spent int64
	if err := row.Scan(&spent); err != nil {
		return 0, scanErr(err)
	}
	return spent, nil
}

func (r *costRepo) Reserve(ctx context.Context, rec *model.AiCostRecord, ceiling int64) (int64, error) {
	var before int64
	err := r.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		day := model.DayStart(rec.CreatedAt)
		spent, err := r.lockDay(ctx, tx, day)
		if err != nil {
			return err
		}
		before = spent
		if ceiling >= 0 && (spent >= ceiling || spent+rec.CostMicros > ceiling) {
			return domain.ErrBudgetExceeded
		}
		if _, err := execSQL(ctx, r.pool, tx, `
INSERT INTO ai_cost_records (id, task_type, pipeline_id, model_id, cost_micros, critical, settled, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`,
			rec.ID, string(rec.TaskType), rec.PipelineID, rec.ModelID, rec.CostMicros, rec.Critical, rec.Settled, rec.CreatedAt); err != nil {
			return err
		}
		_, err = execSQL(ctx, r.pool, tx, `UPDATE ai_cost_daily SET spent_micros = spent_micros + $2 WHERE day = $1;`, day, rec.CostMicros)
		return err
	})
	return before, err
}

func (r *costRepo) Settle(ctx context.Context, id string, actual int64) error {
	return r.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		row, err := queryRow(ctx, r.pool, tx, `SELECT cost_micros, created_at FROM ai_cost_records WHERE id = $1;`, id)
		if err != nil {
			return err
		}
		var (
			old     int64
			created time.Time
		)
		if err := row.Scan(&old, &created); err != nil {
			return scanErr(err)
		}
		day := model.DayStart(created)
		if _, err := r.lockDay(ctx, tx, day); err != nil {
			return err
		}
		if _, err := execSQL(ctx, r.pool, tx, `
UPDATE ai_cost_records SET cost_micros = $2, settled = TRUE WHERE id = $1;`, id, actual); err != nil {
			return err
		}
		_, err = execSQL(ctx, r.pool, tx, `UPDATE ai_cost_daily SET spent_micros = spent_micros + $2 WHERE day = $1;`, day, actual-old)
		return err
	})
}

func (r *costRepo) SpentSince(ctx context.Context, tx repository.Tx, since time.Time) (int64, error) {
	row, err := queryRow(ctx, r.pool, tx, `SELECT COALESCE(SUM(cost_micros), 0) FROM ai_cost_records WHERE created_at >= $1;`, since)
	if err != nil {
		return 0, err
	}
	var spent int64
	if err := row.Scan(&spent); err != nil {
		return 0, scanErr(err)
	}
	return spent, nil
}

func (r *costRepo) SpentByTaskSince(ctx context.Context, tx repository.Tx, since time.Time) (map[model.TaskType]int64, error) {
	rows, err := queryRows(ctx, r.pool, tx, `
SELECT task_type, COALESCE(SUM(cost_micros), 0) FROM ai_cost_records WHERE created_at >= $1 GROUP BY task_type;`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[model.TaskType]int64{}
	for rows.Next() {
		var (
			task  string
			spent int64
		)
		if err := rows.Scan(&task, &spent); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[model.TaskType(task)] = spent
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
