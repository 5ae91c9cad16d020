package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/repository"
)

var _ repository.ReviewTaskRepository = (*reviewRepo)(nil)

type reviewRepo struct {
	pool *pgxpool.Pool
}

func NewReviewRepo(pool *pgxpool.Pool) *reviewRepo {
	return &reviewRepo{pool: pool}
}

const reviewColumns = `id, task_type, reason, status, entity_type, entity_id, dedupe_key, pipeline_id, flow, step,
  detail, assigned_to, resolved_by, resolved_at, resolution_note, override, version, created_at, updated_at`

func scanReview(row pgx.Row) (*model.HumanReviewTask, error) {
	var (
		t                          model.HumanReviewTask
		task, reason, status, flow string
		detail, override           []byte
	)
	err := row.Scan(&t.ID, &task, &reason, &status, &t.Entity.Type, &t.Entity.ID, &t.DedupeKey, &t.PipelineID, &flow, &t.Step,
		&detail, &t.AssignedTo, &t.ResolvedBy, &t.ResolvedAt, &t.ResolutionNote, &override, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, scanErr(err)
	}
	t.TaskType = model.TaskType(task)
	t.Reason = model.ReviewReason(reason)
	t.Status = model.ReviewStatus(status)
	t.Flow = model.FlowName(flow)
	t.Detail = detail
	t.Override = override
	return &t, nil
}

func jsonArg(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}

// Create inserts unless the dedupe key is taken; the loser of a race reads the winner's row.
func (r *reviewRepo) Create(ctx context.Context, tx repository.Tx, t *model.HumanReviewTask) (*model.HumanReviewTask, bool, error) {
	const q = `
INSERT INTO human_review_tasks (` + reviewColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
ON CONFLICT (dedupe_key) DO NOTHING
RETURNING ` + reviewColumns + `;`
	row, err := queryRow(ctx, r.pool, tx, q,
		t.ID, string(t.TaskType), string(t.Reason), string(t.Status), t.Entity.Type, t.Entity.ID, t.DedupeKey, t.PipelineID,
		string(t.Flow), t.Step, jsonArg(t.Detail), t.AssignedTo, t.ResolvedBy, t.ResolvedAt, t.ResolutionNote,
		jsonArg(t.Override), t.Version, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return nil, false, err
	}
	got, err := scanReview(row)
	if errors.Is(err, domain.ErrNotFound) {
		existing, err := r.FindByDedupeKey(ctx, tx, t.DedupeKey)
		return existing, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return got, true, nil
}

func (r *reviewRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.HumanReviewTask, error) {
	row, err := queryRow(ctx, r.pool, tx, `SELECT `+reviewColumns+` FROM human_review_tasks WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanReview(row)
}

func (r *reviewRepo) FindByDedupeKey(ctx context.Context, tx repository.Tx, key string) (*model.HumanReviewTask, error) {
	row, err := queryRow(ctx, r.pool, tx, `SELECT `+reviewColumns+` FROM human_review_tasks WHERE dedupe_key = $1;`, key)
	if err != nil {
		return nil, err
	}
	return scanReview(row)
}

func (r *reviewRepo) List(ctx context.Context, tx repository.Tx, f repository.ReviewFilter) ([]*model.HumanReviewTask, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Reason != "" {
		args = append(args, string(f.Reason))
		where = append(where, fmt.Sprintf("reason = $%d", len(args)))
	}
	q := `SELECT ` + reviewColumns + ` FROM human_review_tasks`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*model.HumanReviewTask, 0)
	for rows.Next() {
		t, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

// Update is optimistic: it only applies while status and version are unchanged.
func (r *reviewRepo) Update(ctx context.Context, tx repository.Tx, t *model.HumanReviewTask, fromStatus model.ReviewStatus, fromVersion int) error {
	const q = `
UPDATE human_review_tasks SET
  status = $4, assigned_to = $5, resolved_by = $6, resolved_at = $7, resolution_note = $8,
  override = $9, detail = $10, version = $11, updated_at = $12
WHERE id = $1 AND status = $2 AND version = $3;`
	tag, err := execSQL(ctx, r.pool, tx, q,
		t.ID, string(fromStatus), fromVersion,
		string(t.Status), t.AssignedTo, t.ResolvedBy, t.ResolvedAt, t.ResolutionNote,
		jsonArg(t.Override), jsonArg(t.Detail), t.Version, t.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.FindByID(ctx, tx, t.ID); err != nil {
			return err
		}
		return domain.ErrConflict
	}
	return nil
}
