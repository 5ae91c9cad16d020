package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/repository"
)

var _ repository.DecisionLogRepository = (*decisionLogRepo)(nil)

type decisionLogRepo struct {
	pool *pgxpool.Pool
}

func NewDecisionLogRepo(pool *pgxpool.Pool) *decisionLogRepo {
	return &decisionLogRepo{pool: pool}
}

const decisionColumns = `id, pipeline_id, flow, step, task_type, action, confidence, cost_micros, latency_ms,
  model_id, entity_type, entity_id, output, review_task_id, over_budget, fallback, created_at`

func scanDecision(row pgx.Row) (*model.AiDecisionLog, error) {
	var (
		e                  model.AiDecisionLog
		flow, task, action string
		output             []byte
	)
	err := row.Scan(&e.ID, &e.PipelineID, &flow, &e.Step, &task, &action, &e.Confidence, &e.CostMicros, &e.LatencyMs,
		&e.ModelID, &e.Entity.Type, &e.Entity.ID, &output, &e.ReviewTaskID, &e.OverBudget, &e.Fallback, &e.CreatedAt)
	if err != nil {
		return nil, scanErr(err)
	}
	e.Flow = model.FlowName(flow)
	e.TaskType = model.TaskType(task)
	e.Action = model.DecisionAction(action)
	e.Output = output
	return &e, nil
}

// Append relies on the (pipeline_id, step, action) unique key; a duplicate is
// a silent no-op so retried steps never log twice.
func (r *decisionLogRepo) Append(ctx context.Context, tx repository.Tx, e *model.AiDecisionLog) (bool, error) {
	var output interface{}
	if len(e.Output) > 0 {
		output = []byte(e.Output)
	}
	const q = `
INSERT INTO ai_decision_logs (` + decisionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
ON CONFLICT (pipeline_id, step, action) DO NOTHING;`
	tag, err := execSQL(ctx, r.pool, tx, q,
		e.ID, e.PipelineID, string(e.Flow), e.Step, string(e.TaskType), string(e.Action), e.Confidence, e.CostMicros, e.LatencyMs,
		e.ModelID, e.Entity.Type, e.Entity.ID, output, e.ReviewTaskID, e.OverBudget, e.Fallback, e.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *decisionLogRepo) Find(ctx context.Context, tx repository.Tx, pipelineID, step string, action model.DecisionAction) (*model.AiDecisionLog, error) {
	row, err := queryRow(ctx, r.pool, tx, `SELECT `+decisionColumns+` FROM ai_decision_logs
WHERE pipeline_id = $1 AND step = $2 AND action = $3;`, pipelineID, step, string(action))
	if err != nil {
		return nil, err
	}
	return scanDecision(row)
}

func (r *decisionLogRepo) ListByPipeline(ctx context.Context, tx repository.Tx, pipelineID string) ([]*model.AiDecisionLog, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+decisionColumns+` FROM ai_decision_logs
WHERE pipeline_id = $1 ORDER BY created_at, id;`, pipelineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*model.AiDecisionLog, 0)
	for rows.Next() {
		e, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
