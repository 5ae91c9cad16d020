package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/repository"
)

var _ repository.ModelPricingRepository = (*modelPricingRepo)(nil)

type modelPricingRepo struct {
	pool *pgxpool.Pool
}

func NewModelPricingRepo(pool *pgxpool.Pool) *modelPricingRepo {
	return &modelPricingRepo{pool: pool}
}

const (
	pricingSelect = `
SELECT id, model_name, input_per_1k_micros, output_per_1k_micros,
       expected_output_tokens, active, created_at, updated_at
  FROM model_pricing`

	// an active row wins; otherwise the most recently retired one
	pricingByName = pricingSelect + `
 WHERE lower(model_name) = lower($1)
 ORDER BY active DESC, updated_at DESC
 LIMIT 1`

	pricingActive = pricingSelect + `
 WHERE active
 ORDER BY model_name`

	pricingInsert = `
INSERT INTO model_pricing (id, model_name, input_per_1k_micros, output_per_1k_micros,
                           expected_output_tokens, active, created_at, updated_at)
VALUES ($1, lower($2), $3, $4, $5, $6, $7, $7)`

	pricingUpdate = `
UPDATE model_pricing
   SET input_per_1k_micros = $2, output_per_1k_micros = $3,
       expected_output_tokens = $4, active = $5, updated_at = $6
 WHERE id = $1`
)

func scanPricing(row pgx.Row) (*model.ModelPricing, error) {
	p := new(model.ModelPricing)
	if err := row.Scan(&p.ID, &p.ModelName, &p.InputPer1KMicros, &p.OutputPer1KMicros,
		&p.ExpectedOutputTokens, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	return p, nil
}

func (r *modelPricingRepo) GetByModelName(ctx context.Context, tx repository.Tx, name string) (*model.ModelPricing, error) {
	row, err := queryRow(ctx, r.pool, tx, pricingByName, name)
	if err != nil {
		return nil, err
	}
	return scanPricing(row)
}

// Create relies on the partial unique index: a second active row for the same
// name fails with domain.ErrAlreadyExists.
func (r *modelPricingRepo) Create(ctx context.Context, tx repository.Tx, p *model.ModelPricing) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	_, err := execSQL(ctx, r.pool, tx, pricingInsert,
		p.ID, p.ModelName, p.InputPer1KMicros, p.OutputPer1KMicros, p.ExpectedOutputTokens, p.Active, p.CreatedAt)
	return err
}

// Update rewrites prices and the active flag. The model name is immutable.
func (r *modelPricingRepo) Update(ctx context.Context, tx repository.Tx, p *model.ModelPricing) error {
	p.UpdatedAt = time.Now().UTC()
	tag, err := execSQL(ctx, r.pool, tx, pricingUpdate,
		p.ID, p.InputPer1KMicros, p.OutputPer1KMicros, p.ExpectedOutputTokens, p.Active, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *modelPricingRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.ModelPricing, error) {
	rows, err := queryRows(ctx, r.pool, tx, pricingActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ModelPricing
	for rows.Next() {
		p, err := scanPricing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}
