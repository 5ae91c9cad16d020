package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/repository"
)

var _ repository.AiConfigRepository = (*aiConfigRepo)(nil)

type aiConfigRepo struct {
	pool *pgxpool.Pool
}

func NewAiConfigRepo(pool *pgxpool.Pool) *aiConfigRepo {
	return &aiConfigRepo{pool: pool}
}

func scanConfig(row pgx.Row) (*model.AiConfigEntry, error) {
	var (
		e     model.AiConfigEntry
		value []byte
	)
	if err := row.Scan(&e.Key, &value, &e.Version, &e.UpdatedBy, &e.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	e.Value = value
	return &e, nil
}

func (r *aiConfigRepo) Get(ctx context.Context, tx repository.Tx, key string) (*model.AiConfigEntry, error) {
	const q = `SELECT key, value, version, updated_by, updated_at FROM ai_config WHERE key = $1;`
	row, err := queryRow(ctx, r.pool, tx, q, key)
	if err != nil {
		return nil, err
	}
	return scanConfig(row)
}

// Put is last-write-wins; the stored version is written back into e.
func (r *aiConfigRepo) Put(ctx context.Context, tx repository.Tx, e *model.AiConfigEntry) error {
	const q = `
INSERT INTO ai_config (key, value, version, updated_by, updated_at)
VALUES ($1, $2, 1, $3, $4)
ON CONFLICT (key) DO UPDATE SET
  value = EXCLUDED.value,
  version = ai_config.version + 1,
  updated_by = EXCLUDED.updated_by,
  updated_at = EXCLUDED.updated_at
RETURNING version;`
	row, err := queryRow(ctx, r.pool, tx, q, e.Key, []byte(e.Value), e.UpdatedBy, e.UpdatedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&e.Version); err != nil {
		return mapErr(err)
	}
	return nil
}

func (r *aiConfigRepo) List(ctx context.Context, tx repository.Tx) ([]*model.AiConfigEntry, error) {
	const q = `SELECT key, value, version, updated_by, updated_at FROM ai_config ORDER BY key;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*model.AiConfigEntry, 0, len(model.ConfigKeys))
	for rows.Next() {
		e, err := scanConfig(rows)
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
