package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/repository"
)

var (
	_ repository.SupplierRepository      = (*supplierRepo)(nil)
	_ repository.SupplierQuoteRepository = (*supplierQuoteRepo)(nil)
)

type supplierRepo struct {
	pool *pgxpool.Pool
}

func NewSupplierRepo(pool *pgxpool.Pool) *supplierRepo {
	return &supplierRepo{pool: pool}
}

const supplierColumns = `id, name, email, region, lat, lng, rating, reliability, avg_response_hours, fleet_types, max_passengers, active`

func scanSupplier(row pgx.Row) (*model.Supplier, error) {
	var s model.Supplier
	err := row.Scan(&s.ID, &s.Name, &s.Email, &s.Region, &s.Lat, &s.Lng, &s.Rating, &s.Reliability,
		&s.AvgResponseHours, &s.FleetTypes, &s.MaxPassengers, &s.Active)
	if err != nil {
		return nil, scanErr(err)
	}
	return &s, nil
}

func (r *supplierRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Supplier, error) {
	row, err := queryRow(ctx, r.pool, tx, `SELECT `+supplierColumns+` FROM suppliers WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanSupplier(row)
}

func (r *supplierRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.Supplier, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+supplierColumns+` FROM suppliers WHERE active = TRUE ORDER BY id;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*model.Supplier, 0)
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *supplierRepo) Save(ctx context.Context, tx repository.Tx, s *model.Supplier) error {
	fleet := s.FleetTypes
	if fleet == nil {
		fleet = []string{}
	}
	const q = `
INSERT INTO suppliers (` + supplierColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO UPDATE SET
  name = EXCLUDED.name,
  email = EXCLUDED.email,
  region = EXCLUDED.region,
  lat = EXCLUDED.lat,
  lng = EXCLUDED.lng,
  rating = EXCLUDED.rating,
  reliability = EXCLUDED.reliability,
  avg_response_hours = EXCLUDED.avg_response_hours,
  fleet_types = EXCLUDED.fleet_types,
  max_passengers = EXCLUDED.max_passengers,
  active = EXCLUDED.active;`
	_, err := execSQL(ctx, r.pool, tx, q, s.ID, s.Name, s.Email, s.Region, s.Lat, s.Lng, s.Rating, s.Reliability,
		s.AvgResponseHours, fleet, s.MaxPassengers, s.Active)
	return err
}

type supplierQuoteRepo struct {
	pool *pgxpool.Pool
}

func NewSupplierQuoteRepo(pool *pgxpool.Pool) *supplierQuoteRepo {
	return &supplierQuoteRepo{pool: pool}
}

const supplierQuoteColumns = `id, enquiry_id, supplier_id, status, price_pence, vehicle_type, capacity, notes, score,
  deadline, requested_at, submitted_at, updated_at`

func scanSupplierQuote(row pgx.Row) (*model.SupplierQuote, error) {
	var (
		q      model.SupplierQuote
		status string
	)
	err := row.Scan(&q.ID, &q.EnquiryID, &q.SupplierID, &status, &q.PricePence, &q.VehicleType, &q.Capacity, &q.Notes,
		&q.Score, &q.Deadline, &q.RequestedAt, &q.SubmittedAt, &q.UpdatedAt)
	if err != nil {
		return nil, scanErr(err)
	}
	q.Status = model.SupplierQuoteStatus(status)
	return &q, nil
}

func (r *supplierQuoteRepo) list(ctx context.Context, tx repository.Tx, sql string, args ...interface{}) ([]*model.SupplierQuote, error) {
	rows, err := queryRows(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*model.SupplierQuote, 0)
	for rows.Next() {
		q, err := scanSupplierQuote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *supplierQuoteRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.SupplierQuote, error) {
	row, err := queryRow(ctx, r.pool, tx, `SELECT `+supplierQuoteColumns+` FROM supplier_quotes WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanSupplierQuote(row)
}

func (r *supplierQuoteRepo) ListByEnquiry(ctx context.Context, tx repository.Tx, enquiryID string) ([]*model.SupplierQuote, error) {
	return r.list(ctx, tx, `SELECT `+supplierQuoteColumns+` FROM supplier_quotes WHERE enquiry_id = $1 ORDER BY id;`, enquiryID)
}

// Create relies on the (enquiry_id, supplier_id) key to refuse a second request.
func (r *supplierQuoteRepo) Create(ctx context.Context, tx repository.Tx, q *model.SupplierQuote) error {
	const sql = `
INSERT INTO supplier_quotes (` + supplierQuoteColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);`
	_, err := execSQL(ctx, r.pool, tx, sql, q.ID, q.EnquiryID, q.SupplierID, string(q.Status), q.PricePence,
		q.VehicleType, q.Capacity, q.Notes, q.Score, q.Deadline, q.RequestedAt, q.SubmittedAt, q.UpdatedAt)
	return err
}

func (r *supplierQuoteRepo) Update(ctx context.Context, tx repository.Tx, q *model.SupplierQuote, from model.SupplierQuoteStatus) error {
	const sql = `
UPDATE supplier_quotes SET
  status = $3, price_pence = $4, vehicle_type = $5, capacity = $6, notes = $7, score = $8,
  deadline = $9, submitted_at = $10, updated_at = $11
WHERE id = $1 AND status = $2;`
	tag, err := execSQL(ctx, r.pool, tx, sql, q.ID, string(from), string(q.Status), q.PricePence, q.VehicleType,
		q.Capacity, q.Notes, q.Score, q.Deadline, q.SubmittedAt, q.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.FindByID(ctx, tx, q.ID); err != nil {
			return err
		}
		return domain.ErrConflict
	}
	return nil
}

func (r *supplierQuoteRepo) ListOverdue(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.SupplierQuote, error) {
	return r.list(ctx, tx, `SELECT `+supplierQuoteColumns+` FROM supplier_quotes
WHERE status = $1 AND deadline < $2 ORDER BY deadline;`, string(model.SupplierQuoteRequested), now)
}
