package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/repository"
)

var (
	_ repository.EnquiryRepository      = (*enquiryRepo)(nil)
	_ repository.InboundEmailRepository = (*inboundEmailRepo)(nil)
)

type enquiryRepo struct {
	pool *pgxpool.Pool
}

func NewEnquiryRepo(pool *pgxpool.Pool) *enquiryRepo {
	return &enquiryRepo{pool: pool}
}

const enquiryColumns = `id, inbound_email_id, customer_name, customer_email, pickup, pickup_lat, pickup_lng, destination,
  trip_date, return_date, passengers, vehicle_type, notes, status, analysis, shortlist, version, created_at, updated_at`

func scanEnquiry(row pgx.Row) (*model.Enquiry, error) {
	var (
		e        model.Enquiry
		tripDate *time.Time
		status   string
		analysis []byte
	)
	err := row.Scan(&e.ID, &e.InboundEmailID, &e.CustomerName, &e.CustomerEmail, &e.Pickup, &e.PickupLat, &e.PickupLng,
		&e.Destination, &tripDate, &e.ReturnDate, &e.Passengers, &e.VehicleType, &e.Notes, &status, &analysis,
		&e.Shortlist, &e.Version, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, scanErr(err)
	}
	if tripDate != nil {
		e.TripDate = *tripDate
	}
	e.Status = model.EnquiryStatus(status)
	if len(analysis) > 0 {
		var a model.EnquiryAnalysis
		if err := json.Unmarshal(analysis, &a); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		e.Analysis = &a
	}
	return &e, nil
}

func (r *enquiryRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Enquiry, error) {
	row, err := queryRow(ctx, r.pool, tx, `SELECT `+enquiryColumns+` FROM enquiries WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanEnquiry(row)
}

func (r *enquiryRepo) Save(ctx context.Context, tx repository.Tx, e *model.Enquiry) error {
	var (
		tripDate *time.Time
		analysis []byte
	)
	if !e.TripDate.IsZero() {
		tripDate = &e.TripDate
	}
	if e.Analysis != nil {
		b, err := json.Marshal(e.Analysis)
		if err != nil {
			return err
		}
		analysis = b
	}
	shortlist := e.Shortlist
	if shortlist == nil {
		shortlist = []string{}
	}
	const q = `
INSERT INTO enquiries (` + enquiryColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
ON CONFLICT (id) DO UPDATE SET
  inbound_email_id = EXCLUDED.inbound_email_id,
  customer_name = EXCLUDED.customer_name,
  customer_email = EXCLUDED.customer_email,
  pickup = EXCLUDED.pickup,
  pickup_lat = EXCLUDED.pickup_lat,
  pickup_lng = EXCLUDED.pickup_lng,
  destination = EXCLUDED.destination,
  trip_date = EXCLUDED.trip_date,
  return_date = EXCLUDED.return_date,
  passengers = EXCLUDED.passengers,
  vehicle_type = EXCLUDED.vehicle_type,
  notes = EXCLUDED.notes,
  status = EXCLUDED.status,
  analysis = EXCLUDED.analysis,
  shortlist = EXCLUDED.shortlist,
  version = EXCLUDED.version,
  updated_at = EXCLUDED.updated_at;`
	_, err := execSQL(ctx, r.pool, tx, q,
		e.ID, e.InboundEmailID, e.CustomerName, e.CustomerEmail, e.Pickup, e.PickupLat, e.PickupLng, e.Destination,
		tripDate, e.ReturnDate, e.Passengers, e.VehicleType, e.Notes, string(e.Status), analysis, shortlist,
		e.Version, e.CreatedAt, e.UpdatedAt)
	return err
}

// CompareAndSetStatus is a single conditional UPDATE, so concurrent callers
// cannot both win the same transition.
func (r *enquiryRepo) CompareAndSetStatus(ctx context.Context, tx repository.Tx, id string, from, to model.EnquiryStatus) error {
	const q = `
UPDATE enquiries SET status = $3, version = version + 1, updated_at = $4
WHERE id = $1 AND status = $2;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, string(from), string(to), time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.FindByID(ctx, tx, id); err != nil {
			return err
		}
		return domain.ErrConflict
	}
	return nil
}

func (r *enquiryRepo) LockForUpdate(ctx context.Context, tx repository.Tx, id string) error {
	row, err := queryRow(ctx, r.pool, tx, `SELECT id FROM enquiries WHERE id = $1 FOR UPDATE;`, id)
	if err != nil {
		return err
	}
	var got string
	if err := row.Scan(&got); err != nil {
		return scanErr(err)
	}
	return nil
}

type inboundEmailRepo struct {
	pool *pgxpool.Pool
}

func NewInboundEmailRepo(pool *pgxpool.Pool) *inboundEmailRepo {
	return &inboundEmailRepo{pool: pool}
}

func (r *inboundEmailRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.InboundEmail, error) {
	const q = `SELECT id, from_addr, subject, body, enquiry_id, received_at FROM inbound_emails WHERE id = $1;`
	row, err := queryRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	var m model.InboundEmail
	if err := row.Scan(&m.ID, &m.From, &m.Subject, &m.Body, &m.EnquiryID, &m.ReceivedAt); err != nil {
		return nil, scanErr(err)
	}
	return &m, nil
}

func (r *inboundEmailRepo) Save(ctx context.Context, tx repository.Tx, m *model.InboundEmail) error {
	const q = `
INSERT INTO inbound_emails (id, from_addr, subject, body, enquiry_id, received_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
  from_addr = EXCLUDED.from_addr,
  subject = EXCLUDED.subject,
  body = EXCLUDED.body,
  enquiry_id = EXCLUDED.enquiry_id;`
	_, err := execSQL(ctx, r.pool, tx, q, m.ID, m.From, m.Subject, m.Body, m.EnquiryID, m.ReceivedAt)
	return err
}

func (r *inboundEmailRepo) LinkEnquiry(ctx context.Context, tx repository.Tx, id, enquiryID string) error {
	tag, err := execSQL(ctx, r.pool, tx, `UPDATE inbound_emails SET enquiry_id = $2 WHERE id = $1;`, id, enquiryID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
