package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/repository"
)

var (
	_ repository.CustomerQuoteRepository = (*customerQuoteRepo)(nil)
	_ repository.BookingRepository       = (*bookingRepo)(nil)
)

type customerQuoteRepo struct {
	pool *pgxpool.Pool
}

func NewCustomerQuoteRepo(pool *pgxpool.Pool) *customerQuoteRepo {
	return &customerQuoteRepo{pool: pool}
}

const customerQuoteColumns = `id, enquiry_id, supplier_quote_id, pipeline_id, supplier_price_pence, markup_percent, markup_pence,
  subtotal_pence, vat_rate_percent, vat_pence, total_pence, description, email_body, status, created_at, updated_at`

func scanCustomerQuote(row pgx.Row) (*model.CustomerQuote, error) {
	var (
		q      model.CustomerQuote
		status string
	)
	err := row.Scan(&q.ID, &q.EnquiryID, &q.SupplierQuoteID, &q.PipelineID, &q.SupplierPricePence, &q.MarkupPercent,
		&q.MarkupPence, &q.SubtotalPence, &q.VATRatePercent, &q.VATPence, &q.TotalPence, &q.Description, &q.EmailBody,
		&status, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, scanErr(err)
	}
	q.Status = model.CustomerQuoteStatus(status)
	return &q, nil
}

func (r *customerQuoteRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.CustomerQuote, error) {
	row, err := queryRow(ctx, r.pool, tx, `SELECT `+customerQuoteColumns+` FROM customer_quotes WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanCustomerQuote(row)
}

func (r *customerQuoteRepo) FindByEnquiry(ctx context.Context, tx repository.Tx, enquiryID string) (*model.CustomerQuote, error) {
	const q = `SELECT ` + customerQuoteColumns + ` FROM customer_quotes WHERE enquiry_id = $1 ORDER BY created_at DESC LIMIT 1;`
	row, err := queryRow(ctx, r.pool, tx, q, enquiryID)
	if err != nil {
		return nil, err
	}
	return scanCustomerQuote(row)
}

func (r *customerQuoteRepo) Save(ctx context.Context, tx repository.Tx, q *model.CustomerQuote) error {
	const sql = `
INSERT INTO customer_quotes (` + customerQuoteColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
ON CONFLICT (id) DO UPDATE SET
  supplier_quote_id = EXCLUDED.supplier_quote_id,
  pipeline_id = EXCLUDED.pipeline_id,
  supplier_price_pence = EXCLUDED.supplier_price_pence,
  markup_percent = EXCLUDED.markup_percent,
  markup_pence = EXCLUDED.markup_pence,
  subtotal_pence = EXCLUDED.subtotal_pence,
  vat_rate_percent = EXCLUDED.vat_rate_percent,
  vat_pence = EXCLUDED.vat_pence,
  total_pence = EXCLUDED.total_pence,
  description = EXCLUDED.description,
  email_body = EXCLUDED.email_body,
  status = EXCLUDED.status,
  updated_at = EXCLUDED.updated_at;`
	_, err := execSQL(ctx, r.pool, tx, sql, q.ID, q.EnquiryID, q.SupplierQuoteID, q.PipelineID, q.SupplierPricePence,
		q.MarkupPercent, q.MarkupPence, q.SubtotalPence, q.VATRatePercent, q.VATPence, q.TotalPence, q.Description,
		q.EmailBody, string(q.Status), q.CreatedAt, q.UpdatedAt)
	return err
}

type bookingRepo struct {
	pool *pgxpool.Pool
}

func NewBookingRepo(pool *pgxpool.Pool) *bookingRepo {
	return &bookingRepo{pool: pool}
}

const bookingColumns = `id, enquiry_id, customer_quote_id, supplier_id, status, documents, customer_email, supplier_email,
  paid_at, created_at, updated_at`

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var (
		b                    model.Booking
		status               string
		docs, custEm, suppEm []byte
	)
	err := row.Scan(&b.ID, &b.EnquiryID, &b.CustomerQuoteID, &b.SupplierID, &status, &docs, &custEm, &suppEm,
		&b.PaidAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, scanErr(err)
	}
	b.Status = model.BookingStatus(status)
	if err := json.Unmarshal(docs, &b.Documents); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	if b.CustomerEmail, err = unmarshalDraft(custEm); err != nil {
		return nil, err
	}
	if b.SupplierEmail, err = unmarshalDraft(suppEm); err != nil {
		return nil, err
	}
	return &b, nil
}

func unmarshalDraft(raw []byte) (*model.EmailDraft, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var d model.EmailDraft
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return &d, nil
}

func marshalDraft(d *model.EmailDraft) []byte {
	if d == nil {
		return nil
	}
	b, _ := json.Marshal(d)
	return b
}

func (r *bookingRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Booking, error) {
	row, err := queryRow(ctx, r.pool, tx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanBooking(row)
}

func (r *bookingRepo) FindByCustomerQuote(ctx context.Context, tx repository.Tx, customerQuoteID string) (*model.Booking, error) {
	row, err := queryRow(ctx, r.pool, tx, `SELECT `+bookingColumns+` FROM bookings WHERE customer_quote_id = $1;`, customerQuoteID)
	if err != nil {
		return nil, err
	}
	return scanBooking(row)
}

func (r *bookingRepo) Save(ctx context.Context, tx repository.Tx, b *model.Booking) error {
	const sql = `
INSERT INTO bookings (` + bookingColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  documents = EXCLUDED.documents,
  customer_email = EXCLUDED.customer_email,
  supplier_email = EXCLUDED.supplier_email,
  updated_at = EXCLUDED.updated_at;`
	_, err := execSQL(ctx, r.pool, tx, sql, b.ID, b.EnquiryID, b.CustomerQuoteID, b.SupplierID, string(b.Status),
		model.MarshalDocuments(b.Documents), marshalDraft(b.CustomerEmail), marshalDraft(b.SupplierEmail),
		b.PaidAt, b.CreatedAt, b.UpdatedAt)
	return err
}
