package repository

import (
	"context"
	"time"

	"coachhire-ai/internal/domain/model"
)

type EnquiryRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.Enquiry, error)
	// Save upserts the enquiry.
	Save(ctx context.Context, tx Tx, e *model.Enquiry) error
	// CompareAndSetStatus moves the enquiry to `to` only from `from`.
	// Returns domain.ErrConflict when the stored status differs.
	CompareAndSetStatus(ctx context.Context, tx Tx, id string, from, to model.EnquiryStatus) error
	// LockForUpdate holds the enquiry row until tx ends so callers that
	// settle per-enquiry state run one at a time.
	LockForUpdate(ctx context.Context, tx Tx, id string) error
}

type InboundEmailRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.InboundEmail, error)
	Save(ctx context.Context, tx Tx, m *model.InboundEmail) error
	LinkEnquiry(ctx context.Context, tx Tx, id, enquiryID string) error
}

type SupplierRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.Supplier, error)
	ListActive(ctx context.Context, tx Tx) ([]*model.Supplier, error)
	Save(ctx context.Context, tx Tx, s *model.Supplier) error
}

type SupplierQuoteRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.SupplierQuote, error)
	ListByEnquiry(ctx context.Context, tx Tx, enquiryID string) ([]*model.SupplierQuote, error)
	// Create inserts q; returns domain.ErrAlreadyExists if the id exists.
	Create(ctx context.Context, tx Tx, q *model.SupplierQuote) error
	// Update persists q only when the stored status equals from.
	Update(ctx context.Context, tx Tx, q *model.SupplierQuote, from model.SupplierQuoteStatus) error
	// ListOverdue returns requested quotes whose deadline is before now.
	ListOverdue(ctx context.Context, tx Tx, now time.Time) ([]*model.SupplierQuote, error)
}

type CustomerQuoteRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.CustomerQuote, error)
	FindByEnquiry(ctx context.Context, tx Tx, enquiryID string) (*model.CustomerQuote, error)
	Save(ctx context.Context, tx Tx, q *model.CustomerQuote) error
}

type BookingRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.Booking, error)
	FindByCustomerQuote(ctx context.Context, tx Tx, customerQuoteID string) (*model.Booking, error)
	Save(ctx context.Context, tx Tx, b *model.Booking) error
}
