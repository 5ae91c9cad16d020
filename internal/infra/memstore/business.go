package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/repository"
)

type EnquiryRepo struct {
	mu   sync.Mutex
	byID map[string]*model.Enquiry
}

var _ repository.EnquiryRepository = (*EnquiryRepo)(nil)

func NewEnquiryRepo() *EnquiryRepo { return &EnquiryRepo{byID: map[string]*model.Enquiry{}} }

func cloneEnquiry(e *model.Enquiry) *model.Enquiry {
	cp := *e
	cp.Shortlist = append([]string(nil), e.Shortlist...)
	if e.Analysis != nil {
		a := *e.Analysis
		cp.Analysis = &a
	}
	return &cp
}

func (r *EnquiryRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Enquiry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneEnquiry(e), nil
}

func (r *EnquiryRepo) Save(_ context.Context, tx repository.Tx, e *model.Enquiry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	onRollback(tx, restoreEntry(&r.mu, r.byID, e.ID))
	r.byID[e.ID] = cloneEnquiry(e)
	return nil
}

func (r *EnquiryRepo) CompareAndSetStatus(_ context.Context, tx repository.Tx, id string, from, to model.EnquiryStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	if e.Status != from {
		return domain.ErrConflict
	}
	onRollback(tx, restoreEntry(&r.mu, r.byID, id))
	next := cloneEnquiry(e)
	next.Status = to
	next.Version++
	next.UpdatedAt = time.Now().UTC()
	r.byID[id] = next
	return nil
}

// LockForUpdate only checks existence; memstore writes apply immediately so
// there is no uncommitted state to wait on.
func (r *EnquiryRepo) LockForUpdate(_ context.Context, _ repository.Tx, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return domain.ErrNotFound
	}
	return nil
}

type InboundEmailRepo struct {
	mu   sync.Mutex
	byID map[string]*model.InboundEmail
}

var _ repository.InboundEmailRepository = (*InboundEmailRepo)(nil)

func NewInboundEmailRepo() *InboundEmailRepo {
	return &InboundEmailRepo{byID: map[string]*model.InboundEmail{}}
}

func (r *InboundEmailRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.InboundEmail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *InboundEmailRepo) Save(_ context.Context, tx repository.Tx, m *model.InboundEmail) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	onRollback(tx, restoreEntry(&r.mu, r.byID, m.ID))
	cp := *m
	r.byID[m.ID] = &cp
	return nil
}

func (r *InboundEmailRepo) LinkEnquiry(_ context.Context, tx repository.Tx, id, enquiryID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	onRollback(tx, restoreEntry(&r.mu, r.byID, id))
	cp := *m
	cp.EnquiryID = enquiryID
	r.byID[id] = &cp
	return nil
}

type SupplierRepo struct {
	mu   sync.Mutex
	byID map[string]*model.Supplier
}

var _ repository.SupplierRepository = (*SupplierRepo)(nil)

func NewSupplierRepo() *SupplierRepo { return &SupplierRepo{byID: map[string]*model.Supplier{}} }

func cloneSupplier(s *model.Supplier) *model.Supplier {
	cp := *s
	cp.FleetTypes = append([]string(nil), s.FleetTypes...)
	return &cp
}

func (r *SupplierRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Supplier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneSupplier(s), nil
}

func (r *SupplierRepo) ListActive(_ context.Context, _ repository.Tx) ([]*model.Supplier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Supplier, 0, len(r.byID))
	for _, s := range r.byID {
		if s.Active {
			out = append(out, cloneSupplier(s))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (r *SupplierRepo) Save(_ context.Context, tx repository.Tx, s *model.Supplier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	onRollback(tx, restoreEntry(&r.mu, r.byID, s.ID))
	r.byID[s.ID] = cloneSupplier(s)
	return nil
}

type SupplierQuoteRepo struct {
	mu   sync.Mutex
	byID map[string]*model.SupplierQuote
}

var _ repository.SupplierQuoteRepository = (*SupplierQuoteRepo)(nil)

func NewSupplierQuoteRepo() *SupplierQuoteRepo {
	return &SupplierQuoteRepo{byID: map[string]*model.SupplierQuote{}}
}

func cloneQuote(q *model.SupplierQuote) *model.SupplierQuote {
	cp := *q
	if q.SubmittedAt != nil {
		t := *q.SubmittedAt
		cp.SubmittedAt = &t
	}
	return &cp
}

func (r *SupplierQuoteRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.SupplierQuote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneQuote(q), nil
}

func (r *SupplierQuoteRepo) ListByEnquiry(_ context.Context, _ repository.Tx, enquiryID string) ([]*model.SupplierQuote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.SupplierQuote, 0)
	for _, q := range r.byID {
		if q.EnquiryID == enquiryID {
			out = append(out, cloneQuote(q))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

// Create refuses a second request to the same supplier for the same enquiry.
func (r *SupplierQuoteRepo) Create(_ context.Context, tx repository.Tx, q *model.SupplierQuote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cur := range r.byID {
		if cur.ID == q.ID || (cur.EnquiryID == q.EnquiryID && cur.SupplierID == q.SupplierID) {
			return domain.ErrAlreadyExists
		}
	}
	onRollback(tx, restoreEntry(&r.mu, r.byID, q.ID))
	r.byID[q.ID] = cloneQuote(q)
	return nil
}

func (r *SupplierQuoteRepo) Update(_ context.Context, tx repository.Tx, q *model.SupplierQuote, from model.SupplierQuoteStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[q.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Status != from {
		return domain.ErrConflict
	}
	onRollback(tx, restoreEntry(&r.mu, r.byID, q.ID))
	r.byID[q.ID] = cloneQuote(q)
	return nil
}

func (r *SupplierQuoteRepo) ListOverdue(_ context.Context, _ repository.Tx, now time.Time) ([]*model.SupplierQuote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.SupplierQuote, 0)
	for _, q := range r.byID {
		if q.Status == model.SupplierQuoteRequested && q.Deadline.Before(now) {
			out = append(out, cloneQuote(q))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Deadline.Before(out[b].Deadline) })
	return out, nil
}

type CustomerQuoteRepo struct {
	mu   sync.Mutex
	byID map[string]*model.CustomerQuote
}

var _ repository.CustomerQuoteRepository = (*CustomerQuoteRepo)(nil)

func NewCustomerQuoteRepo() *CustomerQuoteRepo {
	return &CustomerQuoteRepo{byID: map[string]*model.CustomerQuote{}}
}

func (r *CustomerQuoteRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.CustomerQuote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *q
	return &cp, nil
}

// FindByEnquiry returns the most recent quote for the enquiry.
func (r *CustomerQuoteRepo) FindByEnquiry(_ context.Context, _ repository.Tx, enquiryID string) (*model.CustomerQuote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pick *model.CustomerQuote
	for _, q := range r.byID {
		if q.EnquiryID == enquiryID && (pick == nil || q.CreatedAt.After(pick.CreatedAt)) {
			pick = q
		}
	}
	if pick == nil {
		return nil, domain.ErrNotFound
	}
	cp := *pick
	return &cp, nil
}

func (r *CustomerQuoteRepo) Save(_ context.Context, tx repository.Tx, q *model.CustomerQuote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	onRollback(tx, restoreEntry(&r.mu, r.byID, q.ID))
	cp := *q
	r.byID[q.ID] = &cp
	return nil
}

type BookingRepo struct {
	mu   sync.Mutex
	byID map[string]*model.Booking
}

var _ repository.BookingRepository = (*BookingRepo)(nil)

func NewBookingRepo() *BookingRepo { return &BookingRepo{byID: map[string]*model.Booking{}} }

func cloneBooking(b *model.Booking) *model.Booking {
	cp := *b
	cp.Documents = append([]model.BookingDocument(nil), b.Documents...)
	if b.CustomerEmail != nil {
		e := *b.CustomerEmail
		cp.CustomerEmail = &e
	}
	if b.SupplierEmail != nil {
		e := *b.SupplierEmail
		cp.SupplierEmail = &e
	}
	return &cp
}

func (r *BookingRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneBooking(b), nil
}

func (r *BookingRepo) FindByCustomerQuote(_ context.Context, _ repository.Tx, cqID string) (*model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.byID {
		if b.CustomerQuoteID == cqID {
			return cloneBooking(b), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *BookingRepo) Save(_ context.Context, tx repository.Tx, b *model.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	onRollback(tx, restoreEntry(&r.mu, r.byID, b.ID))
	r.byID[b.ID] = cloneBooking(b)
	return nil
}
