// Package memstore keeps every repository port in process memory. It backs
// dev mode and the deterministic tests; all state is lost on exit.
package memstore

import (
	"context"
	"sync"

	"coachhire-ai/internal/domain/ports/repository"
)

// Store bundles one instance of each repository.
type Store struct {
	Tx             *TxManager
	Jobs           *JobRepo
	Decisions      *DecisionLogRepo
	Costs          *CostRepo
	Reviews        *ReviewRepo
	Config         *AiConfigRepo
	Pricing        *ModelPricingRepo
	Enquiries      *EnquiryRepo
	Emails         *InboundEmailRepo
	Suppliers      *SupplierRepo
	SupplierQuotes *SupplierQuoteRepo
	CustomerQuotes *CustomerQuoteRepo
	Bookings       *BookingRepo
	Limiter        *RateLimiter
	Locker         *Locker
}

func New() *Store {
	return &Store{
		Tx:             &TxManager{},
		Jobs:           NewJobRepo(),
		Decisions:      NewDecisionLogRepo(),
		Costs:          NewCostRepo(),
		Reviews:        NewReviewRepo(),
		Config:         NewAiConfigRepo(),
		Pricing:        NewModelPricingRepo(),
		Enquiries:      NewEnquiryRepo(),
		Emails:         NewInboundEmailRepo(),
		Suppliers:      NewSupplierRepo(),
		SupplierQuotes: NewSupplierQuoteRepo(),
		CustomerQuotes: NewCustomerQuoteRepo(),
		Bookings:       NewBookingRepo(),
		Limiter:        NewRateLimiter(),
		Locker:         NewLocker(),
	}
}

// TxManager hands fn a Tx that records an undo step for every write made
// through it. When fn fails the steps run newest first. Writes made without the
// Tx, or by other callers between the write and the rollback, are not isolated:
// a rollback restores the entry as this transaction first saw it.
type TxManager struct{}

var _ repository.TransactionManager = (*TxManager)(nil)

func (*TxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	tx := &Tx{}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

type Tx struct {
	mu   sync.Mutex
	undo []func()
}

func (t *Tx) rollback() {
	t.mu.Lock()
	steps := t.undo
	t.undo = nil
	t.mu.Unlock()
	for i := len(steps) - 1; i >= 0; i-- {
		steps[i]()
	}
}

// onRollback registers f when tx is a memstore transaction.
func onRollback(tx repository.Tx, f func()) {
	t, ok := tx.(*Tx)
	if !ok || t == nil {
		return
	}
	t.mu.Lock()
	t.undo = append(t.undo, f)
	t.mu.Unlock()
}

// restoreEntry captures m[k] and returns a step putting it back. Call it with
// mu held and before the write; the captured value must not be mutated later.
func restoreEntry[K comparable, V any](mu *sync.Mutex, m map[K]V, k K) func() {
	prev, had := m[k]
	return func() {
		mu.Lock()
		defer mu.Unlock()
		if had {
			m[k] = prev
		} else {
			delete(m, k)
		}
	}
}
