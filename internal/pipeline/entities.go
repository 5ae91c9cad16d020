package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/repository"
)

var enquiryOrder = map[model.EnquiryStatus]int{
	model.EnquiryNew:              0,
	model.EnquirySentToSuppliers:  1,
	model.EnquiryBidsComplete:     2,
	model.EnquirySupplierSelected: 3,
	model.EnquiryQuoteReady:       4,
	model.EnquiryQuoteSent:        5,
	model.EnquiryBooked:           6,
}

// reached reports whether e has got to at least status st.
func reached(e *model.Enquiry, st model.EnquiryStatus) bool {
	if e == nil {
		return false
	}
	cur, ok := enquiryOrder[e.Status]
	return ok && cur >= enquiryOrder[st]
}

// Ids derived from their parent so that re-applying a logged output finds the
// row it created the first time.
func enquiryIDFor(emailID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("enquiry:"+emailID)).String()
}

func supplierQuoteIDFor(enquiryID, supplierID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("sq:"+enquiryID+":"+supplierID)).String()
}

func customerQuoteIDFor(supplierQuoteID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("cq:"+supplierQuoteID)).String()
}

// updateEnquiry re-reads the enquiry inside tx, applies fn and saves it, so a
// concurrent status change is not overwritten with a stale copy.
func (r *Runner) updateEnquiry(ctx context.Context, tx repository.Tx, s *State, fn func(e *model.Enquiry)) error {
	e, err := r.Enquiries.FindByID(ctx, tx, s.Enquiry.ID)
	if err != nil {
		return err
	}
	fn(e)
	e.UpdatedAt = r.now().UTC()
	if err := r.Enquiries.Save(ctx, tx, e); err != nil {
		return err
	}
	s.Enquiry = e
	return nil
}

// advance moves the enquiry from one status to the next. It reports false
// when the enquiry had already moved on, which callers use to keep side
// effects such as enqueuing the next flow exactly-once.
func (r *Runner) advance(ctx context.Context, tx repository.Tx, s *State, from, to model.EnquiryStatus) (bool, error) {
	err := r.Enquiries.CompareAndSetStatus(ctx, tx, s.Enquiry.ID, from, to)
	if err == nil {
		s.Enquiry.Status = to
		return true, nil
	}
	if !errors.Is(err, domain.ErrConflict) {
		return false, err
	}
	cur, ferr := r.Enquiries.FindByID(ctx, tx, s.Enquiry.ID)
	if ferr != nil {
		return false, ferr
	}
	if reached(cur, to) {
		s.Enquiry = cur
		return false, nil
	}
	return false, err
}

func (r *Runner) loadEnquiry(ctx context.Context, s *State, id string) error {
	e, err := r.Enquiries.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return err
	}
	s.Enquiry = e
	return nil
}

func (r *Runner) loadQuotes(ctx context.Context, s *State) error {
	qs, err := r.SupplierQuotes.ListByEnquiry(ctx, repository.NoTX, s.Enquiry.ID)
	if err != nil {
		return err
	}
	s.Quotes = qs
	for _, q := range qs {
		if q.Status == model.SupplierQuoteSelected {
			s.Winner = q
		}
	}
	return nil
}

func (r *Runner) loadSuppliers(ctx context.Context, s *State) error {
	list, err := r.Suppliers.ListActive(ctx, repository.NoTX)
	if err != nil {
		return err
	}
	s.Suppliers = make(map[string]*model.Supplier, len(list))
	for _, sp := range list {
		s.Suppliers[sp.ID] = sp
	}
	return nil
}

// supplier returns the supplier even when it has since been deactivated.
func (r *Runner) supplier(ctx context.Context, s *State, id string) *model.Supplier {
	if sp, ok := s.Suppliers[id]; ok {
		return sp
	}
	sp, err := r.Suppliers.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return nil
	}
	if s.Suppliers == nil {
		s.Suppliers = map[string]*model.Supplier{}
	}
	s.Suppliers[id] = sp
	return sp
}

func activeSuppliers(s *State) []*model.Supplier {
	out := make([]*model.Supplier, 0, len(s.Suppliers))
	for _, sp := range s.Suppliers {
		if sp.Active {
			out = append(out, sp)
		}
	}
	return out
}

// enquiryInput is the view of an enquiry handed to the model.
func enquiryInput(e *model.Enquiry) map[string]any {
	in := map[string]any{
		"pickup":      e.Pickup,
		"destination": e.Destination,
		"tripDate":    e.TripDate.Format(time.DateOnly),
		"passengers":  e.Passengers,
		"vehicleType": e.VehicleType,
		"notes":       e.Notes,
	}
	if e.ReturnDate != nil {
		in["returnDate"] = e.ReturnDate.Format(time.DateOnly)
	}
	if e.Analysis != nil {
		in["analysis"] = e.Analysis
	}
	return in
}
