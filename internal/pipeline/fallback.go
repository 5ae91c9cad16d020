package pipeline

import (
	"fmt"
	"strings"
	"time"

	"coachhire-ai/internal/domain/model"
)

// Deterministic stand-ins for the non-critical AI tasks, used while the
// daily budget pauses them.

func suggestVehicle(passengers int) string {
	switch {
	case passengers <= 16:
		return "minibus"
	case passengers <= 35:
		return "midicoach"
	case passengers <= 57:
		return "coach"
	}
	return "double_decker"
}

func analyzeFallback(e *model.Enquiry, now time.Time) model.EnquiryAnalysis {
	a := model.EnquiryAnalysis{
		TripType:         "one_way",
		Complexity:       "low",
		Urgency:          "low",
		SuggestedVehicle: e.VehicleType,
	}
	if e.ReturnDate != nil {
		a.TripType = "return"
		if e.ReturnDate.Sub(e.TripDate) >= 24*time.Hour {
			a.TripType = "multi_day"
		}
	}
	switch {
	case e.Passengers > 57 || a.TripType == "multi_day":
		a.Complexity = "high"
	case e.Passengers > 16 || a.TripType == "return":
		a.Complexity = "medium"
	}
	if !e.TripDate.IsZero() {
		switch days := e.TripDate.Sub(now).Hours() / 24; {
		case days < 3:
			a.Urgency = "high"
		case days < 14:
			a.Urgency = "normal"
		}
	}
	if a.SuggestedVehicle == "" {
		a.SuggestedVehicle = suggestVehicle(e.Passengers)
	}
	if strings.Contains(strings.ToLower(e.Notes), "wheelchair") {
		a.SpecialRequirements = append(a.SpecialRequirements, "wheelchair_access")
	}
	return a
}

type selection struct {
	SupplierIDs []string `json:"supplierIds"`
	Rationale   string   `json:"rationale"`
}

// selectFallback takes the best ranked suppliers, skipping low-rated ones.
func selectFallback(ranked []RankedSupplier, max int, minRating float64) selection {
	out := selection{Rationale: "top ranked suppliers by weighted score"}
	for _, c := range ranked {
		if len(out.SupplierIDs) >= max {
			break
		}
		if c.Rating < minRating {
			continue
		}
		out.SupplierIDs = append(out.SupplierIDs, c.SupplierID)
	}
	return out
}

type quoteContent struct {
	Description string `json:"description"`
	EmailBody   string `json:"emailBody"`
}

func pounds(pence int64) string {
	return fmt.Sprintf("£%d.%02d", pence/100, pence%100)
}

func tripLine(e *model.Enquiry) string {
	line := fmt.Sprintf("%s to %s on %s for %d passengers", e.Pickup, e.Destination,
		e.TripDate.Format("Monday 2 January 2006"), e.Passengers)
	if e.ReturnDate != nil {
		line += fmt.Sprintf(", returning %s", e.ReturnDate.Format("Monday 2 January 2006"))
	}
	return line
}

func quoteContentFallback(e *model.Enquiry, cq *model.CustomerQuote) quoteContent {
	vehicle := e.VehicleType
	if vehicle == "" {
		vehicle = suggestVehicle(e.Passengers)
	}
	desc := fmt.Sprintf("Private %s hire: %s.", vehicle, tripLine(e))
	body := fmt.Sprintf("Dear %s,\n\nThank you for your enquiry. We are pleased to quote for your trip from %s.\n\n"+
		"Subtotal: %s\nVAT (%.0f%%): %s\nTotal: %s\n\nReply to this email to confirm and we will send a payment link.\n\nKind regards,\nThe bookings team",
		greetingName(e), tripLine(e), pounds(cq.SubtotalPence), cq.VATRatePercent, pounds(cq.VATPence), pounds(cq.TotalPence))
	return quoteContent{Description: desc, EmailBody: body}
}

func greetingName(e *model.Enquiry) string {
	if n := strings.TrimSpace(e.CustomerName); n != "" {
		return n
	}
	return "Customer"
}

type jobDocuments struct {
	Documents []model.BookingDocument `json:"documents"`
}

func jobDocumentsFallback(e *model.Enquiry, b *model.Booking, sup *model.Supplier) jobDocuments {
	supplier := b.SupplierID
	if sup != nil {
		supplier = sup.Name
	}
	sheet := fmt.Sprintf("Booking: %s\nSupplier: %s\nTrip: %s\nPickup: %s\nDestination: %s\nPassengers: %d\nCustomer: %s <%s>",
		b.ID, supplier, tripLine(e), e.Pickup, e.Destination, e.Passengers, greetingName(e), e.CustomerEmail)
	brief := fmt.Sprintf("Pickup at %s on %s. Destination %s. %d passengers.",
		e.Pickup, e.TripDate.Format("2 Jan 2006"), e.Destination, e.Passengers)
	if e.Notes != "" {
		brief += " Notes: " + e.Notes
	}
	return jobDocuments{Documents: []model.BookingDocument{
		{Kind: "job_sheet", Title: "Job sheet " + b.ID, Content: sheet},
		{Kind: "driver_brief", Title: "Driver brief", Content: brief},
	}}
}

type personalizedEmails struct {
	CustomerEmail model.EmailDraft `json:"customerEmail"`
	SupplierEmail model.EmailDraft `json:"supplierEmail"`
}

func personalizeFallback(e *model.Enquiry, b *model.Booking, sup *model.Supplier) personalizedEmails {
	supplier := "your supplier"
	if sup != nil {
		supplier = sup.Name
	}
	return personalizedEmails{
		CustomerEmail: model.EmailDraft{
			Subject: "Your coach hire is confirmed",
			Body: fmt.Sprintf("Dear %s,\n\nYour booking %s is confirmed: %s. Your operator is %s.\n\nKind regards,\nThe bookings team",
				greetingName(e), b.ID, tripLine(e), supplier),
		},
		SupplierEmail: model.EmailDraft{
			Subject: "Job confirmation " + b.ID,
			Body: fmt.Sprintf("Hello,\n\nPlease confirm the job %s: %s. The job sheet is attached.\n\nThanks,\nThe bookings team",
				b.ID, tripLine(e)),
		},
	}
}
