package model

import (
	"encoding/json"
	"time"
)

type EnquiryStatus string

const (
	EnquiryNew              EnquiryStatus = "new"
	EnquirySentToSuppliers  EnquiryStatus = "sent_to_suppliers"
	EnquiryBidsComplete     EnquiryStatus = "bids_complete"
	EnquirySupplierSelected EnquiryStatus = "supplier_selected"
	EnquiryQuoteReady       EnquiryStatus = "quote_ready"
	EnquiryQuoteSent        EnquiryStatus = "quote_sent"
	EnquiryBooked           EnquiryStatus = "booked"
	EnquiryCancelled        EnquiryStatus = "cancelled"
)

// Enquiry is a customer's trip request.
type Enquiry struct {
	ID             string
	InboundEmailID string
	CustomerName   string
	CustomerEmail  string
	Pickup         string
	PickupLat      float64
	PickupLng      float64
	Destination    string
	TripDate       time.Time
	ReturnDate     *time.Time
	Passengers     int
	VehicleType    string
	Notes          string
	Status         EnquiryStatus
	Analysis       *EnquiryAnalysis
	Shortlist      []string
	Version        int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type EnquiryAnalysis struct {
	TripType            string   `json:"tripType"`
	Complexity          string   `json:"complexity"`
	Urgency             string   `json:"urgency"`
	SuggestedVehicle    string   `json:"suggestedVehicle"`
	SpecialRequirements []string `json:"specialRequirements,omitempty"`
}

type InboundEmail struct {
	ID         string
	From       string
	Subject    string
	Body       string
	EnquiryID  string
	ReceivedAt time.Time
}

type Supplier struct {
	ID               string
	Name             string
	Email            string
	Region           string
	Lat              float64
	Lng              float64
	Rating           float64 // 0..5
	Reliability      float64 // 0..1
	AvgResponseHours float64
	FleetTypes       []string
	MaxPassengers    int
	Active           bool
}

type SupplierQuoteStatus string

const (
	SupplierQuoteRequested SupplierQuoteStatus = "requested"
	SupplierQuoteSubmitted SupplierQuoteStatus = "submitted"
	SupplierQuoteDeclined  SupplierQuoteStatus = "declined"
	SupplierQuoteExpired   SupplierQuoteStatus = "expired"
	SupplierQuoteSelected  SupplierQuoteStatus = "selected"
	SupplierQuoteRejected  SupplierQuoteStatus = "rejected"
)

// Resolved reports whether the supplier has answered or the deadline passed.
func (s SupplierQuoteStatus) Resolved() bool { return s != SupplierQuoteRequested }

// SupplierQuote is one supplier's bid request and, once submitted, its price.
type SupplierQuote struct {
	ID          string
	EnquiryID   string
	SupplierID  string
	Status      SupplierQuoteStatus
	PricePence  int64
	VehicleType string
	Capacity    int
	Notes       string
	Score       float64
	Deadline    time.Time
	RequestedAt time.Time
	SubmittedAt *time.Time
	UpdatedAt   time.Time
}

type CustomerQuoteStatus string

const (
	CustomerQuoteDraft       CustomerQuoteStatus = "draft"
	CustomerQuoteReadyToSend CustomerQuoteStatus = "ready_to_send"
	CustomerQuoteSent        CustomerQuoteStatus = "sent"
	CustomerQuoteAccepted    CustomerQuoteStatus = "accepted"
)

// CustomerQuote holds money in pence.
type CustomerQuote struct {
	ID                 string
	EnquiryID          string
	SupplierQuoteID    string
	PipelineID         string
	SupplierPricePence int64
	MarkupPercent      float64
	MarkupPence        int64
	SubtotalPence      int64
	VATRatePercent     float64
	VATPence           int64
	TotalPence         int64
	Description        string
	EmailBody          string
	Status             CustomerQuoteStatus
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Priced reports whether totals have been computed.
func (q *CustomerQuote) Priced() bool { return q.TotalPence > 0 }

type BookingStatus string

const (
	BookingConfirmed      BookingStatus = "confirmed"
	BookingDocumentsReady BookingStatus = "documents_ready"
)

type Booking struct {
	ID              string
	EnquiryID       string
	CustomerQuoteID string
	SupplierID      string
	Status          BookingStatus
	Documents       []BookingDocument
	CustomerEmail   *EmailDraft
	SupplierEmail   *EmailDraft
	PaidAt          time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type BookingDocument struct {
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type EmailDraft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// MarshalDocuments is used by stores that persist documents as JSON.
func MarshalDocuments(d []BookingDocument) []byte {
	if d == nil {
		d = []BookingDocument{}
	}
	b, _ := json.Marshal(d)
	return b
}
