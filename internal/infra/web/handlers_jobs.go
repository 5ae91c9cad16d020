package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/repository"
	"coachhire-ai/internal/usecase"
)

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repository.JobFilter{Status: model.JobStatus(q.Get("status")), Limit: 100}
	if v := q.Get("name"); v != "" {
		name, err := model.ParseFlowName(v)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		f.Name = name
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a positive integer"})
			return
		}
		f.Limit = n
	}
	jobs, err := s.deps.Jobs.List(r.Context(), repository.NoTX, f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	j, err := s.deps.Jobs.FindByID(r.Context(), repository.NoTX, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

type enqueueRequest struct {
	Name        string           `json:"name" validate:"required"`
	Payload     model.JobPayload `json:"payload"`
	MaxAttempts int              `json:"maxAttempts,omitempty" validate:"gte=0"`
	Priority    int              `json:"priority,omitempty"`
	DelaySecond int              `json:"delaySeconds,omitempty" validate:"gte=0"`
}

// handleEnqueue lets an operator start a flow by hand; payload rules are the queue's.
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	name, err := model.ParseFlowName(req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts := &model.JobOptions{
		MaxAttempts: req.MaxAttempts,
		Priority:    req.Priority,
		Delay:       time.Duration(req.DelaySecond) * time.Second,
	}
	job, err := s.deps.Queue.Enqueue(r.Context(), repository.NoTX, name, req.Payload, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleInboundEmail(w http.ResponseWriter, r *http.Request) {
	var req usecase.InboundEmailInput
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	m, job, err := s.deps.Events.InboundEmailReceived(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"email": m, "job": job})
}

type enquiryRequest struct {
	CustomerName  string     `json:"customerName"`
	CustomerEmail string     `json:"customerEmail" validate:"required,email"`
	Pickup        string     `json:"pickup" validate:"required"`
	PickupLat     float64    `json:"pickupLat"`
	PickupLng     float64    `json:"pickupLng"`
	Destination   string     `json:"destination" validate:"required"`
	TripDate      time.Time  `json:"tripDate" validate:"required"`
	ReturnDate    *time.Time `json:"returnDate,omitempty"`
	Passengers    int        `json:"passengers" validate:"gt=0"`
	VehicleType   string     `json:"vehicleType"`
	Notes         string     `json:"notes"`
}

func (s *Server) handleEnquirySubmitted(w http.ResponseWriter, r *http.Request) {
	var req enquiryRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	e := &model.Enquiry{
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		Pickup:        req.Pickup,
		PickupLat:     req.PickupLat,
		PickupLng:     req.PickupLng,
		Destination:   req.Destination,
		TripDate:      req.TripDate,
		ReturnDate:    req.ReturnDate,
		Passengers:    req.Passengers,
		VehicleType:   req.VehicleType,
		Notes:         req.Notes,
	}
	job, err := s.deps.Events.EnquirySubmitted(r.Context(), e)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"enquiry": e, "job": job})
}

func (s *Server) handleCancelEnquiry(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Events.CancelEnquiry(r.Context(), chi.URLParam(r, "id"), actorFrom(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBidSubmitted(w http.ResponseWriter, r *http.Request) {
	var req usecase.BidInput
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	q, err := s.deps.Events.BidSubmitted(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

type declineRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleBidDeclined(w http.ResponseWriter, r *http.Request) {
	var req declineRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	q, err := s.deps.Events.BidDeclined(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleSendQuote(w http.ResponseWriter, r *http.Request) {
	q, err := s.deps.Events.SendQuote(r.Context(), chi.URLParam(r, "id"), actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

type paymentRequest struct {
	PaidAt time.Time `json:"paidAt"`
}

func (s *Server) handlePayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	b, err := s.deps.Events.PaymentSucceeded(r.Context(), chi.URLParam(r, "id"), req.PaidAt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}
