package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/usecase"
)

func (s *Server) handleListConfig(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.Config.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	e, err := s.deps.Config.Get(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handlePutConfig takes the raw JSON value as the body.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		s.writeError(w, r, errors.Join(domain.ErrInvalidArgument, err))
		return
	}
	if !json.Valid(raw) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "body must be a JSON value"})
		return
	}
	e, err := s.deps.Config.Put(r.Context(), chi.URLParam(r, "key"), raw, actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Budget.Status(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleListPricing(w http.ResponseWriter, r *http.Request) {
	prices, err := s.deps.Pricing.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prices)
}

type pricingCreateRequest struct {
	Model                string `json:"model" validate:"required"`
	InputPer1KMicros     int64  `json:"inputPer1kMicros" validate:"gte=0"`
	OutputPer1KMicros    int64  `json:"outputPer1kMicros" validate:"gte=0"`
	ExpectedOutputTokens int    `json:"expectedOutputTokens" validate:"gte=0"`
}

func (s *Server) handleCreatePricing(w http.ResponseWriter, r *http.Request) {
	var req pricingCreateRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.deps.Pricing.Create(r.Context(), req.Model, req.InputPer1KMicros, req.OutputPer1KMicros, req.ExpectedOutputTokens)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

type pricingUpdateRequest struct {
	InputPer1KMicros     *int64 `json:"inputPer1kMicros,omitempty" validate:"omitempty,gte=0"`
	OutputPer1KMicros    *int64 `json:"outputPer1kMicros,omitempty" validate:"omitempty,gte=0"`
	ExpectedOutputTokens *int   `json:"expectedOutputTokens,omitempty" validate:"omitempty,gte=0"`
}

func (s *Server) handleUpdatePricing(w http.ResponseWriter, r *http.Request) {
	var req pricingUpdateRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.deps.Pricing.Update(r.Context(), chi.URLParam(r, "model"), usecase.PriceChange{
		InputPer1KMicros:     req.InputPer1KMicros,
		OutputPer1KMicros:    req.OutputPer1KMicros,
		ExpectedOutputTokens: req.ExpectedOutputTokens,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePricing(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Pricing.Delete(r.Context(), chi.URLParam(r, "model")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
