package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/repository"
)

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repository.ReviewFilter{
		Status: model.ReviewStatus(q.Get("status")),
		Reason: model.ReviewReason(q.Get("reason")),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a non-negative integer"})
			return
		}
		f.Limit = n
	}
	tasks, err := s.deps.Reviews.List(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleGetReview(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.Reviews.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleClaimReview(w http.ResponseWriter, r *http.Request) {
	s.transitionReview(w, r, model.ReviewInReview, nil)
}

type resolveRequest struct {
	Note     string          `json:"note"`
	Override json.RawMessage `json:"override,omitempty"`
}

func (s *Server) handleResolveReview(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	s.transitionReview(w, r, model.ReviewResolved, &model.Resolution{Note: req.Note, Override: req.Override})
}

type dismissRequest struct {
	Note string `json:"note" validate:"required"`
}

// Dismissing needs a reason on record since the pipeline is left halted.
func (s *Server) handleDismissReview(w http.ResponseWriter, r *http.Request) {
	var req dismissRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.transitionReview(w, r, model.ReviewDismissed, &model.Resolution{Note: req.Note})
}

func (s *Server) transitionReview(w http.ResponseWriter, r *http.Request, to model.ReviewStatus, res *model.Resolution) {
	t, err := s.deps.Reviews.Transition(r.Context(), chi.URLParam(r, "id"), to, actorFrom(r.Context()), res)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
