package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/repository"
	"coachhire-ai/internal/infra/metrics"
)

type CreateReviewInput struct {
	TaskType   model.TaskType
	Reason     model.ReviewReason
	Entity     model.EntityRef
	PipelineID string
	Flow       model.FlowName
	Step       string
	Detail     json.RawMessage
}

// ReviewTracker owns the lifecycle of human review tasks.
type ReviewTracker interface {
	// Create is the only creation path. It is idempotent on (pipeline, step):
	// a second call returns the existing task with created=false.
	Create(ctx context.Context, tx repository.Tx, in CreateReviewInput) (*model.HumanReviewTask, bool, error)
	Get(ctx context.Context, id string) (*model.HumanReviewTask, error)
	FindByKey(ctx context.Context, pipelineID, step string) (*model.HumanReviewTask, error)
	List(ctx context.Context, f repository.ReviewFilter) ([]*model.HumanReviewTask, error)
	// Transition applies one forward move. Illegal moves return domain.ErrInvalidTransition.
	Transition(ctx context.Context, id string, to model.ReviewStatus, actorID string, res *model.Resolution) (*model.HumanReviewTask, error)
	// OnResolved registers the hook that resumes the owning pipeline.
	OnResolved(h ResolutionHook)
}

// ResolutionHook runs in the transaction that moves a task to RESOLVED. An
// error rolls the resolution back, so a task is never resolved without its
// pipeline being resumed.
type ResolutionHook func(ctx context.Context, tx repository.Tx, t *model.HumanReviewTask) error

var _ ReviewTracker = (*reviewTracker)(nil)

type reviewTracker struct {
	tx   repository.TransactionManager
	repo repository.ReviewTaskRepository
	hook ResolutionHook
	now  func() time.Time
	log  *zerolog.Logger
}

func NewReviewTracker(tx repository.TransactionManager, repo repository.ReviewTaskRepository, logger *zerolog.Logger) ReviewTracker {
	l := logger.With().Str("component", "ReviewTracker").Logger()
	return &reviewTracker{tx: tx, repo: repo, now: time.Now, log: &l}
}

func (r *reviewTracker) OnResolved(h ResolutionHook) { r.hook = h }

func (r *reviewTracker) Create(ctx context.Context, tx repository.Tx, in CreateReviewInput) (*model.HumanReviewTask, bool, error) {
	if in.PipelineID == "" || in.Step == "" || in.Reason == "" {
		return nil, false, fmt.Errorf("%w: review task needs pipeline, step and reason", domain.ErrInvalidArgument)
	}
	t := model.NewReviewTask(in.TaskType, in.Reason, in.Entity, in.PipelineID, in.Flow, in.Step)
	t.Detail = in.Detail
	got, created, err := r.repo.Create(ctx, tx, t)
	if err != nil {
		return nil, false, err
	}
	if created {
		metrics.IncReviewTask(string(got.Reason))
		r.log.Info().Str("review_id", got.ID).Str("reason", string(got.Reason)).
			Str("pipeline_id", got.PipelineID).Str("step", got.Step).Msg("review task created")
	}
	return got, created, nil
}

func (r *reviewTracker) Get(ctx context.Context, id string) (*model.HumanReviewTask, error) {
	return r.repo.FindByID(ctx, repository.NoTX, id)
}

func (r *reviewTracker) FindByKey(ctx context.Context, pipelineID, step string) (*model.HumanReviewTask, error) {
	return r.repo.FindByDedupeKey(ctx, repository.NoTX, model.ReviewKey(pipelineID, step))
}

func (r *reviewTracker) List(ctx context.Context, f repository.ReviewFilter) ([]*model.HumanReviewTask, error) {
	return r.repo.List(ctx, repository.NoTX, f)
}

func (r *reviewTracker) Transition(ctx context.Context, id string, to model.ReviewStatus, actorID string, res *model.Resolution) (*model.HumanReviewTask, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return nil, fmt.Errorf("%w: actor is required", domain.ErrInvalidArgument)
	}
	// One reload on a lost race: the loser re-checks legality against the winner's state.
	for attempt := 0; attempt < 2; attempt++ {
		t, err := r.repo.FindByID(ctx, repository.NoTX, id)
		if err != nil {
			return nil, err
		}
		if !model.CanTransition(t.Status, to) {
			return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, t.Status, to)
		}
		from, version := t.Status, t.Version
		now := r.now().UTC()
		t.Status = to
		t.Version++
		t.UpdatedAt = now
		switch to {
		case model.ReviewInReview:
			t.AssignedTo = actorID
		case model.ReviewResolved:
			t.ResolvedBy = actorID
			t.ResolvedAt = &now
			if res != nil {
				t.ResolutionNote = res.Note
				t.Override = res.Override
			}
		case model.ReviewDismissed:
			if t.AssignedTo == "" {
				t.AssignedTo = actorID
			}
			if res != nil {
				t.ResolutionNote = res.Note
			}
		}

		var resumeErr error
		err = r.tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			if err := r.repo.Update(ctx, tx, t, from, version); err != nil {
				return err
			}
			if to == model.ReviewResolved && r.hook != nil {
				if err := r.hook(ctx, tx, t); err != nil {
					resumeErr = err
					return err
				}
			}
			return nil
		})
		if resumeErr != nil {
			r.log.Error().Err(resumeErr).Str("review_id", t.ID).Str("pipeline_id", t.PipelineID).
				Msg("pipeline resume failed, resolution rolled back")
			return nil, fmt.Errorf("resume pipeline: %w", resumeErr)
		}
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		metrics.IncReviewTransition(string(to))
		r.log.Info().Str("review_id", t.ID).Str("from", string(from)).Str("to", string(to)).
			Str("actor", actorID).Msg("review task transitioned")
		return t, nil
	}
	return nil, domain.ErrConflict
}
