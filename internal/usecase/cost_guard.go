package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/repository"
	"coachhire-ai/internal/infra/metrics"
)

// CostGuard tracks AI spend against the daily budget.
type CostGuard interface {
	// CheckBudget classifies today's spend. It does not reserve anything.
	CheckBudget(ctx context.Context, task model.TaskType) (model.BudgetStatus, error)
	// Authorize atomically reserves the estimated cost of one billed call.
	// Non-critical tasks are refused (Allowed=false) once the reservation would
	// cross pauseNonCriticalAt; critical tasks always proceed.
	Authorize(ctx context.Context, task model.TaskType, pipelineID, modelID string, estimateMicros int64) (*Reservation, error)
	// Settle replaces the reservation with the provider-reported cost (0 on failure).
	Settle(ctx context.Context, r *Reservation, actualMicros int64) error
	Status(ctx context.Context) (*BudgetSnapshot, error)
}

type Reservation struct {
	RecordID       string
	TaskType       model.TaskType
	Allowed        bool
	Status         model.BudgetStatus
	OverBudget     bool
	EstimateMicros int64
}

type BudgetSnapshot struct {
	Day         time.Time                `json:"day"`
	Budget      model.DailyCostBudget    `json:"budget"`
	SpentMicros int64                    `json:"spentMicros"`
	SpentUSD    float64                  `json:"spentUsd"`
	Status      model.BudgetStatus       `json:"status"`
	ByTask      map[model.TaskType]int64 `json:"byTaskMicros"`
}

var _ CostGuard = (*costGuard)(nil)

type costGuard struct {
	costs repository.CostRepository
	cfg   AIConfigService
	now   func() time.Time
	log   *zerolog.Logger
}

func NewCostGuard(costs repository.CostRepository, cfg AIConfigService, logger *zerolog.Logger) CostGuard {
	l := logger.With().Str("component", "CostGuard").Logger()
	return &costGuard{costs: costs, cfg: cfg, now: time.Now, log: &l}
}

func (g *costGuard) CheckBudget(ctx context.Context, task model.TaskType) (model.BudgetStatus, error) {
	b, err := g.cfg.DailyBudget(ctx)
	if err != nil {
		return "", err
	}
	spent, err := g.costs.SpentSince(ctx, repository.NoTX, model.DayStart(g.now()))
	if err != nil {
		return "", err
	}
	st := b.StatusFor(spent)
	metrics.SetBudget(spent, string(st))
	return st, nil
}

func (g *costGuard) Authorize(ctx context.Context, task model.TaskType, pipelineID, modelID string, estimate int64) (*Reservation, error) {
	b, err := g.cfg.DailyBudget(ctx)
	if err != nil {
		return nil, err
	}
	if estimate < 0 {
		estimate = 0
	}
	rec := model.NewCostRecord(task, pipelineID, modelID, estimate, g.now().UTC())
	ceiling := b.PauseMicros()
	if task.Critical() {
		ceiling = -1
	}

	before, err := g.costs.Reserve(ctx, rec, ceiling)
	if errors.Is(err, domain.ErrBudgetExceeded) {
		metrics.IncBudgetPaused(string(task))
		g.log.Warn().Str("task", string(task)).Str("pipeline_id", pipelineID).
			Int64("estimate_micros", estimate).Msg("non-critical AI call paused by daily budget")
		return &Reservation{TaskType: task, Allowed: false, Status: model.BudgetPauseNonCritical, EstimateMicros: estimate}, nil
	}
	if err != nil {
		return nil, err
	}

	after := before + estimate
	res := &Reservation{
		RecordID:       rec.ID,
		TaskType:       task,
		Allowed:        true,
		Status:         b.StatusFor(after),
		EstimateMicros: estimate,
	}
	if task.Critical() && after > b.BudgetMicros() {
		res.OverBudget = true
		metrics.IncOverBudget(string(task))
		g.log.Warn().Str("task", string(task)).Str("pipeline_id", pipelineID).
			Int64("spent_micros", after).Int64("budget_micros", b.BudgetMicros()).
			Msg("critical AI call proceeding over daily budget")
	} else if res.Status == model.BudgetWarn && b.StatusFor(before) == model.BudgetOK {
		g.log.Warn().Int64("spent_micros", after).Float64("warning_percent", b.WarningThresholdPercent).
			Msg("daily AI budget warning threshold crossed")
	}
	metrics.SetBudget(after, string(res.Status))
	return res, nil
}

func (g *costGuard) Settle(ctx context.Context, r *Reservation, actual int64) error {
	if r == nil || r.RecordID == "" {
		return nil
	}
	if actual < 0 {
		actual = 0
	}
	return g.costs.Settle(ctx, r.RecordID, actual)
}

func (g *costGuard) Status(ctx context.Context) (*BudgetSnapshot, error) {
	b, err := g.cfg.DailyBudget(ctx)
	if err != nil {
		return nil, err
	}
	day := model.DayStart(g.now())
	byTask, err := g.costs.SpentByTaskSince(ctx, repository.NoTX, day)
	if err != nil {
		return nil, err
	}
	var spent int64
	for _, v := range byTask {
		spent += v
	}
	st := b.StatusFor(spent)
	metrics.SetBudget(spent, string(st))
	return &BudgetSnapshot{
		Day:         day,
		Budget:      b,
		SpentMicros: spent,
		SpentUSD:    model.USDFromMicros(spent),
		Status:      st,
		ByTask:      byTask,
	}, nil
}
