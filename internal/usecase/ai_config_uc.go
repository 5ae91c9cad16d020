package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"coachhire-ai/internal/domain"
	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/repository"
)

// AIConfigService reads and writes the admin-editable AiConfig keys. Every
// getter returns a domain.ConfigError when the stored value is missing or invalid.
type AIConfigService interface {
	Thresholds(ctx context.Context) (model.ConfidenceThresholds, error)
	MarkupBounds(ctx context.Context) (model.MarkupBounds, error)
	SupplierWeights(ctx context.Context) (model.SupplierWeights, error)
	DailyBudget(ctx context.Context) (model.DailyCostBudget, error)
	Toggles(ctx context.Context) (model.PipelineToggles, error)
	BidSettings(ctx context.Context) (model.BidSettings, error)
	FlowEnabled(ctx context.Context, flow model.FlowName) (bool, error)

	Get(ctx context.Context, key string) (*model.AiConfigEntry, error)
	List(ctx context.Context) ([]*model.AiConfigEntry, error)
	Put(ctx context.Context, key string, value json.RawMessage, actor string) (*model.AiConfigEntry, error)
	// EnsureDefaults writes the seeded value of every missing key.
	EnsureDefaults(ctx context.Context, actor string) (int, error)
}

var _ AIConfigService = (*aiConfigUC)(nil)

type aiConfigUC struct {
	repo repository.AiConfigRepository
	log  *zerolog.Logger
}

func NewAIConfigService(repo repository.AiConfigRepository, logger *zerolog.Logger) AIConfigService {
	l := logger.With().Str("component", "AIConfigService").Logger()
	return &aiConfigUC{repo: repo, log: &l}
}

// DefaultAiConfig is the seed used for fresh installs and dev mode.
func DefaultAiConfig() map[string]any {
	return map[string]any{
		model.ConfigConfidenceThresholds: model.ConfidenceThresholds{
			model.TaskEmailParser:       0.85,
			model.TaskEnquiryAnalyzer:   0.70,
			model.TaskSupplierSelector:  0.75,
			model.TaskBidEvaluator:      0.80,
			model.TaskMarkupCalculator:  0.90,
			model.TaskQuoteContent:      0.70,
			model.TaskJobDocuments:      0.75,
			model.TaskEmailPersonalizer: 0.70,
		},
		model.ConfigMarkupBounds:    model.MarkupBounds{MinPercent: 10, MaxPercent: 40, DefaultPercent: 22},
		model.ConfigSupplierWeights: model.DefaultSupplierWeights,
		model.ConfigDailyCostBudget: model.DailyCostBudget{BudgetUSD: 25, WarningThresholdPercent: 80, PauseNonCriticalAt: 95},
		model.ConfigPipelineToggles: model.PipelineToggles{},
		model.ConfigBidSettings: model.BidSettings{
			DeadlineHours: 48, MinBidsRequired: 2, MaxSuppliers: 5,
			MinQualityScore: 55, AnomalyDeviationPercent: 35, MinSupplierRating: 3.5,
		},
	}
}

func (s *aiConfigUC) Thresholds(ctx context.Context) (model.ConfidenceThresholds, error) {
	var th model.ConfidenceThresholds
	if err := s.load(ctx, model.ConfigConfidenceThresholds, &th); err != nil {
		return nil, err
	}
	return th, nil
}

func (s *aiConfigUC) MarkupBounds(ctx context.Context) (model.MarkupBounds, error) {
	var b model.MarkupBounds
	err := s.load(ctx, model.ConfigMarkupBounds, &b)
	return b, err
}

func (s *aiConfigUC) SupplierWeights(ctx context.Context) (model.SupplierWeights, error) {
	var w model.SupplierWeights
	err := s.load(ctx, model.ConfigSupplierWeights, &w)
	return w, err
}

func (s *aiConfigUC) DailyBudget(ctx context.Context) (model.DailyCostBudget, error) {
	var b model.DailyCostBudget
	err := s.load(ctx, model.ConfigDailyCostBudget, &b)
	return b, err
}

func (s *aiConfigUC) BidSettings(ctx context.Context) (model.BidSettings, error) {
	var b model.BidSettings
	err := s.load(ctx, model.ConfigBidSettings, &b)
	return b, err
}

func (s *aiConfigUC) Toggles(ctx context.Context) (model.PipelineToggles, error) {
	var t model.PipelineToggles
	err := s.load(ctx, model.ConfigPipelineToggles, &t)
	if errors.Is(err, domain.ErrNotFound) {
		return model.PipelineToggles{}, nil
	}
	return t, err
}

func (s *aiConfigUC) FlowEnabled(ctx context.Context, flow model.FlowName) (bool, error) {
	t, err := s.Toggles(ctx)
	if err != nil {
		return false, err
	}
	return t.Enabled(flow), nil
}

func (s *aiConfigUC) Get(ctx context.Context, key string) (*model.AiConfigEntry, error) {
	return s.repo.Get(ctx, repository.NoTX, key)
}

func (s *aiConfigUC) List(ctx context.Context) ([]*model.AiConfigEntry, error) {
	return s.repo.List(ctx, repository.NoTX)
}

// Put validates the value for its key before storing it.
func (s *aiConfigUC) Put(ctx context.Context, key string, value json.RawMessage, actor string) (*model.AiConfigEntry, error) {
	key = strings.TrimSpace(key)
	if err := ValidateConfigValue(key, value); err != nil {
		return nil, err
	}
	e := &model.AiConfigEntry{Key: key, Value: value, UpdatedBy: actor, UpdatedAt: time.Now().UTC()}
	if err := s.repo.Put(ctx, repository.NoTX, e); err != nil {
		return nil, err
	}
	s.log.Info().Str("key", key).Str("actor", actor).Int("version", e.Version).Msg("ai config updated")
	return e, nil
}

func (s *aiConfigUC) EnsureDefaults(ctx context.Context, actor string) (int, error) {
	n := 0
	for key, v := range DefaultAiConfig() {
		if _, err := s.repo.Get(ctx, repository.NoTX, key); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrNotFound) {
			return n, err
		}
		raw, _ := json.Marshal(v)
		if _, err := s.Put(ctx, key, raw, actor); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// load reads key at the time of the call; values are never cached across steps here.
func (s *aiConfigUC) load(ctx context.Context, key string, out any) error {
	e, err := s.repo.Get(ctx, repository.NoTX, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			if key == model.ConfigPipelineToggles {
				return err
			}
			return domain.NewConfigError(key, "missing")
		}
		return err
	}
	return decodeConfig(key, e.Value, out)
}

// ValidateConfigValue checks a raw value against the schema of key.
func ValidateConfigValue(key string, raw json.RawMessage) error {
	var target any
	switch key {
	case model.ConfigConfidenceThresholds:
		target = &model.ConfidenceThresholds{}
	case model.ConfigMarkupBounds:
		target = &model.MarkupBounds{}
	case model.ConfigSupplierWeights:
		target = &model.SupplierWeights{}
	case model.ConfigDailyCostBudget:
		target = &model.DailyCostBudget{}
	case model.ConfigPipelineToggles:
		target = &model.PipelineToggles{}
	case model.ConfigBidSettings:
		target = &model.BidSettings{}
	default:
		return fmt.Errorf("%w: unknown ai config key %q", domain.ErrInvalidArgument, key)
	}
	return decodeConfig(key, raw, target)
}

func decodeConfig(key string, raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return domain.NewConfigError(key, "empty value")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return domain.NewConfigError(key, "decode: %v", err)
	}
	switch v := out.(type) {
	case *model.ConfidenceThresholds:
		for task, th := range *v {
			if !task.Valid() {
				return domain.NewConfigError(key, "unknown task type %q", task)
			}
			if math.IsNaN(th) || th < 0 || th > 1 {
				return domain.NewConfigError(key, "threshold for %s must be within [0,1], got %v", task, th)
			}
		}
		return nil
	case *model.PipelineToggles:
		for name := range *v {
			if _, err := model.ParseFlowName(name); err != nil && !isShortFlow(name) {
				return domain.NewConfigError(key, "unknown pipeline %q", name)
			}
		}
		return nil
	case *model.SupplierWeights:
		if err := model.ValidateValue(*v, domain.ErrInvalidConfig); err != nil {
			return domain.NewConfigError(key, "%v", err)
		}
		if math.Abs(v.Sum()-100) > 1e-6 {
			return domain.NewConfigError(key, "weights must sum to 100, got %v", v.Sum())
		}
		return nil
	}
	if err := model.ValidateValue(out, domain.ErrInvalidConfig); err != nil {
		return domain.NewConfigError(key, "%v", err)
	}
	return nil
}

func isShortFlow(name string) bool {
	for _, f := range model.Flows {
		if f.Short() == name {
			return true
		}
	}
	return false
}
