package model

import (
	"encoding/json"
	"math"
	"time"
)

// AiConfig keys.
const (
	ConfigConfidenceThresholds = "confidence_thresholds"
	ConfigMarkupBounds         = "markup_bounds"
	ConfigSupplierWeights      = "supplier_selection_weights"
	ConfigDailyCostBudget      = "daily_cost_budget"
	ConfigPipelineToggles      = "pipeline_toggles"
	ConfigBidSettings          = "bid_settings"
)

var ConfigKeys = []string{
	ConfigConfidenceThresholds, ConfigMarkupBounds, ConfigSupplierWeights,
	ConfigDailyCostBudget, ConfigPipelineToggles, ConfigBidSettings,
}

// AiConfigEntry is one versioned key. Writes are last-write-wins.
type AiConfigEntry struct {
	Key       string
	Value     json.RawMessage
	Version   int
	UpdatedBy string
	UpdatedAt time.Time
}

// ConfidenceThresholds maps task type to the minimum score for auto-execution.
type ConfidenceThresholds map[TaskType]float64

type MarkupBounds struct {
	MinPercent     float64 `json:"minPercent" validate:"gte=0"`
	MaxPercent     float64 `json:"maxPercent" validate:"gtefield=MinPercent,lte=500"`
	DefaultPercent float64 `json:"defaultPercent" validate:"gtefield=MinPercent,ltefield=MaxPercent"`
}

// Clamp keeps p inside [MinPercent, MaxPercent].
func (b MarkupBounds) Clamp(p float64) float64 {
	return math.Min(b.MaxPercent, math.Max(b.MinPercent, p))
}

type SupplierWeights struct {
	Rating               float64 `json:"rating" validate:"gte=0"`
	PriceCompetitiveness float64 `json:"priceCompetitiveness" validate:"gte=0"`
	Reliability          float64 `json:"reliability" validate:"gte=0"`
	Proximity            float64 `json:"proximity" validate:"gte=0"`
	ResponseTime         float64 `json:"responseTime" validate:"gte=0"`
	FleetMatch           float64 `json:"fleetMatch" validate:"gte=0"`
}

func (w SupplierWeights) Sum() float64 {
	return w.Rating + w.PriceCompetitiveness + w.Reliability + w.Proximity + w.ResponseTime + w.FleetMatch
}

// DefaultSupplierWeights is the seeded weighting.
var DefaultSupplierWeights = SupplierWeights{
	Rating: 25, PriceCompetitiveness: 20, Reliability: 20, Proximity: 15, ResponseTime: 10, FleetMatch: 10,
}

type DailyCostBudget struct {
	BudgetUSD               float64 `json:"budgetUsd" validate:"gt=0"`
	WarningThresholdPercent float64 `json:"warningThresholdPercent" validate:"gt=0,lte=100"`
	PauseNonCriticalAt      float64 `json:"pauseNonCriticalAt" validate:"gt=0,lte=100,gtefield=WarningThresholdPercent"`
}

func (b DailyCostBudget) BudgetMicros() int64 { return MicrosFromUSD(b.BudgetUSD) }

func (b DailyCostBudget) WarnMicros() int64 {
	return int64(float64(b.BudgetMicros()) * b.WarningThresholdPercent / 100)
}

func (b DailyCostBudget) PauseMicros() int64 {
	return int64(float64(b.BudgetMicros()) * b.PauseNonCriticalAt / 100)
}

// StatusFor classifies a spend level.
func (b DailyCostBudget) StatusFor(spent int64) BudgetStatus {
	switch {
	case spent >= b.PauseMicros():
		return BudgetPauseNonCritical
	case spent >= b.WarnMicros():
		return BudgetWarn
	}
	return BudgetOK
}

// PipelineToggles keys are job names or their short form; missing means enabled.
type PipelineToggles map[string]bool

func (t PipelineToggles) Enabled(f FlowName) bool {
	if v, ok := t[string(f)]; ok {
		return v
	}
	if v, ok := t[f.Short()]; ok {
		return v
	}
	return true
}

type BidSettings struct {
	DeadlineHours           int     `json:"deadlineHours" validate:"gt=0"`
	MinBidsRequired         int     `json:"minBidsRequired" validate:"gte=1"`
	MaxSuppliers            int     `json:"maxSuppliers" validate:"gt=0"`
	MinQualityScore         float64 `json:"minQualityScore" validate:"gte=0,lte=100"`
	AnomalyDeviationPercent float64 `json:"anomalyDeviationPercent" validate:"gt=0"`
	MinSupplierRating       float64 `json:"minSupplierRating" validate:"gte=0,lte=5"`
}
