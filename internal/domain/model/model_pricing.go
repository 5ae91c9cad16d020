package model

import (
	"time"

	"github.com/google/uuid"
)

// ModelPricing stores per-model prices in micro-USD per 1K tokens.
type ModelPricing struct {
	ID                   string
	ModelName            string
	InputPer1KMicros     int64
	OutputPer1KMicros    int64
	ExpectedOutputTokens int
	Active               bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func NewModelPricing(modelName string, inputPer1K, outputPer1K int64, expectedOut int, active bool) *ModelPricing {
	now := time.Now()
	return &ModelPricing{
		ID:                   uuid.NewString(),
		ModelName:            modelName,
		InputPer1KMicros:     inputPer1K,
		OutputPer1KMicros:    outputPer1K,
		ExpectedOutputTokens: expectedOut,
		Active:               active,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// Cost returns the micro-USD price of a call, rounded up.
func (p *ModelPricing) Cost(promptTokens, completionTokens int) int64 {
	total := int64(promptTokens)*p.InputPer1KMicros + int64(completionTokens)*p.OutputPer1KMicros
	return (total + 999) / 1000
}

// Estimate prices a call before it is made.
func (p *ModelPricing) Estimate(promptTokens int) int64 {
	return p.Cost(promptTokens, p.ExpectedOutputTokens)
}
