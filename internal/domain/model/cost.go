package model

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// MicrosPerUSD converts dollars to the integer micro-USD used for AI spend.
const MicrosPerUSD = 1_000_000

func MicrosFromUSD(usd float64) int64 { return int64(math.Round(usd * MicrosPerUSD)) }

func USDFromMicros(m int64) float64 { return float64(m) / MicrosPerUSD }

type BudgetStatus string

const (
	BudgetOK               BudgetStatus = "OK"
	BudgetWarn             BudgetStatus = "WARN"
	BudgetPauseNonCritical BudgetStatus = "PAUSE_NON_CRITICAL"
)

// AiCostRecord is written as a reservation before a billed call and settled
// to the provider-reported cost afterwards.
type AiCostRecord struct {
	ID         string
	TaskType   TaskType
	PipelineID string
	ModelID    string
	CostMicros int64
	Critical   bool
	Settled    bool
	CreatedAt  time.Time
}

func NewCostRecord(task TaskType, pipelineID, modelID string, estimateMicros int64, now time.Time) *AiCostRecord {
	return &AiCostRecord{
		ID:         uuid.NewString(),
		TaskType:   task,
		PipelineID: pipelineID,
		ModelID:    modelID,
		CostMicros: estimateMicros,
		Critical:   task.Critical(),
		CreatedAt:  now,
	}
}

// DayStart returns the UTC midnight that opens t's budget day.
func DayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
