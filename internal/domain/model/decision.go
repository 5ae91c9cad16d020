package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TaskType identifies an AI-assisted step kind.
type TaskType string

const (
	TaskEmailParser       TaskType = "email-parser"
	TaskEnquiryAnalyzer   TaskType = "enquiry-analyzer"
	TaskSupplierSelector  TaskType = "supplier-selector"
	TaskBidEvaluator      TaskType = "bid-evaluator"
	TaskMarkupCalculator  TaskType = "markup-calculator"
	TaskQuoteContent      TaskType = "quote-content"
	TaskJobDocuments      TaskType = "job-documents"
	TaskEmailPersonalizer TaskType = "email-personalizer"
)

// TaskTypes lists every AI task type.
var TaskTypes = []TaskType{
	TaskEmailParser, TaskEnquiryAnalyzer, TaskSupplierSelector, TaskBidEvaluator,
	TaskMarkupCalculator, TaskQuoteContent, TaskJobDocuments, TaskEmailPersonalizer,
}

// Critical steps keep running when the daily budget pauses non-critical work.
func (t TaskType) Critical() bool {
	switch t {
	case TaskEmailParser, TaskBidEvaluator, TaskMarkupCalculator:
		return true
	}
	return false
}

func (t TaskType) Valid() bool {
	for _, tt := range TaskTypes {
		if tt == t {
			return true
		}
	}
	return false
}

type DecisionAction string

const (
	ActionAutoExecuted DecisionAction = "auto_executed"
	ActionEscalated    DecisionAction = "escalated"
	ActionOverridden   DecisionAction = "overridden"
)

// AiDecisionLog is append-only. (PipelineID, Step, Action) is unique, which makes
// the log double as the step checkpoint across job retries.
type AiDecisionLog struct {
	ID           string
	PipelineID   string
	Flow         FlowName
	Step         string
	TaskType     TaskType
	Action       DecisionAction
	Confidence   float64
	CostMicros   int64
	LatencyMs    int64
	ModelID      string
	Entity       EntityRef
	Output       json.RawMessage
	ReviewTaskID string
	OverBudget   bool
	Fallback     bool
	CreatedAt    time.Time
}

func NewDecisionLog(pipelineID string, flow FlowName, step string, task TaskType, action DecisionAction) *AiDecisionLog {
	return &AiDecisionLog{
		ID:         uuid.NewString(),
		PipelineID: pipelineID,
		Flow:       flow,
		Step:       step,
		TaskType:   task,
		Action:     action,
		CreatedAt:  time.Now().UTC(),
	}
}

// PolicyFlag is raised by step logic and forces escalation regardless of confidence.
type PolicyFlag string

const (
	FlagAnomalousPricing  PolicyFlag = "ANOMALOUS_PRICING"
	FlagLowSupplierRating PolicyFlag = "LOW_SUPPLIER_RATING"
)

// Reason maps a forcing flag to the review reason it produces.
func (f PolicyFlag) Reason() ReviewReason {
	switch f {
	case FlagAnomalousPricing:
		return ReasonAnomalousPricing
	case FlagLowSupplierRating:
		return ReasonLowSupplierRating
	}
	return ReasonPolicyEscalation
}
