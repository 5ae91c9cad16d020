package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type ReviewStatus string

const (
	ReviewPending   ReviewStatus = "PENDING"
	ReviewInReview  ReviewStatus = "IN_REVIEW"
	ReviewResolved  ReviewStatus = "RESOLVED"
	ReviewDismissed ReviewStatus = "DISMISSED"
)

type ReviewReason string

const (
	ReasonLowConfidence     ReviewReason = "LOW_CONFIDENCE"
	ReasonAIFailure         ReviewReason = "AI_FAILURE"
	ReasonPolicyEscalation  ReviewReason = "POLICY_ESCALATION"
	ReasonLowSupplierRating ReviewReason = "LOW_SUPPLIER_RATING"
	ReasonAnomalousPricing  ReviewReason = "ANOMALOUS_PRICING"
)

var reviewTransitions = map[ReviewStatus][]ReviewStatus{
	ReviewPending:  {ReviewInReview, ReviewResolved, ReviewDismissed},
	ReviewInReview: {ReviewResolved, ReviewDismissed},
}

// CanTransition reports whether a review task may move from one status to another.
func CanTransition(from, to ReviewStatus) bool {
	for _, s := range reviewTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

const (
	EntityEnquiry       = "enquiry"
	EntityInboundEmail  = "inbound_email"
	EntitySupplierQuote = "supplier_quote"
	EntityCustomerQuote = "customer_quote"
	EntityBooking       = "booking"
)

type EntityRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type HumanReviewTask struct {
	ID             string
	TaskType       TaskType
	Reason         ReviewReason
	Status         ReviewStatus
	Entity         EntityRef
	DedupeKey      string
	PipelineID     string
	Flow           FlowName
	Step           string
	Detail         json.RawMessage
	AssignedTo     string
	ResolvedBy     string
	ResolvedAt     *time.Time
	ResolutionNote string
	Override       json.RawMessage
	Version        int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewReviewTask builds a PENDING task. The dedupe key ties it to one pipeline step.
func NewReviewTask(task TaskType, reason ReviewReason, entity EntityRef, pipelineID string, flow FlowName, step string) *HumanReviewTask {
	now := time.Now().UTC()
	return &HumanReviewTask{
		ID:         uuid.NewString(),
		TaskType:   task,
		Reason:     reason,
		Status:     ReviewPending,
		Entity:     entity,
		DedupeKey:  ReviewKey(pipelineID, step),
		PipelineID: pipelineID,
		Flow:       flow,
		Step:       step,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func ReviewKey(pipelineID, step string) string { return pipelineID + ":" + step }

// Open reports whether the task still blocks its pipeline step.
func (t *HumanReviewTask) Open() bool {
	return t.Status == ReviewPending || t.Status == ReviewInReview
}

// Resolution is the reviewer's input when closing a task.
type Resolution struct {
	Note     string          `json:"note,omitempty"`
	Override json.RawMessage `json:"override,omitempty"`
}
