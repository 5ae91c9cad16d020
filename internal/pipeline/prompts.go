package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/adapter"
)

const envelopeRule = `Reply with one JSON object {"confidence": <number 0..1>, "result": <object>} and nothing else. ` +
	`confidence is your probability that result is correct and complete.`

type taskPrompt struct {
	instruction string
	schema      string
	maxTokens   int
}

var prompts = map[model.TaskType]taskPrompt{
	model.TaskEmailParser: {
		instruction: "Extract the trip request from the customer email in the input.",
		schema:      `{"customerName":string,"customerEmail":string,"pickup":string,"destination":string,"tripDate":"YYYY-MM-DD","returnDate":"YYYY-MM-DD"|null,"passengers":int,"vehicleType":string,"notes":string}`,
	},
	model.TaskEnquiryAnalyzer: {
		instruction: "Classify the enquiry: trip type (one_way|return|multi_day), complexity (low|medium|high), urgency (low|normal|high), a suggested vehicle and any special requirements.",
		schema:      `{"tripType":string,"complexity":string,"urgency":string,"suggestedVehicle":string,"specialRequirements":[string]}`,
	},
	model.TaskSupplierSelector: {
		instruction: "Choose up to maxSuppliers suppliers from candidates to invite to bid. Prefer higher score, matching fleet and capacity. Only use candidate ids.",
		schema:      `{"supplierIds":[string],"rationale":string}`,
		maxTokens:   256,
	},
	model.TaskBidEvaluator: {
		instruction: "Review the ranked bids, which are ordered by weighted score. Name the bid you consider best and explain why; if it is not the first bid, say what the score misses.",
		schema:      `{"supplierQuoteId":string,"rationale":string}`,
		maxTokens:   256,
	},
	model.TaskMarkupCalculator: {
		instruction: "Recommend a markup percent on the supplier price within the given bounds, considering trip complexity and urgency.",
		schema:      `{"markupPercent":number,"rationale":string}`,
		maxTokens:   256,
	},
	model.TaskQuoteContent: {
		instruction: "Write a short quote description and a friendly customer email body in British English. Quote the total price exactly as given.",
		schema:      `{"description":string,"emailBody":string}`,
	},
	model.TaskJobDocuments: {
		instruction: "Produce the job sheet and the driver brief for the confirmed booking.",
		schema:      `{"documents":[{"kind":"job_sheet"|"driver_brief","title":string,"content":string}]}`,
	},
	model.TaskEmailPersonalizer: {
		instruction: "Write the booking confirmation email for the customer and the job confirmation email for the supplier.",
		schema:      `{"customerEmail":{"subject":string,"body":string},"supplierEmail":{"subject":string,"body":string}}`,
	},
}

// buildPrompt renders the system instruction for task and serialises input as
// the user message. The request is left without a model; Inference routes it.
func buildPrompt(task model.TaskType, input any) (adapter.CompletionRequest, error) {
	p, ok := prompts[task]
	if !ok {
		return adapter.CompletionRequest{}, fmt.Errorf("no prompt for task %s", task)
	}
	b, err := json.Marshal(input)
	if err != nil {
		return adapter.CompletionRequest{}, fmt.Errorf("encode %s input: %w", task, err)
	}
	var sys strings.Builder
	fmt.Fprintf(&sys, "task: %s\n", task)
	sys.WriteString("You assist the operations team of a UK coach and minibus hire marketplace.\n")
	sys.WriteString(p.instruction)
	sys.WriteString("\nResult schema: ")
	sys.WriteString(p.schema)
	sys.WriteString("\n")
	sys.WriteString(envelopeRule)
	return adapter.CompletionRequest{
		Task: string(task),
		Messages: []adapter.Message{
			{Role: adapter.RoleSystem, Content: sys.String()},
			{Role: adapter.RoleUser, Content: string(b)},
		},
		JSONMode:  true,
		MaxTokens: p.maxTokens,
	}, nil
}
