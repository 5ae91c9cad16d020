package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"coachhire-ai/internal/domain/ports/adapter"
)

var _ adapter.Completer = (*FakeAdapter)(nil)

// FakeModel is the model id the fake adapter answers to.
const FakeModel = "fake"

// FakeAdapter answers every task with a plausible, deterministic result derived
// from the prompt input. It backs dev mode and the pipeline tests; per task it
// can be told to fail, hang until the caller's deadline, or return a fixed reply.
type FakeAdapter struct {
	mu         sync.Mutex
	confidence map[string]float64
	replies    map[string]string
	errs       map[string]error
	hang       map[string]bool
	calls      map[string]int
	usage      adapter.Usage
}

func NewFakeAdapter() *FakeAdapter {
	return &FakeAdapter{
		confidence: map[string]float64{},
		replies:    map[string]string{},
		errs:       map[string]error{},
		hang:       map[string]bool{},
		calls:      map[string]int{},
		usage:      adapter.Usage{PromptTokens: 400, CompletionTokens: 150},
	}
}

func (f *FakeAdapter) SetConfidence(task string, c float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confidence[task] = c
}

// SetReply makes task return raw verbatim, envelope included.
func (f *FakeAdapter) SetReply(task, raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[task] = raw
}

func (f *FakeAdapter) SetError(task string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[task] = err
}

// SetHang makes task block until its context ends.
func (f *FakeAdapter) SetHang(task string, on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hang[task] = on
}

func (f *FakeAdapter) Calls(task string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[task]
}

// CountTokens approximates one token per word plus framing.
func (f *FakeAdapter) CountTokens(_ context.Context, _ string, msgs []adapter.Message) (int, error) {
	n := 0
	for _, m := range msgs {
		n += len(strings.Fields(m.Content)) + 4
	}
	return n, nil
}

func (f *FakeAdapter) Complete(ctx context.Context, req adapter.CompletionRequest) (*adapter.Completion, error) {
	task := req.Task
	f.mu.Lock()
	f.calls[task]++
	hang, err, reply := f.hang[task], f.errs[task], f.replies[task]
	conf, ok := f.confidence[task]
	out := &adapter.Completion{Model: FakeModel, Usage: f.usage, FinishReason: "stop"}
	f.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if reply != "" {
		out.Text = reply
		return out, nil
	}
	if !ok {
		conf = 0.95
	}
	result, rerr := fakeResult(task, userInput(req.Messages))
	if rerr != nil {
		return nil, rerr
	}
	b, _ := json.Marshal(map[string]any{"confidence": conf, "result": result})
	out.Text = string(b)
	return out, nil
}

// userInput decodes the last user message, which carries the task input.
func userInput(msgs []adapter.Message) map[string]any {
	in := map[string]any{}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == adapter.RoleUser {
			_ = json.Unmarshal([]byte(msgs[i].Content), &in)
			break
		}
	}
	return in
}

var fieldLine = regexp.MustCompile(`(?im)^\s*(name|pickup|from|destination|to|date|return|passengers|vehicle|notes)\s*:\s*(.+)$`)

func fakeResult(task string, in map[string]any) (any, error) {
	switch task {
	case "email-parser":
		return fakeParse(in), nil
	case "enquiry-analyzer":
		e, _ := in["enquiry"].(map[string]any)
		if e == nil {
			e = in
		}
		tripType := "one_way"
		if _, ok := e["returnDate"]; ok {
			tripType = "return"
		}
		vehicle, _ := e["vehicleType"].(string)
		if vehicle == "" {
			vehicle = "coach"
		}
		return map[string]any{"tripType": tripType, "complexity": "medium", "urgency": "normal", "suggestedVehicle": vehicle}, nil
	case "supplier-selector":
		max := int(num(in["maxSuppliers"]))
		var ids []string
		cands, _ := in["candidates"].([]any)
		for _, c := range cands {
			if len(ids) >= max {
				break
			}
			if m, ok := c.(map[string]any); ok {
				ids = append(ids, fmt.Sprint(m["supplierId"]))
			}
		}
		return map[string]any{"supplierIds": ids, "rationale": "highest ranked candidates"}, nil
	case "bid-evaluator":
		ranking, _ := in["ranking"].([]any)
		if len(ranking) == 0 {
			return nil, fmt.Errorf("fake: no bids to evaluate")
		}
		top, _ := ranking[0].(map[string]any)
		return map[string]any{"supplierQuoteId": top["supplierQuoteId"], "rationale": "best weighted score"}, nil
	case "markup-calculator":
		b, _ := in["bounds"].(map[string]any)
		return map[string]any{"markupPercent": num(b["defaultPercent"]), "rationale": "standard markup"}, nil
	case "quote-content":
		return map[string]any{
			"description": "Private coach hire as requested.",
			"emailBody":   fmt.Sprintf("Dear %v,\n\nYour quote total is %v including VAT.\n\nKind regards", in["customerName"], in["total"]),
		}, nil
	case "job-documents":
		return map[string]any{"documents": []map[string]string{
			{"kind": "job_sheet", "title": "Job sheet", "content": fmt.Sprintf("Booking %v", in["bookingId"])},
			{"kind": "driver_brief", "title": "Driver brief", "content": "Arrive 15 minutes before pickup."},
		}}, nil
	case "email-personalizer":
		return map[string]any{
			"customerEmail": map[string]string{"subject": "Your booking is confirmed", "body": fmt.Sprintf("Dear %v, your booking is confirmed.", in["customerName"])},
			"supplierEmail": map[string]string{"subject": "Job confirmed", "body": fmt.Sprintf("Booking %v is confirmed.", in["bookingId"])},
		}, nil
	}
	return nil, fmt.Errorf("fake: unknown task %q", task)
}

// fakeParse reads "Field: value" lines from the email body.
func fakeParse(in map[string]any) map[string]any {
	body, _ := in["body"].(string)
	out := map[string]any{"customerEmail": in["from"], "passengers": 0}
	for _, m := range fieldLine.FindAllStringSubmatch(body, -1) {
		v := strings.TrimSpace(m[2])
		switch strings.ToLower(m[1]) {
		case "name":
			out["customerName"] = v
		case "pickup", "from":
			out["pickup"] = v
		case "destination", "to":
			out["destination"] = v
		case "date":
			out["tripDate"] = v
		case "return":
			out["returnDate"] = v
		case "passengers":
			n, _ := strconv.Atoi(v)
			out["passengers"] = n
		case "vehicle":
			out["vehicleType"] = v
		case "notes":
			out["notes"] = v
		}
	}
	return out
}

func num(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}
