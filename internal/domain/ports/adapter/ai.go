package adapter

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is one inference call. Task tags the pipeline task the
// call serves; providers ignore it but routing and fakes key on it.
type CompletionRequest struct {
	Task     string
	Model    string
	Messages []Message
	// JSONMode asks the provider to constrain the answer to one JSON object.
	JSONMode bool
	// MaxTokens caps the answer; zero keeps the provider default.
	MaxTokens int
}

// Usage is the token count the provider billed for one call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

func (u Usage) Total() int { return u.PromptTokens + u.CompletionTokens }

// FinishLength is the finish reason of an answer cut off by the token cap.
const FinishLength = "length"

type Completion struct {
	Text string
	// Model is the model that answered, which may be a dated snapshot of the
	// requested one.
	Model        string
	Usage        Usage
	FinishReason string
}

// Completer is the port to an LLM provider.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
	// CountTokens is best effort when the provider has no exact counter.
	CountTokens(ctx context.Context, model string, msgs []Message) (int, error)
}
