package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"github.com/pkoukk/tiktoken-go"

	"coachhire-ai/internal/domain/ports/adapter"
)

var _ adapter.Completer = (*OpenAIAdapter)(nil)

// OpenAIAdapter talks to the Chat Completions API. A base URL override points
// it at any compatible gateway.
type OpenAIAdapter struct {
	client       openai.Client
	defaultModel string
	maxOut       int

	encMu sync.Mutex
	encs  map[string]*tiktoken.Tiktoken
}

func NewOpenAIAdapter(apiKey, baseURL, defaultModel string, maxOut int) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key empty")
	}
	if defaultModel == "" {
		defaultModel = "gpt-4o-mini"
	}
	// retries belong to the job queue, not the SDK
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	return &OpenAIAdapter{
		client:       openai.NewClient(opts...),
		defaultModel: defaultModel,
		maxOut:       maxOut,
		encs:         map[string]*tiktoken.Tiktoken{},
	}, nil
}

func (o *OpenAIAdapter) Complete(ctx context.Context, req adapter.CompletionRequest) (*adapter.Completion, error) {
	modelID := orDefault(req.Model, o.defaultModel)
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(modelID),
		Messages: openAIMessages(req.Messages),
	}
	if req.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	if n := capTokens(req.MaxTokens, o.maxOut); n > 0 {
		params.MaxCompletionTokens = openai.Int(int64(n))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("openai %s: http %d: %s", modelID, apiErr.StatusCode, apiErr.Message)
		}
		return nil, err
	}
	out := &adapter.Completion{
		Model: orDefault(resp.Model, modelID),
		Usage: adapter.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
		},
	}
	if len(resp.Choices) == 0 {
		return out, fmt.Errorf("openai %s: empty choices", modelID)
	}
	out.Text = resp.Choices[0].Message.Content
	out.FinishReason = resp.Choices[0].FinishReason
	return out, nil
}

// CountTokens uses the chat format accounting: three tokens of framing per
// message, the encoded content, and three for the reply primer.
func (o *OpenAIAdapter) CountTokens(_ context.Context, modelID string, msgs []adapter.Message) (int, error) {
	enc, err := o.encoding(orDefault(modelID, o.defaultModel))
	if err != nil {
		return 0, err
	}
	n := 3
	for _, m := range msgs {
		n += 3 + len(enc.Encode(string(m.Role), nil, nil)) + len(enc.Encode(m.Content, nil, nil))
	}
	return n, nil
}

func (o *OpenAIAdapter) encoding(modelID string) (*tiktoken.Tiktoken, error) {
	o.encMu.Lock()
	defer o.encMu.Unlock()
	if enc, ok := o.encs[modelID]; ok {
		return enc, nil
	}
	enc, err := tiktoken.EncodingForModel(modelID)
	if err != nil {
		// unknown to tiktoken, e.g. a gateway alias
		if enc, err = tiktoken.GetEncoding("cl100k_base"); err != nil {
			return nil, fmt.Errorf("tiktoken: %w", err)
		}
	}
	o.encs[modelID] = enc
	return enc, nil
}

func openAIMessages(msgs []adapter.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case adapter.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case adapter.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// capTokens applies the request cap but never lets it exceed the configured
// ceiling.
func capTokens(requested, ceiling int) int {
	if requested <= 0 || (ceiling > 0 && requested > ceiling) {
		return ceiling
	}
	return requested
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return def
}
