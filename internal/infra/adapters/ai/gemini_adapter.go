package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"coachhire-ai/internal/domain/ports/adapter"
)

var _ adapter.Completer = (*GeminiAdapter)(nil)

// GeminiAdapter calls generateContent on the Gemini API. System messages
// become the system instruction; the rest is sent as the conversation.
type GeminiAdapter struct {
	client       *genai.Client
	defaultModel string
	maxOut       int
}

func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, defaultModel string, maxOut int) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key empty")
	}
	if defaultModel == "" {
		defaultModel = "gemini-2.0-flash"
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiAdapter{client: c, defaultModel: defaultModel, maxOut: maxOut}, nil
}

func (g *GeminiAdapter) Complete(ctx context.Context, req adapter.CompletionRequest) (*adapter.Completion, error) {
	modelID := orDefault(req.Model, g.defaultModel)
	system, contents := splitSystem(req.Messages)
	if len(contents) == 0 {
		return nil, fmt.Errorf("gemini %s: no user content", modelID)
	}

	cfg := &genai.GenerateContentConfig{}
	if req.JSONMode {
		cfg.ResponseMIMEType = "application/json"
	}
	if n := capTokens(req.MaxTokens, g.maxOut); n > 0 {
		cfg.MaxOutputTokens = int32(n)
	}
	if system != nil {
		cfg.SystemInstruction = system
	}

	resp, err := g.client.Models.GenerateContent(ctx, modelID, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini %s: %w", modelID, err)
	}
	out := &adapter.Completion{Model: orDefault(resp.ModelVersion, modelID), Text: resp.Text()}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = adapter.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
		}
	}
	if len(resp.Candidates) > 0 {
		out.FinishReason = geminiFinish(resp.Candidates[0].FinishReason)
	}
	return out, nil
}

func (g *GeminiAdapter) CountTokens(ctx context.Context, modelID string, msgs []adapter.Message) (int, error) {
	_, contents := splitSystem(msgs)
	resp, err := g.client.Models.CountTokens(ctx, orDefault(modelID, g.defaultModel), contents, nil)
	if err != nil {
		return 0, err
	}
	return int(resp.TotalTokens), nil
}

// splitSystem separates the system instruction from the turns, which Gemini
// labels user or model.
func splitSystem(msgs []adapter.Message) (*genai.Content, []*genai.Content) {
	var (
		system   *genai.Content
		contents = make([]*genai.Content, 0, len(msgs))
	)
	for _, m := range msgs {
		switch m.Role {
		case adapter.RoleSystem:
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, &genai.Part{Text: m.Content})
		case adapter.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return system, contents
}

// geminiFinish maps MAX_TOKENS onto the shared "length" reason.
func geminiFinish(r genai.FinishReason) string {
	if r == genai.FinishReasonMaxTokens {
		return adapter.FinishLength
	}
	return strings.ToLower(string(r))
}
