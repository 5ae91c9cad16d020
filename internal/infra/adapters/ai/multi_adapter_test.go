//go:build !integration

package ai_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coachhire-ai/internal/domain/ports/adapter"
	ai "coachhire-ai/internal/infra/adapters/ai"
)

// countingCompleter records which models it was asked for.
type countingCompleter struct {
	models []string
}

func (c *countingCompleter) Complete(_ context.Context, req adapter.CompletionRequest) (*adapter.Completion, error) {
	c.models = append(c.models, req.Model)
	return &adapter.Completion{Text: "{}", Model: req.Model}, nil
}

func (c *countingCompleter) CountTokens(_ context.Context, modelID string, _ []adapter.Message) (int, error) {
	c.models = append(c.models, modelID)
	return 1, nil
}

func TestRouter_ProviderFor(t *testing.T) {
	r := ai.NewRouter("openai", nil, map[string]string{"house-model": "Gemini"})
	tests := []struct {
		model string
		want  string
	}{
		{"house-model", "gemini"},
		{"gemini-2.0-flash", "gemini"},
		{"gpt-4o-mini", "openai"},
		{"o3-mini", "openai"},
		{"fake", "fake"},
		{"", "openai"},
		{"llama-3", "openai"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.ProviderFor(tt.model), tt.model)
	}
}

func TestRouter_DispatchesByModel(t *testing.T) {
	ctx := context.Background()
	open, gem := &countingCompleter{}, &countingCompleter{}
	r := ai.NewRouter("openai", map[string]adapter.Completer{"openai": open, "gemini": gem}, nil)

	_, err := r.Complete(ctx, adapter.CompletionRequest{Model: "gemini-2.0-flash"})
	require.NoError(t, err)
	_, err = r.Complete(ctx, adapter.CompletionRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	_, err = r.CountTokens(ctx, "gpt-4o-mini", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"gemini-2.0-flash"}, gem.models)
	assert.Equal(t, []string{"gpt-4o", "gpt-4o-mini"}, open.models)
}

func TestRouter_UnconfiguredProvider(t *testing.T) {
	r := ai.NewRouter("openai", map[string]adapter.Completer{"gemini": &countingCompleter{}}, nil)
	_, err := r.Complete(context.Background(), adapter.CompletionRequest{Model: "gpt-4o"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"gpt-4o"`)
}

func TestRouter_FakeModel(t *testing.T) {
	fake := ai.NewFakeAdapter()
	r := ai.NewRouter("openai", map[string]adapter.Completer{"fake": fake}, nil)
	out, err := r.Complete(context.Background(), request("markup-calculator", `{"bounds":{"defaultPercent":18}}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"confidence":0.95,"result":{"markupPercent":18,"rationale":"standard markup"}}`, out.Text)
	assert.Equal(t, 1, fake.Calls("markup-calculator"))
}
