package ai

import (
	"context"
	"fmt"
	"strings"

	"coachhire-ai/internal/domain/ports/adapter"
)

var _ adapter.Completer = (*Router)(nil)

// Router sends each call to a provider chosen by model name, so per-task model
// overrides can mix providers in one worker.
type Router struct {
	fallback  string
	providers map[string]adapter.Completer
	pinned    map[string]string // model -> provider
}

func NewRouter(fallback string, providers map[string]adapter.Completer, pinned map[string]string) *Router {
	p := make(map[string]string, len(pinned))
	for m, prov := range pinned {
		p[m] = strings.ToLower(prov)
	}
	return &Router{fallback: strings.ToLower(fallback), providers: providers, pinned: p}
}

// ProviderFor names the provider serving modelID: a pinned mapping first, then
// the model family prefix, then the fallback.
func (r *Router) ProviderFor(modelID string) string {
	if p, ok := r.pinned[modelID]; ok {
		return p
	}
	l := strings.ToLower(modelID)
	switch {
	case l == FakeModel:
		return "fake"
	case strings.HasPrefix(l, "gemini"):
		return "gemini"
	case strings.HasPrefix(l, "gpt"), strings.HasPrefix(l, "chatgpt"),
		len(l) > 1 && l[0] == 'o' && l[1] >= '1' && l[1] <= '9':
		return "openai"
	}
	return r.fallback
}

func (r *Router) provider(modelID string) (adapter.Completer, error) {
	name := r.ProviderFor(modelID)
	if c := r.providers[name]; c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("model %q routes to provider %q which is not configured", modelID, name)
}

func (r *Router) Complete(ctx context.Context, req adapter.CompletionRequest) (*adapter.Completion, error) {
	c, err := r.provider(req.Model)
	if err != nil {
		return nil, err
	}
	return c.Complete(ctx, req)
}

func (r *Router) CountTokens(ctx context.Context, modelID string, msgs []adapter.Message) (int, error) {
	c, err := r.provider(modelID)
	if err != nil {
		return 0, err
	}
	return c.CountTokens(ctx, modelID, msgs)
}
