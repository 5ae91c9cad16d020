package ai

import (
	"context"

	"golang.org/x/time/rate"

	"coachhire-ai/internal/domain/ports/adapter"
)

var _ adapter.Completer = (*Limited)(nil)

// Limited bounds in-flight completions and paces them to a request rate.
// Both waits end with ctx, so the inference timeout covers the queueing.
type Limited struct {
	next    adapter.Completer
	slots   chan struct{}
	limiter *rate.Limiter
}

// NewLimited returns next unchanged when neither cap is set.
func NewLimited(next adapter.Completer, maxInFlight int, perSecond float64, burst int) adapter.Completer {
	if maxInFlight <= 0 && perSecond <= 0 {
		return next
	}
	l := &Limited{next: next}
	if maxInFlight > 0 {
		l.slots = make(chan struct{}, maxInFlight)
	}
	if perSecond > 0 {
		l.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
	return l
}

func (l *Limited) take(ctx context.Context) error {
	if l.slots == nil {
		return nil
	}
	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Limited) give() {
	if l.slots != nil {
		<-l.slots
	}
}

func (l *Limited) Complete(ctx context.Context, req adapter.CompletionRequest) (*adapter.Completion, error) {
	if err := l.take(ctx); err != nil {
		return nil, err
	}
	defer l.give()
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return l.next.Complete(ctx, req)
}

// CountTokens is not paced; only the in-flight cap applies.
func (l *Limited) CountTokens(ctx context.Context, modelID string, msgs []adapter.Message) (int, error) {
	if err := l.take(ctx); err != nil {
		return 0, err
	}
	defer l.give()
	return l.next.CountTokens(ctx, modelID, msgs)
}
