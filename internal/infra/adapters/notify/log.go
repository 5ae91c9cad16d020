package notify

import (
	"context"

	"github.com/rs/zerolog"

	"coachhire-ai/internal/domain/ports/adapter"
	"coachhire-ai/internal/infra/logging"
)

var _ adapter.Notifier = (*LogNotifier)(nil)

// LogNotifier writes notifications to the log. Dev mode uses it for every
// channel; production uses it where no transport is configured. Recipient
// addresses are masked.
type LogNotifier struct {
	log *zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	l := logger.With().Str("component", "LogNotifier").Logger()
	return &LogNotifier{log: &l}
}

func (n *LogNotifier) Notify(_ context.Context, msg adapter.Notification) error {
	ev := n.log.Info().Str("channel", string(msg.Channel)).Str("to", logging.MaskAddress(msg.To)).Str("subject", msg.Subject)
	for k, v := range msg.Meta {
		ev = ev.Str(k, v)
	}
	ev.Int("body_len", len(msg.Body)).Msg("notification")
	return nil
}
