package adapter

import "context"

// Channel selects the audience of a notification.
type Channel string

const (
	ChannelOps      Channel = "ops"
	ChannelSupplier Channel = "supplier"
	ChannelCustomer Channel = "customer"
)

type Notification struct {
	Channel Channel
	To      string
	Subject string
	Body    string
	Meta    map[string]string
}

// Notifier dispatches notifications. Callers treat delivery as fire-and-forget:
// an error is logged, never propagated into pipeline state.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
