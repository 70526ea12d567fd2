package notify

import "context"

// NoopSender discards all messages. Used when notifications are disabled.
type NoopSender struct{}

// Send implements Sender.
func (NoopSender) Send(ctx context.Context, msg Message) error { return nil }
