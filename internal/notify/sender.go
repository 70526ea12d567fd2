package notify

import "context"

// Message is a rendered notification ready for delivery.
type Message struct {
	To      []string
	Subject string
	HTML    string
}

// Sender delivers notification messages to recipients.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
