package transport

import "context"

// Recipient identifies a notification target. For the Telegram adapter it
// is the user id of a private chat.
type Recipient int64

// MessageRef points at a message the adapter has sent, so it can be
// retracted later.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Message is an inbound text message handed to the core by the adapter.
type Message struct {
	From Recipient
	Text string
}

// Delivery is the capability the reminder core sends through.
//
// Retract is best-effort: callers ignore its error.
type Delivery interface {
	SendNotification(ctx context.Context, to Recipient, title, body string) error
	SendTransientPing(ctx context.Context, to Recipient) (MessageRef, error)
	Retract(ctx context.Context, ref MessageRef) error
}

// Replier lets the core answer an inbound message (parse rejections, help).
type Replier interface {
	Reply(ctx context.Context, to Recipient, text string) error
}

// Adapter is a full chat-platform connection: delivery plus an inbound
// message stream.
type Adapter interface {
	Delivery
	Replier

	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error
}
