// Package channel defines the outbound delivery contract and its
// implementations. A channel delivers one rendered message to one
// recipient; retry and bookkeeping live in the dispatch sweep.
package channel

import "context"

// Recipient carries the addressing fields a channel may need. Each
// implementation reads the fields relevant to it.
type Recipient struct {
	DisplayName string

	// Email is used by the smtp channel.
	Email string

	// ChatID is used by the telegram channel.
	ChatID int64
}

// Deliverer sends a single message. Implementations must be safe for
// concurrent use.
type Deliverer interface {
	// Name identifies the channel ("email", "telegram").
	Name() string

	Deliver(ctx context.Context, rcpt Recipient, subject, body string) error
}
