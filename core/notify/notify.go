/*Package notify publishes change notifications for upserted documents, so
downstream consumers can follow the crawl without polling the store.
*/
package notify

import (
	"context"

	"github.com/relabs-tech/ghcrawler/core/urn"
)

// Message is one change notification
type Message struct {
	Type string  `json:"type"`
	URN  urn.URN `json:"urn"`
	URL  string  `json:"url"`
}

// Notifier publishes change notifications
type Notifier interface {
	// Notify publishes one message. Delivery is at-least-once.
	Notify(ctx context.Context, msg Message) error
	// Close flushes and releases the transport
	Close() error
}

// None is the notifier used when no downstream transport is configured
type None struct{}

// Notify discards the message
func (None) Notify(ctx context.Context, msg Message) error { return nil }

// Close does nothing
func (None) Close() error { return nil }
