// Package bus is the channel fan-out backbone: publish/subscribe keyed by
// topic, broadcast across every server process. Delivery is at-least-once;
// publish order is only preserved per publishing process.
package bus

import "context"

// Delivery is one message received on a subscribed topic.
type Delivery struct {
	Topic   string
	Payload string
}

// Subscription is a live subscription to one topic. It is returned only once
// the subscription has been confirmed by the backbone: everything published
// after Subscribe returns will be delivered. Close is idempotent and safe to
// call even if the underlying link already failed; the Messages channel is
// closed on teardown.
type Subscription interface {
	Messages() <-chan Delivery
	Close() error
}

// Bus is the capability surface over the publish/subscribe medium.
type Bus interface {
	Publish(ctx context.Context, topic, payload string) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	Close() error
}
