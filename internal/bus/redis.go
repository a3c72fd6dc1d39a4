package bus

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBus implements Bus on Redis PUBLISH/SUBSCRIBE. Each subscription
// holds its own PubSub connection, owned by the Session that created it.
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus connects to Redis and verifies the connection.
func NewRedisBus(ctx context.Context, redisURL string) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisBus{client: client}, nil
}

// Close closes the publishing connection.
func (b *RedisBus) Close() error {
	return b.client.Close()
}

// Publish broadcasts a payload to every current subscriber of the topic.
func (b *RedisBus) Publish(ctx context.Context, topic, payload string) error {
	return b.client.Publish(ctx, topic, payload).Err()
}

// Subscribe opens a subscription and waits for Redis to confirm it before
// returning, so a subsequent Publish is guaranteed to reach this subscriber.
func (b *RedisBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, topic)

	// Receive returns the *redis.Subscription confirmation first.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	sub := &redisSubscription{
		pubsub:   pubsub,
		messages: make(chan Delivery, 64),
		done:     make(chan struct{}),
	}
	go sub.pump(pubsub.Channel())

	return sub, nil
}

type redisSubscription struct {
	pubsub    *redis.PubSub
	messages  chan Delivery
	done      chan struct{}
	closeOnce sync.Once
}

// pump forwards Redis deliveries until the source drains or the subscription
// closes. The send must not park forever: after teardown nobody receives
// from messages, and a blocked send here would leak this goroutine.
func (s *redisSubscription) pump(src <-chan *redis.Message) {
	defer close(s.messages)
	for msg := range src {
		select {
		case s.messages <- Delivery{Topic: msg.Channel, Payload: msg.Payload}:
		case <-s.done:
			return
		}
	}
}

// Messages returns the delivery channel; closed on teardown.
func (s *redisSubscription) Messages() <-chan Delivery {
	return s.messages
}

// Close unsubscribes and releases the PubSub connection; safe to call twice.
func (s *redisSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}
