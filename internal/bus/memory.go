package bus

import (
	"context"
	"sync"
)

// MemoryBus implements Bus in-process. It backs single-process deployments
// and tests. Subscriptions are confirmed synchronously: once Subscribe
// returns, every subsequent Publish reaches the subscriber.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[string][]*memorySubscription
}

// NewMemoryBus creates an empty in-memory bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memorySubscription)}
}

// Close is a no-op for the in-memory bus.
func (b *MemoryBus) Close() error { return nil }

// Publish delivers the payload to every current subscriber of the topic.
// A subscriber whose buffer is full misses the delivery rather than blocking
// the publisher.
func (b *MemoryBus) Publish(ctx context.Context, topic, payload string) error {
	b.mu.Lock()
	subs := make([]*memorySubscription, len(b.subs[topic]))
	copy(subs, b.subs[topic])
	b.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(Delivery{Topic: topic, Payload: payload})
	}
	return nil
}

// Subscribe registers a subscriber for the topic.
func (b *MemoryBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	sub := &memorySubscription{
		bus:      b,
		topic:    topic,
		messages: make(chan Delivery, 64),
	}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	return sub, nil
}

func (b *MemoryBus) unsubscribe(sub *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[sub.topic]
	for i, s := range subs {
		if s == sub {
			b.subs[sub.topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
}

type memorySubscription struct {
	bus      *MemoryBus
	topic    string
	messages chan Delivery

	mu     sync.Mutex
	closed bool
}

func (s *memorySubscription) deliver(d Delivery) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.messages <- d:
	default:
	}
}

// Messages returns the delivery channel; closed on teardown.
func (s *memorySubscription) Messages() <-chan Delivery {
	return s.messages
}

// Close unsubscribes; safe to call twice.
func (s *memorySubscription) Close() error {
	s.bus.unsubscribe(s)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.messages)
	}
	return nil
}
