package pubsub

import (
	"context"
	"sync"
	"sync/atomic"
)

// EventType describes the kind of ingestion event.
type EventType string

const (
	Started      EventType = "started"
	FileIndexed  EventType = "file_indexed"
	FileDegraded EventType = "file_degraded"
	FileFailed   EventType = "file_failed"
	Finished     EventType = "finished"
)

// Event wraps a typed payload with an event type.
type Event[T any] struct {
	Type    EventType `json:"type"`
	Payload T         `json:"payload"`
}

// subscriberBufferSize is the channel buffer size for each subscriber.
const subscriberBufferSize = 64

type subscription[T any] struct {
	ch     chan Event[T]
	filter func(T) bool
}

// Broker is a generic, thread-safe publish/subscribe broker. Publishing
// never blocks; events for a subscriber whose buffer is full are dropped.
type Broker[T any] struct {
	mu      sync.RWMutex
	subs    map[*subscription[T]]struct{}
	dropped atomic.Int64
}

// NewBroker creates a new Broker.
func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{
		subs: make(map[*subscription[T]]struct{}),
	}
}

// Subscribe receives every event until ctx is cancelled, at which point the
// channel is closed and the subscription is removed.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	return b.SubscribeFunc(ctx, nil)
}

// SubscribeFunc is like Subscribe but only delivers events whose payload
// satisfies filter. A nil filter accepts everything.
func (b *Broker[T]) SubscribeFunc(ctx context.Context, filter func(T) bool) <-chan Event[T] {
	sub := &subscription[T]{ch: make(chan Event[T], subscriberBufferSize), filter: filter}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
		close(sub.ch)
	}()

	return sub.ch
}

// Publish broadcasts an event to all matching subscribers.
func (b *Broker[T]) Publish(eventType EventType, payload T) {
	evt := Event[T]{Type: eventType, Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		if sub.filter != nil && !sub.filter(payload) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (b *Broker[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many events were dropped for slow subscribers.
func (b *Broker[T]) Dropped() int64 {
	return b.dropped.Load()
}
