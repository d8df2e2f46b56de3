// Package eventbus is an in-memory publish/subscribe bus. The conversation
// store publishes turn lifecycle events on it; the server's activity logger
// consumes them.
//
// Publish never blocks: a subscriber whose buffer is full misses the event and
// the drop is counted. Events are not persisted.
package eventbus

import (
	"sync"
	"sync/atomic"
)

// Event is a single published message.
type Event struct {
	Topic   string
	Payload any
}

// EventBus is the interface for publishing and subscribing to topics.
type EventBus interface {
	Publish(topic string, payload any)
	Subscribe(topic string) <-chan Event
}

const defaultBufferSize = 100

// Bus is the in-memory implementation of EventBus.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan Event
	closed      bool
	dropped     atomic.Int64
}

// New returns a new in-memory Bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[string][]chan Event),
	}
}

// Subscribe registers a new subscriber for topic and returns a read-only
// channel. The channel is closed by Close. Subscribing to a closed bus
// returns an already-closed channel.
func (b *Bus) Subscribe(topic string) <-chan Event {
	ch := make(chan Event, defaultBufferSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers[topic] = append(b.subscribers[topic], ch)
	return ch
}

// Publish sends an Event to all subscribers of topic.
func (b *Bus) Publish(topic string, payload any) {
	evt := Event{Topic: topic, Payload: payload}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subscribers[topic] {
		select {
		case ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close closes every subscriber channel. Later Publish calls are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for topic, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, topic)
	}
}
