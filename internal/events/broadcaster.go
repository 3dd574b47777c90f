// Package events fans tree change notifications out to subscribers.
package events

import (
	"sync"

	"github.com/agentic-research/depview/internal/metrics"
)

// Buffer is the per-subscriber channel capacity.
const Buffer = 64

// Broadcaster delivers published values to every subscriber.
type Broadcaster[T any] struct {
	mu          sync.RWMutex
	subscribers map[chan T]struct{}
	closed      bool
}

func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{
		subscribers: make(map[chan T]struct{}),
	}
}

// Subscribe adds a new subscriber and returns its channel.
// The caller must call Unsubscribe when done.
func (b *Broadcaster[T]) Subscribe() chan T {
	ch := make(chan T, Buffer)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subscribers[ch] = struct{}{}
	}
	n := len(b.subscribers)
	b.mu.Unlock()
	metrics.SetChangeSubscribers(n)
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster[T]) Unsubscribe(ch chan T) {
	b.mu.Lock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
	n := len(b.subscribers)
	b.mu.Unlock()
	metrics.SetChangeSubscribers(n)
}

// Publish sends v to all subscribers. Non-blocking: drops values for slow
// consumers.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- v:
		default:
			metrics.RecordChangeDropped()
		}
	}
}

// Count returns the current number of subscribers.
func (b *Broadcaster[T]) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes every subscriber channel. Later subscribers get a closed channel.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = make(map[chan T]struct{})
	b.closed = true
	metrics.SetChangeSubscribers(0)
}
