// Package bus is the in-process publish/subscribe backbone connecting the
// socket feed, the sync engine, the outbox and the UI gateway. Delivery is
// best effort: a subscriber that stops draining its channel loses events
// rather than stalling publishers.
package bus

import (
	"strings"
	"sync"
	"time"
)

// Bus fans events out to subscribers by Kind prefix.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscriber
	next int
}

type subscriber struct {
	prefix string
	ch     chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Publish delivers evt to every subscriber whose prefix matches evt.Kind.
// A zero Timestamp is stamped with the current time. Full subscriber
// buffers drop the event (non-blocking send).
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if strings.HasPrefix(evt.Kind, sub.prefix) {
			select {
			case sub.ch <- evt:
			default:
			}
		}
	}
}

// Subscribe registers interest in all kinds starting with prefix and
// returns the delivery channel plus an unsubscribe function. bufSize sizes
// the channel buffer; pick it for the subscriber's burst tolerance.
func (b *Bus) Subscribe(prefix string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscriber{prefix: prefix, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
