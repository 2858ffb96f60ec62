// Package events carries dashboard state transitions from dashboard.State to
// the surfaces that react to them: the WebSocket hub and the notifier.
package events

import (
	"sync"
	"time"

	"chemviz/internal/config"
)

// Handler receives one published event.
type Handler func(Event)

type subscription struct {
	id      uint64
	filter  map[EventType]bool // nil receives everything
	handler Handler
}

func (s subscription) wants(t EventType) bool {
	return s.filter == nil || s.filter[t]
}

// Bus delivers events synchronously, in subscription order, on the
// publisher's goroutine. Subscribers that do I/O queue the work themselves.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers handler for the listed types, or for every type when
// none are given. The returned func removes the subscription and is safe to
// call more than once.
func (b *Bus) Subscribe(handler Handler, types ...EventType) (unsubscribe func()) {
	var filter map[EventType]bool
	if len(types) > 0 {
		filter = make(map[EventType]bool, len(types))
		for _, t := range types {
			filter[t] = true
		}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, filter: filter, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Len reports the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish stamps e when it carries no timestamp and hands it to every
// interested subscriber. A panicking subscriber is logged and skipped.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, s := range subs {
		if s.wants(e.Type) {
			deliver(s.handler, e)
		}
	}
}

func deliver(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			config.Logger.Errorf("events: %s subscriber panicked: %v", e.Type, r)
		}
	}()
	h(e)
}
