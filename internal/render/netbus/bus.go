package netbus

import (
	"sync"
	"sync/atomic"
)

// Handler receives events. Handlers run on the publisher's goroutine and
// must not block; hand work off to a channel if it can take time.
type Handler func(Event)

// Bus fans network events out to subscribers. Publish order is preserved
// per subscriber, so per-request ordering from the browser is kept.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
}

// Subscription is one consumer's registration on a Bus
type Subscription struct {
	id        uint64
	bus       *Bus
	kinds   uint8 // bitmask of Kind, 0 = all kinds
	handler Handler
	closed  atomic.Bool
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]*Subscription)}
}

// Subscribe registers handler for the given kinds (all kinds when none given)
func (b *Bus) Subscribe(handler Handler, kinds ...Kind) *Subscription {
	s := &Subscription{bus: b, handler: handler}
	for _, k := range kinds {
		s.kinds |= 1 << uint(k)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.closed.Store(true)
		return s
	}
	b.nextID++
	s.id = b.nextID
	b.subs[s.id] = s
	return s
}

// Publish delivers ev to every matching subscriber
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	targets := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.matches(ev) {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	// Handlers run outside the lock so they may close their own subscription
	for _, s := range targets {
		if s.closed.Load() {
			continue
		}
		s.handler(ev)
	}
}

// Len returns the number of live subscriptions
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close removes every subscription; later Subscribe calls return closed
// subscriptions and Publish becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, s := range b.subs {
		s.closed.Store(true)
		delete(b.subs, id)
	}
	b.closed = true
}

func (s *Subscription) matches(ev Event) bool {
	return s.kinds == 0 || s.kinds&(1<<uint(ev.Kind)) != 0
}

// Close removes the subscription. Safe to call more than once and from
// inside the handler.
func (s *Subscription) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
}

// Closed reports whether the subscription has been removed
func (s *Subscription) Closed() bool {
	return s.closed.Load()
}
