// Package bus fans engine events out to in-process subscribers.
package bus

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/matheus3301/simchat/internal/clock"
)

// Bus delivers each published Event to every subscriber whose namespace
// is a prefix of the event kind. Publish never blocks: a subscriber with a
// full buffer misses the event and the miss is counted.
type Bus struct {
	clock clock.Clock

	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID uint64

	dropped atomic.Uint64
}

type subscriber struct {
	prefix string
	ch     chan Event
}

// Option configures a Bus.
type Option func(*Bus)

// WithClock stamps events from clk instead of the wall clock.
func WithClock(clk clock.Clock) Option {
	return func(b *Bus) { b.clock = clk }
}

// New returns an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		clock: clock.Real(),
		subs:  make(map[uint64]*subscriber),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish stamps evt if its Timestamp is zero and delivers it. Publishing
// on a nil Bus is a no-op.
func (b *Bus) Publish(evt Event) {
	if b == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = b.clock.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !strings.HasPrefix(evt.Kind, s.prefix) {
			continue
		}
		select {
		case s.ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe registers interest in kinds starting with namespace ("" for
// all). The returned func removes the subscription; the channel is never
// closed.
func (b *Bus) Subscribe(namespace string, buffer int) (<-chan Event, func()) {
	s := &subscriber{prefix: namespace, ch: make(chan Event, buffer)}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber's
// buffer was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
