// internal/bus/bus.go
// Package bus implements the per-session broadcast channel. Every connection
// subscribes on join; state mutations publish exactly one event which is
// fanned out to all current subscribers.
package bus

import (
	"sync"

	"github.com/guessr-gg/guessr/internal/events"
)

// SubscriberBuffer bounds the backlog of a single subscriber. A consumer that
// falls this far behind starts missing events; the next full-state event
// (SyncState, RoundEnd) heals it.
const SubscriberBuffer = 64

// Bus is a multi-producer, multi-subscriber broadcast hub. Publish never
// blocks: delivery to a saturated subscriber is dropped. Within one bus,
// publish order equals delivery order per subscriber.
type Bus struct {
	mu   sync.Mutex
	subs map[uint64]chan events.ServerEvent
	next uint64
}

func New() *Bus {
	return &Bus{subs: make(map[uint64]chan events.ServerEvent)}
}

// Subscribe registers a new subscriber and returns its receive channel along
// with a cancel func. Cancel is idempotent and closes the channel, so a
// draining receiver terminates cleanly.
func (b *Bus) Subscribe() (<-chan events.ServerEvent, func()) {
	ch := make(chan events.ServerEvent, SubscriberBuffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers ev to every current subscriber and reports how many
// received it. Zero subscribers is not an error; a lobby momentarily between
// connections simply has no one listening.
func (b *Bus) Publish(ev events.ServerEvent) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	delivered := 0
	for _, ch := range b.subs {
		select {
		case ch <- ev:
			delivered++
		default:
			// Subscriber backlog full; drop rather than block the publisher.
		}
	}
	return delivered
}

// Subscribers returns the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
