// internal/bus/bus_test.go
package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guessr-gg/guessr/internal/events"
)

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	b := New()

	sub1, cancel1 := b.Subscribe()
	defer cancel1()
	sub2, cancel2 := b.Subscribe()
	defer cancel2()

	delivered := b.Publish(events.AllReady())
	assert.Equal(t, 2, delivered)

	ev1 := <-sub1
	ev2 := <-sub2
	assert.Equal(t, events.EventAllReady, ev1.Event)
	assert.Equal(t, events.EventAllReady, ev2.Event)
}

func TestPublishPreservesOrderPerSubscriber(t *testing.T) {
	b := New()
	sub, cancel := b.Subscribe()
	defer cancel()

	b.Publish(events.GameStart())
	b.Publish(events.PlayerReady("p1"))
	b.Publish(events.GameEnd())

	assert.Equal(t, events.EventGameStart, (<-sub).Event)
	assert.Equal(t, events.EventPlayerReady, (<-sub).Event)
	assert.Equal(t, events.EventGameEnd, (<-sub).Event)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	b := New()
	assert.Equal(t, 0, b.Publish(events.GameStart()))
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	sub, cancel := b.Subscribe()
	require.Equal(t, 1, b.Subscribers())

	cancel()
	assert.Equal(t, 0, b.Subscribers())

	_, open := <-sub
	assert.False(t, open, "channel should be closed after cancel")

	// Cancel is idempotent.
	cancel()
	assert.Equal(t, 0, b.Publish(events.GameEnd()))
}

func TestPublishDropsWhenSubscriberIsSaturated(t *testing.T) {
	b := New()
	sub, cancel := b.Subscribe()
	defer cancel()

	for i := 0; i < SubscriberBuffer; i++ {
		require.Equal(t, 1, b.Publish(events.PlayerReady("p1")))
	}

	// The buffer is full; the next publish must drop instead of blocking.
	assert.Equal(t, 0, b.Publish(events.GameEnd()))

	// Draining one slot makes room again.
	<-sub
	assert.Equal(t, 1, b.Publish(events.GameEnd()))
}
