package event_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vixen-gfx/vixen/event"
)

func TestPublishSubscribeOrdering(t *testing.T) {
	bus := event.New()
	var order []string

	event.Subscribe(bus, func(event.FrameStart) { order = append(order, "a") })
	event.Subscribe(bus, func(event.FrameStart) { order = append(order, "b") })
	event.Subscribe(bus, func(event.FrameStart) { order = append(order, "c") })

	event.Publish(bus, event.FrameStart{FrameNumber: 1})

	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestPublishIsTypedPerPayload(t *testing.T) {
	bus := event.New()
	var startCount, endCount int

	event.Subscribe(bus, func(event.FrameStart) { startCount++ })
	event.Subscribe(bus, func(event.FrameEnd) { endCount++ })

	event.Publish(bus, event.FrameStart{FrameNumber: 1})
	event.Publish(bus, event.FrameStart{FrameNumber: 2})
	event.Publish(bus, event.FrameEnd{FrameNumber: 1})

	assert.Equal(t, 2, startCount)
	assert.Equal(t, 1, endCount)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := event.New()
	var count int

	unsub := event.Subscribe(bus, func(event.FrameStart) { count++ })
	event.Publish(bus, event.FrameStart{})
	unsub()
	event.Publish(bus, event.FrameStart{})

	assert.Equal(t, 1, count)
}

// TestScopedSubscriptionsRAII: a ScopedSubscriptions closed without
// explicit unsubscribe leaves zero dangling subscribers.
func TestScopedSubscriptionsRAII(t *testing.T) {
	bus := event.New()
	scope := event.NewScopedSubscriptions()

	event.ScopedSubscribe(scope, bus, func(event.FrameStart) {})
	event.ScopedSubscribe(scope, bus, func(event.FrameEnd) {})
	require.Equal(t, 2, scope.Len())

	scope.Close()
	assert.Equal(t, 0, scope.Len())

	var fired bool
	event.Subscribe(bus, func(event.FrameStart) { fired = true })
	event.Publish(bus, event.FrameStart{})
	assert.True(t, fired, "subscriptions made after Close must still work")

	// Publishing the types that used to have scoped subscribers must not
	// panic or invoke anything — there is nothing left registered for them
	// beyond the fresh one above.
	event.Publish(bus, event.FrameEnd{})
}

func TestScopedCloseIsIdempotent(t *testing.T) {
	bus := event.New()
	scope := event.NewScopedSubscriptions()
	event.ScopedSubscribe(scope, bus, func(event.FrameStart) {})

	scope.Close()
	assert.NotPanics(t, func() { scope.Close() })
}

func TestDeferredQueueDrainFIFO(t *testing.T) {
	bus := event.New(event.WithDeferredQueueCapacity(4, 0.75))

	assert.True(t, bus.Enqueue(event.TagNodeDirty, event.NodeDirty{NodeName: "a"}))
	assert.True(t, bus.Enqueue(event.TagNodeDirty, event.NodeDirty{NodeName: "b"}))
	assert.True(t, bus.Enqueue(event.TagNodeDirty, event.NodeDirty{NodeName: "c"}))
	assert.True(t, bus.OverHighWater())

	drained := bus.Drain(0)
	require.Len(t, drained, 3)
	assert.Equal(t, "a", drained[0].Payload.(event.NodeDirty).NodeName)
	assert.Equal(t, "b", drained[1].Payload.(event.NodeDirty).NodeName)
	assert.Equal(t, "c", drained[2].Payload.(event.NodeDirty).NodeName)
	assert.Equal(t, 0, bus.QueueLen())
}

func TestDeferredQueueOverflowRefuses(t *testing.T) {
	bus := event.New(event.WithDeferredQueueCapacity(2, 0.8))
	assert.True(t, bus.Enqueue(event.TagNodeDirty, event.NodeDirty{}))
	assert.True(t, bus.Enqueue(event.TagNodeDirty, event.NodeDirty{}))
	assert.False(t, bus.Enqueue(event.TagNodeDirty, event.NodeDirty{}))
}
