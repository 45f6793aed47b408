package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus()
	ch1, cancel1 := bus.Subscribe()
	defer cancel1()
	ch2, cancel2 := bus.Subscribe()
	defer cancel2()

	bus.Publish(Event{Type: TypeTraceLoaded, SessionID: "s1"})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			assert.Equal(t, TypeTraceLoaded, ev.Type)
			assert.Equal(t, "s1", ev.SessionID)
			assert.False(t, ev.Timestamp.IsZero(), "Publish fills in the timestamp")
		default:
			t.Fatal("expected a buffered event")
		}
	}
}

func TestBusCancelClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe()

	cancel()
	_, open := <-ch
	require.False(t, open)

	// Publishing after cancel must not panic.
	bus.Publish(Event{Type: TypeSessionExited})
	cancel()
}

func TestBusDropsWhenSubscriberLagsBehind(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe()
	defer cancel()

	for i := 0; i < 40; i++ {
		bus.Publish(Event{Type: TypeTraceRequested, Timestamp: time.Now()})
	}

	assert.LessOrEqual(t, len(ch), 16, "slow subscribers drop events instead of blocking")
}

func TestMultiFansOut(t *testing.T) {
	bus1 := NewBus()
	bus2 := NewBus()
	ch1, cancel1 := bus1.Subscribe()
	defer cancel1()
	ch2, cancel2 := bus2.Subscribe()
	defer cancel2()

	Multi{bus1, bus2}.Publish(Event{Type: TypeTraceFailed})

	assert.Len(t, ch1, 1)
	assert.Len(t, ch2, 1)
}
