// Package events distributes debug-session lifecycle events to observers
// such as the TUI and log sinks.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jdelfino/steplab/internal/logging"
)

// Type identifies an event kind.
type Type string

const (
	TypeTraceRequested Type = "trace.requested"
	TypeTraceLoaded    Type = "trace.loaded"
	TypeTraceFailed    Type = "trace.failed"
	TypeSessionExited  Type = "session.exited"
)

// Event is one lifecycle notification.
type Event struct {
	Type      Type
	SessionID string
	Timestamp time.Time
	Fields    map[string]any
}

// Publisher delivers events to interested observers.
type Publisher interface {
	Publish(Event)
}

// LogPublisher writes events to the structured log.
type LogPublisher struct {
	logger zerolog.Logger
}

// NewLogPublisher creates a Publisher backed by the component logger.
func NewLogPublisher() *LogPublisher {
	return &LogPublisher{logger: logging.Component("events")}
}

// Publish logs the event.
func (p *LogPublisher) Publish(ev Event) {
	p.logger.Debug().
		Str("type", string(ev.Type)).
		Str("session_id", ev.SessionID).
		Fields(ev.Fields).
		Msg("session event")
}

// Bus fans events out to subscribers. Delivery is best-effort: a
// subscriber that is not keeping up drops events rather than blocking
// the publisher.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber. The returned cancel func removes
// the subscription and closes the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, 16)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the event to all subscribers.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Multi composes several publishers into one.
type Multi []Publisher

// Publish forwards the event to every publisher.
func (m Multi) Publish(ev Event) {
	for _, p := range m {
		p.Publish(ev)
	}
}
