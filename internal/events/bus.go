// Package events fans session progress out to in-process subscribers such as
// the CLI's progress printer.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Type names a session event.
type Type string

const (
	Phase          Type = "phase"
	PersonaCreated Type = "persona_created"
	GraphBuilt     Type = "graph_built"
	Tick           Type = "tick"
	Reaction       Type = "reaction"
	Result         Type = "result"
	Evolution      Type = "evolution"
	Done           Type = "done"
	Error          Type = "error"
)

// Event is one progress notification.
type Event struct {
	Type    Type           `json:"type"`
	Time    time.Time      `json:"time"`
	Payload map[string]any `json:"payload"`
}

// MarshalLine encodes the event as a single JSON line without the newline.
func (e Event) MarshalLine() ([]byte, error) {
	if e.Payload == nil {
		e.Payload = map[string]any{}
	}
	return json.Marshal(e)
}

// DefaultBuffer is the channel capacity used when Subscribe is given zero.
const DefaultBuffer = 256

// Bus delivers events to every subscriber without blocking the emitter.
// A subscriber whose buffer is full misses the event. A nil Bus is safe to
// use; Emit is a no-op.
type Bus struct {
	mu      sync.Mutex
	subs    map[int]chan Event
	next    int
	dropped int
	closed  bool
	now     func() time.Time
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event), now: time.Now}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// function unsubscribes and closes the channel; it is safe to call twice.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}

// Emit sends an event to all current subscribers.
func (b *Bus) Emit(t Type, payload map[string]any) {
	if b == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	ev := Event{Type: t, Time: b.now().UTC(), Payload: payload}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped++
		}
	}
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (b *Bus) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close closes every subscriber channel. Later emits are ignored.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
