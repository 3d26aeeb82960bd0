package events

import (
	"sync"

	"nftescrow/core/types"
)

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// MultiEmitter fans every event out to each wrapped emitter in order.
type MultiEmitter []Emitter

// Emit implements the Emitter interface.
func (m MultiEmitter) Emit(evt Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(evt)
		}
	}
}

// Buffer holds events until the surrounding transaction commits. Events
// emitted by a transaction that is later rolled back must never reach
// subscribers, so the processor stages them here and flushes on success.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if evt == nil {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, evt)
	b.mu.Unlock()
}

// Drain returns the staged events and empties the buffer.
func (b *Buffer) Drain() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.events
	b.events = nil
	return out
}

// Discard drops every staged event.
func (b *Buffer) Discard() {
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}
