package capture

import (
	"slices"
	"sync"
)

// Buffer is the append-only log shared by all collectors of one capture window.
// The mutex is held for a single append only.
type Buffer struct {
	mu     sync.Mutex
	events []Event
	frozen bool
}

// NewBuffer creates an empty capture buffer
func NewBuffer() *Buffer {
	return &Buffer{events: make([]Event, 0, 128)}
}

// Append adds one event. Returns false if the buffer was already frozen.
func (b *Buffer) Append(ev Event) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frozen {
		return false
	}
	b.events = append(b.events, ev)
	return true
}

// Len returns the number of captured events
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Freeze closes the buffer for writing and returns its contents in append order.
// Subsequent calls return the same contents.
func (b *Buffer) Freeze() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.frozen = true
	return slices.Clone(b.events)
}
