package logging

import (
	"io"
	"sync"
)

// BufferedSink accumulates events in memory and writes them out as CBOR
// only when Flush is called. This lets a host application hold
// diagnostics for a session and upload them only if an incident actually
// occurs, instead of appending to a file on every event.
//
// Safe for concurrent use.
type BufferedSink struct {
	mu     sync.Mutex
	events []Event
	cap    int
}

// NewBufferedSink returns a BufferedSink that retains at most capacity
// events, dropping the oldest once full. capacity <= 0 means unbounded.
func NewBufferedSink(capacity int) *BufferedSink {
	return &BufferedSink{cap: capacity}
}

// Log appends event to the buffer, evicting the oldest entry if the
// sink is at capacity.
func (b *BufferedSink) Log(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, event)
	if b.cap > 0 && len(b.events) > b.cap {
		b.events = b.events[len(b.events)-b.cap:]
	}
}

// Flush writes every buffered event to w as a CBOR stream and clears the
// buffer. Events logged concurrently with Flush either land in this
// flush or the next one, never both and never neither.
func (b *BufferedSink) Flush(w io.Writer) error {
	b.mu.Lock()
	pending := b.events
	b.events = nil
	b.mu.Unlock()

	enc := NewEventEncoder(w)
	for _, ev := range pending {
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}
	return nil
}

// Len reports the number of events currently buffered.
func (b *BufferedSink) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

var _ Logger = (*BufferedSink)(nil)
