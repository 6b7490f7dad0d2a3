package supervisor

import (
	"sync"

	"github.com/udisondev/l2client/internal/wire"
)

// Dispatcher is the external collaborator that consumes in-session
// messages (spec §1: "pumps incoming messages to a dispatcher
// (external)").
type Dispatcher interface {
	OnMessage(wire.Message)
}

// dispatchBuffer implements message dispatch suspension (spec §4.1):
// while suspended, incoming messages accumulate in FIFO order; draining
// resumes delivery from the front, including any synthetic messages
// (DisconnectedFromServer) enqueued while suspended.
type dispatchBuffer struct {
	mu        sync.Mutex
	suspended bool
	buf       []wire.Message
}

func (d *dispatchBuffer) setSuspended(v bool) {
	d.mu.Lock()
	d.suspended = v
	d.mu.Unlock()
}

// enqueue appends msg to the buffer. Always buffered first, even when
// not suspended, so FIFO order is never violated relative to messages
// already queued ahead of it.
func (d *dispatchBuffer) enqueue(msg wire.Message) {
	d.mu.Lock()
	d.buf = append(d.buf, msg)
	d.mu.Unlock()
}

// drain delivers buffered messages to dispatcher in order, stopping if
// suspended again mid-drain.
func (d *dispatchBuffer) drain(dispatcher Dispatcher) {
	if dispatcher == nil {
		return
	}
	for {
		d.mu.Lock()
		if d.suspended || len(d.buf) == 0 {
			d.mu.Unlock()
			return
		}
		msg := d.buf[0]
		d.buf = d.buf[1:]
		d.mu.Unlock()
		dispatcher.OnMessage(msg)
	}
}
