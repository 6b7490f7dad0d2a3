package logging

import (
	"bytes"
	"testing"
	"time"
)

func TestMultiLoggerForwardsToAll(t *testing.T) {
	var a, b []Event
	l1 := recorderLogger{out: &a}
	l2 := recorderLogger{out: &b}

	m := NewMultiLogger(l1, l2)
	ev := Event{Category: CategoryStateChange, StateChange: &StateChange{OldStatus: "X", NewStatus: "Y"}}
	m.Log(ev)

	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("a=%d b=%d, want 1 and 1", len(a), len(b))
	}
}

type recorderLogger struct {
	out *[]Event
}

func (r recorderLogger) Log(e Event) { *r.out = append(*r.out, e) }

func TestBufferedSinkEvictsOldestAtCapacity(t *testing.T) {
	b := NewBufferedSink(2)
	b.Log(Event{Category: CategoryAttempt, Attempt: &Attempt{Index: 1}})
	b.Log(Event{Category: CategoryAttempt, Attempt: &Attempt{Index: 2}})
	b.Log(Event{Category: CategoryAttempt, Attempt: &Attempt{Index: 3}})

	if got := b.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}
}

func TestBufferedSinkFlushClearsBuffer(t *testing.T) {
	b := NewBufferedSink(0)
	b.Log(Event{Category: CategoryNetwork, Timestamp: time.Unix(100, 0), Network: &Network{Source: "probe", Result: "reachable"}})
	b.Log(Event{Category: CategoryIncident, Timestamp: time.Unix(101, 0), Incident: &Incident{Reason: "pingTimeout"}})

	var buf bytes.Buffer
	if err := b.Flush(&buf); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("Flush() wrote no bytes")
	}
	if got := b.Len(); got != 0 {
		t.Fatalf("Len() after Flush = %d, want 0", got)
	}

	dec := NewEventDecoder(&buf)
	var count int
	for {
		var ev Event
		if err := dec.Decode(&ev); err != nil {
			break
		}
		count++
	}
	if count != 2 {
		t.Fatalf("decoded %d events from flush output, want 2", count)
	}
}

func TestNoopLoggerDoesNotPanic(t *testing.T) {
	var l Logger = NoopLogger{}
	l.Log(Event{Category: CategoryStateChange})
}
