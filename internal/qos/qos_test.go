package qos

import (
	"testing"
	"time"
)

func TestWindowUnhealthyBeforeFirstMessage(t *testing.T) {
	w := New(Config{MaxSilence: time.Second})
	if w.IsHealthy(time.Now()) {
		t.Fatal("IsHealthy() = true before any message observed")
	}
}

func TestWindowHealthyWithinSilenceWindow(t *testing.T) {
	w := New(Config{MaxSilence: 10 * time.Second})
	start := time.Unix(0, 0)
	w.ObserveMessage(start)

	if !w.IsHealthy(start.Add(5 * time.Second)) {
		t.Fatal("IsHealthy() = false within silence window")
	}
	if w.IsHealthy(start.Add(11 * time.Second)) {
		t.Fatal("IsHealthy() = true past silence window")
	}
}

func TestPingTrackerMatchedRequiresSameID(t *testing.T) {
	p := NewPingTracker()
	now := time.Unix(0, 0)
	p.RecordPing(1, now)

	if p.Matched() {
		t.Fatal("Matched() = true before any pong")
	}

	p.RecordPong(1, now)
	if !p.Matched() {
		t.Fatal("Matched() = false after matching pong")
	}

	p.RecordPing(2, now.Add(time.Second))
	if p.Matched() {
		t.Fatal("Matched() = true after new ping with stale pong id")
	}
}

func TestPingTrackerOverdueAndIncidentOnce(t *testing.T) {
	p := NewPingTracker()
	start := time.Unix(0, 0)
	p.RecordPing(1, start)

	if p.Overdue(start.Add(time.Second), time.Second, 2*time.Second) {
		t.Fatal("Overdue() = true too early")
	}
	if !p.Overdue(start.Add(10*time.Second), time.Second, 2*time.Second) {
		t.Fatal("Overdue() = false, want true once threshold passed")
	}

	if !p.ReportIncidentOnce() {
		t.Fatal("ReportIncidentOnce() = false on first call")
	}
	if p.ReportIncidentOnce() {
		t.Fatal("ReportIncidentOnce() = true on second call for same ping id")
	}

	p.RecordPing(2, start.Add(20*time.Second))
	if !p.ReportIncidentOnce() {
		t.Fatal("ReportIncidentOnce() = false for a new ping id")
	}
}
