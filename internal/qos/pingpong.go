package qos

import (
	"sync"
	"time"
)

// PingTracker matches SessionPing/SessionPong ids for the supervisor's
// resume health check (spec §4.1 "Resume ping-pong"): `isHealthy`
// requires both the Window healthy and `lastPong.id == lastPing.id`.
// Grounded on the teacher's KeepAlive pendingPing/hasPending pair,
// simplified since this tracker does not own sending the ping.
type PingTracker struct {
	mu          sync.Mutex
	lastPingID  uint64
	lastPingAt  time.Time
	lastPongID  uint64
	hasPing     bool
	reportedFor uint64
}

// NewPingTracker returns an empty tracker.
func NewPingTracker() *PingTracker {
	return &PingTracker{}
}

// RecordPing records that SessionPing{id} was just sent at t.
func (p *PingTracker) RecordPing(id uint64, t time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastPingID = id
	p.lastPingAt = t
	p.hasPing = true
}

// RecordPong records that SessionPong{id} was received at now, returning
// the round trip since the matching RecordPing call (zero if id does
// not match the current outstanding ping).
func (p *PingTracker) RecordPong(id uint64, now time.Time) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastPongID = id
	if id != p.lastPingID {
		return 0
	}
	return now.Sub(p.lastPingAt)
}

// Matched reports whether the most recent pong answers the most recent
// ping.
func (p *PingTracker) Matched() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasPing && p.lastPongID == p.lastPingID
}

// Overdue reports whether the outstanding ping has been unanswered for
// longer than roundtripEstimate+threshold, as of now — the condition
// spec §4.1 ties to reporting at most one incident per ping id.
func (p *PingTracker) Overdue(now time.Time, roundtripEstimate, threshold time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.hasPing || p.lastPongID == p.lastPingID {
		return false
	}
	return now.Sub(p.lastPingAt) > roundtripEstimate+threshold
}

// ReportIncidentOnce records that an incident was reported for the
// current outstanding ping, returning true only the first time it is
// called for that ping id — bounding "not more than once per ping id"
// and leaving the per-session cap (
// maxSessionPingPongDurationIncidentsPerSession) to the caller.
func (p *PingTracker) ReportIncidentOnce() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reportedFor == p.lastPingID {
		return false
	}
	p.reportedFor = p.lastPingID
	return true
}
