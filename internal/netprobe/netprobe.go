// Package netprobe implements the Network Probe (C8): an independent
// reachability check against a known CDN resource, used by the Error
// Translator's no-network override and surfaced on
// Statistics.currentConnection.networkProbeStatus.
package netprobe

import (
	"context"
	"io"
	"net/http"
	"time"
)

// Status is the probe's tri-state result (spec §4.5).
type Status uint8

const (
	Unknown Status = iota
	HasConnection
	NoConnection
)

func (s Status) String() string {
	switch s {
	case HasConnection:
		return "HasConnection"
	case NoConnection:
		return "NoConnection"
	default:
		return "Unknown"
	}
}

// spacing is the fixed inter-attempt delay schedule: 500ms after the
// first attempt, then 1s thereafter (spec §4.5).
var spacing = []time.Duration{500 * time.Millisecond, time.Second, time.Second, time.Second}

const maxAttempts = 5

// Prober performs the HTTPS GET reachability check.
type Prober struct {
	client *http.Client
	url    string
	clock  sleeper
}

type sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// New returns a Prober checking url with client.
func New(client *http.Client, url string, clock sleeper) *Prober {
	return &Prober{client: client, url: url, clock: clock}
}

// Run executes up to 5 attempts with 500ms/1s spacing, calling onUpdate
// after every attempt whose result differs from the tolerated-first-
// failure rule in spec §4.5: the first failure never changes the
// result; every failure from the second on reports NoConnection, and a
// later success still reports HasConnection.
func (p *Prober) Run(ctx context.Context, onUpdate func(Status)) Status {
	status := Unknown
	failures := 0

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			d := spacing[(attempt-1)%len(spacing)]
			if err := p.clock.Sleep(ctx, d); err != nil {
				return status
			}
		}

		ok := p.probeOnce(ctx)
		if ok {
			if status != HasConnection {
				status = HasConnection
				if onUpdate != nil {
					onUpdate(status)
				}
			}
			continue
		}

		failures++
		if failures == 1 {
			// First failure is tolerated: no state change.
			continue
		}
		if status != NoConnection {
			status = NoConnection
			if onUpdate != nil {
				onUpdate(status)
			}
		}
	}

	return status
}

func (p *Prober) probeOnce(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1))
	if err != nil {
		return false
	}
	return len(body) == 1 && body[0] == 'y'
}
