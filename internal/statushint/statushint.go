// Package statushint implements the Status Hint Fetcher (C9): an
// out-of-band CDN JSON document carrying maintenance-mode information,
// consulted when the primary backend is slow or unreachable.
package statushint

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Document is the parsed serverStatusHint.json contract (spec §6).
type Document struct {
	MaintenanceMode *MaintenanceMode `json:"MaintenanceMode"`
}

// MaintenanceMode mirrors the JSON document's maintenance window.
type MaintenanceMode struct {
	StartAt          string `json:"StartAt"`
	EstimatedEndTime string `json:"EstimatedEndTime,omitempty"`
}

// Window is the parsed, time.Time-typed maintenance window.
type Window struct {
	StartAt          time.Time
	EstimatedEndTime *time.Time
}

// ErrInvalidStatusHint is reported (as an incident, per spec §4.4) when
// a source returns a document that does not parse, or whose
// MaintenanceMode timestamps are not valid UTC ISO-8601.
var ErrInvalidStatusHint = fmt.Errorf("statushint: invalid status hint document")

// Incident is emitted whenever a source's document is malformed —
// treated as a fetch failure but separately reported for diagnostics.
type Incident struct {
	Source string
	Err    error
}

// Fetcher retrieves and caches the status hint for one logical session
// (spec: "at most one in flight; its result is cached and reused across
// attempts of the same session").
type Fetcher struct {
	client         *http.Client
	primaryURL     string
	secondaryURL   string
	connectTimeout time.Duration
	readTimeout    time.Duration
	onIncident     func(Incident)

	group singleflight.Group

	mu     sync.Mutex
	cached *Window
	done   bool
}

// New returns a Fetcher for the given CDN sources.
func New(client *http.Client, primaryURL, secondaryURL string, connectTimeout, readTimeout time.Duration, onIncident func(Incident)) *Fetcher {
	return &Fetcher{
		client:         client,
		primaryURL:     primaryURL,
		secondaryURL:   secondaryURL,
		connectTimeout: connectTimeout,
		readTimeout:    readTimeout,
		onIncident:     onIncident,
	}
}

// Fetch returns the cached result if this logical session already
// resolved one, otherwise performs (or joins an in-flight) fetch of
// primary then secondary.
func (f *Fetcher) Fetch(ctx context.Context) (*Window, error) {
	f.mu.Lock()
	if f.done {
		defer f.mu.Unlock()
		return f.cached, nil
	}
	f.mu.Unlock()

	v, err, _ := f.group.Do("fetch", func() (any, error) {
		win, ferr := f.fetchOnce(ctx)

		f.mu.Lock()
		f.cached = win
		f.done = true
		f.mu.Unlock()

		return win, ferr
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*Window), nil
}

// Pending reports whether a fetch has not yet resolved — the
// supervisor's attempt-budget extension policy gates on this.
func (f *Fetcher) Pending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.done
}

func (f *Fetcher) fetchOnce(ctx context.Context) (*Window, error) {
	for _, url := range []string{f.primaryURL, f.secondaryURL} {
		if url == "" {
			continue
		}
		win, err := f.fetchFrom(ctx, url)
		if err == nil {
			return win, nil
		}
		if f.onIncident != nil {
			f.onIncident(Incident{Source: url, Err: err})
		}
	}
	return nil, fmt.Errorf("statushint: all sources failed")
}

func (f *Fetcher) fetchFrom(ctx context.Context, url string) (*Window, error) {
	connectCtx, cancel := context.WithTimeout(ctx, f.connectTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(connectCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	readCtx, cancel2 := context.WithTimeout(ctx, f.readTimeout)
	defer cancel2()

	bodyCh := make(chan []byte, 1)
	errCh := make(chan error, 1)
	go func() {
		b, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			errCh <- readErr
			return
		}
		bodyCh <- b
	}()

	var body []byte
	select {
	case <-readCtx.Done():
		return nil, readCtx.Err()
	case err := <-errCh:
		return nil, err
	case body = <-bodyCh:
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, ErrInvalidStatusHint
	}
	if doc.MaintenanceMode == nil {
		return nil, nil
	}

	start, err := time.Parse(time.RFC3339, doc.MaintenanceMode.StartAt)
	if err != nil {
		return nil, ErrInvalidStatusHint
	}
	win := &Window{StartAt: start.UTC()}
	if doc.MaintenanceMode.EstimatedEndTime != "" {
		end, err := time.Parse(time.RFC3339, doc.MaintenanceMode.EstimatedEndTime)
		if err != nil {
			return nil, ErrInvalidStatusHint
		}
		endUTC := end.UTC()
		win.EstimatedEndTime = &endUTC
	}
	return win, nil
}
