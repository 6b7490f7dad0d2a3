package serverconn

import (
	"sync"
	"time"
)

// Watchdog detects a stalled internal worker. Grounded on
// pkg/transport/keepalive.go's KeepAlive: a goroutine that expects
// periodic Kick calls and fires onStall if none arrive before deadline
// elapses, repurposed here to watch this package's own reader/writer
// loops rather than a remote peer's pong traffic.
type Watchdog struct {
	deadline time.Duration
	onStall  func()

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	kickCh  chan struct{}
}

// NewWatchdog returns a Watchdog that calls onStall once if no Kick
// arrives within deadline of Start (or of the previous Kick).
func NewWatchdog(deadline time.Duration, onStall func()) *Watchdog {
	return &Watchdog{deadline: deadline, onStall: onStall, kickCh: make(chan struct{}, 1)}
}

// Start begins monitoring. Safe to call once; a second call is a no-op.
func (w *Watchdog) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	stopCh := w.stopCh
	w.mu.Unlock()
	go w.loop(stopCh)
}

// Stop ends monitoring. Safe to call more than once.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.running = false
	close(w.stopCh)
}

// Kick records worker activity, resetting the stall deadline.
func (w *Watchdog) Kick() {
	select {
	case w.kickCh <- struct{}{}:
	default:
	}
}

func (w *Watchdog) loop(stopCh chan struct{}) {
	timer := time.NewTimer(w.deadline)
	defer timer.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-w.kickCh:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.deadline)
		case <-timer.C:
			w.onStall()
			return
		}
	}
}
