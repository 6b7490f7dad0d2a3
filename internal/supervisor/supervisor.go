// Package supervisor implements the top-level session state machine
// (spec C11): a long-lived task that drives credential resolution,
// wire handshake, session start, in-session resume, and classified
// teardown, orchestrating the Credential Service, Transport Factory,
// ServerConnection, Resource Loader, Network Probe, Status Hint
// Fetcher, QoS Monitor, and Error Translator.
//
// Grounded on pkg/connection/reconnect.go's Manager: states plus a
// ConnectFunc plus callbacks plus a fixed-interval Backoff, generalized
// to the richer tagged classify.ConnectionState this spec requires, and
// on pkg/failsafe/timer.go for the pause/resume and session-start
// timers.
package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/udisondev/l2client/internal/classify"
	"github.com/udisondev/l2client/internal/clock"
	"github.com/udisondev/l2client/internal/credentials"
	"github.com/udisondev/l2client/internal/logging"
	"github.com/udisondev/l2client/internal/netprobe"
	"github.com/udisondev/l2client/internal/qos"
	"github.com/udisondev/l2client/internal/resources"
	"github.com/udisondev/l2client/internal/serverconn"
	"github.com/udisondev/l2client/internal/statushint"
	"github.com/udisondev/l2client/internal/wire"
)

// ErrStepInProgress is returned by Close/Reconnect when called while
// the supervisor's single goroutine is mid-step (spec invariant 7,
// Open Question 2).
var ErrStepInProgress = errors.New("supervisor: a step is already in progress")

// ErrAlreadyRunning is returned by Connect if the supervisor task is
// already started.
var ErrAlreadyRunning = errors.New("supervisor: already connected or connecting")

// Config names every timeout/limit from spec §5. Each is a soft
// deadline; expiry causes a classified transition, never a crash.
type Config struct {
	ConnectTimeout           time.Duration
	ServerIdentifyTimeout    time.Duration
	ServerSessionInitTimeout time.Duration
	ConfigFetchTimeout       time.Duration
	ConfigFetchAttemptsMax   int
	CloseFlushTimeout        time.Duration
	StatusHintCheckDelay     time.Duration
	StatusHintConnectTimeout time.Duration
	StatusHintReadTimeout    time.Duration

	SessionResumptionAttemptMaxDuration      time.Duration
	SessionPingPongDurationIncidentThreshold time.Duration
	MaxSessionPingPongDurationIncidentsPerSession int
	// MaxSessionRetainingFrameDuration is not read by the supervisor
	// itself; it is the bound a caller hands to qos.Config.MaxSilence
	// when building Deps.QoS (Open Question 4 — see DESIGN.md).
	MaxSessionRetainingFrameDuration time.Duration
	MaxSessionRetainingPauseDuration time.Duration
	MaxNonErrorMaskingPauseDuration  time.Duration

	ConnectAttemptsMax     int // -1 = unlimited
	ConnectAttemptInterval time.Duration
}

// DefaultConfig returns the spec's suggested defaults.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:           10 * time.Second,
		ServerIdentifyTimeout:    10 * time.Second,
		ServerSessionInitTimeout: 20 * time.Second,
		ConfigFetchTimeout:       10 * time.Second,
		ConfigFetchAttemptsMax:   3,
		CloseFlushTimeout:        5 * time.Second,
		StatusHintCheckDelay:     8 * time.Second,
		StatusHintConnectTimeout: 5 * time.Second,
		StatusHintReadTimeout:    5 * time.Second,

		SessionResumptionAttemptMaxDuration:           60 * time.Second,
		SessionPingPongDurationIncidentThreshold:      5 * time.Second,
		MaxSessionPingPongDurationIncidentsPerSession: 3,
		MaxSessionRetainingFrameDuration:              30 * time.Second,
		MaxSessionRetainingPauseDuration:               2 * time.Minute,
		MaxNonErrorMaskingPauseDuration:                10 * time.Second,

		ConnectAttemptsMax:     -1,
		ConnectAttemptInterval: 3 * time.Second,
	}
}

// Deps bundles every collaborator the supervisor drives (spec §2 data
// flow). NewServerConn and NewLoader build a fresh instance per attempt
// per spec Lifecycles ("ServerConnection: one per attempt... ResourceLoader:
// reset on every (re)attempt").
type Deps struct {
	Credentials   *credentials.Service
	NewServerConn func() *serverconn.ServerConnection
	NewLoader     func() *resources.Loader
	Prober        *netprobe.Prober
	StatusHint    *statushint.Fetcher
	QoS           *qos.Window
	Logger        logging.Logger
	Clock         clock.Clock
	Dispatcher    Dispatcher

	// BuildLogin turns the resolved LoginMethod into a wire LoginRequest.
	BuildLogin func(credentials.LoginMethod) wire.LoginRequest
	// BuildSessionStart produces a SessionStartRequest from the current
	// attempt index and, once any resource correction has been applied,
	// the slots actually loaded so far this attempt (nil on the very
	// first request) — the ResourceProposal it builds must reflect what
	// the client actually downloaded (spec §3, §4.1).
	BuildSessionStart func(attemptIndex int, loaded map[string]resources.Slot) wire.SessionStartRequest
	// Activate applies side effects from a freshly loaded resource set.
	Activate resources.ActivateFunc
	// Specialize derives the per-player specialized config once
	// SessionStartSuccess has actually arrived (spec §4.3 "specialize");
	// nil skips specialization.
	Specialize resources.SpecializeFunc
	// FlushPendingMessages is invoked before a flushing close, if set.
	FlushPendingMessages func() error
}

// Supervisor is the top-level session state machine (spec C11).
type Supervisor struct {
	cfg  Config
	deps Deps

	mu    sync.RWMutex
	state classify.ConnectionState

	dispatch dispatchBuffer

	stepping atomic.Bool
	running  atomic.Bool

	mainCtx    context.Context
	mainCancel context.CancelFunc
	doneCh     chan struct{}

	hadSession   atomic.Bool
	hadHandshake atomic.Bool

	backgroundMu    sync.Mutex
	backgroundSince time.Time
	backgrounded    bool

	pingTracker   *qos.PingTracker
	pingCounter   atomic.Uint64
	pingIncidents atomic.Uint64

	// probeStatus holds the Network Probe's (C8) latest result, stored
	// as netprobe.Status by the background goroutine startProbeIfNeeded
	// starts, and read back into TranslationContext.ProbeStatus so
	// PostClassify's no-network override (spec §4.7b) is reachable.
	probeStatus atomic.Uint32

	// resumptionToken is written only from the single supervisor
	// goroutine (runLoop/steadyState), so it needs no synchronization of
	// its own.
	resumptionToken string

	currentSC atomic.Pointer[serverconn.ServerConnection]
}

// New constructs a Supervisor in the NotConnected state.
func New(cfg Config, deps Deps) *Supervisor {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	return &Supervisor{
		cfg:         cfg,
		deps:        deps,
		state:       classify.NotConnected(),
		pingTracker: qos.NewPingTracker(),
	}
}

// State returns a stable snapshot (spec invariant 1: mutated only
// during a supervisor step; reads between steps see a stable value).
func (s *Supervisor) State() classify.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Supervisor) setState(st classify.ConnectionState) {
	s.mu.Lock()
	old := s.state
	s.state = st
	s.mu.Unlock()
	if s.deps.Logger != nil {
		s.deps.Logger.Log(logging.Event{
			Timestamp: s.deps.Clock.Now(),
			Category:  logging.CategoryStateChange,
			StateChange: &logging.StateChange{
				OldStatus: old.Status.String(),
				NewStatus: st.Status.String(),
			},
		})
	}
}

// Connect starts the single logical supervisor task. Returns
// ErrAlreadyRunning if already started.
func (s *Supervisor) Connect(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	s.mainCtx, s.mainCancel = context.WithCancel(ctx)
	s.doneCh = make(chan struct{})
	go s.runLoop()
	return nil
}

// Close cancels the supervisor task. If flushPending, pending messages
// are flushed and the transport write-fenced (bounded by
// CloseFlushTimeout) before teardown. Rejected with ErrStepInProgress
// if called mid-step (spec invariant 7).
func (s *Supervisor) Close(flushPending bool) error {
	if s.stepping.Load() {
		return ErrStepInProgress
	}
	if !s.running.Load() {
		return nil
	}
	if flushPending {
		s.flushAndFence()
	}
	s.mainCancel()
	<-s.doneCh
	return nil
}

// CloseWithError behaves like Close, but the final state reflects err
// rather than a plain shutdown (used by the session-start failure path
// and by collaborators that detect an unrecoverable client-side error).
// Only a *classify.RawError is translated into a state; for any other
// err the state is left as Close leaves it.
func (s *Supervisor) CloseWithError(err error, flushPending bool) error {
	if s.stepping.Load() {
		return ErrStepInProgress
	}
	if raw, ok := err.(*classify.RawError); ok {
		st := classify.Translate(*raw, s.translationContext(raw))
		st = classify.PostClassify(st, s.translationContext(raw))
		s.setState(st)
	}
	return s.Close(flushPending)
}

// Reconnect is Close followed by Connect, with a synchronous
// DisconnectedFromServer delivery in between (spec Lifecycles).
func (s *Supervisor) Reconnect(flushPending bool) error {
	if s.stepping.Load() {
		return ErrStepInProgress
	}
	if err := s.Close(flushPending); err != nil {
		return err
	}
	s.deliverDisconnected()
	return s.Connect(context.Background())
}

// SuspendDispatch suspends or resumes message delivery to Dispatcher
// (spec §4.1 "Message dispatch suspension").
func (s *Supervisor) SuspendDispatch(suspend bool) {
	s.dispatch.setSuspended(suspend)
	if !suspend {
		s.dispatch.drain(s.deps.Dispatcher)
	}
}

// SendToServer enqueues msg on the current attempt's ServerConnection.
// Returns false if there is none (not connected).
func (s *Supervisor) SendToServer(msg wire.Message) bool {
	sc := s.currentSC.Load()
	if sc == nil {
		return false
	}
	return sc.EnqueueSendMessage(msg)
}

// OnApplicationPause schedules the pause-retention timer and masks
// errors observed while backgrounded (spec §4.1 "Pause/resume policy").
func (s *Supervisor) OnApplicationPause(maxBackgroundDuration *time.Duration) {
	s.backgroundMu.Lock()
	s.backgrounded = true
	s.backgroundSince = s.deps.Clock.Now()
	s.backgroundMu.Unlock()

	limit := s.cfg.MaxSessionRetainingPauseDuration
	if maxBackgroundDuration != nil {
		limit = *maxBackgroundDuration
	}
	s.deps.Clock.AfterFunc(limit, func() {
		if sc := s.currentSC.Load(); sc != nil {
			sc.EnqueueClose([]byte("pause-marker"))
		}
	})
}

// OnApplicationResume clears the background window and re-labels any
// transient error observed during a too-long pause.
func (s *Supervisor) OnApplicationResume() {
	s.backgroundMu.Lock()
	since := s.backgroundSince
	s.backgrounded = false
	s.backgroundMu.Unlock()

	if s.State().Status == classify.StatusTransientError &&
		s.deps.Clock.Now().Sub(since) > s.cfg.MaxNonErrorMaskingPauseDuration && s.hadSession.Load() {
		s.setState(classify.Transient(classify.TransientSessionLostInBackground, nil))
		s.deliverDisconnected()
	}
}

func (s *Supervisor) backgroundPauseExceeded() bool {
	s.backgroundMu.Lock()
	defer s.backgroundMu.Unlock()
	if !s.backgrounded {
		return false
	}
	return s.deps.Clock.Now().Sub(s.backgroundSince) > s.cfg.MaxNonErrorMaskingPauseDuration
}

func (s *Supervisor) deliverDisconnected() {
	s.dispatch.enqueue(wire.Message{Kind: wire.KindDisconnectedFromServer})
	s.dispatch.drain(s.deps.Dispatcher)
}

func (s *Supervisor) flushAndFence() {
	if s.deps.FlushPendingMessages != nil {
		_ = s.deps.FlushPendingMessages()
	}
	sc := s.currentSC.Load()
	if sc == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		sc.EnqueueTransportWriteFence()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.cfg.CloseFlushTimeout):
	}
}

func (s *Supervisor) translationContext(raw *classify.RawError) classify.TranslationContext {
	var hint *classify.MaintenanceHint
	ctx := classify.TranslationContext{
		HadSession:              s.hadSession.Load(),
		HadHandshake:            s.hadHandshake.Load(),
		BackgroundPauseExceeded: s.backgroundPauseExceeded(),
		MaintenanceHint:         hint,
		ProbeStatus:             classifyProbeStatus(netprobe.Status(s.probeStatus.Load())),
	}
	if raw.Kind == classify.RawEnqueuedClose && string(raw.ClosePayload) == "pause-marker" {
		ctx.Cause = classify.ClosePauseMarker
	}
	return ctx
}

// classifyProbeStatus maps netprobe's result enum onto classify's own
// mirror of it (classify avoids importing netprobe directly).
func classifyProbeStatus(st netprobe.Status) classify.ProbeStatus {
	switch st {
	case netprobe.HasConnection:
		return classify.ProbeHasConnection
	case netprobe.NoConnection:
		return classify.ProbeNoConnection
	default:
		return classify.ProbeUnknown
	}
}
