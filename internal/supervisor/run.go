package supervisor

import (
	"context"
	"time"

	"github.com/udisondev/l2client/internal/classify"
	"github.com/udisondev/l2client/internal/logging"
	"github.com/udisondev/l2client/internal/netprobe"
	"github.com/udisondev/l2client/internal/resources"
	"github.com/udisondev/l2client/internal/serverconn"
	"github.com/udisondev/l2client/internal/statushint"
	"github.com/udisondev/l2client/internal/wire"
)

// runLoop is the supervisor's single logical task (spec §5 "single
// cooperative task... progresses in discrete steps"). Grounded on
// pkg/connection/reconnect.go's reconnectLoop/attemptReconnect pair,
// generalized from a binary connected/disconnected state to the full
// tagged ConnectionState and to in-session resume.
func (s *Supervisor) runLoop() {
	defer close(s.doneCh)
	defer s.running.Store(false)

	attemptIndex := 0
	var hintFetcher *statushint.Fetcher
	hintStarted := false
	probeStarted := false

	for {
		if s.mainCtx.Err() != nil {
			return
		}

		attemptIndex++
		s.step(func() {
			s.setState(classify.Connecting(classify.PhaseInitializing, attemptIndex))
		})

		if hintFetcher == nil {
			hintFetcher = s.deps.StatusHint
		}

		outcome := s.runAttempt(attemptIndex)

		switch outcome.kind {
		case attemptConnected:
			// Steady-state loop owns the goroutine until the session
			// ends for good (terminal classification or supervisor close).
			s.steadyState(outcome.sc, outcome.sessionStartSuccess)
			return
		case attemptTerminal:
			s.step(func() { s.setState(outcome.state) })
			return
		case attemptTransient:
			if !hintStarted && s.cfg.StatusHintCheckDelay >= 0 {
				hintStarted = true
				s.startStatusHintIfNeeded()
			}
			if !probeStarted {
				probeStarted = true
				s.startProbeIfNeeded()
			}
			hintPending := hintFetcher != nil && hintFetcher.Pending()
			if !shouldContinueAttempting(attemptIndex, s.cfg.ConnectAttemptsMax, hintPending) {
				s.step(func() { s.setState(outcome.state) })
				return
			}
			s.step(func() {
				s.setState(classify.Connecting(classify.PhaseReconnectPending, attemptIndex))
			})
			if err := s.deps.Clock.Sleep(s.mainCtx, s.cfg.ConnectAttemptInterval); err != nil {
				return
			}
		}
	}
}

// step runs fn with the stepping guard held, implementing spec
// invariant 7 ("at most one supervisor step runs at a time; Close() or
// Reconnect() called during a step is rejected" — Open Question 2).
func (s *Supervisor) step(fn func()) {
	s.stepping.Store(true)
	defer s.stepping.Store(false)
	fn()
}

type attemptOutcomeKind int

const (
	attemptConnected attemptOutcomeKind = iota
	attemptTransient
	attemptTerminal
)

type attemptOutcome struct {
	kind                attemptOutcomeKind
	state               classify.ConnectionState
	sc                  *serverconn.ServerConnection
	sessionStartSuccess *wire.SessionStartSuccess
}

// runAttempt drives one full connect attempt: credential resolution,
// the ServerConnection handshake, and the resource-correction retry
// loop, ending in either a live Connected session or a classified
// failure.
func (s *Supervisor) runAttempt(attemptIndex int) attemptOutcome {
	s.step(func() {
		s.setState(classify.Connecting(classify.PhaseConnectingToServer, attemptIndex))
	})

	login, err := s.deps.Credentials.Select(s.mainCtx)
	if err != nil {
		return s.classifyFailure(&classify.RawError{Kind: classify.RawClientSideConnectionError, Detail: err.Error()}, false)
	}

	sc := s.deps.NewServerConn()
	s.currentSC.Store(sc)
	s.hadHandshake.Store(false)

	loader := s.deps.NewLoader()
	var correction *wire.ResourceCorrection
	var loadedSlots map[string]resources.Slot

	loginReq := s.deps.BuildLogin(login)
	start := s.deps.BuildSessionStart(attemptIndex, nil)

	connectErr := sc.Connect(s.mainCtx, loginReq, start)
	if connectErr != nil {
		s.currentSC.Store(nil)
		raw, _ := connectErr.(*classify.RawError)
		if raw == nil {
			raw = &classify.RawError{Kind: classify.RawClientSideConnectionError, Detail: connectErr.Error()}
		}
		return s.classifyFailure(raw, true)
	}

	for {
		select {
		case <-s.mainCtx.Done():
			sc.Dispose()
			s.currentSC.Store(nil)
			return attemptOutcome{kind: attemptTerminal, state: classify.NotConnected()}
		case ev, ok := <-sc.Events():
			if !ok {
				return s.classifyFailure(&classify.RawError{Kind: classify.RawClientSideConnectionError, Detail: "events closed"}, true)
			}
			if ev.Err != nil {
				s.currentSC.Store(nil)
				return s.classifyFailure(ev.Err, true)
			}
			msg := ev.Message
			if msg == nil {
				continue
			}
			switch msg.Kind {
			case wire.KindConnectedToServer:
				s.hadHandshake.Store(true)
				s.step(func() {
					s.setState(classify.Connecting(classify.PhaseNegotiating, attemptIndex))
				})
				continue
			case wire.KindSessionStartSuccess:
				s.hadSession.Store(true)
				s.deps.QoS.ObserveMessage(s.deps.Clock.Now())
				if err := loader.Specialize(loadedSlots, msg.SessionStartSuccess, s.deps.Specialize); err != nil {
					raw := classify.RawError{Kind: classify.RawActivationFailed, Detail: err.Error()}
					s.abortAndClassify(sc, &raw, []byte(err.Error()))
					s.currentSC.Store(nil)
					return s.classifyFailure(&raw, true)
				}
				return attemptOutcome{kind: attemptConnected, sc: sc, sessionStartSuccess: msg.SessionStartSuccess}
			case wire.KindSessionStartFailure:
				incident := classify.RawError{Kind: classify.RawSessionStartFailed, Detail: msg.SessionStartFailure.ReasonCode}
				s.abortAndClassify(sc, &incident, []byte(msg.SessionStartFailure.ReasonCode))
				s.currentSC.Store(nil)
				return s.classifyFailure(&incident, true)
			case wire.KindSessionStartResourceCorrection:
				correction = &msg.SessionStartResourceCorrection.Correction
				s.step(func() {
					s.setState(classify.Connecting(classify.PhaseDownloadingResources, attemptIndex))
				})
				slots, err := s.applyResourceCorrection(loader, correction)
				if err != nil {
					raw := classify.RawError{Kind: classify.RawActivationFailed, Detail: err.Error()}
					s.abortAndClassify(sc, &raw, []byte(err.Error()))
					s.currentSC.Store(nil)
					return s.classifyFailure(&raw, true)
				}
				loadedSlots = slots
				s.step(func() {
					s.setState(classify.Connecting(classify.PhaseNegotiating, attemptIndex))
				})
				sc.RetrySessionStart(s.deps.BuildSessionStart(attemptIndex, loadedSlots))
				continue
			case wire.KindUpdateScheduledMaintenanceMode:
				continue
			default:
				continue
			}
		}
	}
}

// applyResourceCorrection runs the full download+activate cycle for one
// ResourceCorrection (spec §4.3, §4.1 "Resource-correction handling"),
// returning the loaded slots so the caller can fold them into the
// retried SessionStartRequest's ResourceProposal.
func (s *Supervisor) applyResourceCorrection(loader *resources.Loader, correction *wire.ResourceCorrection) (map[string]resources.Slot, error) {
	ctx, cancel := context.WithTimeout(s.mainCtx, s.cfg.ConfigFetchTimeout)
	defer cancel()
	return loader.Load(ctx, *correction, s.deps.Activate)
}

// abortAndClassify sends abortSessionStart(trailer) and waits up to
// closeFlushTimeout for the connection to finish reporting its close,
// per spec §4.1's session-start failure path.
func (s *Supervisor) abortAndClassify(sc *serverconn.ServerConnection, incident *classify.RawError, trailer []byte) {
	sc.AbortSessionStart(trailer)
	deadline := time.After(s.cfg.CloseFlushTimeout)
	for {
		select {
		case <-deadline:
			return
		case ev, ok := <-sc.Events():
			if !ok {
				return
			}
			if ev.Err != nil && ev.Err.Kind == classify.RawEnqueuedClose {
				return
			}
		}
	}
}

// classifyFailure runs the Translate/PostClassify pipeline and wraps
// the result as a transient or terminal attemptOutcome.
func (s *Supervisor) classifyFailure(raw *classify.RawError, connectPhase bool) attemptOutcome {
	ctx := s.translationContext(raw)
	ctx.ConnectPhase = connectPhase
	if s.deps.StatusHint != nil {
		if w, _ := s.deps.StatusHint.Fetch(s.mainCtx); w != nil {
			hint := classify.MaintenanceHint{StartAt: w.StartAt, EstimatedEndTime: w.EstimatedEndTime}
			ctx.MaintenanceHint = &hint
		}
	}
	st := classify.Translate(*raw, ctx)
	st = classify.PostClassify(st, ctx)
	if st.Status == classify.StatusTerminalError {
		return attemptOutcome{kind: attemptTerminal, state: st}
	}
	return attemptOutcome{kind: attemptTransient, state: st}
}

func (s *Supervisor) startStatusHintIfNeeded() {
	if s.deps.StatusHint == nil {
		return
	}
	go func() {
		_, _ = s.deps.StatusHint.Fetch(s.mainCtx)
	}()
}

// startProbeIfNeeded runs the Network Probe (C8) once per attempt
// sequence, started on the first transient failure (spec §4.5): its
// tri-state result feeds ctx.ProbeStatus via translationContext, which
// is what lets PostClassify's no-network override (§4.7b) ever fire.
func (s *Supervisor) startProbeIfNeeded() {
	if s.deps.Prober == nil {
		return
	}
	go func() {
		s.deps.Prober.Run(s.mainCtx, func(st netprobe.Status) {
			s.probeStatus.Store(uint32(st))
		})
	}()
}

// steadyState pumps a Connected session's events until the connection
// drops, resuming transparently until sessionResumptionAttemptMaxDuration
// elapses, then falls back to a classified disconnect (spec §4.1
// "In-session resume", "Resume ping-pong").
func (s *Supervisor) steadyState(sc *serverconn.ServerConnection, success *wire.SessionStartSuccess) {
	if success != nil {
		s.resumptionToken = success.ResumptionToken
	}
	s.pingIncidents.Store(0)
	s.step(func() {
		s.setState(classify.Connected(true, s.deps.Clock.Now()))
	})
	if success != nil && success.ScheduledMaintenanceMode != nil {
		s.step(func() {
			s.setState(classify.TerminalMaintenance(maintenanceHintFromWindow(success.ScheduledMaintenanceMode), nil))
		})
		sc.Dispose()
		s.deliverDisconnected()
		return
	}

	for {
		outcome := s.pumpConnected(sc)
		switch outcome {
		case steadyDropResumable:
			var ok bool
			sc, ok = s.attemptResume(sc)
			if !ok {
				return
			}
			continue
		case steadyGiveUp, steadyClosed:
			return
		}
	}
}

type steadyOutcome int

const (
	steadyDropResumable steadyOutcome = iota
	steadyGiveUp
	steadyClosed
)

// pumpConnected drains sc.Events() while Connected, dispatching
// messages and tracking QoS/ping-pong health, until the connection
// reports a drop or the supervisor is cancelled.
func (s *Supervisor) pumpConnected(sc *serverconn.ServerConnection) steadyOutcome {
	for {
		select {
		case <-s.mainCtx.Done():
			s.step(func() {
				s.flushAndFence()
				sc.Dispose()
			})
			return steadyClosed
		case ev, ok := <-sc.Events():
			if !ok {
				return steadyDropResumable
			}
			if ev.Err != nil {
				return s.handleDropEvent(ev.Err)
			}
			if ev.Message == nil {
				continue
			}
			s.handleSteadyMessage(sc, ev.Message)
		}
	}
}

func (s *Supervisor) handleDropEvent(raw *classify.RawError) steadyOutcome {
	ctx := s.translationContext(raw)
	if raw.Kind == classify.RawEnqueuedClose && ctx.Cause == classify.ClosePauseMarker {
		s.step(func() {
			s.setState(classify.Transient(classify.TransientSessionLostInBackground, nil))
		})
		s.deliverDisconnected()
		return steadyGiveUp
	}
	s.currentSC.Store(nil)
	s.deliverDisconnected()
	return steadyDropResumable
}

// maintenanceHintFromWindow converts a wire-level maintenance window
// into the classify package's own copy, so ConnectionState.Maintenance
// never depends on the wire package.
func maintenanceHintFromWindow(w *wire.MaintenanceWindow) *classify.MaintenanceHint {
	if w == nil {
		return nil
	}
	return &classify.MaintenanceHint{StartAt: w.StartAt, EstimatedEndTime: w.EstimatedEndTime}
}

func (s *Supervisor) handleSteadyMessage(sc *serverconn.ServerConnection, msg *wire.Message) {
	now := s.deps.Clock.Now()
	s.deps.QoS.ObserveMessage(now)

	switch msg.Kind {
	case wire.KindSessionPong:
		if rtt := s.pingTracker.RecordPong(msg.SessionPong.ID, now); rtt > 0 {
			s.deps.QoS.ObserveRoundTrip(rtt)
		}
	case wire.KindSessionResumeSuccess:
		if w := msg.SessionResumeSuccess.ScheduledMaintenanceMode; w != nil {
			s.step(func() {
				s.setState(classify.TerminalMaintenance(maintenanceHintFromWindow(w), nil))
			})
			sc.Dispose()
			s.currentSC.Store(nil)
			s.deliverDisconnected()
			return
		}
	case wire.KindUpdateScheduledMaintenanceMode:
		if w := msg.UpdateScheduledMaintenanceMode.Scheduled; w != nil {
			s.step(func() {
				s.setState(classify.TerminalMaintenance(maintenanceHintFromWindow(w), nil))
			})
			sc.Dispose()
			s.currentSC.Store(nil)
			s.deliverDisconnected()
			return
		}
	}

	healthy := s.deps.QoS.IsHealthy(now) && s.pingTracker.Matched()
	s.step(func() {
		s.setState(classify.Connected(healthy, now))
	})
	s.dispatch.enqueue(*msg)
	s.dispatch.drain(s.deps.Dispatcher)
}

// attemptResume retries the connection up to
// sessionResumptionAttemptMaxDuration from the moment of first loss,
// sending a fresh SessionPing on every resume success per spec §4.1.
func (s *Supervisor) attemptResume(prev *serverconn.ServerConnection) (*serverconn.ServerConnection, bool) {
	deadline := s.deps.Clock.Now().Add(s.cfg.SessionResumptionAttemptMaxDuration)
	sc := s.deps.NewServerConn()

	for attempt := 1; ; attempt++ {
		if s.mainCtx.Err() != nil {
			return nil, false
		}
		if s.deps.Clock.Now().After(deadline) {
			prev.AbortSessionAfterConnectionDrop()
			s.step(func() {
				s.setState(classify.Transient(classify.TransientSessionResumeFailed, nil))
			})
			s.deliverDisconnected()
			return nil, false
		}

		resumeCtx, cancel := context.WithTimeout(s.mainCtx, s.cfg.ConnectTimeout)
		err := sc.ResumeSessionAfterConnectionDrop(resumeCtx, s.resumptionToken)
		cancel()
		if err == nil {
			break
		}
		if werr := s.deps.Clock.Sleep(s.mainCtx, s.cfg.ConnectAttemptInterval); werr != nil {
			return nil, false
		}
	}

	s.currentSC.Store(sc)
	pingID := s.pingCounter.Add(1)
	now := s.deps.Clock.Now()
	s.pingTracker.RecordPing(pingID, now)
	sc.EnqueueSendMessage(wire.Message{Kind: wire.KindSessionPing, SessionPing: &wire.SessionPing{ID: pingID}})
	s.deps.Clock.AfterFunc(s.deps.QoS.LastRoundTrip()+s.cfg.SessionPingPongDurationIncidentThreshold, func() {
		s.reportPingOverdueIncident(pingID)
	})

	s.step(func() {
		s.setState(classify.Connected(false, now))
	})
	return sc, true
}

// reportPingOverdueIncident reports at most one incident per
// outstanding resume ping once it has gone unanswered past
// SessionPingPongDurationIncidentThreshold, capped at
// MaxSessionPingPongDurationIncidentsPerSession per session (spec §4.1
// "Resume ping-pong", S3).
func (s *Supervisor) reportPingOverdueIncident(pingID uint64) {
	rtt := s.deps.QoS.LastRoundTrip()
	if !s.pingTracker.Overdue(s.deps.Clock.Now(), rtt, s.cfg.SessionPingPongDurationIncidentThreshold) {
		return
	}
	if !s.pingTracker.ReportIncidentOnce() {
		return
	}
	if s.pingIncidents.Add(1) > uint64(s.cfg.MaxSessionPingPongDurationIncidentsPerSession) {
		return
	}
	if s.deps.Logger != nil {
		s.deps.Logger.Log(logging.Event{
			Timestamp: s.deps.Clock.Now(),
			Category:  logging.CategoryIncident,
			Incident:  &logging.Incident{Reason: "ping-pong-overdue", PingID: uint32(pingID)},
		})
	}
}
