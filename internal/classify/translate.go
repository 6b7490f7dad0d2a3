package classify

import "time"

// CloseCause tags why ServerConnection's write-fence close was issued.
// The source distinguishes causes by object identity of a sentinel
// payload; we use a typed enum instead (spec §9 "Pause-termination
// marker").
type CloseCause uint8

const (
	// CloseNormal is an ordinary client- or server-initiated close.
	CloseNormal CloseCause = iota
	// ClosePauseMarker is attached when the supervisor closes the
	// transport because maxSessionRetainingPauseDuration elapsed while
	// backgrounded — the resulting error must be re-classified as
	// SessionLostInBackground rather than a generic drop.
	ClosePauseMarker
)

// TranslationContext carries the explicit state Translate needs instead
// of reading process-wide singletons (spec §9 "Globals": "these become
// explicit context structs passed through constructors").
type TranslationContext struct {
	// ProbeStatus is the Network Probe's (C8) latest tri-state result.
	ProbeStatus ProbeStatus
	// MaintenanceHint is set once the Status Hint Fetcher (C9) has
	// observed an ongoing maintenance window.
	MaintenanceHint *MaintenanceHint
	// HadSession is true if a SessionHandle had ever been established
	// this logical session.
	HadSession bool
	// HadHandshake is true if ConnectedToServer was ever observed this
	// attempt.
	HadHandshake bool
	// Cause is set when the raw error followed an explicit close (§9
	// pause-termination marker); zero value is CloseNormal.
	Cause CloseCause
	// BackgroundPauseExceeded is true if the raw error was observed
	// while the app had been backgrounded longer than
	// maxNonErrorMaskingPauseDuration.
	BackgroundPauseExceeded bool
	// ConnectPhase is true while still establishing the session (as
	// opposed to an in-session drop) — the maintenance upgrade in the
	// post-classification pass applies only during this phase (§4.7c).
	ConnectPhase bool
}

// ProbeStatus mirrors netprobe.Status without importing that package,
// avoiding an import cycle (netprobe has no need to depend on classify).
type ProbeStatus uint8

const (
	ProbeUnknown ProbeStatus = iota
	ProbeHasConnection
	ProbeNoConnection
)

// MaintenanceHint is the maintenance window as last observed by C9.
type MaintenanceHint struct {
	StartAt          time.Time
	EstimatedEndTime *time.Time
}

// Translate is the deterministic pure function from a RawError to a
// ConnectionState, described in spec §4.7. It does not apply the
// post-classification pass — call PostClassify with the same ctx
// afterward.
func Translate(raw RawError, ctx TranslationContext) ConnectionState {
	switch raw.Kind {
	case RawInvalidMagic:
		return Terminal(TerminalInvalidGameMagic, nil)
	case RawWireProtocolMismatch:
		return Terminal(TerminalWireProtocolVersionMismatch, nil)
	case RawClusterStarting:
		k := TransientClusterNotReady
		return withClusterState(k, ClusterStarting)
	case RawClusterShuttingDown:
		return withClusterState(TransientClusterNotReady, ClusterShuttingDown)
	case RawInMaintenance:
		return TerminalMaintenance(ctx.MaintenanceHint, nil)
	case RawWireFormatError:
		return Terminal(TerminalWireFormatError, nil)
	case RawConnectFailed, RawConnectRefused, RawStreamClosed:
		return Transient(TransientTransportClosed, nil)
	case RawStreamIOError:
		return Transient(TransientTransportClosed, nil)
	case RawStreamTimeout:
		return withTimeoutSource(TimeoutSourceStream)
	case RawTLSNotAuthenticated:
		return withTLSKind(TLSNotAuthenticated)
	case RawTLSFailureWhileAuthenticating:
		return withTLSKind(TLSFailureWhileAuthenticating)
	case RawTLSNotEncrypted:
		return withTLSKind(TLSNotEncrypted)
	case RawTLSUnknown:
		return withTLSKind(TLSUnknown)
	case RawUnexpectedLoginMessage:
		return withSessionProtoKind(SessionProtoUnexpectedLoginMessage)
	case RawMissingServerHello:
		return withSessionProtoKind(SessionProtoMissingServerHello)
	case RawSessionStartFailed:
		return withSessionProtoKind(SessionProtoSessionStartFailed)
	case RawSessionProtocolViolation:
		return withSessionProtoKind(SessionProtoSessionProtocolError)
	case RawLogicVersionMismatch:
		return Terminal(TerminalLogicVersionMismatch, nil)
	case RawLogicVersionDowngrade:
		return Terminal(TerminalLogicVersionDowngrade, nil)
	case RawLoginProtocolVersionMismatch:
		return Terminal(TerminalLoginProtocolVersionMismatch, nil)
	case RawCommitIDMismatch:
		return Terminal(TerminalCommitIDMismatch, nil)
	case RawSessionResumeFailed:
		return Transient(TransientSessionResumeFailed, nil)
	case RawSessionForceTerminated:
		return Transient(TransientSessionForceTerminated, nil)
	case RawPlayerIsBanned:
		return Terminal(TerminalPlayerIsBanned, nil)
	case RawPlayerDeserializationFailed:
		return Terminal(TerminalPlayerDeserializationFailed, nil)
	case RawWatchdogDeadlineExceeded:
		return Transient(TransientWatchdogDeadlineExceeded, nil)
	case RawConfigFetchFailed:
		return withConfigFetchSource(ConfigFetchSourceResourceFetch)
	case RawActivationFailed:
		return withConfigFetchSource(ConfigFetchSourceActivation)
	case RawClientSideConnectionError:
		return Terminal(TerminalClientSideConnectionError, nil)
	case RawEnqueuedClose:
		if ctx.Cause == ClosePauseMarker {
			return Transient(TransientSessionLostInBackground, nil)
		}
		return Transient(TransientTransportClosed, nil)
	default:
		return Terminal(TerminalUnknown, nil)
	}
}

// withClusterState, withTimeoutSource, withTLSKind, withSessionProtoKind
// and withConfigFetchSource attach the qualifying sub-kind as detail on
// the returned state's Report field, since ConnectionState's payload
// fields carry only the top-level kind. Host applications that need the
// sub-kind read it from Report.Detail.
func withClusterState(k TransientKind, c ClusterState) ConnectionState {
	return Transient(k, &NetworkDiagnosticReport{Detail: "cluster:" + c.String()})
}

func withTimeoutSource(s TimeoutSource) ConnectionState {
	return Transient(TransientTransportTimeout, &NetworkDiagnosticReport{Detail: "timeoutSource:" + s.String()})
}

func withTLSKind(k TLSErrorKind) ConnectionState {
	return Transient(TransientTLSError, &NetworkDiagnosticReport{Detail: "tlsKind:" + k.String()})
}

func withSessionProtoKind(k SessionProtocolErrorKind) ConnectionState {
	return Transient(TransientSessionProtocolError, &NetworkDiagnosticReport{Detail: "sessionProtoKind:" + k.String()})
}

func withConfigFetchSource(s ConfigFetchSource) ConnectionState {
	return Transient(TransientConfigFetchFailed, &NetworkDiagnosticReport{Detail: "configFetchSource:" + s.String()})
}

// PostClassify applies the spec §4.7 post-classification pass to a
// state produced by Translate:
//
//	(a) long background mask -> SessionLostInBackground, when a session
//	    existed and the drop happened during a too-long background pause;
//	(b) "no network" override when the probe said NoConnection and the
//	    handshake never completed;
//	(c) transient -> InMaintenance upgrade when the status hint later
//	    asserts maintenance, Connect-phase only.
func PostClassify(state ConnectionState, ctx TranslationContext) ConnectionState {
	if state.Status == StatusTransientError {
		if ctx.BackgroundPauseExceeded && ctx.HadSession {
			return Transient(TransientSessionLostInBackground, state.Report)
		}
		if ctx.ProbeStatus == ProbeNoConnection && !ctx.HadHandshake {
			return Terminal(TerminalNoNetworkConnectivity, state.Report)
		}
		if ctx.ConnectPhase && ctx.MaintenanceHint != nil {
			return TerminalMaintenance(ctx.MaintenanceHint, state.Report)
		}
	}
	return state
}
