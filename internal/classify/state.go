// Package classify translates raw transport/protocol errors into the
// supervisor's classified ConnectionState and runs the post-
// classification pass (background mask, no-network override,
// maintenance upgrade) described in spec §4.7.
package classify

import "time"

// Status discriminates ConnectionState variants.
type Status uint8

const (
	StatusNotConnected Status = iota
	StatusConnecting
	StatusConnected
	StatusTransientError
	StatusTerminalError
)

func (s Status) String() string {
	switch s {
	case StatusNotConnected:
		return "NOT_CONNECTED"
	case StatusConnecting:
		return "CONNECTING"
	case StatusConnected:
		return "CONNECTED"
	case StatusTransientError:
		return "TRANSIENT_ERROR"
	case StatusTerminalError:
		return "TERMINAL_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Phase discriminates ConnectingPhase variants (spec §3).
type Phase uint8

const (
	PhaseInitializing Phase = iota
	PhaseConnectingToServer
	PhaseNegotiating
	PhaseReconnectPending
	PhaseDownloadingResources
)

func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "Initializing"
	case PhaseConnectingToServer:
		return "ConnectingToServer"
	case PhaseNegotiating:
		return "Negotiating"
	case PhaseReconnectPending:
		return "ReconnectPending"
	case PhaseDownloadingResources:
		return "DownloadingResources"
	default:
		return "Unknown"
	}
}

// NetworkDiagnosticReport is attached to state variants that carry one,
// modeled after the teacher's flat-struct-over-marker-interface
// preference instead of an `IHasNetworkDiagnosticReport` marker type.
type NetworkDiagnosticReport struct {
	ProbeStatus string
	Detail      string
}

// ConnectionState is the tagged variant described in spec §3. Only the
// fields relevant to Status are meaningful.
type ConnectionState struct {
	Status Status

	// Connecting
	Phase       Phase
	AttemptIndex int

	// Connected
	IsHealthy bool
	LastRxAt  time.Time

	// TransientError / TerminalError
	Transient *TransientKind
	Terminal  *TerminalKind
	Report    *NetworkDiagnosticReport

	// Maintenance carries the maintenance window an InMaintenance
	// transition observed. It is populated on the same ConnectionState
	// value the transition publishes, so a listener reading State()
	// after the transition never sees InMaintenance without it
	// (invariant 4: "MaintenanceMode observable is set before the state
	// transition").
	Maintenance *MaintenanceHint
}

// NotConnected returns the initial state.
func NotConnected() ConnectionState {
	return ConnectionState{Status: StatusNotConnected}
}

// Connecting returns a Connecting{phase, attemptIndex} state.
func Connecting(phase Phase, attemptIndex int) ConnectionState {
	return ConnectionState{Status: StatusConnecting, Phase: phase, AttemptIndex: attemptIndex}
}

// Connected returns a Connected{isHealthy, lastRxAt} state.
func Connected(isHealthy bool, lastRxAt time.Time) ConnectionState {
	return ConnectionState{Status: StatusConnected, IsHealthy: isHealthy, LastRxAt: lastRxAt}
}

// Transient returns a TransientError{kind} state.
func Transient(kind TransientKind, report *NetworkDiagnosticReport) ConnectionState {
	k := kind
	return ConnectionState{Status: StatusTransientError, Transient: &k, Report: report}
}

// Terminal returns a TerminalError{kind} state.
func Terminal(kind TerminalKind, report *NetworkDiagnosticReport) ConnectionState {
	k := kind
	return ConnectionState{Status: StatusTerminalError, Terminal: &k, Report: report}
}

// TerminalMaintenance returns a TerminalError{InMaintenance} state
// carrying the maintenance window as last observed, satisfying
// invariant 4.
func TerminalMaintenance(hint *MaintenanceHint, report *NetworkDiagnosticReport) ConnectionState {
	k := TerminalInMaintenance
	return ConnectionState{Status: StatusTerminalError, Terminal: &k, Report: report, Maintenance: hint}
}
