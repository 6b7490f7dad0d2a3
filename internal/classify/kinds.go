package classify

// TransientKind enumerates the "retry likely helpful" taxonomy (spec §7).
type TransientKind uint8

const (
	TransientTransportClosed TransientKind = iota
	TransientTransportTimeout
	TransientTLSError
	TransientClusterNotReady
	TransientConfigFetchFailed
	TransientSessionResumeFailed
	TransientSessionForceTerminated
	TransientSessionProtocolError
	TransientSessionLostInBackground
	TransientAppTooLongSuspended
	TransientWatchdogDeadlineExceeded
)

func (k TransientKind) String() string {
	names := [...]string{
		"TransportClosed", "TransportTimeout", "TLSError", "ClusterNotReady",
		"ConfigFetchFailed", "SessionResumeFailed", "SessionForceTerminated",
		"SessionProtocolError", "SessionLostInBackground", "AppTooLongSuspended",
		"WatchdogDeadlineExceeded",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}

// TimeoutSource qualifies TransientTransportTimeout.
type TimeoutSource uint8

const (
	TimeoutSourceConnect TimeoutSource = iota
	TimeoutSourceStream
	TimeoutSourceResourceFetch
)

func (s TimeoutSource) String() string {
	switch s {
	case TimeoutSourceConnect:
		return "Connect"
	case TimeoutSourceStream:
		return "Stream"
	case TimeoutSourceResourceFetch:
		return "ResourceFetch"
	default:
		return "Unknown"
	}
}

// TLSErrorKind qualifies TransientTLSError.
type TLSErrorKind uint8

const (
	TLSNotAuthenticated TLSErrorKind = iota
	TLSFailureWhileAuthenticating
	TLSNotEncrypted
	TLSUnknown
)

func (k TLSErrorKind) String() string {
	switch k {
	case TLSNotAuthenticated:
		return "NotAuthenticated"
	case TLSFailureWhileAuthenticating:
		return "FailureWhileAuthenticating"
	case TLSNotEncrypted:
		return "NotEncrypted"
	default:
		return "Unknown"
	}
}

// ClusterState qualifies TransientClusterNotReady.
type ClusterState uint8

const (
	ClusterStarting ClusterState = iota
	ClusterShuttingDown
)

func (c ClusterState) String() string {
	switch c {
	case ClusterStarting:
		return "Starting"
	case ClusterShuttingDown:
		return "ShuttingDown"
	default:
		return "Unknown"
	}
}

// ConfigFetchSource qualifies TransientConfigFetchFailed.
type ConfigFetchSource uint8

const (
	ConfigFetchSourceResourceFetch ConfigFetchSource = iota
	ConfigFetchSourceActivation
)

func (s ConfigFetchSource) String() string {
	switch s {
	case ConfigFetchSourceResourceFetch:
		return "ResourceFetch"
	case ConfigFetchSourceActivation:
		return "Activation"
	default:
		return "Unknown"
	}
}

// SessionProtocolErrorKind qualifies TransientSessionProtocolError.
type SessionProtocolErrorKind uint8

const (
	SessionProtoUnexpectedLoginMessage SessionProtocolErrorKind = iota
	SessionProtoMissingServerHello
	SessionProtoSessionStartFailed
	SessionProtoSessionProtocolError
)

func (k SessionProtocolErrorKind) String() string {
	switch k {
	case SessionProtoUnexpectedLoginMessage:
		return "UnexpectedLoginMessage"
	case SessionProtoMissingServerHello:
		return "MissingServerHello"
	case SessionProtoSessionStartFailed:
		return "SessionStartFailed"
	case SessionProtoSessionProtocolError:
		return "SessionProtocolError"
	default:
		return "Unknown"
	}
}

// TerminalKind enumerates the "retry will not help" taxonomy (spec §7).
type TerminalKind uint8

const (
	TerminalWireProtocolVersionMismatch TerminalKind = iota
	TerminalInvalidGameMagic
	TerminalInMaintenance
	TerminalLogicVersionMismatch
	TerminalLogicVersionDowngrade
	TerminalLoginProtocolVersionMismatch
	TerminalCommitIDMismatch
	TerminalWireFormatError
	TerminalNoNetworkConnectivity
	TerminalPlayerIsBanned
	TerminalPlayerDeserializationFailed
	TerminalClientSideConnectionError
	TerminalUnknown
)

func (k TerminalKind) String() string {
	names := [...]string{
		"WireProtocolVersionMismatch", "InvalidGameMagic", "InMaintenance",
		"LogicVersionMismatch", "LogicVersionDowngrade",
		"LoginProtocolVersionMismatch", "CommitIDMismatch", "WireFormatError",
		"NoNetworkConnectivity", "PlayerIsBanned", "PlayerDeserializationFailed",
		"ClientSideConnectionError", "Unknown",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}
