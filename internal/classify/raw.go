package classify

// RawKind enumerates the low-level conditions ServerConnection (C5)
// surfaces to the translator — the "Errors surfaced" list in spec §4.2,
// flattened into a single tagged enum rather than the source's
// exception hierarchy, per the "tagged errors over inheritance"
// redesign cue (spec §9).
type RawKind uint8

const (
	RawInvalidMagic RawKind = iota
	RawWireProtocolMismatch
	RawClusterStarting
	RawClusterShuttingDown
	RawInMaintenance
	RawWireFormatError
	RawConnectFailed
	RawConnectRefused
	RawTLSNotAuthenticated
	RawTLSFailureWhileAuthenticating
	RawTLSNotEncrypted
	RawTLSUnknown
	RawStreamClosed
	RawStreamIOError
	RawStreamTimeout
	RawUnexpectedLoginMessage
	RawMissingServerHello
	RawLogicVersionMismatch
	RawLogicVersionDowngrade
	RawLoginProtocolVersionMismatch
	RawCommitIDMismatch
	RawSessionResumeFailed
	RawSessionStartFailed
	RawSessionProtocolViolation
	RawSessionForceTerminated
	RawPlayerIsBanned
	RawPlayerDeserializationFailed
	RawWatchdogDeadlineExceeded
	RawEnqueuedClose
	RawConfigFetchFailed
	RawActivationFailed
	RawClientSideConnectionError
)

func (k RawKind) String() string {
	names := [...]string{
		"InvalidMagic", "WireProtocolMismatch", "ClusterStarting",
		"ClusterShuttingDown", "InMaintenance", "WireFormatError",
		"ConnectFailed", "ConnectRefused", "TLSNotAuthenticated",
		"TLSFailureWhileAuthenticating", "TLSNotEncrypted", "TLSUnknown",
		"StreamClosed", "StreamIOError", "StreamTimeout",
		"UnexpectedLoginMessage", "MissingServerHello",
		"LogicVersionMismatch", "LogicVersionDowngrade",
		"LoginProtocolVersionMismatch", "CommitIDMismatch",
		"SessionResumeFailed", "SessionStartFailed",
		"SessionProtocolViolation", "SessionForceTerminated",
		"PlayerIsBanned", "PlayerDeserializationFailed",
		"WatchdogDeadlineExceeded", "EnqueuedClose", "ConfigFetchFailed",
		"ActivationFailed", "ClientSideConnectionError",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}

// RawError is what ServerConnection hands the translator: a kind plus
// whatever free-form detail it carries (reason codes, opaque payloads).
// It implements error so collaborators can thread it through ordinary
// Go error-handling before Translate turns it into a ConnectionState.
type RawError struct {
	Kind   RawKind
	Detail string
	// ForceTerminateReason carries the server-supplied reason for
	// RawSessionForceTerminated.
	ForceTerminateReason string
	// ClosePayload carries the opaque bytes of an enqueued close,
	// including the pause-termination marker (spec §9 "Pause-termination
	// marker").
	ClosePayload []byte
}

func (e *RawError) Error() string {
	if e.Detail != "" {
		return e.Kind.String() + ": " + e.Detail
	}
	return e.Kind.String()
}
