// Package wire defines the named messages the supervisor depends on
// (spec §6). Encoding is explicitly out of scope (Non-goal: "the wire
// codec itself"), so these are plain Go structs with a Kind
// discriminator — the serverconn.Codec a connection is built with turns
// them into and out of the opaque byte records the transport carries.
package wire

import "time"

// Kind discriminates every named message this spec depends on.
type Kind uint8

const (
	// Client -> Server
	KindClientHello Kind = iota
	KindLoginRequest
	KindCreateGuestAccountRequest
	KindSessionStartRequest
	KindSessionPing
	KindAbortSessionStart
	KindClientLifecycleHintPausing
	KindClientLifecycleHintUnpausing
	KindClientLifecycleHintUnpaused

	// Server -> Client
	KindClientHelloAccepted
	KindLoginSuccessResponse
	KindCreateGuestAccountResponse
	KindSessionStartSuccess
	KindSessionStartFailure
	KindSessionStartResourceCorrection
	KindSessionResumeSuccess
	KindSessionPong
	KindUpdateScheduledMaintenanceMode
	KindConnectionHandshakeFailure
	KindOperationStillOngoing
	KindConnectedToServer

	// Transport info pseudo-messages
	KindGotServerHello
	KindGuestAccountCreatedInfo
	KindResourceCorrectionInfo
	KindFullProtocolHashMismatchInfo
	KindSessionStartRequested
	KindSessionConnectionErrorLostInfo

	// KindDisconnectedFromServer is the supervisor's synthetic event,
	// inserted into the dispatch buffer exactly once before any Error*
	// state emitted from a previously-Connected state (spec invariant 3).
	KindDisconnectedFromServer
)

func (k Kind) String() string {
	names := [...]string{
		"ClientHello", "LoginRequest", "CreateGuestAccountRequest",
		"SessionStartRequest", "SessionPing", "AbortSessionStart",
		"ClientLifecycleHintPausing", "ClientLifecycleHintUnpausing",
		"ClientLifecycleHintUnpaused",
		"ClientHelloAccepted", "LoginSuccessResponse",
		"CreateGuestAccountResponse", "SessionStartSuccess",
		"SessionStartFailure", "SessionStartResourceCorrection",
		"SessionResumeSuccess", "SessionPong",
		"UpdateScheduledMaintenanceMode", "ConnectionHandshakeFailure",
		"OperationStillOngoing", "ConnectedToServer",
		"GotServerHello", "GuestAccountCreatedInfo", "ResourceCorrectionInfo",
		"FullProtocolHashMismatchInfo", "SessionStartRequested",
		"SessionConnectionErrorLostInfo", "DisconnectedFromServer",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}

// HandshakeIdentity carries the hash/version fields the client presents
// in ClientHello and checks against the server's response.
type HandshakeIdentity struct {
	GameMagic                    string
	Version                      string
	BuildNumber                  int
	ClientLogicVersion           int
	FullProtocolHash             string
	CommitID                     string
	ClientSessionConnectionIndex int
	ClientSessionNonce           string
	AppLaunchID                  string
	Platform                     string
	LoginProtocolVersion         int
}

// Message is the envelope every wire value travels in between
// ServerConnection and the collaborators above it.
type Message struct {
	Kind Kind

	ClientHello                    *ClientHello
	LoginRequest                   *LoginRequest
	SessionStartRequest            *SessionStartRequest
	SessionPing                    *SessionPing
	AbortSessionStart               *AbortSessionStart
	ClientLifecycleHintPausing      *ClientLifecycleHintPausing

	ClientHelloAccepted             *ClientHelloAccepted
	LoginSuccessResponse            *LoginSuccessResponse
	SessionStartSuccess             *SessionStartSuccess
	SessionStartFailure             *SessionStartFailure
	SessionStartResourceCorrection  *SessionStartResourceCorrection
	SessionResumeSuccess            *SessionResumeSuccess
	SessionPong                     *SessionPong
	UpdateScheduledMaintenanceMode   *UpdateScheduledMaintenanceMode
	OperationStillOngoing           *OperationStillOngoing
	ConnectedToServer               *ConnectedToServer

	GuestAccountCreatedInfo          *GuestAccountCreatedInfo
	ResourceCorrectionInfo           *ResourceCorrectionInfo
	FullProtocolHashMismatchInfo     *FullProtocolHashMismatchInfo
	SessionConnectionErrorLostInfo   *SessionConnectionErrorLostInfo
}

// ClientHello is the first client->server message, presenting identity.
type ClientHello struct {
	Identity HandshakeIdentity
}

// LoginRequest authenticates an existing login method.
type LoginRequest struct {
	DeviceID     string
	AuthToken    string
	PlayerIDHint string
	SocialClaim  string
}

// SessionStartRequest asks the server to begin (or resume) a session.
type SessionStartRequest struct {
	QueryID          uint64
	ResourceProposal ResourceProposal
	TimeZoneInfo     string
}

// ResourceProposal is the client's best guess of resource versions,
// derived deterministically from current SessionResources (spec §3).
type ResourceProposal struct {
	Slots       map[string]ArchiveRef
	Language    string
	Version     int
}

// ArchiveRef names one archive (config or localization) by content id.
type ArchiveRef struct {
	ArchiveID string
	URLSuffix string
}

// SessionPing is sent by the supervisor to validate a resumed session.
type SessionPing struct {
	ID uint64
}

// AbortSessionStart is sent when the client gives up on session start,
// optionally attaching an opaque incident report as a trailer.
type AbortSessionStart struct {
	Trailer []byte
}

// ClientLifecycleHintPausing informs the server the app is backgrounding.
type ClientLifecycleHintPausing struct {
	MaxDuration *time.Duration
	Reason      string
}

// ClientHelloAccepted carries the negotiated server options.
type ClientHelloAccepted struct {
	ServerOptions map[string]string
}

// LoginSuccessResponse confirms a LoginRequest.
type LoginSuccessResponse struct {
	LoggedInPlayerID string
}

// SessionStartSuccess delivers the full session handle.
type SessionStartSuccess struct {
	QueryID                 uint64
	SessionToken            string
	PlayerID                string
	PlayerState             []byte
	EntityStates            [][]byte
	LocalizationVersions    map[string]string
	ActiveExperiments       []Experiment
	ScheduledMaintenanceMode *MaintenanceWindow
	ResumptionToken         string
}

// Experiment identifies one active A/B test variant.
type Experiment struct {
	ExperimentID string
	VariantID    string
}

// MaintenanceWindow is the scheduled/ongoing maintenance window.
type MaintenanceWindow struct {
	StartAt           time.Time
	EstimatedEndTime  *time.Time
}

// SessionStartFailure rejects a SessionStartRequest outright.
type SessionStartFailure struct {
	QueryID    uint64
	ReasonCode string
}

// SessionStartResourceCorrection asks the client to fetch a resource
// delta before session start can proceed.
type SessionStartResourceCorrection struct {
	QueryID    uint64
	Correction ResourceCorrection
}

// ResourceCorrection is the server-issued delta (spec §3).
type ResourceCorrection struct {
	Slots    map[string]ArchiveCorrection
	Language *string
	Version  *int
}

// ArchiveCorrection is one slot's new archive plus optional patch.
type ArchiveCorrection struct {
	ArchiveID string
	URLSuffix string
	PatchID   string
}

// SessionResumeSuccess confirms a transport-level resume succeeded.
type SessionResumeSuccess struct {
	ScheduledMaintenanceMode *MaintenanceWindow
}

// SessionPong answers a SessionPing.
type SessionPong struct {
	ID uint64
}

// UpdateScheduledMaintenanceMode updates (or clears) the maintenance
// window outside of a session-resume/start response.
type UpdateScheduledMaintenanceMode struct {
	Scheduled *MaintenanceWindow
}

// OperationStillOngoing is a server heartbeat resetting a pending
// operation's timeout (e.g. session-start init).
type OperationStillOngoing struct{}

// ConnectedToServer reports the transport-level handshake completed.
type ConnectedToServer struct {
	IsIPv4             bool
	TLSPeerDescription string
}

// GuestAccountCreatedInfo is a transport-info pseudo-message carrying a
// freshly minted guest account for internal/credentials to persist.
type GuestAccountCreatedInfo struct {
	DeviceID  string
	AuthToken string
	PlayerID  string
}

// ResourceCorrectionInfo mirrors SessionStartResourceCorrection for
// collaborators that only care about the correction, not the query id.
type ResourceCorrectionInfo struct {
	Correction ResourceCorrection
}

// FullProtocolHashMismatchInfo reports a mismatched protocol hash for
// diagnostics.
type FullProtocolHashMismatchInfo struct {
	Client string
	Server string
}

// SessionConnectionErrorLostInfo reports that a given resume attempt
// index has been lost.
type SessionConnectionErrorLostInfo struct {
	Attempt int
}
