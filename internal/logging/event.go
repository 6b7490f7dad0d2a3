// Package logging provides the supervisor's pluggable, buffered log sink.
//
// The supervisor never writes to stdout directly. It emits Events to a
// Logger, and applications choose how those events surface: discarded
// (NoopLogger), forwarded to log/slog (SlogSink), appended to a CBOR
// file (FileSink), fanned out to several sinks (MultiLogger), or held in
// memory and flushed on demand (BufferedSink) — useful when the host
// application wants to batch-upload diagnostics only after an incident.
package logging

import "time"

// Category classifies the kind of event captured.
type Category uint8

const (
	// CategoryStateChange records a ConnectionState transition.
	CategoryStateChange Category = iota
	// CategoryAttempt records a connect attempt starting or ending.
	CategoryAttempt
	// CategoryResource records a resource download/activation event.
	CategoryResource
	// CategoryIncident records an opaque incident report.
	CategoryIncident
	// CategoryNetwork records network probe / status hint activity.
	CategoryNetwork
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryStateChange:
		return "STATE_CHANGE"
	case CategoryAttempt:
		return "ATTEMPT"
	case CategoryResource:
		return "RESOURCE"
	case CategoryIncident:
		return "INCIDENT"
	case CategoryNetwork:
		return "NETWORK"
	default:
		return "UNKNOWN"
	}
}

// StateChange describes a ConnectionState transition.
type StateChange struct {
	OldStatus string
	NewStatus string
	Reason    string
}

// Attempt describes a connect attempt starting or ending.
type Attempt struct {
	Index   int
	Phase   string
	Err     string
	Outcome string
}

// Resource describes a resource-loader event.
type Resource struct {
	Slot    string
	Archive string
	Err     string
}

// Incident carries an opaque incident report attached to an abort trailer.
type Incident struct {
	Reason  string
	Detail  string
	PingID  uint32
}

// Network describes a network-probe or status-hint event.
type Network struct {
	Source string // "probe" | "statusHint"
	Result string
	Err    string
}

// Event is a single structured log record emitted by the supervisor or
// one of its collaborators.
type Event struct {
	Timestamp time.Time
	Category  Category

	StateChange *StateChange
	Attempt     *Attempt
	Resource    *Resource
	Incident    *Incident
	Network     *Network
}
