// Package transport abstracts the byte-oriented connection to a game
// server gateway. The wire codec and framing are out of scope (spec
// Non-goal: "implementing the wire framing"), so Conn exchanges
// already-framed, opaque []byte records — the actual decode into
// internal/wire messages happens in internal/serverconn.
package transport

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"
)

// ErrConnectionClosed is returned by Send/Receive after Close.
var ErrConnectionClosed = errors.New("transport: connection closed")

// ErrFrameTooLarge is returned when a peer's length prefix exceeds
// maxFrameSize.
var ErrFrameTooLarge = errors.New("transport: frame exceeds maximum size")

// Endpoint is the immutable description of a gateway for one connect
// attempt (per spec §3: "Immutable per attempt; re-assignable on
// redirect").
type Endpoint struct {
	Host        string
	Port        int
	TLS         bool
	CDNBaseURL  string
	Backups     []string
	OfflineMode bool
}

// Conn is a single framed byte connection to a gateway.
type Conn interface {
	// Send writes one opaque frame.
	Send(data []byte) error
	// Receive blocks for the next frame, or until timeout elapses (0
	// means no deadline).
	Receive(timeout time.Duration) ([]byte, error)
	// Close tears down the connection. Safe to call more than once.
	Close() error
	// RemoteAddr describes the peer, for diagnostics/logging only.
	RemoteAddr() string
}

// Factory produces a Conn for an Endpoint.
type Factory interface {
	Dial(ctx context.Context, ep Endpoint) (Conn, error)
}

// TCPFactory dials a plain or TLS TCP connection, matching the
// teacher's Client.Connect dial-timeout-then-handshake shape. TLS
// specifics (cert verification, versions) are left to tlsConfigFn since
// certificate management is an external collaborator concern here.
type TCPFactory struct {
	ConnectTimeout time.Duration
	TLSConfigFn    TLSConfigFunc
}

// TLSConfigFunc returns the TLSDialer used for ep when ep.TLS is set.
// A TCPFactory whose TLSConfigFn is nil dials in plaintext.
type TLSConfigFunc func(ep Endpoint) TLSDialer

// TLSDialer performs the TLS handshake over a raw net.Conn. Kept as an
// interface (rather than importing crypto/tls directly into this file)
// so tests can substitute a fake without a real certificate chain.
type TLSDialer interface {
	Handshake(ctx context.Context, raw net.Conn) (net.Conn, error)
}

// NewTCPFactory returns a Factory dialing raw TCP, optionally wrapped
// in TLS via tlsFn.
func NewTCPFactory(connectTimeout time.Duration, tlsFn TLSConfigFunc) *TCPFactory {
	return &TCPFactory{ConnectTimeout: connectTimeout, TLSConfigFn: tlsFn}
}

// Dial implements Factory.
func (f *TCPFactory) Dial(ctx context.Context, ep Endpoint) (Conn, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && f.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.ConnectTimeout)
		defer cancel()
	}

	dialer := &net.Dialer{}
	addr := net.JoinHostPort(ep.Host, strconv.Itoa(ep.Port))
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	netConn := net.Conn(raw)
	if ep.TLS && f.TLSConfigFn != nil {
		dialer := f.TLSConfigFn(ep)
		netConn, err = dialer.Handshake(ctx, raw)
		if err != nil {
			raw.Close()
			return nil, err
		}
	}

	return newFramedConn(netConn), nil
}
