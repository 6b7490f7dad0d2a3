// Package simbackend is a minimal simulated gateway for manual and
// offline-mode testing: it speaks just enough of the wire protocol
// (handshake, login, session start, ping/pong) to take a real
// supervisor through a full connect and steady-state cycle without a
// live game server. It never sends SessionResumeSuccess: it answers
// every connection, a resume attempt included, as a fresh hello, login
// and session-start exchange. It is deliberately simple — no zones, no
// persistence, no real account system — mirroring the teacher's own
// "examples" device simulations (pkg/examples) rather than the
// production service stack.
package simbackend

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"net"

	"github.com/udisondev/l2client/internal/serverconn"
	"github.com/udisondev/l2client/internal/wire"
)

// Backend drives one simulated session per connection. The zero value
// is ready to use; set fields before handing Handle to a transport
// factory or listener loop.
type Backend struct {
	Codec serverconn.Codec

	// ResumptionToken is echoed back in SessionStartSuccess; the backend
	// never checks it on a later connection.
	ResumptionToken string

	// FailSessionStartOnce, when true, rejects exactly the first session
	// start with SessionStartFailure and clears itself, so a demo can
	// exercise the supervisor's attempt-retry path without restarting.
	FailSessionStartOnce bool

	Log *slog.Logger
}

// New returns a Backend with sane demo defaults.
func New(log *slog.Logger) *Backend {
	return &Backend{Codec: serverconn.GobCodec{}, ResumptionToken: "demo-token", Log: log}
}

func (b *Backend) logf(msg string, args ...any) {
	if b.Log != nil {
		b.Log.Info(msg, args...)
	}
}

// Handle implements transport.OfflineHandler and is also suitable as
// the per-connection body of a real net.Listener accept loop (see
// cmd/offlinehub): the framing and codec are identical either way.
func (b *Backend) Handle(ctx context.Context, peer net.Conn) {
	defer peer.Close()

	hello, err := b.recv(peer)
	if err != nil || hello.Kind != wire.KindClientHello {
		b.logf("simbackend: handshake aborted", "err", err)
		return
	}
	if b.send(peer, wire.Message{Kind: wire.KindClientHelloAccepted, ClientHelloAccepted: &wire.ClientHelloAccepted{}}) != nil {
		return
	}

	login, err := b.recv(peer)
	if err != nil || login.Kind != wire.KindLoginRequest {
		return
	}
	b.logf("simbackend: login", "device_id", login.LoginRequest.DeviceID)
	if b.send(peer, wire.Message{Kind: wire.KindLoginSuccessResponse, LoginSuccessResponse: &wire.LoginSuccessResponse{}}) != nil {
		return
	}

	if !b.runSessionStart(peer) {
		return
	}

	b.pumpSteadyState(ctx, peer)
}

// runSessionStart handles the SessionStartRequest/outcome exchange,
// optionally failing the first attempt per FailSessionStartOnce.
// Returns false if the connection should close immediately.
func (b *Backend) runSessionStart(peer net.Conn) bool {
	start, err := b.recv(peer)
	if err != nil || start.Kind != wire.KindSessionStartRequest {
		return false
	}

	if b.FailSessionStartOnce {
		b.FailSessionStartOnce = false
		b.logf("simbackend: failing session start once")
		b.send(peer, wire.Message{
			Kind:                wire.KindSessionStartFailure,
			SessionStartFailure: &wire.SessionStartFailure{ReasonCode: "simulated-failure"},
		})
		return false
	}

	b.logf("simbackend: session start success", "query_id", start.SessionStartRequest.QueryID)
	return b.send(peer, wire.Message{
		Kind: wire.KindSessionStartSuccess,
		SessionStartSuccess: &wire.SessionStartSuccess{
			QueryID:         start.SessionStartRequest.QueryID,
			PlayerID:        "demo-player",
			ResumptionToken: b.ResumptionToken,
		},
	}) == nil
}

// pumpSteadyState answers SessionPing with SessionPong until ctx is
// done or the peer disconnects.
func (b *Backend) pumpSteadyState(ctx context.Context, peer net.Conn) {
	for {
		if ctx.Err() != nil {
			return
		}
		msg, err := b.recv(peer)
		if err != nil {
			return
		}
		switch msg.Kind {
		case wire.KindSessionPing:
			b.send(peer, wire.Message{Kind: wire.KindSessionPong, SessionPong: &wire.SessionPong{ID: msg.SessionPing.ID}})
		case wire.KindAbortSessionStart, wire.KindClientLifecycleHintPausing:
			return
		}
	}
}

func (b *Backend) send(conn net.Conn, msg wire.Message) error {
	data, err := b.Codec.Encode(msg)
	if err != nil {
		return err
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(data)))
	if _, err := conn.Write(header[:]); err != nil {
		return err
	}
	_, err = conn.Write(data)
	return err
}

func (b *Backend) recv(conn net.Conn) (wire.Message, error) {
	var header [4]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return wire.Message{}, err
	}
	n := binary.BigEndian.Uint32(header[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return wire.Message{}, err
	}
	return b.Codec.Decode(buf)
}
