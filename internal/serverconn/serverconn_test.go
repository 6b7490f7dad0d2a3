package serverconn

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/udisondev/l2client/internal/classify"
	"github.com/udisondev/l2client/internal/transport"
	"github.com/udisondev/l2client/internal/wire"
)

func sendFrame(conn net.Conn, codec Codec, msg wire.Message) error {
	data, err := codec.Encode(msg)
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

func recvFrame(conn net.Conn, codec Codec) (wire.Message, error) {
	var header [4]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return wire.Message{}, err
	}
	n := binary.BigEndian.Uint32(header[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return wire.Message{}, err
	}
	return codec.Decode(buf)
}

func testIdentity() wire.HandshakeIdentity {
	return wire.HandshakeIdentity{GameMagic: "TEST", Version: "1.0"}
}

// happyPathHandler drives a full handshake -> login -> session-start
// success exchange, then waits for the peer to close.
func happyPathHandler(t *testing.T) transport.OfflineHandler {
	return func(ctx context.Context, peer net.Conn) {
		defer peer.Close()
		codec := GobCodec{}

		hello, err := recvFrame(peer, codec)
		if err != nil || hello.Kind != wire.KindClientHello {
			return
		}
		if err := sendFrame(peer, codec, wire.Message{Kind: wire.KindClientHelloAccepted, ClientHelloAccepted: &wire.ClientHelloAccepted{}}); err != nil {
			return
		}

		login, err := recvFrame(peer, codec)
		if err != nil || login.Kind != wire.KindLoginRequest {
			return
		}
		if err := sendFrame(peer, codec, wire.Message{Kind: wire.KindLoginSuccessResponse, LoginSuccessResponse: &wire.LoginSuccessResponse{LoggedInPlayerID: "p1"}}); err != nil {
			return
		}

		start, err := recvFrame(peer, codec)
		if err != nil || start.Kind != wire.KindSessionStartRequest {
			return
		}
		if err := sendFrame(peer, codec, wire.Message{Kind: wire.KindSessionStartSuccess, SessionStartSuccess: &wire.SessionStartSuccess{PlayerID: "p1"}}); err != nil {
			return
		}

		// keep the pipe open until the test tears it down
		buf := make([]byte, 4)
		io.ReadFull(peer, buf)
	}
}

func newTestConn(t *testing.T, handler transport.OfflineHandler) *ServerConnection {
	t.Helper()
	factory := transport.NewOfflineFactory(handler)
	cfg := DefaultConfig()
	cfg.ServerIdentifyTimeout = 2 * time.Second
	cfg.ServerSessionInitTimeout = 2 * time.Second
	cfg.WatchdogDeadline = 2 * time.Second
	return New(cfg, factory, transport.Endpoint{OfflineMode: true}, testIdentity(), GobCodec{}, nil)
}

func TestConnectHappyPathDeliversSessionStartSuccess(t *testing.T) {
	sc := newTestConn(t, happyPathHandler(t))
	defer sc.Dispose()

	err := sc.Connect(context.Background(), wire.LoginRequest{DeviceID: "d1"}, wire.SessionStartRequest{QueryID: 1})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	select {
	case ev := <-sc.Events():
		if ev.Message == nil || ev.Message.Kind != wire.KindSessionStartSuccess {
			t.Fatalf("first event = %+v, want SessionStartSuccess", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first event")
	}
}

func TestConnectUnexpectedLoginMessageIsClassified(t *testing.T) {
	handler := func(ctx context.Context, peer net.Conn) {
		defer peer.Close()
		codec := GobCodec{}
		if _, err := recvFrame(peer, codec); err != nil {
			return
		}
		// Respond with something other than ClientHelloAccepted.
		sendFrame(peer, codec, wire.Message{Kind: wire.KindSessionPong, SessionPong: &wire.SessionPong{ID: 1}})
	}

	sc := newTestConn(t, handler)
	defer sc.Dispose()

	err := sc.Connect(context.Background(), wire.LoginRequest{}, wire.SessionStartRequest{})
	if err == nil {
		t.Fatal("Connect() error = nil, want classification error")
	}
	raw, ok := err.(*classify.RawError)
	if !ok {
		t.Fatalf("error type = %T, want *classify.RawError", err)
	}
	if raw.Kind != classify.RawUnexpectedLoginMessage {
		t.Fatalf("raw.Kind = %v, want RawUnexpectedLoginMessage", raw.Kind)
	}
}

func TestConnectTimesOutWaitingForClientHelloAccepted(t *testing.T) {
	handler := func(ctx context.Context, peer net.Conn) {
		defer peer.Close()
		codec := GobCodec{}
		recvFrame(peer, codec) // consume ClientHello, never reply
		<-ctx.Done()
	}

	sc := newTestConn(t, handler)
	sc.cfg.ServerIdentifyTimeout = 50 * time.Millisecond
	defer sc.Dispose()

	err := sc.Connect(context.Background(), wire.LoginRequest{}, wire.SessionStartRequest{})
	if err == nil {
		t.Fatal("Connect() error = nil, want timeout")
	}
	raw, ok := err.(*classify.RawError)
	if !ok || raw.Kind != classify.RawStreamTimeout {
		t.Fatalf("error = %v, want RawStreamTimeout", err)
	}
}

func TestOperationStillOngoingExtendsSessionStartDeadline(t *testing.T) {
	handler := func(ctx context.Context, peer net.Conn) {
		defer peer.Close()
		codec := GobCodec{}
		recvFrame(peer, codec)
		sendFrame(peer, codec, wire.Message{Kind: wire.KindClientHelloAccepted, ClientHelloAccepted: &wire.ClientHelloAccepted{}})
		recvFrame(peer, codec)
		sendFrame(peer, codec, wire.Message{Kind: wire.KindLoginSuccessResponse, LoginSuccessResponse: &wire.LoginSuccessResponse{}})
		recvFrame(peer, codec)

		// Heartbeat twice, each resetting the deadline, before finally
		// succeeding - this would exceed a non-resetting timeout.
		sendFrame(peer, codec, wire.Message{Kind: wire.KindOperationStillOngoing, OperationStillOngoing: &wire.OperationStillOngoing{}})
		time.Sleep(80 * time.Millisecond)
		sendFrame(peer, codec, wire.Message{Kind: wire.KindOperationStillOngoing, OperationStillOngoing: &wire.OperationStillOngoing{}})
		time.Sleep(80 * time.Millisecond)
		sendFrame(peer, codec, wire.Message{Kind: wire.KindSessionStartSuccess, SessionStartSuccess: &wire.SessionStartSuccess{}})

		buf := make([]byte, 4)
		io.ReadFull(peer, buf)
	}

	sc := newTestConn(t, handler)
	sc.cfg.ServerSessionInitTimeout = 120 * time.Millisecond
	defer sc.Dispose()

	err := sc.Connect(context.Background(), wire.LoginRequest{}, wire.SessionStartRequest{})
	if err != nil {
		t.Fatalf("Connect() error = %v, want nil (heartbeats should extend the deadline)", err)
	}
}

func TestEnqueueSendMessageThenFenceOrdersDelivery(t *testing.T) {
	received := make(chan wire.Message, 4)
	handler := func(ctx context.Context, peer net.Conn) {
		defer peer.Close()
		codec := GobCodec{}
		recvFrame(peer, codec)
		sendFrame(peer, codec, wire.Message{Kind: wire.KindClientHelloAccepted, ClientHelloAccepted: &wire.ClientHelloAccepted{}})
		recvFrame(peer, codec)
		sendFrame(peer, codec, wire.Message{Kind: wire.KindLoginSuccessResponse, LoginSuccessResponse: &wire.LoginSuccessResponse{}})
		recvFrame(peer, codec)
		sendFrame(peer, codec, wire.Message{Kind: wire.KindSessionStartSuccess, SessionStartSuccess: &wire.SessionStartSuccess{}})

		for i := 0; i < 2; i++ {
			msg, err := recvFrame(peer, codec)
			if err != nil {
				return
			}
			received <- msg
		}
	}

	sc := newTestConn(t, handler)
	defer sc.Dispose()

	if err := sc.Connect(context.Background(), wire.LoginRequest{}, wire.SessionStartRequest{}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	<-sc.Events() // drain the SessionStartSuccess event

	sc.EnqueueSendMessage(wire.Message{Kind: wire.KindSessionPing, SessionPing: &wire.SessionPing{ID: 1}})
	sc.EnqueueSendMessage(wire.Message{Kind: wire.KindSessionPing, SessionPing: &wire.SessionPing{ID: 2}})
	if !sc.EnqueueTransportWriteFence() {
		t.Fatal("EnqueueTransportWriteFence() = false")
	}

	for i := 0; i < 2; i++ {
		select {
		case msg := <-received:
			if msg.Kind != wire.KindSessionPing || msg.SessionPing.ID != uint64(i+1) {
				t.Fatalf("received[%d] = %+v, want SessionPing ID=%d", i, msg, i+1)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for enqueued sends to arrive")
		}
	}
}

func TestEnqueueCloseReportsEnqueuedCloseWithPayload(t *testing.T) {
	handler := func(ctx context.Context, peer net.Conn) {
		defer peer.Close()
		codec := GobCodec{}
		recvFrame(peer, codec)
		sendFrame(peer, codec, wire.Message{Kind: wire.KindClientHelloAccepted, ClientHelloAccepted: &wire.ClientHelloAccepted{}})
		recvFrame(peer, codec)
		sendFrame(peer, codec, wire.Message{Kind: wire.KindLoginSuccessResponse, LoginSuccessResponse: &wire.LoginSuccessResponse{}})
		recvFrame(peer, codec)
		sendFrame(peer, codec, wire.Message{Kind: wire.KindSessionStartSuccess, SessionStartSuccess: &wire.SessionStartSuccess{}})
		buf := make([]byte, 4)
		io.ReadFull(peer, buf)
	}

	sc := newTestConn(t, handler)
	defer sc.Dispose()

	if err := sc.Connect(context.Background(), wire.LoginRequest{}, wire.SessionStartRequest{}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	<-sc.Events() // drain the SessionStartSuccess event

	marker := []byte("pause-marker")
	sc.EnqueueClose(marker)

	select {
	case ev := <-sc.Events():
		if ev.Err == nil || ev.Err.Kind != classify.RawEnqueuedClose {
			t.Fatalf("event = %+v, want RawEnqueuedClose", ev)
		}
		if string(ev.Err.ClosePayload) != string(marker) {
			t.Fatalf("ClosePayload = %q, want %q", ev.Err.ClosePayload, marker)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for enqueued-close event")
	}
}

func TestWatchdogFiresAfterStall(t *testing.T) {
	handler := func(ctx context.Context, peer net.Conn) {
		defer peer.Close()
		codec := GobCodec{}
		recvFrame(peer, codec)
		sendFrame(peer, codec, wire.Message{Kind: wire.KindClientHelloAccepted, ClientHelloAccepted: &wire.ClientHelloAccepted{}})
		recvFrame(peer, codec)
		sendFrame(peer, codec, wire.Message{Kind: wire.KindLoginSuccessResponse, LoginSuccessResponse: &wire.LoginSuccessResponse{}})
		recvFrame(peer, codec)
		sendFrame(peer, codec, wire.Message{Kind: wire.KindSessionStartSuccess, SessionStartSuccess: &wire.SessionStartSuccess{}})
		// Go silent forever - no more frames, no reply to anything.
		<-ctx.Done()
	}

	sc := newTestConn(t, handler)
	sc.cfg.WatchdogDeadline = 50 * time.Millisecond
	defer sc.Dispose()

	if err := sc.Connect(context.Background(), wire.LoginRequest{}, wire.SessionStartRequest{}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	<-sc.Events() // drain the SessionStartSuccess event

	select {
	case ev := <-sc.Events():
		if ev.Err == nil || ev.Err.Kind != classify.RawWatchdogDeadlineExceeded {
			t.Fatalf("event = %+v, want RawWatchdogDeadlineExceeded", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for watchdog stall event")
	}
}
