package supervisor

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/udisondev/l2client/internal/classify"
	"github.com/udisondev/l2client/internal/clock"
	"github.com/udisondev/l2client/internal/credentials"
	"github.com/udisondev/l2client/internal/qos"
	"github.com/udisondev/l2client/internal/resources"
	"github.com/udisondev/l2client/internal/serverconn"
	"github.com/udisondev/l2client/internal/transport"
	"github.com/udisondev/l2client/internal/wire"
)

type recordingDispatcher struct {
	ch chan wire.Message
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{ch: make(chan wire.Message, 16)}
}

func (d *recordingDispatcher) OnMessage(msg wire.Message) {
	d.ch <- msg
}

func testCredentials(t *testing.T) *credentials.Service {
	t.Helper()
	svc := credentials.NewService(t.TempDir() + "/creds.bin")
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("credentials Start() error = %v", err)
	}
	return svc
}

func newTestSupervisor(t *testing.T, handler transport.OfflineHandler) (*Supervisor, *recordingDispatcher) {
	t.Helper()
	factory := transport.NewOfflineFactory(handler)
	dispatcher := newRecordingDispatcher()

	cfg := DefaultConfig()
	cfg.ConnectTimeout = 2 * time.Second
	cfg.ServerIdentifyTimeout = 2 * time.Second
	cfg.ServerSessionInitTimeout = 2 * time.Second
	cfg.CloseFlushTimeout = 200 * time.Millisecond
	cfg.ConnectAttemptInterval = 10 * time.Millisecond
	cfg.ConnectAttemptsMax = 2
	cfg.SessionResumptionAttemptMaxDuration = 300 * time.Millisecond

	deps := Deps{
		Credentials: testCredentials(t),
		NewServerConn: func() *serverconn.ServerConnection {
			scCfg := serverconn.DefaultConfig()
			scCfg.ConnectTimeout = cfg.ConnectTimeout
			scCfg.ServerIdentifyTimeout = cfg.ServerIdentifyTimeout
			scCfg.ServerSessionInitTimeout = cfg.ServerSessionInitTimeout
			scCfg.WatchdogDeadline = 2 * time.Second
			return serverconn.New(scCfg, factory, transport.Endpoint{OfflineMode: true}, wire.HandshakeIdentity{GameMagic: "TEST"}, serverconn.GobCodec{}, nil)
		},
		NewLoader: func() *resources.Loader {
			return resources.New(resources.Config{ConfigFetchAttemptsMax: 1, ConfigFetchTimeout: time.Second},
				&resources.MemoryArchiveFetcher{Archives: map[string][]byte{"cfg-v2": []byte("patched")}},
				nil)
		},
		QoS:        qos.New(qos.Config{MaxSilence: 5 * time.Second}),
		Clock:      clock.New(),
		Dispatcher: dispatcher,
		BuildLogin: func(m credentials.LoginMethod) wire.LoginRequest {
			return wire.LoginRequest{DeviceID: m.DeviceID}
		},
		BuildSessionStart: func(attempt int, loaded map[string]resources.Slot) wire.SessionStartRequest {
			req := wire.SessionStartRequest{QueryID: uint64(attempt)}
			if len(loaded) > 0 {
				req.ResourceProposal.Slots = make(map[string]wire.ArchiveRef, len(loaded))
				for name, slot := range loaded {
					req.ResourceProposal.Slots[name] = wire.ArchiveRef{ArchiveID: slot.ArchiveID, URLSuffix: slot.URLSuffix}
				}
			}
			return req
		},
		Activate: func(slots map[string]resources.Slot) error { return nil },
	}

	return New(cfg, deps), dispatcher
}

// sendFrame/recvFrame replicate the framed transport's 4-byte
// big-endian length prefix directly over the raw net.Conn handed to an
// OfflineHandler, mirroring internal/serverconn's test helpers.
var testCodec = serverconn.GobCodec{}

func sendFrame(conn net.Conn, msg wire.Message) error {
	data, err := testCodec.Encode(msg)
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

func recvFrame(conn net.Conn) (wire.Message, error) {
	var header [4]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return wire.Message{}, err
	}
	n := binary.BigEndian.Uint32(header[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return wire.Message{}, err
	}
	return testCodec.Decode(buf)
}

func happyPathHandler() transport.OfflineHandler {
	return func(ctx context.Context, peer net.Conn) {
		defer peer.Close()
		hello, err := recvFrame(peer)
		if err != nil || hello.Kind != wire.KindClientHello {
			return
		}
		if sendFrame(peer, wire.Message{Kind: wire.KindClientHelloAccepted, ClientHelloAccepted: &wire.ClientHelloAccepted{}}) != nil {
			return
		}
		login, err := recvFrame(peer)
		if err != nil || login.Kind != wire.KindLoginRequest {
			return
		}
		if sendFrame(peer, wire.Message{Kind: wire.KindLoginSuccessResponse, LoginSuccessResponse: &wire.LoginSuccessResponse{}}) != nil {
			return
		}
		start, err := recvFrame(peer)
		if err != nil || start.Kind != wire.KindSessionStartRequest {
			return
		}
		sendFrame(peer, wire.Message{Kind: wire.KindSessionStartSuccess, SessionStartSuccess: &wire.SessionStartSuccess{PlayerID: "p1", ResumptionToken: "tok"}})

		buf := make([]byte, 4)
		io.ReadFull(peer, buf)
	}
}

func TestConnectHappyPathReachesConnectedState(t *testing.T) {
	sup, _ := newTestSupervisor(t, happyPathHandler())

	if err := sup.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer sup.Close(false)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sup.State().Status == classify.StatusConnected {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("State() = %v, want StatusConnected within deadline", sup.State())
}

func TestConnectTwiceReturnsAlreadyRunning(t *testing.T) {
	sup, _ := newTestSupervisor(t, happyPathHandler())

	if err := sup.Connect(context.Background()); err != nil {
		t.Fatalf("first Connect() error = %v", err)
	}
	defer sup.Close(false)

	if err := sup.Connect(context.Background()); err != ErrAlreadyRunning {
		t.Fatalf("second Connect() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestResourceCorrectionRetriesSessionStart(t *testing.T) {
	handler := func(ctx context.Context, peer net.Conn) {
		defer peer.Close()
		if _, err := recvFrame(peer); err != nil {
			return
		}
		sendFrame(peer, wire.Message{Kind: wire.KindClientHelloAccepted, ClientHelloAccepted: &wire.ClientHelloAccepted{}})
		if _, err := recvFrame(peer); err != nil {
			return
		}
		sendFrame(peer, wire.Message{Kind: wire.KindLoginSuccessResponse, LoginSuccessResponse: &wire.LoginSuccessResponse{}})

		first, err := recvFrame(peer)
		if err != nil || first.Kind != wire.KindSessionStartRequest {
			return
		}
		sendFrame(peer, wire.Message{
			Kind: wire.KindSessionStartResourceCorrection,
			SessionStartResourceCorrection: &wire.SessionStartResourceCorrection{
				Correction: wire.ResourceCorrection{
					Slots: map[string]wire.ArchiveCorrection{"Config": {ArchiveID: "cfg-v2"}},
				},
			},
		})

		retry, err := recvFrame(peer)
		if err != nil || retry.Kind != wire.KindSessionStartRequest {
			return
		}
		sendFrame(peer, wire.Message{Kind: wire.KindSessionStartSuccess, SessionStartSuccess: &wire.SessionStartSuccess{PlayerID: "p1"}})

		buf := make([]byte, 4)
		io.ReadFull(peer, buf)
	}

	sup, _ := newTestSupervisor(t, handler)
	if err := sup.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer sup.Close(false)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sup.State().Status == classify.StatusConnected {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("State() = %v, want StatusConnected after resource correction", sup.State())
}

func TestDispatchSuspensionBuffersMessagesInOrder(t *testing.T) {
	handler := func(ctx context.Context, peer net.Conn) {
		defer peer.Close()
		if _, err := recvFrame(peer); err != nil {
			return
		}
		sendFrame(peer, wire.Message{Kind: wire.KindClientHelloAccepted, ClientHelloAccepted: &wire.ClientHelloAccepted{}})
		if _, err := recvFrame(peer); err != nil {
			return
		}
		sendFrame(peer, wire.Message{Kind: wire.KindLoginSuccessResponse, LoginSuccessResponse: &wire.LoginSuccessResponse{}})
		if _, err := recvFrame(peer); err != nil {
			return
		}
		sendFrame(peer, wire.Message{Kind: wire.KindSessionStartSuccess, SessionStartSuccess: &wire.SessionStartSuccess{}})

		sendFrame(peer, wire.Message{Kind: wire.KindSessionPong, SessionPong: &wire.SessionPong{ID: 1}})
		sendFrame(peer, wire.Message{Kind: wire.KindSessionPong, SessionPong: &wire.SessionPong{ID: 2}})

		buf := make([]byte, 4)
		io.ReadFull(peer, buf)
	}

	sup, dispatcher := newTestSupervisor(t, handler)
	sup.SuspendDispatch(true)

	if err := sup.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer sup.Close(false)

	time.Sleep(100 * time.Millisecond)
	select {
	case <-dispatcher.ch:
		t.Fatal("dispatcher received a message while suspended")
	default:
	}

	sup.SuspendDispatch(false)

	for i := uint64(1); i <= 2; i++ {
		select {
		case msg := <-dispatcher.ch:
			if msg.Kind != wire.KindSessionPong || msg.SessionPong.ID != i {
				t.Fatalf("dispatched[%d] = %+v, want SessionPong ID=%d", i, msg, i)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for buffered message to drain")
		}
	}
}

func TestCloseRejectsDuringStep(t *testing.T) {
	sup, _ := newTestSupervisor(t, happyPathHandler())
	sup.stepping.Store(true)
	defer sup.stepping.Store(false)

	if err := sup.Close(false); err != ErrStepInProgress {
		t.Fatalf("Close() error = %v, want ErrStepInProgress", err)
	}
}

func TestAttemptBudgetExhaustionYieldsClassifiedFailure(t *testing.T) {
	// The handler always refuses the connection outright.
	handler := func(ctx context.Context, peer net.Conn) {
		peer.Close()
	}

	sup, _ := newTestSupervisor(t, handler)
	sup.cfg.ConnectAttemptsMax = 1
	sup.cfg.ConnectAttemptInterval = 5 * time.Millisecond

	if err := sup.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer sup.Close(false)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st := sup.State()
		if st.Status == classify.StatusTransientError || st.Status == classify.StatusTerminalError {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("State() = %v, want a classified failure once attempts are exhausted", sup.State())
}
