// Package serverconn implements the framed wire protocol above a raw
// byte Transport: handshake, login, session start, resume, a single
// writer goroutine, and a stall watchdog (spec C5). It surfaces every
// decoded message and every classified failure on one receive queue
// and exposes coarse controls for the session supervisor (C11) to
// drive reconnection and shutdown.
package serverconn

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/udisondev/l2client/internal/classify"
	"github.com/udisondev/l2client/internal/clock"
	"github.com/udisondev/l2client/internal/transport"
	"github.com/udisondev/l2client/internal/wire"
)

// Config bounds the per-phase timeouts this package enforces on its
// own (spec §4.2: "enforce per-phase timeouts"). All fields are
// read-only after construction (spec Input constraints).
type Config struct {
	ConnectTimeout           time.Duration
	ServerIdentifyTimeout    time.Duration
	ServerSessionInitTimeout time.Duration
	WatchdogDeadline         time.Duration
	ReceiveQueueSize         int
}

// DefaultConfig returns reasonable defaults for Config.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:           10 * time.Second,
		ServerIdentifyTimeout:    10 * time.Second,
		ServerSessionInitTimeout: 20 * time.Second,
		WatchdogDeadline:         30 * time.Second,
		ReceiveQueueSize:         64,
	}
}

// Event is one entry on the receive queue: either a decoded message or
// a classified raw failure, never both.
type Event struct {
	Message *wire.Message
	Err     *classify.RawError
}

type status int32

const (
	statusIdle status = iota
	statusConnecting
	statusConnected
	statusClosed
)

type opKind int

const (
	opSend opKind = iota
	opClose
	opFence
)

type writeOp struct {
	kind    opKind
	msg     wire.Message
	payload []byte
	done    chan struct{}
}

// ServerConnection is one attempt's live connection to a gateway.
// Disposed and rebuilt fresh on every (re)attempt, per spec Lifecycles.
type ServerConnection struct {
	cfg      Config
	factory  transport.Factory
	endpoint transport.Endpoint
	identity wire.HandshakeIdentity
	codec    Codec
	clk      clock.Clock

	conn     transport.Conn
	events   chan Event
	writeCh  chan writeOp
	watchdog *Watchdog

	status     atomic.Int32
	closeOnce  sync.Once
	disposed   chan struct{}
	wg         sync.WaitGroup
	closeCause []byte // payload of the last EnqueueClose, for the reported RawEnqueuedClose
}

// New constructs a ServerConnection for one attempt. codec and clk may
// be nil to use GobCodec and the system clock respectively.
func New(cfg Config, factory transport.Factory, endpoint transport.Endpoint, identity wire.HandshakeIdentity, codec Codec, clk clock.Clock) *ServerConnection {
	if codec == nil {
		codec = GobCodec{}
	}
	if clk == nil {
		clk = clock.New()
	}
	if cfg.ReceiveQueueSize <= 0 {
		cfg.ReceiveQueueSize = 64
	}
	return &ServerConnection{
		cfg:      cfg,
		factory:  factory,
		endpoint: endpoint,
		identity: identity,
		codec:    codec,
		clk:      clk,
		events:   make(chan Event, cfg.ReceiveQueueSize),
		writeCh:  make(chan writeOp, 16),
		disposed: make(chan struct{}),
	}
}

// Events returns the receive queue. Closed once the connection is
// fully disposed.
func (c *ServerConnection) Events() <-chan Event {
	return c.events
}

// Connect dials, performs ClientHello/login/session-start, and — once
// the server has produced SessionStartSuccess, SessionStartFailure, or
// SessionStartResourceCorrection — starts the steady-state reader,
// writer, and watchdog and returns. The outcome of session start is
// delivered as the first Event on the receive queue rather than as a
// return value, so every caller observes it the same way regardless of
// whether it arrived during or after the handshake.
func (c *ServerConnection) Connect(ctx context.Context, login wire.LoginRequest, start wire.SessionStartRequest) error {
	c.status.Store(int32(statusConnecting))

	dialCtx := ctx
	if c.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		defer cancel()
	}
	conn, err := c.factory.Dial(dialCtx, c.endpoint)
	if err != nil {
		c.status.Store(int32(statusIdle))
		return &classify.RawError{Kind: classify.RawConnectFailed, Detail: err.Error()}
	}
	c.conn = conn

	if err := c.writeFrame(wire.Message{Kind: wire.KindClientHello, ClientHello: &wire.ClientHello{Identity: c.identity}}); err != nil {
		conn.Close()
		return err
	}
	if _, err := c.awaitKind(wire.KindClientHelloAccepted, c.cfg.ServerIdentifyTimeout); err != nil {
		conn.Close()
		return err
	}

	if err := c.writeFrame(wire.Message{Kind: wire.KindLoginRequest, LoginRequest: &login}); err != nil {
		conn.Close()
		return err
	}
	if _, err := c.awaitKind(wire.KindLoginSuccessResponse, c.cfg.ServerIdentifyTimeout); err != nil {
		conn.Close()
		return err
	}

	if err := c.writeFrame(wire.Message{Kind: wire.KindSessionStartRequest, SessionStartRequest: &start}); err != nil {
		conn.Close()
		return err
	}
	outcome, err := c.awaitSessionStartOutcome(c.cfg.ServerSessionInitTimeout)
	if err != nil {
		conn.Close()
		return err
	}

	c.status.Store(int32(statusConnected))
	c.watchdog = NewWatchdog(c.cfg.WatchdogDeadline, c.onWatchdogStall)
	c.watchdog.Start()

	c.wg.Add(2)
	go c.readLoop()
	go c.writeLoop()

	c.events <- Event{Message: outcome}
	return nil
}

// RetrySessionStart re-sends SessionStartRequest on the already
// connected transport, used after a ResourceCorrection retry.
func (c *ServerConnection) RetrySessionStart(start wire.SessionStartRequest) bool {
	return c.EnqueueSendMessage(wire.Message{Kind: wire.KindSessionStartRequest, SessionStartRequest: &start})
}

// AbortSessionStart gives up on session start, attaching trailer as an
// opaque incident report, then disposes the connection.
func (c *ServerConnection) AbortSessionStart(trailer []byte) {
	c.EnqueueSendMessage(wire.Message{Kind: wire.KindAbortSessionStart, AbortSessionStart: &wire.AbortSessionStart{Trailer: trailer}})
	c.EnqueueClose(trailer)
}

// ResumeSessionAfterConnectionDrop re-dials, sends ClientHello and
// waits for SessionResumeSuccess, reporting the outcome as the first
// Event once the steady-state loops are running. resumptionToken is
// not sent to the server.
func (c *ServerConnection) ResumeSessionAfterConnectionDrop(ctx context.Context, resumptionToken string) error {
	dialCtx := ctx
	if c.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		defer cancel()
	}
	conn, err := c.factory.Dial(dialCtx, c.endpoint)
	if err != nil {
		return &classify.RawError{Kind: classify.RawConnectFailed, Detail: err.Error()}
	}
	c.conn = conn

	identity := c.identity
	if err := c.writeFrame(wire.Message{Kind: wire.KindClientHello, ClientHello: &wire.ClientHello{Identity: identity}}); err != nil {
		conn.Close()
		return err
	}
	outcome, err := c.awaitKind(wire.KindSessionResumeSuccess, c.cfg.ServerIdentifyTimeout)
	if err != nil {
		conn.Close()
		return err
	}

	c.status.Store(int32(statusConnected))
	c.watchdog = NewWatchdog(c.cfg.WatchdogDeadline, c.onWatchdogStall)
	c.watchdog.Start()
	c.wg.Add(2)
	go c.readLoop()
	go c.writeLoop()

	c.events <- Event{Message: outcome}
	return nil
}

// AbortSessionAfterConnectionDrop disposes the connection without
// attempting resume.
func (c *ServerConnection) AbortSessionAfterConnectionDrop() {
	c.Dispose()
}

// EnqueueSendMessage hands msg to the single writer goroutine. Returns
// false if the connection is already disposed.
func (c *ServerConnection) EnqueueSendMessage(msg wire.Message) bool {
	select {
	case <-c.disposed:
		return false
	default:
	}
	select {
	case c.writeCh <- writeOp{kind: opSend, msg: msg}:
		return true
	case <-c.disposed:
		return false
	}
}

// EnqueueClose enqueues a close carrying an opaque payload — which may
// be a pause-termination marker — to be processed in FIFO order with
// any messages already queued, then reports it as a RawEnqueuedClose
// event so the translator can classify it uniformly with any other
// drop (spec §9 "Pause-termination marker").
func (c *ServerConnection) EnqueueClose(payload []byte) bool {
	select {
	case <-c.disposed:
		return false
	default:
	}
	select {
	case c.writeCh <- writeOp{kind: opClose, payload: payload}:
		return true
	case <-c.disposed:
		return false
	}
}

// EnqueueTransportWriteFence blocks until every op enqueued before it
// has been processed by the writer goroutine.
func (c *ServerConnection) EnqueueTransportWriteFence() bool {
	done := make(chan struct{})
	select {
	case c.writeCh <- writeOp{kind: opFence, done: done}:
	case <-c.disposed:
		return false
	}
	select {
	case <-done:
		return true
	case <-c.disposed:
		return false
	}
}

// Dispose tears down the connection, the watchdog, and both loops.
// Safe to call more than once.
func (c *ServerConnection) Dispose() {
	c.closeOnce.Do(func() {
		c.status.Store(int32(statusClosed))
		close(c.disposed)
		if c.watchdog != nil {
			c.watchdog.Stop()
		}
		if c.conn != nil {
			c.conn.Close()
		}
		c.wg.Wait()
		close(c.events)
	})
}

func (c *ServerConnection) onWatchdogStall() {
	select {
	case c.events <- Event{Err: &classify.RawError{Kind: classify.RawWatchdogDeadlineExceeded}}:
	default:
	}
	c.Dispose()
}

func (c *ServerConnection) writeFrame(msg wire.Message) error {
	data, err := c.codec.Encode(msg)
	if err != nil {
		return &classify.RawError{Kind: classify.RawWireFormatError, Detail: err.Error()}
	}
	if err := c.conn.Send(data); err != nil {
		return c.classifyIOErr(err)
	}
	return nil
}

func (c *ServerConnection) readLoop() {
	defer c.wg.Done()
	for {
		data, err := c.conn.Receive(0)
		if err != nil {
			if c.status.Load() != int32(statusClosed) {
				select {
				case c.events <- Event{Err: c.classifyIOErr(err)}:
				default:
				}
				go c.Dispose()
			}
			return
		}
		c.watchdog.Kick()

		msg, derr := c.codec.Decode(data)
		if derr != nil {
			select {
			case c.events <- Event{Err: &classify.RawError{Kind: classify.RawWireFormatError, Detail: derr.Error()}}:
			default:
			}
			continue
		}
		select {
		case c.events <- Event{Message: &msg}:
		case <-c.disposed:
			return
		}
	}
}

func (c *ServerConnection) writeLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.disposed:
			return
		case op := <-c.writeCh:
			switch op.kind {
			case opSend:
				if err := c.writeFrame(op.msg); err != nil {
					select {
					case c.events <- Event{Err: err.(*classify.RawError)}:
					default:
					}
				}
				c.watchdog.Kick()
			case opFence:
				close(op.done)
			case opClose:
				c.closeCause = op.payload
				c.status.Store(int32(statusClosed))
				if c.conn != nil {
					c.conn.Close()
				}
				select {
				case c.events <- Event{Err: &classify.RawError{Kind: classify.RawEnqueuedClose, ClosePayload: op.payload}}:
				default:
				}
				go c.Dispose()
				return
			}
		}
	}
}

// awaitKind blocks for exactly the named kind, re-extending the
// deadline on every OperationStillOngoing heartbeat; any other message
// fails the wait with RawUnexpectedLoginMessage.
func (c *ServerConnection) awaitKind(want wire.Kind, timeout time.Duration) (*wire.Message, error) {
	deadline := c.clk.Now().Add(timeout)
	for {
		remaining := deadline.Sub(c.clk.Now())
		if remaining <= 0 {
			return nil, &classify.RawError{Kind: classify.RawStreamTimeout, Detail: want.String()}
		}
		data, err := c.conn.Receive(remaining)
		if err != nil {
			return nil, c.classifyIOErr(err)
		}
		msg, derr := c.codec.Decode(data)
		if derr != nil {
			return nil, &classify.RawError{Kind: classify.RawWireFormatError, Detail: derr.Error()}
		}
		switch msg.Kind {
		case want:
			return &msg, nil
		case wire.KindOperationStillOngoing:
			deadline = c.clk.Now().Add(timeout)
		default:
			return nil, &classify.RawError{Kind: classify.RawUnexpectedLoginMessage, Detail: msg.Kind.String()}
		}
	}
}

// awaitSessionStartOutcome blocks for SessionStartSuccess,
// SessionStartFailure, or SessionStartResourceCorrection.
func (c *ServerConnection) awaitSessionStartOutcome(timeout time.Duration) (*wire.Message, error) {
	deadline := c.clk.Now().Add(timeout)
	for {
		remaining := deadline.Sub(c.clk.Now())
		if remaining <= 0 {
			return nil, &classify.RawError{Kind: classify.RawSessionStartFailed, Detail: "init timeout"}
		}
		data, err := c.conn.Receive(remaining)
		if err != nil {
			return nil, c.classifyIOErr(err)
		}
		msg, derr := c.codec.Decode(data)
		if derr != nil {
			return nil, &classify.RawError{Kind: classify.RawWireFormatError, Detail: derr.Error()}
		}
		switch msg.Kind {
		case wire.KindSessionStartSuccess, wire.KindSessionStartFailure, wire.KindSessionStartResourceCorrection:
			return &msg, nil
		case wire.KindOperationStillOngoing:
			deadline = c.clk.Now().Add(timeout)
		default:
			select {
			case c.events <- Event{Message: &msg}:
			default:
			}
		}
	}
}

func (c *ServerConnection) classifyIOErr(err error) *classify.RawError {
	if errors.Is(err, transport.ErrConnectionClosed) {
		return &classify.RawError{Kind: classify.RawStreamClosed, Detail: err.Error()}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &classify.RawError{Kind: classify.RawStreamTimeout, Detail: err.Error()}
	}
	return &classify.RawError{Kind: classify.RawStreamIOError, Detail: err.Error()}
}
