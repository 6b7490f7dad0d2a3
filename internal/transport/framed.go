package transport

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"
)

// maxFrameSize bounds a single frame, guarding against a misbehaving
// peer exhausting memory with a bogus length prefix.
const maxFrameSize = 16 << 20

// framedConn implements Conn over a net.Conn using a 4-byte big-endian
// length prefix per frame — the minimal framing needed to exercise the
// Conn contract; the actual game wire codec lives entirely outside this
// package, per the Non-goals.
type framedConn struct {
	conn net.Conn

	writeMu sync.Mutex
	readMu  sync.Mutex

	closeOnce sync.Once
	closeCh   chan struct{}
}

func newFramedConn(conn net.Conn) *framedConn {
	return &framedConn{conn: conn, closeCh: make(chan struct{})}
}

func (c *framedConn) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(data)))
	if _, err := c.conn.Write(header[:]); err != nil {
		return err
	}
	_, err := c.conn.Write(data)
	return err
}

func (c *framedConn) Receive(timeout time.Duration) ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	select {
	case <-c.closeCh:
		return nil, ErrConnectionClosed
	default:
	}

	if timeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
		defer c.conn.SetReadDeadline(time.Time{})
	}

	var header [4]byte
	if _, err := io.ReadFull(c.conn, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > maxFrameSize {
		return nil, ErrFrameTooLarge
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(c.conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (c *framedConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

func (c *framedConn) RemoteAddr() string {
	if a := c.conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}

var _ Conn = (*framedConn)(nil)
