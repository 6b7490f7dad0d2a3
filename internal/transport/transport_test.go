package transport

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestOfflineFactoryEchoRoundTrip(t *testing.T) {
	factory := NewOfflineFactory(func(ctx context.Context, peer net.Conn) {
		conn := newFramedConn(peer)
		for {
			msg, err := conn.Receive(0)
			if err != nil {
				return
			}
			if err := conn.Send(msg); err != nil {
				return
			}
		}
	})

	conn, err := factory.Dial(context.Background(), Endpoint{OfflineMode: true})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if err := conn.Send([]byte("ping")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	got, err := conn.Receive(time.Second)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if string(got) != "ping" {
		t.Fatalf("Receive() = %q, want %q", got, "ping")
	}
}

func TestFramedConnSendAfterCloseFails(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()
	conn := newFramedConn(a)
	conn.Close()

	if err := conn.Send([]byte("x")); err != ErrConnectionClosed {
		t.Fatalf("Send() error = %v, want ErrConnectionClosed", err)
	}
	if _, err := conn.Receive(0); err != ErrConnectionClosed {
		t.Fatalf("Receive() error = %v, want ErrConnectionClosed", err)
	}
}

func TestFramedConnCloseIsIdempotent(t *testing.T) {
	a, _ := net.Pipe()
	conn := newFramedConn(a)

	if err := conn.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}
