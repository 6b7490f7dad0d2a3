package transport

import (
	"context"
	"net"
)

// OfflineHandler simulates a backend gateway entirely in-process: given
// one end of an in-memory pipe, it drives the simulated protocol and
// returns when the peer disconnects. Used by cmd/offlinehub and by the
// supervisor's offline mode (spec GLOSSARY: "Offline mode").
type OfflineHandler func(ctx context.Context, peer net.Conn)

// OfflineFactory satisfies Factory without touching the network: every
// Dial spins up a fresh net.Pipe and hands one end to Handler in a new
// goroutine, returning a framedConn wrapping the other end to the
// caller. The handler gets ctx's values but not its deadline or
// cancellation, so it keeps running after Dial returns. This is the
// supervisor's "offline-mode in-process server … owned by the
// supervisor" resource (spec §5).
type OfflineFactory struct {
	Handler OfflineHandler
}

// NewOfflineFactory returns a Factory backed by handler.
func NewOfflineFactory(handler OfflineHandler) *OfflineFactory {
	return &OfflineFactory{Handler: handler}
}

// Dial implements Factory.
func (f *OfflineFactory) Dial(ctx context.Context, ep Endpoint) (Conn, error) {
	client, server := net.Pipe()
	go f.Handler(context.WithoutCancel(ctx), server)
	return newFramedConn(client), nil
}

var _ Factory = (*OfflineFactory)(nil)
