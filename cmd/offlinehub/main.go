// Command offlinehub runs the simulated game server backend
// (internal/simbackend) over a real TCP listener, for manually
// pointing a client at "localhost:<port>" instead of the fully
// in-process offline mode cmd/sessiondemo uses.
//
// Usage:
//
//	offlinehub [flags]
//
// Flags:
//
//	-addr string           Listen address (default "127.0.0.1:9393")
//	-fail-first-session    Reject the first SessionStartRequest to exercise the retry path
package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/udisondev/l2client/internal/simbackend"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9393", "listen address")
	failFirst := flag.Bool("fail-first-session", false, "reject the first SessionStartRequest per connection")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.Error("listen failed", "addr", *addr, "err", err)
		os.Exit(1)
	}
	defer ln.Close()
	logger.Info("offlinehub listening", "addr", ln.Addr().String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("accept failed", "err", err)
			continue
		}

		backend := simbackend.New(logger)
		backend.FailSessionStartOnce = *failFirst

		go func(c net.Conn) {
			logger.Info("connection accepted", "remote", c.RemoteAddr().String())
			backend.Handle(ctx, c)
			logger.Info("connection closed", "remote", c.RemoteAddr().String())
		}(conn)
	}
}
