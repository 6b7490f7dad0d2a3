// Command sessiondemo drives a supervisor.Supervisor against the
// in-process simulated backend (internal/simbackend, wired through
// offline mode) and prints every state transition, demonstrating a
// connect -> steady-state -> close cycle without a real game server.
//
// Usage:
//
//	sessiondemo [flags]
//
// Flags:
//
//	-config string          Path to a YAML config file (optional; built-in defaults otherwise)
//	-fail-first-session     Exercise the attempt-retry path by rejecting the first session start
//	-run duration           How long to stay connected before closing (default 10s)
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/udisondev/l2client/internal/classify"
	"github.com/udisondev/l2client/internal/clock"
	"github.com/udisondev/l2client/internal/config"
	"github.com/udisondev/l2client/internal/credentials"
	"github.com/udisondev/l2client/internal/logging"
	"github.com/udisondev/l2client/internal/netprobe"
	"github.com/udisondev/l2client/internal/qos"
	"github.com/udisondev/l2client/internal/resources"
	"github.com/udisondev/l2client/internal/serverconn"
	"github.com/udisondev/l2client/internal/simbackend"
	"github.com/udisondev/l2client/internal/statushint"
	"github.com/udisondev/l2client/internal/supervisor"
	"github.com/udisondev/l2client/internal/transport"
	"github.com/udisondev/l2client/internal/wire"
)

type printDispatcher struct {
	logger *slog.Logger
}

func (d printDispatcher) OnMessage(msg wire.Message) {
	d.logger.Info("message dispatched", "kind", msg.Kind.String())
}

// resourceProposalFromSlots derives a ResourceProposal from the slots
// actually downloaded so far, so a retried SessionStartRequest reports
// what the client really has rather than repeating a stale guess.
func resourceProposalFromSlots(slots map[string]resources.Slot) wire.ResourceProposal {
	if len(slots) == 0 {
		return wire.ResourceProposal{}
	}
	refs := make(map[string]wire.ArchiveRef, len(slots))
	for name, slot := range slots {
		refs[name] = wire.ArchiveRef{ArchiveID: slot.ArchiveID, URLSuffix: slot.URLSuffix}
	}
	return wire.ResourceProposal{Slots: refs}
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	failFirst := flag.Bool("fail-first-session", false, "reject the first session start once")
	runFor := flag.Duration("run", 10*time.Second, "how long to stay connected before closing")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Error("config load failed", "err", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	supCfg, err := cfg.SupervisorConfig()
	if err != nil {
		logger.Error("config timeouts invalid", "err", err)
		os.Exit(1)
	}

	backend := simbackend.New(logger)
	backend.FailSessionStartOnce = *failFirst
	factory := transport.NewOfflineFactory(backend.Handle)

	credsPath := cfg.Credentials.Path
	if credsPath == "" {
		credsPath = os.TempDir() + "/sessiondemo-credentials.bin"
	}
	credSvc := credentials.NewService(credsPath)
	if err := credSvc.Start(context.Background()); err != nil {
		logger.Error("credentials start failed", "err", err)
		os.Exit(1)
	}

	qosWindow := qos.New(qos.Config{MaxSilence: supCfg.MaxSessionRetainingFrameDuration})
	clk := clock.New()
	sink := logging.NewSlogSink(logger)

	var prober *netprobe.Prober
	if cfg.NetProbe.URL != "" {
		prober = netprobe.New(http.DefaultClient, cfg.NetProbe.URL, clk)
	}
	var statusHintFetcher *statushint.Fetcher
	if cfg.StatusHint.PrimaryURL != "" {
		statusHintFetcher = statushint.New(http.DefaultClient, cfg.StatusHint.PrimaryURL, cfg.StatusHint.SecondaryURL, supCfg.StatusHintConnectTimeout, supCfg.StatusHintReadTimeout, nil)
	}

	deps := supervisor.Deps{
		Credentials: credSvc,
		NewServerConn: func() *serverconn.ServerConnection {
			scCfg := serverconn.DefaultConfig()
			scCfg.ConnectTimeout = supCfg.ConnectTimeout
			scCfg.ServerIdentifyTimeout = supCfg.ServerIdentifyTimeout
			scCfg.ServerSessionInitTimeout = supCfg.ServerSessionInitTimeout
			return serverconn.New(scCfg, factory, cfg.TransportEndpoint(), wire.HandshakeIdentity{
				GameMagic: "SESSIONDEMO",
				Version:   "1.0.0",
			}, serverconn.GobCodec{}, clk)
		},
		NewLoader: func() *resources.Loader {
			return resources.New(
				resources.Config{ConfigFetchAttemptsMax: supCfg.ConfigFetchAttemptsMax, ConfigFetchTimeout: supCfg.ConfigFetchTimeout},
				&resources.MemoryArchiveFetcher{Archives: map[string][]byte{}},
				nil,
			)
		},
		Prober:     prober,
		StatusHint: statusHintFetcher,
		QoS:        qosWindow,
		Logger:     sink,
		Clock:      clk,
		Dispatcher: printDispatcher{logger: logger},
		BuildLogin: func(m credentials.LoginMethod) wire.LoginRequest {
			return wire.LoginRequest{DeviceID: m.DeviceID, AuthToken: m.AuthToken, PlayerIDHint: m.PlayerIDHint}
		},
		BuildSessionStart: func(attempt int, loaded map[string]resources.Slot) wire.SessionStartRequest {
			return wire.SessionStartRequest{QueryID: uint64(attempt), ResourceProposal: resourceProposalFromSlots(loaded)}
		},
		Activate: func(slots map[string]resources.Slot) error {
			logger.Info("resources activated", "count", len(slots))
			return nil
		},
		Specialize: func(slots map[string]resources.Slot, success *wire.SessionStartSuccess) error {
			logger.Info("resources specialized", "count", len(slots), "player_id", success.PlayerID)
			return nil
		},
	}

	sup := supervisor.New(supCfg, deps)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sup.Connect(ctx); err != nil {
		logger.Error("connect failed", "err", err)
		os.Exit(1)
	}

	deadline := time.Now().Add(*runFor)
	var lastStatus classify.Status
	for time.Now().Before(deadline) {
		st := sup.State()
		if st.Status != lastStatus {
			logger.Info("state changed", "status", st.Status.String(), "phase", st.Phase.String(), "healthy", st.IsHealthy)
			lastStatus = st.Status
		}
		if st.Status == classify.StatusTerminalError {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	logger.Info("closing")
	if err := sup.Close(true); err != nil {
		logger.Error("close failed", "err", err)
		os.Exit(1)
	}
	logger.Info("done")
}
