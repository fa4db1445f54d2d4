package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/rl1809/scan-sync/internal/adapter/remote"
	"github.com/rl1809/scan-sync/internal/adapter/storage"
	"github.com/rl1809/scan-sync/internal/config"
	"github.com/rl1809/scan-sync/internal/connectivity"
	"github.com/rl1809/scan-sync/internal/core/offline"
	"github.com/rl1809/scan-sync/internal/logging"
	"github.com/rl1809/scan-sync/internal/port"
)

const initialProbeTimeout = 3 * time.Second

// app is the scanner wired from config: local store, connectivity monitor,
// dispatcher, orchestrator and tracker.
type app struct {
	cfg          config.Client
	logger       *slog.Logger
	store        *storage.SQLiteLocalStore
	monitor      *connectivity.Monitor
	projection   *offline.Projection
	orchestrator *offline.Orchestrator
	tracker      *offline.Tracker

	conn *grpc.ClientConn
}

func loadConfig(opts *RootOptions) (config.Client, error) {
	cfg, err := config.LoadClient(opts.ConfigPath)
	if err != nil {
		return config.Client{}, err
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if opts.ServerURL != "" {
		cfg.ServerURL = opts.ServerURL
	}
	if opts.Transport != "" {
		cfg.Transport = opts.Transport
	}
	if opts.Token != "" {
		cfg.Token = opts.Token
	}
	if opts.Zone != "" {
		cfg.DeviceZone = opts.Zone
	}
	return cfg, cfg.Validate()
}

// openApp builds the scanner. It probes the server once so commands start
// with a known connectivity state.
func openApp(cmd *cobra.Command, opts *RootOptions, onProgress func(offline.Progress)) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	level := "info"
	if opts.Verbose {
		level = "debug"
	}
	logger := logging.New(cmd.ErrOrStderr(), level, "text")

	if dir := filepath.Dir(cfg.Database); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to create database directory", err)
		}
	}
	store, err := storage.OpenLocalStore(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open local database", err)
	}

	a := &app{cfg: cfg, logger: logger, store: store}

	var dispatcher port.Dispatcher
	switch cfg.Transport {
	case config.TransportGRPC:
		conn, err := remote.Dial(cfg.GRPCAddr)
		if err != nil {
			store.Close()
			return nil, WrapExitError(ExitCommandError, "failed to dial gRPC server", err)
		}
		a.conn = conn
		dispatcher = remote.NewGRPCDispatcher(conn, cfg.Token)
	default:
		dispatcher = remote.NewHTTPDispatcher(cfg.ServerURL, cfg.Token, nil)
	}

	prober := connectivity.NewHTTPProber(cfg.ServerURL, nil)
	a.monitor = connectivity.NewMonitor(false,
		connectivity.WithProber(prober, cfg.ProbeInterval),
		connectivity.WithLogger(logger),
	)
	probeCtx, cancel := context.WithTimeout(commandContext(cmd), initialProbeTimeout)
	a.monitor.Set(prober.Probe(probeCtx) == nil)
	cancel()

	a.projection = offline.NewProjection(store)
	a.orchestrator = offline.NewOrchestrator(store, dispatcher,
		offline.WithConnectivity(a.monitor),
		offline.WithDispatchTimeout(cfg.DispatchTimeout),
		offline.WithProgress(onProgress),
		offline.WithOrchestratorLogger(logger),
	)
	a.tracker = offline.NewTracker(a.monitor, store, a.projection, dispatcher, a.orchestrator, logger)

	return a, nil
}

func (a *app) Close() {
	if a.conn != nil {
		a.conn.Close()
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func connectivityLabel(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
