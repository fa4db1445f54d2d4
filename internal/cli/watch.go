package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rl1809/scan-sync/internal/core/offline"
)

type WatchOptions struct {
	*RootOptions
	Refresh time.Duration
}

func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Probe the server and sync whenever it comes back",
		Long: `Run in the foreground, probing the server every probe_interval.

Queued scans are replayed on every offline to online transition and, while
online, every --refresh interval. Stop with Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.Refresh, "refresh", 30*time.Second, "periodic sync interval while online (0 disables)")

	return cmd
}

func runWatch(cmd *cobra.Command, opts *WatchOptions) error {
	a, err := openApp(cmd, opts.RootOptions, func(p offline.Progress) {
		printf(cmd, "syncing %d/%d\n", p.Current, p.Total)
	})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			a.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	printf(cmd, "Watching %s (%s). Press Ctrl-C to stop.\n", a.cfg.ServerURL, connectivityLabel(a.monitor.Online()))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.monitor.Run(ctx)
	}()

	// a scan queue left over from a previous run is drained right away
	if a.monitor.Online() {
		if _, err := a.tracker.SyncNow(ctx); err != nil && !errors.Is(err, offline.ErrAlreadyDraining) {
			a.logger.Warn("initial sync failed", "error", err)
		}
	}

	err = a.tracker.Run(ctx, opts.Refresh)
	cancel()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "watch stopped", err)
	}

	st, statusErr := a.orchestrator.Status(context.Background())
	if statusErr == nil && st.LastResult != nil {
		printf(cmd, "%s\n", st.LastResult.Summary())
	}
	return nil
}
