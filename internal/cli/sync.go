package cli

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/rl1809/scan-sync/internal/core/offline"
)

func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay queued scans against the server",
		Long: `Replay every queued scan in the order it was made.

Scans that fail stay queued for the next sync. The command exits with
status 1 when any scan failed and 2 when the server is unreachable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, rootOpts)
		},
	}
}

func runSync(cmd *cobra.Command, opts *RootOptions) error {
	a, err := openApp(cmd, opts, func(p offline.Progress) {
		if opts.Verbose && opts.Format != "json" {
			printf(cmd, "syncing %d/%d\n", p.Current, p.Total)
		}
	})
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.tracker.SyncNow(commandContext(cmd))
	switch {
	case errors.Is(err, offline.ErrOffline):
		return WrapExitError(ExitCommandError, "server unreachable, scans stay queued", err)
	case err != nil:
		return WrapExitError(ExitCommandError, "sync failed", err)
	}

	if err := render(cmd.OutOrStdout(), opts.Format, result, func(w io.Writer) {
		if result.Total == 0 {
			fprintf(w, "Nothing to sync\n")
			return
		}
		fprintf(w, "%s\n", result.Summary())
		for _, f := range result.Failures {
			fprintf(w, "  %s  %s: %s\n", f.MutationID, f.Barcode, f.Error)
		}
	}); err != nil {
		return err
	}

	if result.Failed > 0 {
		return WrapExitError(ExitFailure, result.Summary(), nil)
	}
	return nil
}
