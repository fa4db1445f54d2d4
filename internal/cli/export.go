package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/rl1809/scan-sync/internal/export"
)

func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file.xlsx>",
		Short: "Write local inventory and queued scans to a workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := commandContext(cmd)
			records, err := a.projection.List(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read local inventory", err)
			}
			pending, err := a.store.ListUnsynced(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read queue", err)
			}

			f, err := os.Create(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to create workbook", err)
			}
			if err := export.Write(f, records, pending); err != nil {
				f.Close()
				return WrapExitError(ExitCommandError, "failed to write workbook", err)
			}
			if err := f.Close(); err != nil {
				return WrapExitError(ExitCommandError, "failed to write workbook", err)
			}

			printf(cmd, "Exported %d items and %d pending scans to %s\n", len(records), len(pending), args[0])
			return nil
		},
	}
}
