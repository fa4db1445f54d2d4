// Package cli implements the scanner command line client.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands. Empty values leave the
// config file and SCANNER_* environment settings in place.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Format     string // "json" | "text"

	Database  string
	ServerURL string
	Transport string
	Token     string
	Zone      string
}

var ValidFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "scanner",
		Short: "Offline-first barcode inventory scanner",
		Long: `Record barcode scans against the inventory server.

Scans made while the server is unreachable are kept in a local database and
replayed in order once connectivity returns.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "path to scanner.yaml")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.Database, "db", "", "path to the local SQLite database")
	flags.StringVar(&opts.ServerURL, "server", "", "inventory server base URL")
	flags.StringVar(&opts.Transport, "transport", "", "sync transport (http|grpc)")
	flags.StringVar(&opts.Token, "token", "", "bearer token")
	flags.StringVar(&opts.Zone, "zone", "", "working zone for scans")

	cmd.AddCommand(NewScanCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewPendingCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
