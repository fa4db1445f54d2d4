package cli

import (
	"io"

	"github.com/spf13/cobra"
)

type statusView struct {
	Connectivity string `json:"connectivity"`
	Transport    string `json:"transport"`
	Server       string `json:"server"`
	Pending      int    `json:"pending"`
	Database     string `json:"database"`
	Zone         string `json:"zone,omitempty"`
}

func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connectivity and the number of queued scans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.orchestrator.Status(commandContext(cmd))
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read queue", err)
			}

			view := statusView{
				Connectivity: connectivityLabel(a.monitor.Online()),
				Transport:    a.cfg.Transport,
				Server:       a.cfg.ServerURL,
				Pending:      st.Pending,
				Database:     a.cfg.Database,
				Zone:         a.cfg.DeviceZone,
			}
			return render(cmd.OutOrStdout(), rootOpts.Format, view, func(w io.Writer) {
				fprintf(w, "%s (%s via %s)\n", view.Connectivity, view.Server, view.Transport)
				fprintf(w, "%d scans pending sync\n", view.Pending)
			})
		},
	}
}
