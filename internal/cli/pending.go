package cli

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/rl1809/scan-sync/internal/core/domain"
)

type pendingView struct {
	ID        string        `json:"id"`
	Barcode   string        `json:"barcode"`
	Action    domain.Action `json:"action"`
	Zone      string        `json:"zone,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List queued scans in replay order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			mutations, err := a.store.ListUnsynced(commandContext(cmd))
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read queue", err)
			}

			views := make([]pendingView, 0, len(mutations))
			for _, m := range mutations {
				views = append(views, pendingView{
					ID: m.ID, Barcode: m.Barcode, Action: m.Action, Zone: m.Zone, CreatedAt: m.CreatedAt,
				})
			}
			return render(cmd.OutOrStdout(), rootOpts.Format, views, func(w io.Writer) {
				if len(views) == 0 {
					fprintf(w, "No scans pending\n")
					return
				}
				for _, v := range views {
					fprintf(w, "%s  %-9s  %s  %s\n", v.CreatedAt.Format(time.RFC3339), v.Action, v.Barcode, v.Zone)
				}
			})
		},
	}
}
