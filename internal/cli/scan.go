package cli

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/rl1809/scan-sync/internal/core/domain"
	"github.com/rl1809/scan-sync/internal/core/offline"
)

type ScanOptions struct {
	*RootOptions
	Action  string
	Product string
	Colour  string
	Size    string
}

func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scan <barcode>",
		Short: "Record one scan",
		Long: `Increment or decrement the quantity of a barcode in the working zone.

When the server is reachable the scan is applied immediately. Otherwise it
is queued locally and the local quantity is shown.

Example:
  scanner scan 4006381333931 --product Pen --colour Blue
  scanner scan 4006381333931 --action decrement --zone A1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Action, "action", "a", string(domain.ActionIncrement), "increment or decrement")
	cmd.Flags().StringVar(&opts.Product, "product", "", "product name for new items")
	cmd.Flags().StringVar(&opts.Colour, "colour", "", "colour for new items")
	cmd.Flags().StringVar(&opts.Size, "size", "", "size for new items")

	return cmd
}

func runScan(cmd *cobra.Command, opts *ScanOptions, barcode string) error {
	a, err := openApp(cmd, opts.RootOptions, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	outcome, err := a.tracker.Scan(commandContext(cmd), offline.Scan{
		Barcode: barcode,
		Action:  domain.Action(opts.Action),
		Zone:    a.cfg.DeviceZone,
		ProductData: domain.ProductData{
			Product: opts.Product,
			Colour:  opts.Colour,
			Size:    opts.Size,
		},
	})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return WrapExitError(ExitCommandError, "invalid scan", err)
		}
		return WrapExitError(ExitCommandError, "scan failed", err)
	}

	return render(cmd.OutOrStdout(), opts.Format, outcome, func(w io.Writer) {
		printScan(w, outcome)
	})
}

func printScan(w io.Writer, o offline.ScanOutcome) {
	label := "updated"
	if o.IsNewItem {
		label = "new item"
	}
	if o.Offline {
		label += ", queued offline"
	}
	zone := o.Zone
	if zone == "" {
		zone = domain.UnassignedZone
	}
	fprintf(w, "%s  %s  zone=%s  qty=%d  (%s)\n", o.Barcode, o.Product, zone, o.Quantity, label)
	if o.LowStock {
		fprintf(w, "low stock: %s has %d left\n", o.Barcode, o.Quantity)
	}
}
