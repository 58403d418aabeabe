package cli

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/imrishuroy/fieldlink/internal/handshake"
)

type lockStatus struct {
	Locked  bool               `json:"locked"`
	Context *handshake.Context `json:"context,omitempty"`
}

// NewHandshakeCommand creates the handshake command group.
func NewHandshakeCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "handshake",
		Short: "Bind this device to one job",
	}
	cmd.AddCommand(newHandshakeValidateCommand(opts, false))
	cmd.AddCommand(newHandshakeValidateCommand(opts, true))
	cmd.AddCommand(newHandshakeStatusCommand(opts))
	cmd.AddCommand(newHandshakeClearCommand(opts))
	return cmd
}

func newHandshakeValidateCommand(opts *RootOptions, commit bool) *cobra.Command {
	use, short := "validate <code>", "Validate a code against the device lock"
	if commit {
		use, short = "commit <code>", "Validate a code and lock the device to its job"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := opts.device(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			hc, err := d.Handshake.Validate(ctx, args[0])
			if err != nil {
				return err
			}
			if commit {
				d.Handshake.Commit(ctx, hc)
			}
			return printContext(opts, cmd, hc)
		},
	}
}

func newHandshakeStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the committed job lock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := opts.device(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			st := lockStatus{Locked: d.Handshake.IsLocked(ctx), Context: d.Handshake.Get(ctx)}
			return newPrinter(opts, cmd).print(st, func(w io.Writer) {
				kvLine(w, "locked", st.Locked)
				if st.Context != nil {
					writeContext(w, st.Context)
				}
			})
		},
	}
}

func newHandshakeClearCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Release the device lock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := opts.device(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			d.Handshake.Clear(ctx)
			return newPrinter(opts, cmd).print(lockStatus{}, func(w io.Writer) {
				kvLine(w, "locked", false)
			})
		},
	}
}

func printContext(opts *RootOptions, cmd *cobra.Command, hc *handshake.Context) error {
	return newPrinter(opts, cmd).print(hc, func(w io.Writer) { writeContext(w, hc) })
}

func writeContext(w io.Writer, hc *handshake.Context) {
	kvLine(w, "job_id", hc.JobID)
	kvLine(w, "delivery_contact", hc.DeliveryContact)
	if hc.SecondaryContact != "" {
		kvLine(w, "secondary_contact", hc.SecondaryContact)
	}
	kvLine(w, "created_at", hc.CreatedAt.UTC().Format(time.RFC3339))
	kvLine(w, "is_locked", hc.IsLocked)
}
