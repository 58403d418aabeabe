package cli

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/imrishuroy/fieldlink/internal/accesscode"
	"github.com/imrishuroy/fieldlink/internal/handshake"
	"github.com/imrishuroy/fieldlink/internal/kv"
)

type codeResult struct {
	Code             string     `json:"code,omitempty"`
	JobID            string     `json:"job_id"`
	DeliveryContact  string     `json:"delivery_contact"`
	SecondaryContact string     `json:"secondary_contact,omitempty"`
	IssuedAt         *time.Time `json:"issued_at,omitempty"`
}

// NewCodeCommand creates the code command group.
func NewCodeCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "code",
		Short: "Encode and verify access codes",
	}
	cmd.AddCommand(newCodeEncodeCommand(opts))
	cmd.AddCommand(newCodeVerifyCommand(opts))
	return cmd
}

func newCodeEncodeCommand(opts *RootOptions) *cobra.Command {
	var jobID, contact, secondary string
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Mint an access code for a job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			codec := accesscode.NewCodec(accesscode.NewChecksummer(opts.cfg.AccessCodeKey))
			contact = accesscode.NormalizeContact(contact, opts.cfg.PhoneRegion)
			secondary = accesscode.NormalizeContact(secondary, opts.cfg.PhoneRegion)
			code, err := codec.Encode(jobID, contact, secondary)
			if err != nil {
				return err
			}
			res := codeResult{Code: code, JobID: jobID, DeliveryContact: contact, SecondaryContact: secondary}
			return newPrinter(opts, cmd).print(res, func(w io.Writer) {
				io.WriteString(w, code+"\n")
			})
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "job id")
	cmd.Flags().StringVar(&contact, "contact", "", "delivery contact (phone or email)")
	cmd.Flags().StringVar(&secondary, "secondary", "", "secondary contact")
	return cmd
}

func newCodeVerifyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <code>",
		Short: "Check a code's integrity and expiry without touching the device lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec := accesscode.NewCodec(accesscode.NewChecksummer(opts.cfg.AccessCodeKey))
			svc := handshake.NewService(codec, handshake.NewKVLockStore(kv.NewMemory()), opts.log)
			ac, err := svc.Verify(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			res := codeResult{JobID: ac.JobID, DeliveryContact: ac.DeliveryContact, SecondaryContact: ac.SecondaryContact}
			if t, ok := ac.IssuedTime(); ok {
				res.IssuedAt = &t
			}
			return newPrinter(opts, cmd).print(res, func(w io.Writer) {
				kvLine(w, "job_id", res.JobID)
				kvLine(w, "delivery_contact", res.DeliveryContact)
				if res.SecondaryContact != "" {
					kvLine(w, "secondary_contact", res.SecondaryContact)
				}
				if res.IssuedAt != nil {
					kvLine(w, "issued_at", res.IssuedAt.UTC().Format(time.RFC3339))
				}
			})
		},
	}
}
