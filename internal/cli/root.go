// Package cli implements fieldctl, the field-device command line: access
// code tooling, the device handshake lock, and debounced sync to the
// remote store.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/imrishuroy/fieldlink/internal/config"
	"github.com/imrishuroy/fieldlink/internal/logger"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// RootOptions holds global flags and the hooks used to build dependencies.
type RootOptions struct {
	Format string
	DBPath string

	// LoadConfig and OpenDevice default to config.Load and OpenDevice.
	LoadConfig func() (*config.Config, error)
	OpenDevice func(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Device, error)

	cfg *config.Config
	log *zap.Logger
}

// NewRootCommand creates the fieldctl root command.
func NewRootCommand(opts *RootOptions) *cobra.Command {
	if opts == nil {
		opts = &RootOptions{}
	}
	if opts.LoadConfig == nil {
		opts.LoadConfig = config.Load
	}
	if opts.OpenDevice == nil {
		opts.OpenDevice = OpenDevice
	}

	cmd := &cobra.Command{
		Use:           "fieldctl",
		Short:         "Field device tooling for job links",
		Long:          "Encode and verify access codes, manage the device job lock, and sync local edits.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			cfg, err := opts.LoadConfig()
			if err != nil {
				return err
			}
			if opts.DBPath != "" {
				cfg.DeviceDBPath = opts.DBPath
			}
			log, err := logger.New(cfg.LogLevel, "console", "fieldctl")
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			opts.cfg, opts.log = cfg, log
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "device database path (overrides DEVICE_DB_PATH)")

	cmd.AddCommand(NewCodeCommand(opts))
	cmd.AddCommand(NewHandshakeCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))

	return cmd
}

func (o *RootOptions) device(ctx context.Context) (*Device, error) {
	return o.OpenDevice(ctx, o.cfg, o.log)
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
