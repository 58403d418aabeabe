package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/imrishuroy/fieldlink/internal/errs"
	"github.com/imrishuroy/fieldlink/internal/syncer"
)

const drainTimeout = 30 * time.Second

type setResult struct {
	Kind   string         `json:"kind"`
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
	Mode   string         `json:"mode"`
	State  syncer.State   `json:"state"`
	Queued int            `json:"queued"`
}

type queueStatus struct {
	Queued  int                  `json:"queued"`
	Entries []syncer.QueuedWrite `json:"entries"`
}

// NewSyncCommand creates the sync command group.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Debounced sync of local edits to the remote store",
	}
	cmd.AddCommand(newSyncSetCommand(opts))
	cmd.AddCommand(newSyncDrainCommand(opts))
	cmd.AddCommand(newSyncStatusCommand(opts))
	return cmd
}

func newSyncSetCommand(opts *RootOptions) *cobra.Command {
	var cacheKey string
	cmd := &cobra.Command{
		Use:   "set <kind> <id> <field=value>...",
		Short: "Apply field edits locally and sync them after the quiet window",
		Long: `Apply field edits to an entity. Values are parsed as JSON when possible
and kept as strings otherwise. The command waits for the debounce window
and then syncs. An interrupt moves the edits to the offline queue instead.`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseFields(args[2:])
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			d, err := opts.device(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			kind, id := args[0], args[1]
			if err := d.Sync.ScheduleUpdate(ctx, kind, id, fields, cacheKey); err != nil {
				return err
			}

			res := setResult{Kind: kind, ID: id, Fields: fields}
			select {
			case <-ctx.Done():
				res.Mode = syncer.FlushEmergency.String()
				if err := d.Sync.EmergencyFlush(); err != nil {
					return err
				}
			case <-time.After(opts.cfg.DebounceWindow):
				res.Mode = syncer.FlushScheduled.String()
				dctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
				defer cancel()
				if err := d.Sync.Drain(dctx); err != nil && !errs.Is(err, errs.CodeSyncFailed) {
					return err
				}
			}
			res.State = d.Sync.Status(kind, id)
			res.Queued = d.Sync.Queue().Len(context.Background())
			opts.log.Debug("sync set finished", zap.String("mode", res.Mode), zap.String("state", string(res.State)))

			return newPrinter(opts, cmd).print(res, func(w io.Writer) {
				kvLine(w, "entity", kind+"/"+id)
				kvLine(w, "mode", res.Mode)
				kvLine(w, "state", res.State)
				kvLine(w, "queued", res.Queued)
			})
		},
	}
	cmd.Flags().StringVar(&cacheKey, "cache-key", "", "local cache key to update immediately")
	return cmd
}

func newSyncDrainCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Replay the offline queue against the remote store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := opts.device(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			res, err := d.Sync.Reconnected(ctx)
			if err != nil {
				return err
			}
			return newPrinter(opts, cmd).print(res, func(w io.Writer) {
				kvLine(w, "attempted", res.Attempted)
				kvLine(w, "succeeded", res.Succeeded)
				kvLine(w, "failed", res.Failed)
			})
		},
	}
}

func newSyncStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List writes waiting in the offline queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := opts.device(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			entries, err := d.Sync.Queue().Entries(ctx)
			if err != nil {
				return err
			}
			st := queueStatus{Queued: len(entries), Entries: entries}
			return newPrinter(opts, cmd).print(st, func(w io.Writer) {
				kvLine(w, "queued", st.Queued)
				for _, e := range entries {
					fmt.Fprintf(w, "  %s rev=%d fields=%d\n", e.Key(), e.Rev, len(e.Fields))
				}
			})
		},
	}
}

// parseFields turns field=value pairs into a field map.
func parseFields(pairs []string) (map[string]any, error) {
	fields := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, raw, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, errs.Newf(errs.CodeMalformed, "expected field=value, got %q", p)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		fields[k] = v
	}
	return fields, nil
}
