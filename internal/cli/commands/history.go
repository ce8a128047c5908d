package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/retailsql/internal/cli/output"
	"github.com/leapstack-labs/retailsql/internal/state"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var (
		format     string
		limit      int
		failedOnly bool
		prune      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "history [fingerprint]",
		Short: "Show recently executed statements",
		Long: `Show the audit trail of executed statements, most recent first.

Records carry the statement fingerprint, never its text or parameter values.`,
		Example: `  retailsql history
  retailsql history --failed
  retailsql history 3f2a9c0d1e4b5a67 --format json
  retailsql history --prune 720h`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContextWithoutStore(cmd)
			if !cmdCtx.Cfg.Audit.Enabled {
				return fmt.Errorf("audit trail is disabled (audit.enabled: false)")
			}

			store := state.NewStore(cmdCtx.Logger)
			if err := store.Open(cmdCtx.Cfg.Audit.Path); err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()
			if prune > 0 {
				n, err := store.Prune(ctx, time.Now().Add(-prune))
				if err != nil {
					return err
				}
				cmdCtx.Renderer.Success(fmt.Sprintf("Pruned %d record(s) older than %s", n, prune))
				return nil
			}

			filter := state.ListFilter{Limit: limit, FailedOnly: failedOnly}
			if len(args) > 0 {
				filter.Fingerprint = args[0]
			}
			records, err := store.ListRecords(ctx, filter)
			if err != nil {
				return err
			}

			if format == output.FormatJSON {
				return cmdCtx.Renderer.JSON(records)
			}
			rows := make([][]string, 0, len(records))
			for _, r := range records {
				status := "ok"
				if !r.Success {
					status = "error"
				}
				rows = append(rows, []string{
					r.StartedAt.Local().Format(time.DateTime),
					r.Fingerprint,
					r.Source,
					status,
					r.Duration.String(),
					strconv.Itoa(r.RowCount),
					r.Error,
				})
			}
			return output.RenderList(cmd.OutOrStdout(),
				[]string{"started_at", "fingerprint", "source", "status", "duration", "rows", "error"},
				rows, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", output.FormatTable, "Output format: table, json, csv, md")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum records to show")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Only show failed executions")
	cmd.Flags().DurationVar(&prune, "prune", 0, "Delete records older than this duration instead of listing")

	return cmd
}
