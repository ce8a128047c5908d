package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/retailsql/internal/cli/output"
)

// NewHealthCommand creates the health command.
func NewHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check connectivity to the target database",
		Long: `Run SELECT 1 against the configured target and report the round trip.

Exits with status 1 when the target is unreachable.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			h := cmdCtx.Gateway.Ping(cmd.Context())
			r := cmdCtx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				if err := r.JSON(h); err != nil {
					return err
				}
			} else {
				r.Println(output.FormatKeyValue("Database", h.Database))
				r.Println(output.FormatKeyValue("Response time", fmt.Sprintf("%.2fms", h.ResponseTimeMS)))
				if h.OK {
					r.Success("ok")
				}
			}
			if !h.OK {
				return fmt.Errorf("database unreachable: %s", h.Error)
			}
			return nil
		},
	}
}
