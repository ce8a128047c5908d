package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/retailsql/pkg/adapter"
)

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// NewVersionCommand creates the version command.
func NewVersionCommand(info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display the retailsql version, build metadata and the compiled-in adapters.`,
		Run: func(cmd *cobra.Command, _ []string) {
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "retailsql v%s\n", info.Version)
			_, _ = fmt.Fprintln(w, "Read-only SQL gateway and retail analytics")
			if info.Commit != "" && info.Commit != "unknown" {
				_, _ = fmt.Fprintf(w, "commit %s, built %s\n", info.Commit, info.Date)
			}
			if names := adapter.ListAdapters(); len(names) > 0 {
				_, _ = fmt.Fprintf(w, "adapters: %s\n", strings.Join(names, ", "))
			}
		},
	}
}
