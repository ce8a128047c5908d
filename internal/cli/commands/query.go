package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/retailsql/internal/cli/output"
	"github.com/leapstack-labs/retailsql/pkg/gateway"
	"github.com/leapstack-labs/retailsql/pkg/templates"
)

// QueryOptions holds options for the query command.
type QueryOptions struct {
	Format string
	Input  string
	Params []string
	Limit  int
}

// callOptions turns the --limit flag into a gateway call option. Without the
// flag the configured row cap applies.
func (o *QueryOptions) callOptions(cmd *cobra.Command) []gateway.CallOption {
	if f := cmd.Flags().Lookup("limit"); f != nil && f.Changed {
		return []gateway.CallOption{gateway.WithRowLimit(o.Limit)}
	}
	return nil
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Run a read-only SQL statement",
		Long: `Run an ad-hoc SQL statement against the configured target.

Only a single SELECT, WITH or VALUES statement is accepted. The statement runs
inside a read-only session, subject to the configured timeout and row cap.
Named placeholders (:name) are bound from --param values.

When invoked without arguments on a terminal, enters interactive REPL mode.`,
		Example: `  # Execute SQL directly
  retailsql query "SELECT country, count(*) FROM customers GROUP BY 1"

  # Bind parameters (optionally typed)
  retailsql query "SELECT * FROM invoices WHERE invoice_date >= :since" -p since:timestamp=2011-01-01

  # Read SQL from a file and print CSV
  retailsql query -i report.sql --format csv

  # Pipe SQL on stdin
  echo "SELECT 1" | retailsql query

  # Interactive mode
  retailsql query`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", output.FormatTable, "Output format: table, json, csv, md")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read SQL from file")
	cmd.Flags().StringArrayVarP(&opts.Params, "param", "p", nil, "Parameter as name[:type]=value (repeatable)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Row cap for this statement (0 = unlimited; default from config)")

	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return output.Formats, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runQuery(cmd *cobra.Command, args []string, opts *QueryOptions) error {
	params, err := parseParams(opts.Params, nil)
	if err != nil {
		return err
	}

	// Determine SQL source
	var sqlQuery string
	repl := false

	switch {
	case len(args) > 0:
		sqlQuery = strings.Join(args, " ")
	case opts.Input != "":
		content, err := os.ReadFile(opts.Input)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		sqlQuery = string(content)
	case !isTerminal(cmd.InOrStdin()):
		// Read from stdin (piped input)
		content, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		sqlQuery = string(content)
	default:
		repl = true
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if repl {
		return runQueryREPL(cmd, cmdCtx, opts)
	}
	return executeAndRender(cmd.Context(), cmd.OutOrStdout(), cmdCtx.Gateway, sqlQuery, params, opts.Format, opts.callOptions(cmd)...)
}

func executeAndRender(ctx context.Context, w io.Writer, gw *gateway.Gateway, sqlQuery string,
	params map[string]any, format string, callOpts ...gateway.CallOption) error {
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := gw.Query(ctx, sqlQuery, params, callOpts...)
	if err != nil {
		return err
	}
	return output.RenderResult(w, res, format)
}

// parseParams parses name[:type]=value pairs. An explicit type wins; without
// one the type comes from typeOf (a template's documented params), falling
// back to a plain string.
func parseParams(raw []string, typeOf map[string]string) (map[string]any, error) {
	params := make(map[string]any, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q (want name[:type]=value)", kv)
		}
		name, typ, _ := strings.Cut(key, ":")
		name = strings.TrimSpace(name)
		if typ == "" {
			typ = typeOf[name]
		}
		v, err := templates.CoerceValue(strings.ToLower(typ), value)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}
		params[name] = v
	}
	return params, nil
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
