package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/retailsql/internal/cli/output"
	"github.com/leapstack-labs/retailsql/pkg/gateway"
	"github.com/leapstack-labs/retailsql/pkg/templates"
)

// NewTemplateCommand creates the template command group.
func NewTemplateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "template",
		Aliases: []string{"templates", "tpl"},
		Short:   "List, inspect and run SQL templates",
		Long: `Work with the named SQL templates.

Templates ship embedded in the binary. A templates_dir in the configuration
adds or replaces templates by file name.`,
	}

	cmd.AddCommand(newTemplateListCommand())
	cmd.AddCommand(newTemplateShowCommand())
	cmd.AddCommand(newTemplateRunCommand())

	return cmd
}

func newTemplateListCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available templates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContextWithoutStore(cmd)
			reg, err := templates.Default(cmdCtx.Cfg.TemplatesDir)
			if err != nil {
				return err
			}
			return listTemplates(cmd.OutOrStdout(), reg, "", format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", output.FormatTable, "Output format: table, json, csv, md")
	return cmd
}

func newTemplateShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "show <name>",
		Short:             "Show a template's parameters and SQL",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeTemplateNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContextWithoutStore(cmd)
			reg, err := templates.Default(cmdCtx.Cfg.TemplatesDir)
			if err != nil {
				return err
			}
			tpl, err := reg.Resolve(args[0])
			if err != nil {
				return err
			}
			return showTemplate(cmdCtx.Renderer, tpl)
		},
	}
}

func newTemplateRunCommand() *cobra.Command {
	opts := &QueryOptions{}
	cmd := &cobra.Command{
		Use:   "run <name>",
		Short: "Run a template",
		Long: `Run a named template with the given parameters.

Parameter values are converted to the type the template documents; a
name:type=value pair overrides it.`,
		Example: `  retailsql template run revenue_daily \
    -p current_start_ts=2011-12-01 -p current_end_ts=2011-12-08 \
    -p prior_start_ts=2011-11-24 -p prior_end_ts=2011-12-01`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeTemplateNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return runTemplateAndRender(cmd.Context(), cmd.OutOrStdout(), cmdCtx, args[0], opts.Params, opts.Format, opts.callOptions(cmd)...)
		},
	}
	cmd.Flags().StringVarP(&opts.Format, "format", "f", output.FormatTable, "Output format: table, json, csv, md")
	cmd.Flags().StringArrayVarP(&opts.Params, "param", "p", nil, "Parameter as name[:type]=value (repeatable)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Row cap for this statement (0 = unlimited; default from config)")
	return cmd
}

// runTemplateAndRender coerces raw name=value pairs by the template's
// documented types and runs it.
func runTemplateAndRender(ctx context.Context, w io.Writer, cmdCtx *CommandContext, name string,
	raw []string, format string, callOpts ...gateway.CallOption) error {
	if ctx == nil {
		ctx = context.Background()
	}
	tpl, err := cmdCtx.Templates.Resolve(name)
	if err != nil {
		return err
	}
	types := make(map[string]string, len(tpl.Params))
	for _, p := range tpl.Params {
		types[p.Name] = p.Type
	}
	params, err := parseParams(raw, types)
	if err != nil {
		return err
	}

	res, err := cmdCtx.Gateway.RunTemplate(ctx, name, params, callOpts...)
	if err != nil {
		return err
	}
	return output.RenderResult(w, res, format)
}

// listTemplates renders the catalogue. A non-empty dialect hides templates
// that cannot run on it.
func listTemplates(w io.Writer, reg *templates.Registry, dialect, format string) error {
	var rows [][]string
	for _, name := range reg.Names() {
		tpl, err := reg.Resolve(name)
		if err != nil {
			rows = append(rows, []string{name, "", "", "error: " + err.Error()})
			continue
		}
		if dialect != "" && !tpl.Supports(dialect) {
			continue
		}
		rows = append(rows, []string{
			tpl.Name,
			strings.Join(tpl.Dialects, ", "),
			strings.Join(tpl.Required(), ", "),
			tpl.Description,
		})
	}
	return output.RenderList(w, []string{"name", "dialects", "params", "description"}, rows, format)
}

func showTemplate(r *output.Renderer, tpl *templates.Template) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(tpl)
	}

	r.Header(1, tpl.Name)
	if tpl.Description != "" {
		r.Println(tpl.Description)
	}
	r.Println()
	r.Println(output.FormatKeyValue("Origin", tpl.Origin))
	dialects := "any"
	if len(tpl.Dialects) > 0 {
		dialects = strings.Join(tpl.Dialects, ", ")
	}
	r.Println(output.FormatKeyValue("Dialects", dialects))
	r.Println()

	r.Header(2, "Parameters")
	for _, p := range tpl.Params {
		line := fmt.Sprintf("- `%s` (%s)", p.Name, p.Type)
		if p.Description != "" {
			line += ": " + p.Description
		}
		r.Println(line)
	}
	r.Println()

	r.Header(2, "SQL")
	r.Println("```sql")
	r.Println(strings.TrimSpace(tpl.SQL))
	r.Println("```")
	return nil
}

func completeTemplateNames(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	reg, err := templates.Default(getConfig().TemplatesDir)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return reg.Names(), cobra.ShellCompDirectiveNoFileComp
}
