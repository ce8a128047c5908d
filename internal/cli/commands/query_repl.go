package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/retailsql/internal/cli/output"
	"github.com/leapstack-labs/retailsql/pkg/templates"
)

const (
	replPrompt      = "retailsql> "
	replContinuePfx = "      ...> "
)

// replSession is the mutable state of one REPL run.
type replSession struct {
	cmd    *cobra.Command
	cmdCtx *CommandContext
	format string
	opts   *QueryOptions
}

func runQueryREPL(cmd *cobra.Command, cmdCtx *CommandContext, opts *QueryOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// History lives next to the audit database.
	historyFile := filepath.Join(filepath.Dir(cmdCtx.Cfg.Audit.Path), "query_history")
	if err := os.MkdirAll(filepath.Dir(historyFile), 0o755); err != nil {
		historyFile = ""
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          replPrompt,
		HistoryFile:     historyFile,
		AutoComplete:    newREPLCompleter(cmdCtx.Templates),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	s := &replSession{cmd: cmd, cmdCtx: cmdCtx, format: opts.Format, opts: opts}
	out := cmd.OutOrStdout()

	_, _ = fmt.Fprintf(out, "retailsql REPL (%s target)\n", cmdCtx.Gateway.Dialect())
	_, _ = fmt.Fprintln(out, "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(out)

	var multiLineBuffer strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			multiLineBuffer.Reset()
			rl.SetPrompt(replPrompt)
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if multiLineBuffer.Len() == 0 && strings.HasPrefix(line, ".") {
			if quit := s.handleDotCommand(ctx, line); quit {
				break
			}
			continue
		}

		// Accumulate multi-line SQL until semicolon
		multiLineBuffer.WriteString(line)
		if !strings.HasSuffix(line, ";") {
			multiLineBuffer.WriteString("\n")
			rl.SetPrompt(replContinuePfx)
			continue
		}
		rl.SetPrompt(replPrompt)

		query := multiLineBuffer.String()
		multiLineBuffer.Reset()

		if err := executeAndRender(ctx, out, cmdCtx.Gateway, query, nil, s.format, opts.callOptions(cmd)...); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
		_, _ = fmt.Fprintln(out)
	}

	return nil
}

// handleDotCommand runs a REPL command and reports whether the REPL should exit.
func (s *replSession) handleDotCommand(ctx context.Context, line string) bool {
	out, errOut := s.cmd.OutOrStdout(), s.cmd.ErrOrStderr()
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])

	switch command {
	case ".quit", ".exit":
		return true

	case ".help":
		printREPLHelp(out)

	case ".templates":
		if err := listTemplates(out, s.cmdCtx.Templates, s.cmdCtx.Gateway.Dialect(), s.format); err != nil {
			_, _ = fmt.Fprintf(errOut, "Error: %v\n", err)
		}

	case ".run":
		if len(parts) < 2 {
			_, _ = fmt.Fprintln(errOut, "Usage: .run <template> [name=value ...]")
			return false
		}
		if err := runTemplateAndRender(ctx, out, s.cmdCtx, parts[1], parts[2:], s.format, s.opts.callOptions(s.cmd)...); err != nil {
			_, _ = fmt.Fprintf(errOut, "Error: %v\n", err)
		}

	case ".format":
		if len(parts) < 2 {
			_, _ = fmt.Fprintf(out, "Current format: %s\n", s.format)
			return false
		}
		if !slices.Contains(output.Formats, parts[1]) {
			_, _ = fmt.Fprintf(errOut, "Unknown format %q (want %s)\n", parts[1], strings.Join(output.Formats, ", "))
			return false
		}
		s.format = parts[1]

	case ".clear":
		_, _ = fmt.Fprint(out, "\033[H\033[2J")

	default:
		_, _ = fmt.Fprintf(errOut, "Unknown command: %s (type .help for commands)\n", command)
	}
	return false
}

func printREPLHelp(w io.Writer) {
	help := `
Commands:
  .help                        Show this help message
  .templates                   List templates available on this target
  .run <template> [k=v ...]    Run a template; values may be typed as k:type=v
  .format [table|json|csv|md]  Show or change the output format
  .clear                       Clear the screen
  .quit / .exit                Exit the REPL

Tips:
  - SQL statements must end with a semicolon (;)
  - Only read-only statements are accepted
  - Use arrow keys to navigate history
  - Tab completion works for dot commands and template names
`
	_, _ = fmt.Fprintln(w, help)
}

// newREPLCompleter completes dot commands and template names after .run.
func newREPLCompleter(reg *templates.Registry) *readline.PrefixCompleter {
	var names []readline.PrefixCompleterInterface
	if reg != nil {
		for _, name := range reg.Names() {
			names = append(names, readline.PcItem(name))
		}
	}

	formats := make([]readline.PrefixCompleterInterface, 0, len(output.Formats))
	for _, f := range output.Formats {
		formats = append(formats, readline.PcItem(f))
	}

	return readline.NewPrefixCompleter(
		readline.PcItem(".help"),
		readline.PcItem(".templates"),
		readline.PcItem(".run", names...),
		readline.PcItem(".format", formats...),
		readline.PcItem(".clear"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
}
