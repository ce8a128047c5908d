package commands

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/retailsql/internal/server"
	"github.com/leapstack-labs/retailsql/internal/server/notifier"
	"github.com/leapstack-labs/retailsql/pkg/sink"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the gateway over HTTP",
		Long: `Start an HTTP server exposing queries, templates and analyses.

Endpoints:
  GET  /health/db                 Database reachability
  POST /query                     Run an ad-hoc read-only statement
  GET  /templates                 List templates
  GET  /templates/{name}          Show a template
  POST /templates/{name}/run      Run a template
  GET  /templates/events          Template reloads (server-sent events)
  POST /analyze/{kind}            compare, contributors, decompose or quality
  GET  /metrics                   Prometheus metrics

With --watch, .sql files in the templates directory are reloaded on change.`,
		Example: `  retailsql serve
  retailsql serve --addr :9090 --templates-dir ./templates --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := getConfig()
			logger := NewCommandContextWithoutStore(cmd).Logger

			notify := notifier.New()
			source, err := server.NewSource(cfg.TemplatesDir, notify, logger)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			cmdCtx, cleanup, err := NewCommandContext(cmd,
				WithTemplateSource(source),
				WithSinks(sink.NewMetrics(reg)),
				WithAsyncAudit(),
			)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.NewServer(server.Config{
				Addr:         cfg.Server.Addr,
				Gateway:      cmdCtx.Gateway,
				Analytics:    cmdCtx.Analytics,
				Source:       source,
				Notifier:     notify,
				Gatherer:     reg,
				Watch:        cfg.Server.Watch,
				TemplatesDir: cfg.TemplatesDir,
				Logger:       logger,
			})

			logger.Info("serving",
				slog.String("addr", cfg.Server.Addr),
				slog.String("target", cfg.Target.Type),
				slog.Bool("watch", cfg.Server.Watch && cfg.TemplatesDir != ""))
			return srv.Serve(ctx)
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default :8080)")
	cmd.Flags().Bool("watch", false, "Reload templates when files in --templates-dir change")

	return cmd
}
