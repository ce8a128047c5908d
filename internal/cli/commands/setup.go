package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/retailsql/internal/cli/config"
	"github.com/leapstack-labs/retailsql/internal/cli/output"
	"github.com/leapstack-labs/retailsql/internal/state"
	"github.com/leapstack-labs/retailsql/pkg/adapter"
	"github.com/leapstack-labs/retailsql/pkg/analytics"
	"github.com/leapstack-labs/retailsql/pkg/core"
	"github.com/leapstack-labs/retailsql/pkg/gateway"
	"github.com/leapstack-labs/retailsql/pkg/sink"
	"github.com/leapstack-labs/retailsql/pkg/templates"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg       *config.Config
	Logger    *slog.Logger
	Renderer  *output.Renderer
	Templates *templates.Registry
	Gateway   *gateway.Gateway
	Analytics *analytics.Service
	Audit     *state.Store // nil when audit is disabled
}

// ContextOption customizes NewCommandContext.
type ContextOption func(*contextOptions)

type contextOptions struct {
	sinks      []core.Sink
	source     gateway.TemplateSource
	asyncAudit bool
}

// WithSinks adds sinks after the logger and the audit store.
func WithSinks(sinks ...core.Sink) ContextOption {
	return func(o *contextOptions) { o.sinks = append(o.sinks, sinks...) }
}

// WithTemplateSource makes the gateway resolve templates through src
// instead of a registry built once from the config.
func WithTemplateSource(src gateway.TemplateSource) ContextOption {
	return func(o *contextOptions) { o.source = src }
}

// WithAsyncAudit records into the audit store off the request path.
func WithAsyncAudit() ContextOption {
	return func(o *contextOptions) { o.asyncAudit = true }
}

// NewCommandContext connects to the target and builds the gateway.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command, opts ...ContextOption) (*CommandContext, func(), error) {
	var o contextOptions
	for _, opt := range opts {
		opt(&o)
	}

	c := NewCommandContextWithoutStore(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	reg, err := templates.Default(c.Cfg.TemplatesDir)
	if err != nil {
		return nil, nil, err
	}
	c.Templates = reg
	var source gateway.TemplateSource = reg
	if o.source != nil {
		source = o.source
	}

	var async *sink.Async
	sinks := []core.Sink{sink.NewLogger(c.Logger)}
	if c.Cfg.Audit.Enabled {
		store := state.NewStore(c.Logger)
		if err := store.Open(c.Cfg.Audit.Path); err != nil {
			return nil, nil, fmt.Errorf("opening audit store: %w", err)
		}
		c.Audit = store
		if o.asyncAudit {
			async = sink.NewAsync(store, 256, c.Logger)
			sinks = append(sinks, async)
		} else {
			sinks = append(sinks, store)
		}
	}
	sinks = append(sinks, o.sinks...)

	adp, err := adapter.Open(ctx, c.Cfg.Target.AdapterConfig(), c.Logger)
	if err != nil {
		c.closeAudit()
		return nil, nil, err
	}

	c.Gateway = gateway.New(adp, source,
		gateway.WithLogger(c.Logger),
		gateway.WithSink(sink.Multi(sinks...)),
		gateway.WithDefaultTimeout(c.Cfg.Query.Timeout),
		gateway.WithMaxRows(c.Cfg.Query.MaxRows),
	)
	c.Analytics = analytics.NewService(c.Gateway, c.Logger, c.Cfg.Quality)

	cleanup := func() {
		_ = adp.Close()
		if async != nil {
			// Drain pending records before the store closes.
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := async.Close(drainCtx); err != nil {
				c.Logger.Warn("audit records dropped on shutdown", slog.String("error", err.Error()))
			}
			cancel()
		}
		c.closeAudit()
	}
	return c, cleanup, nil
}

// NewCommandContextWithoutStore creates a CommandContext that does not
// connect to the target. Useful for commands that only read templates or
// the audit history.
func NewCommandContextWithoutStore(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

func (c *CommandContext) closeAudit() {
	if c.Audit != nil {
		_ = c.Audit.Close()
		c.Audit = nil
	}
}

// getConfig returns the loaded configuration, or the defaults when the
// command runs outside the root command (tests).
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return &config.Config{
		Target:       &config.TargetConfig{Type: "duckdb"},
		Query:        config.QueryConfig{Timeout: config.DefaultTimeout, MaxRows: config.DefaultMaxRows},
		Audit:        config.AuditConfig{Path: config.DefaultAuditPath},
		Quality:      analytics.DefaultQualityConfig(),
		Server:       config.ServerConfig{Addr: config.DefaultServerAddr},
		Log:          config.LogConfig{Level: config.DefaultLogLevel, Format: config.DefaultLogFormat},
		OutputFormat: config.DefaultOutput,
	}
}
