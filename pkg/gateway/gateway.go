// Package gateway is the read-only execution entry point. It has two doors,
// ad hoc statements and named templates, which share the same binding,
// classification and execution path.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/leapstack-labs/retailsql/pkg/bind"
	"github.com/leapstack-labs/retailsql/pkg/core"
	"github.com/leapstack-labs/retailsql/pkg/sink"
	"github.com/leapstack-labs/retailsql/pkg/sqlguard"
	"github.com/leapstack-labs/retailsql/pkg/templates"
)

// Defaults applied by New.
const (
	DefaultTimeout = 30 * time.Second
	DefaultMaxRows = 5000
)

// SourceQuery labels execution records of ad hoc statements.
const SourceQuery = "query"

const tracerName = "github.com/leapstack-labs/retailsql/pkg/gateway"

// TemplateSource resolves template names. *templates.Registry satisfies it.
type TemplateSource interface {
	Resolve(name string) (*templates.Template, error)
}

// Gateway executes statements against one adapter. It keeps no state between
// calls and is safe for concurrent use.
type Gateway struct {
	adapter   core.Adapter
	templates TemplateSource
	sink      core.Sink
	logger    *slog.Logger
	tracer    trace.Tracer
	timeout   time.Duration
	maxRows   int
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithSink sets the destination for execution records.
func WithSink(s core.Sink) Option {
	return func(g *Gateway) {
		if s != nil {
			g.sink = s
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithDefaultTimeout sets the timeout used when a call does not supply one.
// Zero or negative disables the default.
func WithDefaultTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.timeout = d }
}

// WithMaxRows caps the rows returned per call. Zero means unlimited.
func WithMaxRows(n int) Option {
	return func(g *Gateway) { g.maxRows = n }
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(g *Gateway) {
		if t != nil {
			g.tracer = t
		}
	}
}

// New builds a Gateway. A nil template source makes RunTemplate fail with
// NotFound for every name.
func New(adapter core.Adapter, source TemplateSource, opts ...Option) *Gateway {
	g := &Gateway{
		adapter:   adapter,
		templates: source,
		sink:      sink.Nop,
		logger:    slog.New(slog.DiscardHandler),
		tracer:    otel.Tracer(tracerName),
		timeout:   DefaultTimeout,
		maxRows:   DefaultMaxRows,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Dialect returns the dialect of the underlying adapter.
func (g *Gateway) Dialect() string { return g.adapter.DialectName() }

// CallOption adjusts a single call.
type CallOption func(*callOptions)

type callOptions struct {
	timeout time.Duration
	maxRows int
}

// WithTimeout overrides the timeout for one call.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

// WithRowLimit overrides the row cap for one call. Zero means unlimited.
func WithRowLimit(n int) CallOption {
	return func(o *callOptions) { o.maxRows = n }
}

// Query runs caller-supplied SQL. The text must classify as a single
// read-only statement after binding.
func (g *Gateway) Query(ctx context.Context, sql string, params map[string]any, opts ...CallOption) (*core.Result, error) {
	return g.run(ctx, SourceQuery, sql, params, opts)
}

// RunTemplate resolves a template by name and runs it with params.
func (g *Gateway) RunTemplate(ctx context.Context, name string, params map[string]any, opts ...CallOption) (*core.Result, error) {
	if g.templates == nil {
		return nil, &core.NotFoundError{Name: name}
	}
	tmpl, err := g.templates.Resolve(name)
	if err != nil {
		return nil, err
	}
	if dialect := g.adapter.DialectName(); !tmpl.Supports(dialect) {
		return nil, &core.ValidationError{
			Reason: fmt.Sprintf("template %s does not support dialect %s (supported: %s)", name, dialect, strings.Join(tmpl.Dialects, ", ")),
		}
	}
	return g.run(ctx, "template:"+name, tmpl.SQL, params, opts)
}

func (g *Gateway) run(ctx context.Context, source, text string, params map[string]any, opts []CallOption) (*core.Result, error) {
	call := callOptions{timeout: g.timeout, maxRows: g.maxRows}
	for _, opt := range opts {
		opt(&call)
	}

	fingerprint := sqlguard.Fingerprint(text)
	log := g.logger.With(slog.String("fingerprint", fingerprint), slog.String("source", source))

	dialect := sqlguard.DialectFor(g.adapter.DialectName())
	stmt, err := bind.BindDialect(text, params, g.adapter.Placeholder(), dialect)
	if err != nil {
		log.Debug("binding failed", slog.String("error", err.Error()))
		return nil, err
	}
	if verdict := sqlguard.ClassifyDialect(stmt.SQL, dialect); !verdict.Allowed {
		log.Debug("statement rejected", slog.String("reason", verdict.Reason))
		return nil, verdict.Err()
	}

	if call.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, call.timeout)
		defer cancel()
	}

	ctx, span := g.tracer.Start(ctx, "gateway.execute", trace.WithAttributes(
		attribute.String("db.system", g.adapter.DialectName()),
		attribute.String("retailsql.source", source),
		attribute.String("retailsql.fingerprint", fingerprint),
	))
	defer span.End()

	started := time.Now()
	rows, err := g.adapter.QueryReadOnly(ctx, stmt, call.maxRows)
	elapsed := time.Since(started)

	rec := core.ExecutionRecord{
		Fingerprint: fingerprint,
		Source:      source,
		StartedAt:   started.UTC(),
		Duration:    elapsed,
	}

	if err != nil {
		err = mapError(ctx, err, fingerprint, call.timeout, stmt.Args)
		rec.Error = err.Error()
		g.sink.Record(ctx, rec)

		span.RecordError(err)
		span.SetStatus(codes.Error, rec.Error)
		log.Debug("statement failed", slog.Duration("duration", elapsed), slog.String("error", rec.Error))
		return nil, err
	}

	res := core.NewResult(rows, elapsed, fingerprint)
	rec.Success = true
	rec.RowCount = res.RowCount
	g.sink.Record(ctx, rec)

	span.SetAttributes(attribute.Int("retailsql.rows", res.RowCount), attribute.Bool("retailsql.truncated", res.Truncated))
	log.Debug("statement executed",
		slog.Duration("duration", elapsed),
		slog.Int("rows", res.RowCount),
		slog.Bool("truncated", res.Truncated))
	return res, nil
}

// mapError turns an adapter failure into a TimeoutError or ExecutionError
// whose message never contains bound string values.
func mapError(ctx context.Context, err error, fingerprint string, timeout time.Duration, args []any) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &core.TimeoutError{Fingerprint: fingerprint, Timeout: timeout}
	}

	var engineErr *core.EngineError
	if errors.As(err, &engineErr) {
		if engineErr.Timeout {
			return &core.TimeoutError{Fingerprint: fingerprint, Timeout: timeout}
		}
		return &core.ExecutionError{
			Fingerprint: fingerprint,
			Message:     redact(engineErr.Message, args),
			Code:        engineErr.Code,
		}
	}

	if errors.Is(err, context.Canceled) {
		return &core.ExecutionError{Fingerprint: fingerprint, Message: "statement cancelled"}
	}
	return &core.ExecutionError{Fingerprint: fingerprint, Message: redact(err.Error(), args)}
}

// Redacted replaces parameter values in engine messages.
const Redacted = "<redacted>"

// redact keeps the first line of msg and blanks out every non-empty string
// argument. Longer values are replaced first so a value containing another
// value is not left half redacted.
func redact(msg string, args []any) string {
	msg, _, _ = strings.Cut(strings.TrimSpace(msg), "\n")

	var values []string
	for _, a := range args {
		if s, ok := a.(string); ok && strings.TrimSpace(s) != "" {
			values = append(values, s)
		}
	}
	slices.SortFunc(values, func(a, b string) int { return len(b) - len(a) })
	for _, v := range values {
		msg = strings.ReplaceAll(msg, v, Redacted)
	}
	return msg
}
