package sink

import (
	"context"
	"log/slog"

	"github.com/leapstack-labs/retailsql/pkg/core"
)

// Logger writes each record as one structured log line. Successes log at
// Info, failures at Warn.
type Logger struct {
	Log *slog.Logger
}

// NewLogger returns a Logger writing to log, or to slog.Default when nil.
func NewLogger(log *slog.Logger) *Logger {
	if log == nil {
		log = slog.Default()
	}
	return &Logger{Log: log}
}

// Record implements core.Sink.
func (l *Logger) Record(ctx context.Context, rec core.ExecutionRecord) {
	attrs := []slog.Attr{
		slog.String("fingerprint", rec.Fingerprint),
		slog.String("source", rec.Source),
		slog.Time("started_at", rec.StartedAt),
		slog.Int64("duration_ms", rec.Duration.Milliseconds()),
		slog.Int("rows", rec.RowCount),
		slog.Bool("success", rec.Success),
	}
	level := slog.LevelInfo
	if !rec.Success {
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("error", rec.Error))
	}
	l.Log.LogAttrs(ctx, level, "statement executed", attrs...)
}
