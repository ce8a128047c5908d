// Package sqlite provides a SQLite read-only adapter backed by the pure-Go
// modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/leapstack-labs/retailsql/pkg/adapter"
	"github.com/leapstack-labs/retailsql/pkg/core"

	_ "modernc.org/sqlite" // sqlite driver
)

// Adapter implements core.Adapter for SQLite files.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new SQLite adapter instance.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	// The connection itself is read-only (mode=ro, query_only), so sessions
	// use default transaction options.
	return &Adapter{BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger}}
}

// DialectName returns the SQL dialect for this adapter.
func (a *Adapter) DialectName() string {
	return "sqlite"
}

// Placeholder returns the ? parameter style.
func (a *Adapter) Placeholder() core.PlaceholderStyle {
	return core.PlaceholderQuestion
}

// Connect opens the database file read-only.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	dsn, err := buildDSN(cfg)
	if err != nil {
		return err
	}

	a.Logger.Debug("connecting to sqlite", slog.String("dsn", dsn))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// buildDSN opens the file as a read-only URI with query_only set on every
// pooled connection.
func buildDSN(cfg adapter.Config) (string, error) {
	path := cfg.Path
	if path == "" {
		path = cfg.Database
	}
	if path == "" || path == ":memory:" {
		return "", fmt.Errorf("sqlite target requires a database file path")
	}
	path = strings.TrimPrefix(path, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return "file:" + path + "?mode=ro&_pragma=query_only(1)&_pragma=busy_timeout(5000)", nil
}

// sqliteTimeLayout matches how timestamps are stored as TEXT, so bound
// times compare correctly against column values. Fractional seconds are
// kept and trailing zeros dropped, so whole seconds render without them.
const sqliteTimeLayout = "2006-01-02 15:04:05.999999999"

// QueryReadOnly renders time arguments as naive UTC text before running stmt.
func (a *Adapter) QueryReadOnly(ctx context.Context, stmt core.BoundStatement, limit int) (*core.RowSet, error) {
	args := make([]any, len(stmt.Args))
	for i, v := range stmt.Args {
		if t, ok := v.(time.Time); ok {
			v = t.UTC().Format(sqliteTimeLayout)
		}
		args[i] = v
	}
	stmt.Args = args
	return a.BaseSQLAdapter.QueryReadOnly(ctx, stmt, limit)
}
