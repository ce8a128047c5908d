package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/retailsql/pkg/core"
)

// BaseSQLAdapter provides the database/sql read-only session for adapters.
// Embed this struct in concrete adapter implementations to get standard
// Close, Ping, and QueryReadOnly implementations.
type BaseSQLAdapter struct {
	DB     *sql.DB
	Cfg    core.AdapterConfig
	Logger *slog.Logger

	// TxOptions opens every session. Drivers that can express it set
	// ReadOnly; the others enforce read-only on the connection itself.
	TxOptions sql.TxOptions

	// Prelude runs inside the session before the statement, e.g. to set an
	// engine-side statement timeout.
	Prelude func(ctx context.Context, tx *sql.Tx) error

	// TranslateError turns a driver error into a *core.EngineError.
	TranslateError func(err error) error

	// ConvertValue maps driver-specific scan types onto plain Go values.
	// It runs after byte slices have become strings.
	ConvertValue func(v any) any
}

// Close closes the database connection.
func (b *BaseSQLAdapter) Close() error {
	if b.DB != nil {
		if b.Logger != nil {
			b.Logger.Debug("closing database connection")
		}
		return b.DB.Close()
	}
	return nil
}

// Ping runs SELECT 1 against the store.
func (b *BaseSQLAdapter) Ping(ctx context.Context) error {
	if b.DB == nil {
		return fmt.Errorf("database connection not established")
	}
	var one int
	if err := b.DB.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return b.translate(err)
	}
	return nil
}

// QueryReadOnly runs stmt in a session opened with TxOptions. The session is
// rolled back and its connection returned to the pool on every exit path.
// When limit > 0 at most limit rows are collected and Truncated reports
// whether more were available.
func (b *BaseSQLAdapter) QueryReadOnly(ctx context.Context, stmt core.BoundStatement, limit int) (*core.RowSet, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}

	opts := b.TxOptions
	tx, err := b.DB.BeginTx(ctx, &opts)
	if err != nil {
		return nil, b.translate(err)
	}
	defer func() { _ = tx.Rollback() }()

	if b.Prelude != nil {
		if err := b.Prelude(ctx, tx); err != nil {
			return nil, b.translate(err)
		}
	}

	rows, err := tx.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, b.translate(err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, b.translate(err)
	}

	set := &core.RowSet{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		if limit > 0 && len(set.Rows) >= limit {
			set.Truncated = true
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, b.translate(err)
		}
		for i, v := range vals {
			vals[i] = b.normalize(v)
		}
		set.Rows = append(set.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, b.translate(err)
	}

	return set, nil
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQLAdapter) IsConnected() bool {
	return b.DB != nil
}

func (b *BaseSQLAdapter) translate(err error) error {
	if b.TranslateError != nil {
		return b.TranslateError(err)
	}
	return &core.EngineError{Message: err.Error(), Err: err}
}

func (b *BaseSQLAdapter) normalize(v any) any {
	v = normalizeValue(v)
	if b.ConvertValue != nil {
		return b.ConvertValue(v)
	}
	return v
}

// normalizeValue converts driver byte slices to strings so rows render and
// marshal as text.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
