// Package postgres provides the PostgreSQL read-only adapter.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/leapstack-labs/retailsql/pkg/adapter"
	"github.com/leapstack-labs/retailsql/pkg/core"
)

// sqlstateQueryCanceled is raised for statement_timeout and explicit cancels.
const sqlstateQueryCanceled = "57014"

// Params holds PostgreSQL pool settings.
// Parsed from adapter.Config.Params using mapstructure.
type Params struct {
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConns        int32         `mapstructure:"max_conns"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	ApplicationName string        `mapstructure:"application_name"`
}

// Adapter implements core.Adapter for PostgreSQL.
type Adapter struct {
	adapter.BaseSQLAdapter
	pool *pgxpool.Pool
}

// New creates a new PostgreSQL adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{
			Logger:         logger,
			TxOptions:      sql.TxOptions{ReadOnly: true},
			Prelude:        statementTimeoutPrelude,
			TranslateError: translateError,
		},
	}
}

// DialectName returns the SQL dialect for this adapter.
func (a *Adapter) DialectName() string {
	return "postgres"
}

// Placeholder returns the $N parameter style.
func (a *Adapter) Placeholder() core.PlaceholderStyle {
	return core.PlaceholderDollar
}

// Connect opens a pgx connection pool and exposes it through database/sql.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return err
	}

	a.Logger.Debug("connecting to postgres",
		slog.String("host", poolCfg.ConnConfig.Host),
		slog.String("database", poolCfg.ConnConfig.Database),
		slog.Int("max_conns", int(poolCfg.MaxConns)))

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("failed to open postgres pool: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		pool.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	a.DB = db
	a.pool = pool
	a.Cfg = cfg
	return nil
}

// Close closes the database handle and the underlying pool.
func (a *Adapter) Close() error {
	err := a.BaseSQLAdapter.Close()
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	a.DB = nil
	return err
}

// poolConfig builds the pool configuration. Every session defaults to
// read-only on top of the read-only transaction opened per statement.
func poolConfig(cfg adapter.Config) (*pgxpool.Config, error) {
	var params Params
	if err := adapter.DecodeParams(cfg.Params, &params); err != nil {
		return nil, err
	}

	dsn := cfg.URL
	if dsn == "" {
		dsn = buildPostgresDSN(cfg)
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres connection string: %w", err)
	}

	if params.MinConns > 0 {
		poolCfg.MinConns = params.MinConns
	}
	if params.MaxConns > 0 {
		poolCfg.MaxConns = params.MaxConns
	}
	if poolCfg.MinConns > poolCfg.MaxConns {
		return nil, fmt.Errorf("min_conns (%d) exceeds max_conns (%d)", poolCfg.MinConns, poolCfg.MaxConns)
	}
	if params.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = params.ConnectTimeout
	}

	rp := poolCfg.ConnConfig.RuntimeParams
	rp["default_transaction_read_only"] = "on"
	if params.ApplicationName != "" {
		rp["application_name"] = params.ApplicationName
	}
	if cfg.Schema != "" {
		rp["search_path"] = cfg.Schema
	}

	return poolCfg, nil
}

// buildPostgresDSN constructs a key=value PostgreSQL connection string.
func buildPostgresDSN(cfg adapter.Config) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}

	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	sslmode := "disable"
	if cfg.Options != nil {
		if mode, ok := cfg.Options["sslmode"]; ok {
			sslmode = mode
		}
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s",
		dsnValue(host), port, dsnValue(cfg.Database), dsnValue(sslmode))

	if cfg.Username != "" {
		dsn += " user=" + dsnValue(cfg.Username)
	}
	if cfg.Password != "" {
		dsn += " password=" + dsnValue(cfg.Password)
	}

	return dsn
}

// dsnValue quotes a connection string value when it contains characters
// that would otherwise end it.
func dsnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// statementTimeoutPrelude mirrors the context deadline into the server-side
// statement_timeout for the current transaction only.
func statementTimeoutPrelude(ctx context.Context, tx *sql.Tx) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		return nil
	}
	ms := time.Until(deadline).Milliseconds()
	if ms < 1 {
		ms = 1
	}
	_, err := tx.ExecContext(ctx, "SELECT set_config('statement_timeout', $1, true)", strconv.FormatInt(ms, 10))
	return err
}

// translateError keeps the primary message and SQLSTATE of a server error
// and drops DETAIL, HINT and WHERE, which can echo row or parameter data.
func translateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &core.EngineError{
			Message: pgErr.Message,
			Code:    pgErr.Code,
			Timeout: pgErr.Code == sqlstateQueryCanceled,
			Err:     err,
		}
	}
	if pgconn.Timeout(err) {
		return &core.EngineError{Message: "statement cancelled", Timeout: true, Err: err}
	}
	return &core.EngineError{Message: err.Error(), Err: err}
}
