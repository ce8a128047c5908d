// Package mysql provides a MySQL read-only adapter.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/leapstack-labs/retailsql/pkg/adapter"
	"github.com/leapstack-labs/retailsql/pkg/core"
)

// MySQL error numbers that mean the statement was stopped before finishing.
const (
	errQueryInterrupted = 1317
	errQueryTimeout     = 3024
)

// Params holds MySQL pool settings.
type Params struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// Adapter implements core.Adapter for MySQL.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new MySQL adapter instance.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{
			Logger:         logger,
			TxOptions:      sql.TxOptions{ReadOnly: true},
			TranslateError: translateError,
		},
	}
}

// DialectName returns the SQL dialect for this adapter.
func (a *Adapter) DialectName() string {
	return "mysql"
}

// Placeholder returns the ? parameter style.
func (a *Adapter) Placeholder() core.PlaceholderStyle {
	return core.PlaceholderQuestion
}

// Connect opens a MySQL connection pool.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	var params Params
	if err := adapter.DecodeParams(cfg.Params, &params); err != nil {
		return err
	}

	mc, err := driverConfig(cfg, params)
	if err != nil {
		return err
	}

	a.Logger.Debug("connecting to mysql", slog.String("addr", mc.Addr), slog.String("database", mc.DBName))

	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return fmt.Errorf("failed to create mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	if params.MaxOpenConns > 0 {
		db.SetMaxOpenConns(params.MaxOpenConns)
	}
	if params.MaxIdleConns > 0 {
		db.SetMaxIdleConns(params.MaxIdleConns)
	}
	if params.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(params.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping mysql: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// driverConfig builds the driver configuration from a DSN or from discrete
// target fields.
func driverConfig(cfg adapter.Config, params Params) (*mysql.Config, error) {
	var mc *mysql.Config
	if cfg.URL != "" {
		parsed, err := mysql.ParseDSN(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid mysql DSN: %w", err)
		}
		mc = parsed
	} else {
		host := cfg.Host
		if host == "" {
			host = "localhost"
		}
		port := cfg.Port
		if port == 0 {
			port = 3306
		}
		mc = mysql.NewConfig()
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(host, strconv.Itoa(port))
		mc.User = cfg.Username
		mc.Passwd = cfg.Password
		mc.DBName = cfg.Database
	}
	mc.ParseTime = true
	// One statement per call, prepared on the server, and no client files.
	mc.MultiStatements = false
	mc.InterpolateParams = false
	mc.AllowAllFiles = false
	if params.Timeout > 0 {
		mc.Timeout = params.Timeout
	}
	return mc, nil
}

func translateError(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return &core.EngineError{
			Message: myErr.Message,
			Code:    string(myErr.SQLState[:]),
			Timeout: myErr.Number == errQueryTimeout || myErr.Number == errQueryInterrupted,
			Err:     err,
		}
	}
	return &core.EngineError{Message: err.Error(), Err: err}
}
