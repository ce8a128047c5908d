// Package duckdb provides a DuckDB read-only adapter, useful for running the
// gateway against an exported snapshot of the sales dataset.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"github.com/marcboeker/go-duckdb"
	"github.com/shopspring/decimal"

	"github.com/leapstack-labs/retailsql/pkg/adapter"
	"github.com/leapstack-labs/retailsql/pkg/core"
)

// Params holds the duckdb entries of target.params.
type Params struct {
	// Settings are passed as database configuration at open time
	// (threads, memory_limit). access_mode is always READ_ONLY.
	Settings map[string]string `mapstructure:"settings"`
}

// Adapter implements core.Adapter for DuckDB.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new DuckDB adapter instance.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	// Read-only is enforced by opening the database file with
	// access_mode=READ_ONLY; the driver has no read-only transactions.
	return &Adapter{BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger, ConvertValue: convertValue}}
}

// convertValue turns DECIMAL columns into decimal.Decimal. The driver
// returns duckdb.Decimal by value while its String and Float64 methods sit
// on the pointer, so the raw value neither renders nor scans as a number.
func convertValue(v any) any {
	switch x := v.(type) {
	case duckdb.Decimal:
		if x.Value == nil {
			return nil
		}
		return decimal.NewFromBigInt(x.Value, -int32(x.Scale))
	case *duckdb.Decimal:
		if x == nil || x.Value == nil {
			return nil
		}
		return decimal.NewFromBigInt(x.Value, -int32(x.Scale))
	}
	return v
}

// DialectName returns the SQL dialect for this adapter.
func (a *Adapter) DialectName() string {
	return "duckdb"
}

// Placeholder returns the $N parameter style.
func (a *Adapter) Placeholder() core.PlaceholderStyle {
	return core.PlaceholderDollar
}

// Connect opens the database file in read-only access mode.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	dsn, err := buildDSN(cfg)
	if err != nil {
		return err
	}

	a.Logger.Debug("connecting to duckdb", slog.String("path", pathOf(cfg)))

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

func pathOf(cfg adapter.Config) string {
	if cfg.Path != "" {
		return cfg.Path
	}
	return cfg.Database
}

// buildDSN renders path?access_mode=READ_ONLY plus any configured settings.
// An in-memory database cannot be opened read-only, so a file is required.
func buildDSN(cfg adapter.Config) (string, error) {
	path := pathOf(cfg)
	if path == "" || path == ":memory:" {
		return "", fmt.Errorf("duckdb target requires a database file path")
	}

	var params Params
	if err := adapter.DecodeParams(cfg.Params, &params); err != nil {
		return "", err
	}

	keys := make([]string, 0, len(params.Settings))
	for k := range params.Settings {
		if strings.EqualFold(k, "access_mode") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	q := make([]string, 0, len(keys)+1)
	q = append(q, "access_mode=READ_ONLY")
	for _, k := range keys {
		q = append(q, url.QueryEscape(k)+"="+url.QueryEscape(params.Settings[k]))
	}
	return path + "?" + strings.Join(q, "&"), nil
}
