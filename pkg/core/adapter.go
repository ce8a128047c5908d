package core

import (
	"context"
)

// PlaceholderStyle is the native positional parameter syntax of a store driver.
type PlaceholderStyle int

const (
	// PlaceholderDollar renders ordinal placeholders ($1, $2, ...).
	PlaceholderDollar PlaceholderStyle = iota
	// PlaceholderQuestion renders anonymous placeholders (?).
	PlaceholderQuestion
)

// Adapter is the read-only session boundary to the relational store.
// Implementations must enforce read-only semantics at the engine level and
// honour context cancellation.
type Adapter interface {
	// Connect establishes a pooled connection to the database.
	Connect(ctx context.Context, cfg AdapterConfig) error

	// Close closes the database connection and releases resources.
	Close() error

	// Ping runs a trivial statement to prove the store is reachable.
	Ping(ctx context.Context) error

	// QueryReadOnly runs stmt inside a read-only session that is always
	// rolled back. At most limit rows are collected when limit > 0.
	QueryReadOnly(ctx context.Context, stmt BoundStatement, limit int) (*RowSet, error)

	// DialectName identifies the SQL dialect (postgres, duckdb, sqlite, mysql).
	DialectName() string

	// Placeholder returns the driver's positional parameter style.
	Placeholder() PlaceholderStyle
}

// AdapterConfig holds configuration for connecting to a database.
type AdapterConfig struct {
	Type     string
	URL      string
	Path     string
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Schema   string
	Options  map[string]string
	Params   map[string]any
}

// RowSet is the raw output of a read-only session.
type RowSet struct {
	Columns   []string
	Rows      [][]any
	Truncated bool
}
