// Package state persists the audit trail of executed statements in SQLite.
//
// The Store is a core.Sink: the gateway hands it one ExecutionRecord per
// executed statement and the CLI history command reads them back.
package state

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/leapstack-labs/retailsql/pkg/core"
)

// DefaultPath is where the audit database lives unless configured otherwise.
const DefaultPath = ".retailsql/audit.db"

// Execution is a persisted execution record.
type Execution struct {
	ID string `json:"id"`
	core.ExecutionRecord
}

// Store implements core.Sink on top of SQLite.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

var _ core.Sink = (*Store)(nil)

// NewStore creates a new audit store instance.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{logger: logger}
}

// Open opens the database at path, creating its directory, and runs the
// migrations. Use ":memory:" for an in-memory database.
func (s *Store) Open(path string) error {
	dsn := ":memory:"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create audit directory: %w", err)
			}
		}
		dsn = fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is its own database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path

	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		s.db = nil
		return err
	}
	s.logger.Debug("audit store opened", slog.String("path", path))
	return nil
}

// Path returns the path the store was opened with.
func (s *Store) Path() string { return s.path }

// Close closes the SQLite database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record persists rec. Failures are logged, never returned: the audit trail
// must not fail the statement it describes.
func (s *Store) Record(ctx context.Context, rec core.ExecutionRecord) {
	if _, err := s.Insert(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Warn("failed to record execution",
			slog.String("fingerprint", rec.Fingerprint),
			slog.String("error", err.Error()))
	}
}

// Insert persists rec and returns its generated ID.
func (s *Store) Insert(ctx context.Context, rec core.ExecutionRecord) (string, error) {
	if s.db == nil {
		return "", fmt.Errorf("database not opened")
	}

	id := generateID()
	var errMsg *string
	if rec.Error != "" {
		errMsg = &rec.Error
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (id, fingerprint, source, started_at, duration_ms, row_count, success, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, rec.Fingerprint, rec.Source, rec.StartedAt.UTC(), rec.Duration.Milliseconds(),
		rec.RowCount, rec.Success, errMsg,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert execution: %w", err)
	}
	return id, nil
}

// ListFilter narrows ListRecords.
type ListFilter struct {
	Limit       int // <= 0 means 50
	Fingerprint string
	FailedOnly  bool
}

// ListRecords returns the most recent executions first.
func (s *Store) ListRecords(ctx context.Context, f ListFilter) ([]Execution, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if f.Limit <= 0 {
		f.Limit = 50
	}

	query := `SELECT id, fingerprint, source, started_at, duration_ms, row_count, success, error
		FROM executions WHERE 1 = 1`
	var args []any
	if f.Fingerprint != "" {
		query += ` AND fingerprint = ?`
		args = append(args, f.Fingerprint)
	}
	if f.FailedOnly {
		query += ` AND success = 0`
	}
	query += ` ORDER BY started_at DESC, rowid DESC LIMIT ?`
	args = append(args, f.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		var (
			e          Execution
			durationMS int64
			errMsg     sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Fingerprint, &e.Source, &e.StartedAt, &durationMS,
			&e.RowCount, &e.Success, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.Error = errMsg.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	return out, nil
}

// Prune deletes executions that started before cutoff and returns how many
// were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database not opened")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM executions WHERE started_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune executions: %w", err)
	}
	return res.RowsAffected()
}

// generateID creates a new UUID.
func generateID() string {
	return uuid.New().String()
}
