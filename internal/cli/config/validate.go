package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/leapstack-labs/retailsql/pkg/adapter"
)

// ApplyTargetDefaults fills in the target type and port. A postgres URL
// implies the postgres adapter; with nothing configured the target is an
// in-memory DuckDB.
func ApplyTargetDefaults(t *TargetConfig) {
	if t == nil {
		return
	}
	t.Type = adapter.Canonical(t.Type)
	if t.Type == "" {
		switch {
		case strings.HasPrefix(t.URL, "postgres://"), strings.HasPrefix(t.URL, "postgresql://"):
			t.Type = "postgres"
		default:
			t.Type = "duckdb"
		}
	}

	if t.URL == "" && t.Host != "" && t.Port == 0 {
		switch t.Type {
		case "postgres":
			t.Port = 5432
		case "mysql":
			t.Port = 3306
		}
	}
}

// ValidateTarget checks that the target names a registered adapter and
// carries enough to connect.
func ValidateTarget(t *TargetConfig) error {
	if t == nil {
		return errors.New("target is required")
	}
	if t.Type == "" {
		return errors.New("target type is required")
	}
	if !adapter.IsRegistered(t.Type) {
		return &adapter.UnknownAdapterError{Type: t.Type, Available: adapter.ListAdapters()}
	}
	if !isFileTarget(t.Type) && t.URL == "" && t.Host == "" {
		return fmt.Errorf("%s target needs target.url (or DATABASE_URL) or target.host", t.Type)
	}
	return nil
}

var outputModes = []string{"auto", "text", "markdown", "md", "json"}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if err := ValidateTarget(c.Target); err != nil {
		return fmt.Errorf("invalid target configuration: %w", err)
	}
	if c.Query.Timeout <= 0 {
		return fmt.Errorf("query.timeout must be positive, got %s", c.Query.Timeout)
	}
	if c.Query.MaxRows < 0 {
		return fmt.Errorf("query.max_rows must not be negative, got %d", c.Query.MaxRows)
	}
	if err := c.Quality.Validate(); err != nil {
		return err
	}
	if c.Audit.Enabled && c.Audit.Path == "" {
		return errors.New("audit.path is required when audit is enabled")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return fmt.Errorf("invalid log.level %q", c.Log.Level)
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		return fmt.Errorf("invalid log.format %q (want text or json)", c.Log.Format)
	}
	if !slices.Contains(outputModes, strings.ToLower(c.OutputFormat)) {
		return fmt.Errorf("invalid output %q (want one of %s)", c.OutputFormat, strings.Join(outputModes, ", "))
	}
	return nil
}
