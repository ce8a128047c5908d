// Package config loads retailsql configuration.
//
// Values are layered: built-in defaults, then retailsql.yaml, then the
// legacy DATABASE_URL / DB_POOL_* variables, then RETAILSQL_* variables,
// then flags that were explicitly set.
package config

import (
	"strings"
	"time"

	"github.com/leapstack-labs/retailsql/pkg/analytics"
	"github.com/leapstack-labs/retailsql/pkg/core"
)

// Config holds all CLI configuration options.
type Config struct {
	Target       *TargetConfig           `koanf:"target"`
	Query        QueryConfig             `koanf:"query"`
	Audit        AuditConfig             `koanf:"audit"`
	Quality      analytics.QualityConfig `koanf:"quality"`
	Server       ServerConfig            `koanf:"server"`
	Log          LogConfig               `koanf:"log"`
	TemplatesDir string                  `koanf:"templates_dir"`
	OutputFormat string                  `koanf:"output"`
	Verbose      bool                    `koanf:"verbose"`
	Environment  string                  `koanf:"environment"`
	Environments map[string]EnvConfig    `koanf:"environments"`
	ProjectRoot  string                  `koanf:"-"`
}

// TargetConfig describes the store to connect to.
type TargetConfig struct {
	Type     string            `koanf:"type"`
	URL      string            `koanf:"url"`
	Database string            `koanf:"database"`
	Host     string            `koanf:"host"`
	Port     int               `koanf:"port"`
	User     string            `koanf:"user"`
	Password string            `koanf:"password"`
	Schema   string            `koanf:"schema"`
	Options  map[string]string `koanf:"options"`
	Params   map[string]any    `koanf:"params"`
}

// AdapterConfig converts the target into the adapter's connection settings.
func (t *TargetConfig) AdapterConfig() core.AdapterConfig {
	cfg := core.AdapterConfig{
		Type:     strings.ToLower(t.Type),
		URL:      t.URL,
		Host:     t.Host,
		Port:     t.Port,
		Database: t.Database,
		Username: t.User,
		Password: t.Password,
		Schema:   t.Schema,
		Options:  t.Options,
		Params:   t.Params,
	}
	if isFileTarget(cfg.Type) {
		cfg.Path = t.Database
	}
	return cfg
}

// QueryConfig holds gateway limits.
type QueryConfig struct {
	Timeout time.Duration `koanf:"timeout"`
	MaxRows int           `koanf:"max_rows"`
}

// AuditConfig controls the execution history store.
type AuditConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr  string `koanf:"addr"`
	Watch bool   `koanf:"watch"`
}

// LogConfig selects the log level and handler.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// EnvConfig holds environment-specific overrides.
type EnvConfig struct {
	Target *TargetConfig `koanf:"target"`
}

// Default configuration values.
const (
	DefaultAuditPath  = ".retailsql/audit.db"
	DefaultServerAddr = ":8080"
	DefaultOutput     = "auto" // TTY=text, non-TTY=markdown
	DefaultLogLevel   = "warn"
	DefaultLogFormat  = "text"
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRows    = 5000
)

func isFileTarget(typ string) bool {
	return typ == "duckdb" || typ == "sqlite"
}
