package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// loggerKey is used to store logger in context.
type loggerKey struct{}

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "RETAILSQL_"

var configFileNames = []string{"retailsql.yaml", "retailsql.yml"}

// Sections whose keys are nested one level; RETAILSQL_QUERY_MAX_ROWS is
// query.max_rows, RETAILSQL_TEMPLATES_DIR stays templates_dir.
var envSections = []string{"target", "query", "audit", "quality", "server", "log"}

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config
)

// configExistsIn checks if a retailsql config file exists in the directory.
func configExistsIn(dir string) string {
	for _, name := range configFileNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// findProjectRootUpward searches upward from startDir for a config file.
func findProjectRootUpward(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if configExistsIn(dir) != "" {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// inferProjectRoot is the directory of an explicit config file, else the
// nearest directory upward holding one, else the working directory.
func inferProjectRoot(cfgFile string) string {
	if cfgFile != "" {
		if abs, err := filepath.Abs(cfgFile); err == nil {
			return filepath.Dir(abs)
		}
	}
	cwd, err := os.Getwd()
	if err != nil || cwd == "" {
		return "."
	}
	if root := findProjectRootUpward(cwd); root != "" {
		return root
	}
	return cwd
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// defaults is the lowest configuration layer.
func defaults() map[string]any {
	return map[string]any{
		"query.timeout":               DefaultTimeout.String(),
		"query.max_rows":              DefaultMaxRows,
		"audit.enabled":               true,
		"audit.path":                  DefaultAuditPath,
		"quality.min_rows_per_day":    100.0,
		"quality.null_rate_threshold": 0.05,
		"quality.required_columns":    []string{"customer_id", "country"},
		"server.addr":                 DefaultServerAddr,
		"server.watch":                false,
		"log.level":                   DefaultLogLevel,
		"log.format":                  DefaultLogFormat,
		"output":                      DefaultOutput,
		"verbose":                     false,
	}
}

// loadDotEnv loads .env.local then .env from dir. Variables already in the
// environment win, and .env.local wins over .env.
func loadDotEnv(dir string) error {
	for _, name := range []string{".env.local", ".env"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// legacyEnv maps the variables deployments already set onto config keys.
func legacyEnv() (map[string]any, error) {
	out := map[string]any{}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		out["target.url"] = url
	}
	if v := os.Getenv("DB_POOL_TIMEOUT"); v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil || secs <= 0 {
			return nil, fmt.Errorf("DB_POOL_TIMEOUT must be a positive number of seconds, got %q", v)
		}
		out["query.timeout"] = time.Duration(secs * float64(time.Second)).String()
	}
	return out, nil
}

// envKey turns RETAILSQL_QUERY_MAX_ROWS into query.max_rows.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, section := range envSections {
		if strings.HasPrefix(key, section+"_") {
			return section + "." + strings.TrimPrefix(key, section+"_")
		}
	}
	return key
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	return LoadConfigWithTarget(cfgFile, "", flags)
}

// LoadConfigWithTarget loads configuration with an optional environment
// override selecting which environments.<name>.target to merge.
func LoadConfigWithTarget(cfgFile string, targetOverride string, flags *pflag.FlagSet) (*Config, error) {
	k = koanf.New(".")

	projectRoot := inferProjectRoot(cfgFile)

	// Flag paths are relative to the working directory, not the project.
	var flagAuditPath, flagDatabase, flagTemplatesDir string
	if flags != nil {
		flagAuditPath = absFlag(flags, "audit-path")
		flagDatabase = absFlag(flags, "database")
		flagTemplatesDir = absFlag(flags, "templates-dir")
	}

	if err := loadDotEnv(projectRoot); err != nil {
		return nil, err
	}

	// 1. Defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	if cfgFile == "" {
		cfgFile = configExistsIn(projectRoot)
	}
	configFileUsed = cfgFile
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. DATABASE_URL and DB_POOL_TIMEOUT
	legacy, err := legacyEnv()
	if err != nil {
		return nil, err
	}
	if err := k.Load(confmap.Provider(legacy, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load legacy env vars: %w", err)
	}

	// 4. RETAILSQL_ environment variables
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 5. Flags, only those explicitly set
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			// --no-audit is the negation of audit.enabled.
			if f.Name == "no-audit" {
				return "audit.enabled", f.Value.String() != "true"
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				// Command-local flags such as --format are not config.
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ProjectRoot = projectRoot

	envForTarget := cfg.Environment
	if targetOverride != "" {
		envForTarget = targetOverride
	}
	if envForTarget != "" {
		// An unknown environment keeps the base target.
		if envCfg, ok := cfg.Environments[envForTarget]; ok && envCfg.Target != nil {
			cfg.Target = MergeTargetConfig(cfg.Target, envCfg.Target)
		}
	}

	if cfg.Target == nil {
		cfg.Target = &TargetConfig{}
	}
	ApplyTargetDefaults(cfg.Target)
	applyPoolEnv(cfg.Target)
	expandTargetEnvVars(cfg.Target)

	if flagDatabase != "" {
		cfg.Target.Database = flagDatabase
	} else if isFileTarget(cfg.Target.Type) {
		cfg.Target.Database = resolvePathRelativeTo(cfg.Target.Database, projectRoot)
	}
	cfg.Audit.Path = pick(flagAuditPath, resolvePathRelativeTo(cfg.Audit.Path, projectRoot))
	cfg.TemplatesDir = pick(flagTemplatesDir, resolvePathRelativeTo(cfg.TemplatesDir, projectRoot))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	currentConfig = &cfg
	return &cfg, nil
}

// flagKeys maps the flags that override configuration onto their keys.
var flagKeys = map[string]string{
	"database":      "target.database",
	"url":           "target.url",
	"type":          "target.type",
	"audit-path":    "audit.path",
	"timeout":       "query.timeout",
	"max-rows":      "query.max_rows",
	"addr":          "server.addr",
	"watch":         "server.watch",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"templates-dir": "templates_dir",
	"output":        "output",
	"verbose":       "verbose",
}

func absFlag(flags *pflag.FlagSet, name string) string {
	f := flags.Lookup(name)
	if f == nil || !f.Changed {
		return ""
	}
	v := f.Value.String()
	if v == "" || v == ":memory:" {
		return v
	}
	if abs, err := filepath.Abs(v); err == nil {
		return abs
	}
	return v
}

func pick(first, second string) string {
	if first != "" {
		return first
	}
	return second
}

// applyPoolEnv maps DB_POOL_MIN and DB_POOL_MAX onto postgres pool params
// unless the params already set them.
func applyPoolEnv(t *TargetConfig) {
	if t.Type != "postgres" {
		return
	}
	for envName, key := range map[string]string{"DB_POOL_MIN": "min_conns", "DB_POOL_MAX": "max_conns"} {
		v := os.Getenv(envName)
		if v == "" {
			continue
		}
		if t.Params == nil {
			t.Params = map[string]any{}
		}
		if _, set := t.Params[key]; !set {
			t.Params[key] = v
		}
	}
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the currently loaded configuration.
func GetCurrentConfig() *Config {
	return currentConfig
}

// LoggerKey returns the context key used for storing the logger.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			return l
		}
	}
	return slog.New(slog.DiscardHandler)
}

// NewLogger builds the process logger from the log section.
func NewLogger(c LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return nil, fmt.Errorf("invalid log.level %q: %w", c.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(c.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("invalid log.format %q (want text or json)", c.Format)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})
}

// expandTargetEnvVars expands environment variables in sensitive target fields.
func expandTargetEnvVars(t *TargetConfig) {
	if t == nil {
		return
	}
	t.URL = expandEnvVars(t.URL)
	t.Password = expandEnvVars(t.Password)
	t.User = expandEnvVars(t.User)
	t.Host = expandEnvVars(t.Host)
	t.Database = expandEnvVars(t.Database)
}

// MergeTargetConfig merges two target configs, with override taking precedence.
func MergeTargetConfig(base, override *TargetConfig) *TargetConfig {
	if base == nil {
		return override
	}
	if override == nil {
		return base
	}

	merged := *base
	merged.Options = make(map[string]string, len(base.Options)+len(override.Options))
	merged.Params = make(map[string]any, len(base.Params)+len(override.Params))
	maps.Copy(merged.Options, base.Options)
	maps.Copy(merged.Params, base.Params)

	if override.Type != "" {
		merged.Type = override.Type
	}
	if override.URL != "" {
		merged.URL = override.URL
	}
	if override.Database != "" {
		merged.Database = override.Database
	}
	if override.Host != "" {
		merged.Host = override.Host
	}
	if override.Port != 0 {
		merged.Port = override.Port
	}
	if override.User != "" {
		merged.User = override.User
	}
	if override.Password != "" {
		merged.Password = override.Password
	}
	if override.Schema != "" {
		merged.Schema = override.Schema
	}
	maps.Copy(merged.Options, override.Options)
	maps.Copy(merged.Params, override.Params)

	return &merged
}
