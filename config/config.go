// Package config loads sqltap's process-wide logging configuration from
// environment variables, applies explicit overrides, validates the result,
// and assembles a ready-to-use observer. Configuration is read once at
// wrap time and never mutated afterward.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/guillermoBallester/sqltap"
)

type Config struct {
	// Logging behavior.
	Mode          sqltap.Mode
	SlowThreshold time.Duration
	WarnThreshold time.Duration
	TruncateLen   int
	LogLevel      slog.Level

	// Sinks.
	AuditLog  string // path to NDJSON audit log file; empty disables auditing
	RulesFile string // optional path to rules YAML

	// Observability.
	OTelEnabled bool
}

// Overrides holds caller-supplied values that take precedence over
// environment variables. Pointer fields distinguish "not set" from zero
// values.
type Overrides struct {
	Mode          *string
	SlowThreshold *time.Duration
	WarnThreshold *time.Duration
	TruncateLen   *int
	LogLevel      *string
	AuditLog      *string
	RulesFile     *string
	OTelEnabled   bool
}

// Load builds a Config from environment variables, then applies overrides,
// then validates the result.
func Load(overrides Overrides) (*Config, error) {
	cfg := defaults()

	if err := loadEnvVars(cfg); err != nil {
		return nil, err
	}
	if err := applyOverrides(cfg, overrides); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaults returns a Config populated with default values. The default
// mode is nolog: a process with no configuration logs nothing.
func defaults() *Config {
	return &Config{
		Mode:          sqltap.ModeNoLog,
		SlowThreshold: sqltap.DefaultSlowThreshold,
		WarnThreshold: sqltap.DefaultWarnThreshold,
		TruncateLen:   sqltap.DefaultTruncateLen,
		LogLevel:      slog.LevelInfo,
	}
}

// loadEnvVars reads all supported environment variables into cfg.
func loadEnvVars(cfg *Config) error {
	if v := os.Getenv(sqltap.EnvLogMode); v != "" {
		mode, err := sqltap.ParseMode(v)
		if err != nil {
			return fmt.Errorf("invalid %s value: %w", sqltap.EnvLogMode, err)
		}
		cfg.Mode = mode
	}

	if v := os.Getenv("SQLTAP_SLOW_THRESHOLD"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SQLTAP_SLOW_THRESHOLD value %q: %w", v, err)
		}
		cfg.SlowThreshold = d
	}

	if v := os.Getenv("SQLTAP_WARN_THRESHOLD"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SQLTAP_WARN_THRESHOLD value %q: %w", v, err)
		}
		cfg.WarnThreshold = d
	}

	if v := os.Getenv("SQLTAP_TRUNCATE_LEN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid SQLTAP_TRUNCATE_LEN value %q: must be a positive integer", v)
		}
		cfg.TruncateLen = n
	}

	if v := os.Getenv("SQLTAP_LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}

	cfg.AuditLog = os.Getenv("SQLTAP_AUDIT_LOG")
	cfg.RulesFile = os.Getenv("SQLTAP_RULES_FILE")

	if v := os.Getenv("SQLTAP_OTEL_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SQLTAP_OTEL_ENABLED value %q: %w", v, err)
		}
		cfg.OTelEnabled = b
	}

	return nil
}

// applyOverrides applies caller-supplied values on top of the env-loaded
// config.
func applyOverrides(cfg *Config, o Overrides) error {
	if o.Mode != nil {
		mode, err := sqltap.ParseMode(*o.Mode)
		if err != nil {
			return err
		}
		cfg.Mode = mode
	}
	if o.SlowThreshold != nil {
		cfg.SlowThreshold = *o.SlowThreshold
	}
	if o.WarnThreshold != nil {
		cfg.WarnThreshold = *o.WarnThreshold
	}
	if o.TruncateLen != nil {
		if *o.TruncateLen <= 0 {
			return fmt.Errorf("invalid truncate length: must be a positive integer")
		}
		cfg.TruncateLen = *o.TruncateLen
	}
	if o.LogLevel != nil {
		level, err := parseLogLevel(*o.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}
	if o.AuditLog != nil {
		cfg.AuditLog = *o.AuditLog
	}
	if o.RulesFile != nil {
		cfg.RulesFile = *o.RulesFile
	}
	cfg.OTelEnabled = cfg.OTelEnabled || o.OTelEnabled

	return nil
}

// validate checks cross-field constraints on the final config.
func validate(cfg *Config) error {
	if cfg.SlowThreshold <= 0 {
		return fmt.Errorf("SQLTAP_SLOW_THRESHOLD must be positive")
	}
	if cfg.WarnThreshold < cfg.SlowThreshold {
		return fmt.Errorf("SQLTAP_WARN_THRESHOLD (%s) must not be below SQLTAP_SLOW_THRESHOLD (%s)",
			cfg.WarnThreshold, cfg.SlowThreshold)
	}
	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid SQLTAP_LOG_LEVEL value %q: must be debug, info, warn, or error", s)
	}
}
