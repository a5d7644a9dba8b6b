package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/guillermoBallester/sqltap"
	"github.com/guillermoBallester/sqltap/audit"
	"github.com/guillermoBallester/sqltap/rules"
	"github.com/guillermoBallester/sqltap/telemetry"
)

const serviceName = "sqltap"

var version = "dev"

// Build assembles an Observer and its collaborators (rules, audit sink,
// OTel instruments) from cfg. The returned shutdown function closes the
// audit file and flushes telemetry; it is safe to call once regardless of
// which collaborators were enabled.
func Build(ctx context.Context, cfg *Config, logger *slog.Logger) (*sqltap.Observer, func(context.Context) error, error) {
	opts := []sqltap.Option{
		sqltap.WithMode(cfg.Mode),
		sqltap.WithThresholds(cfg.SlowThreshold, cfg.WarnThreshold),
		sqltap.WithTruncateLen(cfg.TruncateLen),
	}

	// Rules apply after env/override thresholds so the file wins; a rule
	// that sets only one threshold keeps the config value for the other.
	if cfg.RulesFile != "" {
		r, err := rules.LoadFromFile(cfg.RulesFile)
		if err != nil {
			return nil, nil, fmt.Errorf("loading rules: %w", err)
		}
		ruleOpts, err := r.Options(cfg.SlowThreshold, cfg.WarnThreshold)
		if err != nil {
			return nil, nil, fmt.Errorf("applying rules: %w", err)
		}
		opts = append(opts, ruleOpts...)
	}

	var auditor *audit.FileAuditor
	if cfg.AuditLog != "" {
		var err error
		auditor, err = audit.NewFileAuditor(cfg.AuditLog)
		if err != nil {
			return nil, nil, fmt.Errorf("opening audit log: %w", err)
		}
		opts = append(opts, sqltap.WithAuditor(auditor))
	}

	var provider *telemetry.Provider
	if cfg.OTelEnabled {
		var err error
		provider, err = telemetry.Init(ctx, serviceName, version)
		if err != nil {
			if auditor != nil {
				_ = auditor.Close()
			}
			return nil, nil, fmt.Errorf("initializing telemetry: %w", err)
		}
		opts = append(opts, sqltap.WithInstrumentation(telemetry.NewInstruments()))
	}

	obs := sqltap.NewObserver(logger, opts...)

	shutdown := func(ctx context.Context) error {
		var firstErr error
		if auditor != nil {
			if err := auditor.Close(); err != nil {
				firstErr = err
			}
		}
		if err := provider.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		return firstErr
	}

	return obs, shutdown, nil
}
