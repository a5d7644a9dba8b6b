package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/guillermoBallester/sqltap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureHandler records every slog entry regardless of level.
type captureHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

func (h *captureHandler) all() []slog.Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]slog.Record(nil), h.records...)
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		sqltap.EnvLogMode,
		"SQLTAP_SLOW_THRESHOLD",
		"SQLTAP_WARN_THRESHOLD",
		"SQLTAP_TRUNCATE_LEN",
		"SQLTAP_LOG_LEVEL",
		"SQLTAP_AUDIT_LOG",
		"SQLTAP_RULES_FILE",
		"SQLTAP_OTEL_ENABLED",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(Overrides{})
	require.NoError(t, err)

	assert.Equal(t, sqltap.ModeNoLog, cfg.Mode)
	assert.Equal(t, sqltap.DefaultSlowThreshold, cfg.SlowThreshold)
	assert.Equal(t, sqltap.DefaultWarnThreshold, cfg.WarnThreshold)
	assert.Equal(t, sqltap.DefaultTruncateLen, cfg.TruncateLen)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.False(t, cfg.OTelEnabled)
}

func TestLoad_EnvVars(t *testing.T) {
	clearEnv(t)
	t.Setenv(sqltap.EnvLogMode, "standard")
	t.Setenv("SQLTAP_SLOW_THRESHOLD", "250ms")
	t.Setenv("SQLTAP_WARN_THRESHOLD", "2s")
	t.Setenv("SQLTAP_TRUNCATE_LEN", "80")
	t.Setenv("SQLTAP_LOG_LEVEL", "debug")
	t.Setenv("SQLTAP_AUDIT_LOG", "/tmp/queries.jsonl")
	t.Setenv("SQLTAP_OTEL_ENABLED", "true")

	cfg, err := Load(Overrides{})
	require.NoError(t, err)

	assert.Equal(t, sqltap.ModeStandard, cfg.Mode)
	assert.Equal(t, 250*time.Millisecond, cfg.SlowThreshold)
	assert.Equal(t, 2*time.Second, cfg.WarnThreshold)
	assert.Equal(t, 80, cfg.TruncateLen)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "/tmp/queries.jsonl", cfg.AuditLog)
	assert.True(t, cfg.OTelEnabled)
}

func TestLoad_InvalidMode(t *testing.T) {
	clearEnv(t)
	t.Setenv(sqltap.EnvLogMode, "shouty")

	_, err := Load(Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), sqltap.EnvLogMode)
}

func TestLoad_InvalidThreshold(t *testing.T) {
	clearEnv(t)
	t.Setenv("SQLTAP_SLOW_THRESHOLD", "soon")

	_, err := Load(Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SQLTAP_SLOW_THRESHOLD")
}

func TestLoad_InvalidTruncateLen(t *testing.T) {
	clearEnv(t)
	t.Setenv("SQLTAP_TRUNCATE_LEN", "-5")

	_, err := Load(Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SQLTAP_TRUNCATE_LEN")
}

func TestLoad_WarnBelowSlowRejected(t *testing.T) {
	clearEnv(t)
	t.Setenv("SQLTAP_SLOW_THRESHOLD", "5s")
	t.Setenv("SQLTAP_WARN_THRESHOLD", "1s")

	_, err := Load(Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SQLTAP_WARN_THRESHOLD")
}

func TestLoad_OverridesBeatEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(sqltap.EnvLogMode, "standard")
	t.Setenv("SQLTAP_SLOW_THRESHOLD", "1s")

	mode := "verbose"
	slow := 100 * time.Millisecond
	cfg, err := Load(Overrides{Mode: &mode, SlowThreshold: &slow})
	require.NoError(t, err)

	assert.Equal(t, sqltap.ModeVerbose, cfg.Mode)
	assert.Equal(t, 100*time.Millisecond, cfg.SlowThreshold)
}

func TestLoad_InvalidOverrideMode(t *testing.T) {
	clearEnv(t)

	mode := "everything"
	_, err := Load(Overrides{Mode: &mode})
	require.Error(t, err)
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	clearEnv(t)
	t.Setenv("SQLTAP_LOG_LEVEL", "chatty")

	_, err := Load(Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SQLTAP_LOG_LEVEL")
}

func TestBuild_Minimal(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(Overrides{})
	require.NoError(t, err)

	obs, shutdown, err := Build(context.Background(), cfg, slog.Default())
	require.NoError(t, err)
	require.NotNil(t, obs)
	assert.False(t, obs.Enabled(), "default config is silent")
	assert.NoError(t, shutdown(context.Background()))
}

func TestBuild_WithRulesAndAudit(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	rulesPath := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(rulesPath, []byte("slow_threshold: 50ms\nignore:\n  - '^SELECT 1$'\n"), 0644))

	mode := "standard"
	auditPath := filepath.Join(dir, "queries.jsonl")
	cfg, err := Load(Overrides{Mode: &mode, RulesFile: &rulesPath, AuditLog: &auditPath})
	require.NoError(t, err)

	obs, shutdown, err := Build(context.Background(), cfg, slog.Default())
	require.NoError(t, err)
	assert.True(t, obs.Enabled())
	assert.NoError(t, shutdown(context.Background()))

	_, err = os.Stat(auditPath)
	assert.NoError(t, err, "audit file is created eagerly")
}

func TestBuild_RulesKeepEnvWarnThreshold(t *testing.T) {
	clearEnv(t)
	t.Setenv(sqltap.EnvLogMode, "standard")
	t.Setenv("SQLTAP_WARN_THRESHOLD", "10s")

	rulesPath := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(rulesPath, []byte("slow_threshold: 250ms\n"), 0644))
	t.Setenv("SQLTAP_RULES_FILE", rulesPath)

	cfg, err := Load(Overrides{})
	require.NoError(t, err)

	h := &captureHandler{}
	obs, shutdown, err := Build(context.Background(), cfg, slog.New(h))
	require.NoError(t, err)
	defer func() { assert.NoError(t, shutdown(context.Background())) }()

	obs.Observe(context.Background(), sqltap.Record{
		SQL:      "SELECT pg_sleep(6)",
		Start:    time.Now().Add(-6 * time.Second),
		Duration: 6 * time.Second,
	})

	recs := h.all()
	require.Len(t, recs, 1)
	assert.Equal(t, slog.LevelInfo, recs[0].Level,
		"the rules file lowers slow to 250ms but must not reset the env warn threshold of 10s")
}

func TestBuild_RulesInvertingThresholdsRejected(t *testing.T) {
	clearEnv(t)

	// Valid file on its own, inverted against the default 1s slow threshold.
	rulesPath := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(rulesPath, []byte("warn_threshold: 500ms\n"), 0644))

	cfg, err := Load(Overrides{RulesFile: &rulesPath})
	require.NoError(t, err)

	_, _, err = Build(context.Background(), cfg, slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "warn_threshold")
}

func TestBuild_BadRulesFile(t *testing.T) {
	clearEnv(t)

	rulesPath := "/nonexistent/rules.yaml"
	cfg, err := Load(Overrides{RulesFile: &rulesPath})
	require.NoError(t, err)

	_, _, err = Build(context.Background(), cfg, slog.Default())
	require.Error(t, err)
}

func TestBuild_BadAuditPath(t *testing.T) {
	clearEnv(t)

	auditPath := "/nonexistent/dir/queries.jsonl"
	cfg, err := Load(Overrides{AuditLog: &auditPath})
	require.NoError(t, err)

	_, _, err = Build(context.Background(), cfg, slog.Default())
	require.Error(t, err)
}
