package rules

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

// captureHandler records every slog entry at or above its minimum level.
type captureHandler struct {
	mu      sync.Mutex
	min     slog.Level
	records []slog.Record
}

func newCapture(min slog.Level) *captureHandler {
	return &captureHandler{min: min}
}

func (h *captureHandler) Enabled(_ context.Context, l slog.Level) bool { return l >= h.min }

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

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFromFile_Full(t *testing.T) {
	t.Parallel()

	path := writeRules(t, `
slow_threshold: 250ms
warn_threshold: 2s
normalize: true
ignore:
  - '^SELECT 1$'
  - 'pg_catalog'
`)

	r, err := LoadFromFile(path)
	require.NoError(t, err)

	require.NotNil(t, r.SlowThreshold)
	assert.Equal(t, 250*time.Millisecond, time.Duration(*r.SlowThreshold))
	require.NotNil(t, r.WarnThreshold)
	assert.Equal(t, 2*time.Second, time.Duration(*r.WarnThreshold))
	assert.True(t, r.Normalize)
	require.Len(t, r.IgnorePatterns(), 2)
	assert.True(t, r.IgnorePatterns()[0].MatchString("SELECT 1"))
	assert.False(t, r.IgnorePatterns()[0].MatchString("SELECT 12"))
}

func TestLoadFromFile_Empty(t *testing.T) {
	t.Parallel()

	r, err := LoadFromFile(writeRules(t, ""))
	require.NoError(t, err)
	assert.Nil(t, r.SlowThreshold)
	assert.Nil(t, r.WarnThreshold)
	assert.False(t, r.Normalize)
	assert.Empty(t, r.IgnorePatterns())

	opts, err := r.Options(sqltap.DefaultSlowThreshold, sqltap.DefaultWarnThreshold)
	require.NoError(t, err)
	assert.Empty(t, opts)
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadFromFile("/nonexistent/rules.yaml")
	require.Error(t, err)
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	t.Parallel()

	_, err := LoadFromFile(writeRules(t, "slow_threshold: [nope"))
	require.Error(t, err)
}

func TestLoadFromFile_InvalidDuration(t *testing.T) {
	t.Parallel()

	_, err := LoadFromFile(writeRules(t, "slow_threshold: fast"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fast")
}

func TestLoadFromFile_InvalidIgnorePattern(t *testing.T) {
	t.Parallel()

	_, err := LoadFromFile(writeRules(t, "ignore:\n  - '['\n"))
	require.Error(t, err)
}

func TestLoadFromFile_WarnBelowSlow(t *testing.T) {
	t.Parallel()

	_, err := LoadFromFile(writeRules(t, "slow_threshold: 2s\nwarn_threshold: 1s\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "warn_threshold")
}

func TestOptions_MergesOntoBaseThresholds(t *testing.T) {
	t.Parallel()

	r, err := LoadFromFile(writeRules(t, "slow_threshold: 250ms\n"))
	require.NoError(t, err)

	// The caller already resolved warn to 10s; the file only lowers slow.
	opts, err := r.Options(time.Second, 10*time.Second)
	require.NoError(t, err)
	require.Len(t, opts, 1)

	h := newCapture(slog.LevelDebug)
	obs := sqltap.NewObserver(slog.New(h),
		append([]sqltap.Option{sqltap.WithMode(sqltap.ModeStandard)}, opts...)...)
	obs.Observe(context.Background(), sqltap.Record{
		SQL:      "SELECT pg_sleep(6)",
		Start:    time.Now().Add(-6 * time.Second),
		Duration: 6 * time.Second,
	})

	recs := h.all()
	require.Len(t, recs, 1)
	assert.Equal(t, slog.LevelInfo, recs[0].Level,
		"6s is past the file's 250ms slow threshold but below the caller's 10s warn threshold")
}

func TestOptions_MergedInversionRejected(t *testing.T) {
	t.Parallel()

	// Valid on its own, but inverts ordering against the caller's slow value.
	r, err := LoadFromFile(writeRules(t, "warn_threshold: 500ms\n"))
	require.NoError(t, err)

	_, err = r.Options(time.Second, 5*time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "warn_threshold")
}

func TestOptions_NormalizeAddsRewriters(t *testing.T) {
	t.Parallel()

	r, err := LoadFromFile(writeRules(t, "normalize: true\n"))
	require.NoError(t, err)

	// thresholds unset, no ignore: normalizer + fingerprinter only.
	opts, err := r.Options(sqltap.DefaultSlowThreshold, sqltap.DefaultWarnThreshold)
	require.NoError(t, err)
	assert.Len(t, opts, 2)
}
