package sqltap

import (
	"context"
	"log/slog"
	"regexp"
	"time"
)

// Default thresholds and truncation, matching the tiers the library has
// always used: queries over a second are notable, over five seconds they
// warrant a warning, and the mini mode shows the first 40 characters.
const (
	DefaultSlowThreshold = 1 * time.Second
	DefaultWarnThreshold = 5 * time.Second
	DefaultTruncateLen   = 40
)

// NormalizeFunc rewrites statement text for display (e.g. replacing
// literals with placeholders). It affects only the logged copy, never the
// statement forwarded to the wrapped connection.
type NormalizeFunc func(sql string) (string, error)

// FingerprintFunc computes a stable identifier for a statement's shape.
type FingerprintFunc func(sql string) (string, error)

// Observer holds the immutable logging configuration and sinks shared by
// any number of wrapped connections. It keeps no per-query state, so a
// single Observer may be attached to every connection of a pool without
// synchronization.
type Observer struct {
	logger      *slog.Logger
	mode        Mode
	slow        time.Duration
	warn        time.Duration
	truncateLen int
	inst        Instrumentation
	auditor     Auditor
	ignore      []*regexp.Regexp
	normalize   NormalizeFunc
	fingerprint FingerprintFunc
}

// Option configures an Observer at construction time.
type Option func(*Observer)

// WithMode sets the log mode. The default is ModeStandard.
func WithMode(m Mode) Option {
	return func(o *Observer) { o.mode = m }
}

// WithThresholds sets the slow and warn durations. In ModeStandard a query
// at or above slow logs at info and at or above warn logs at warn.
func WithThresholds(slow, warn time.Duration) Option {
	return func(o *Observer) {
		o.slow = slow
		o.warn = warn
	}
}

// WithTruncateLen sets the statement prefix length used by ModeExcessiveMini.
func WithTruncateLen(n int) Option {
	return func(o *Observer) {
		if n > 0 {
			o.truncateLen = n
		}
	}
}

// WithInstrumentation attaches a metrics sink.
func WithInstrumentation(inst Instrumentation) Option {
	return func(o *Observer) {
		if inst != nil {
			o.inst = inst
		}
	}
}

// WithAuditor attaches an audit sink.
func WithAuditor(a Auditor) Option {
	return func(o *Observer) {
		if a != nil {
			o.auditor = a
		}
	}
}

// WithIgnore suppresses log and audit output for statements matching any
// of the given patterns. Metrics are still recorded.
func WithIgnore(patterns ...*regexp.Regexp) Option {
	return func(o *Observer) { o.ignore = append(o.ignore, patterns...) }
}

// WithNormalizer rewrites the logged statement text, typically to redact
// literal values.
func WithNormalizer(fn NormalizeFunc) Option {
	return func(o *Observer) { o.normalize = fn }
}

// WithFingerprinter adds a statement fingerprint to log and audit output.
func WithFingerprinter(fn FingerprintFunc) Option {
	return func(o *Observer) { o.fingerprint = fn }
}

// NewObserver builds an Observer logging through logger. A nil logger
// falls back to slog.Default(). Construction never fails.
func NewObserver(logger *slog.Logger, opts ...Option) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Observer{
		logger:      logger,
		mode:        ModeStandard,
		slow:        DefaultSlowThreshold,
		warn:        DefaultWarnThreshold,
		truncateLen: DefaultTruncateLen,
		inst:        NoopInstrumentation{},
		auditor:     NoopAuditor{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Enabled reports whether observations produce any output. Adapters use it
// to skip timing entirely when the mode is ModeNoLog.
func (o *Observer) Enabled() bool {
	return !o.mode.Silent()
}

// Mode returns the configured log mode.
func (o *Observer) Mode() Mode {
	return o.mode
}

// Observe emits at most one log line, one metrics observation, and one
// audit entry for rec. It never mutates rec's statement text beyond the
// logged copy and is safe for concurrent use.
func (o *Observer) Observe(ctx context.Context, rec Record) {
	if o.mode.Silent() {
		return
	}

	ms := durationMillis(rec.Duration)
	o.inst.RecordQueryDuration(ctx, ms)
	o.inst.IncrementQueryCount(ctx)
	if rec.Err != nil {
		o.inst.IncrementQueryErrors(ctx)
	}
	if rec.Duration >= o.slow {
		o.inst.IncrementSlowQueries(ctx)
	}

	if o.ignored(rec.SQL) {
		return
	}

	display := rec.SQL
	if o.normalize != nil {
		// Normalization failures (non-Postgres syntax, partial statements)
		// must never suppress the log line.
		if n, err := o.normalize(display); err == nil {
			display = n
		}
	}

	var fp string
	if o.fingerprint != nil {
		fp, _ = o.fingerprint(rec.SQL)
	}

	logged := display
	if o.mode == ModeExcessiveMini {
		logged = truncateRunes(logged, o.truncateLen)
	}

	level, msg := o.route(rec.Duration)

	attrs := make([]slog.Attr, 0, 7)
	attrs = append(attrs,
		slog.String("db.statement", logged),
		slog.Float64("duration_ms", ms),
		slog.Int("params", rec.Params),
	)
	if rec.HasRows {
		attrs = append(attrs, slog.Int64("rows", rec.Rows))
	}
	if fp != "" {
		attrs = append(attrs, slog.String("fingerprint", fp))
	}
	if rec.Err != nil {
		attrs = append(attrs, slog.String("error", rec.Err.Error()))
	}
	o.logger.LogAttrs(ctx, level, msg, attrs...)

	o.auditor.Record(ctx, AuditEntry{
		SQL:         display,
		Fingerprint: fp,
		Params:      rec.Params,
		Duration:    rec.Duration,
		Rows:        rec.Rows,
		HasRows:     rec.HasRows,
		Err:         rec.Err,
	})
}

// route picks the level and message for a given elapsed duration.
func (o *Observer) route(d time.Duration) (slog.Level, string) {
	slow := d >= o.slow
	switch o.mode {
	case ModeVerbose:
		if slow {
			return slog.LevelWarn, "slow query"
		}
		return slog.LevelWarn, "query"
	case ModeExcessive, ModeExcessiveMini:
		if slow {
			return slog.LevelInfo, "slow query"
		}
		return slog.LevelInfo, "query"
	default: // ModeStandard
		if d >= o.warn {
			return slog.LevelWarn, "slow query"
		}
		if slow {
			return slog.LevelInfo, "slow query"
		}
		return slog.LevelDebug, "query"
	}
}

func (o *Observer) ignored(sql string) bool {
	for _, re := range o.ignore {
		if re.MatchString(sql) {
			return true
		}
	}
	return false
}

func durationMillis(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}

// truncateRunes shortens s to its first n runes. Truncation is by rune, not
// byte, so multi-byte statement text is never cut mid-character.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
