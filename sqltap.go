// Package sqltap wraps database connections so that every query execution
// is timed and, depending on the configured log mode and thresholds, a
// structured log line is emitted with the statement text, bound-parameter
// count, elapsed duration, and row count when the backend reports one.
//
// The decorator is transparent: results and errors from the wrapped
// connection are returned exactly as produced, and the statement and its
// parameters are forwarded unmodified. Failures are still observed (the
// attempted statement and elapsed time are logged with the error) before
// the error is returned to the caller.
//
// Wrapping an already-wrapped connection is allowed and produces one log
// line per layer — two wraps, two lines per execution. There is no
// deduplication.
//
// Backend adapters live in subpackages: pgxtap hooks into pgx via its
// tracer interface and also offers a generic decorator over any pgx-shaped
// Exec capability; stdlib wraps database/sql drivers so any registered
// backend can be observed.
package sqltap

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvLogMode is the environment variable read by ModeFromEnv.
const EnvLogMode = "SQLTAP_LOG_MODE"

// Mode determines how much query logging an Observer performs.
type Mode int

const (
	// ModeNoLog disables logging entirely. Adapters skip timing as well.
	ModeNoLog Mode = iota
	// ModeStandard logs every query at debug level and raises slow queries
	// to info or warn depending on the configured thresholds.
	ModeStandard
	// ModeVerbose logs every query at warn level.
	ModeVerbose
	// ModeExcessive logs every query at info level.
	ModeExcessive
	// ModeExcessiveMini behaves like ModeExcessive but truncates the
	// statement text to the configured prefix length.
	ModeExcessiveMini
)

var modeNames = map[Mode]string{
	ModeNoLog:         "nolog",
	ModeStandard:      "standard",
	ModeVerbose:       "verbose",
	ModeExcessive:     "excessive",
	ModeExcessiveMini: "excessive-mini",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "unknown"
}

// Silent reports whether the mode suppresses all logging.
func (m Mode) Silent() bool {
	return m == ModeNoLog
}

// ParseMode converts a mode name to a Mode. Unknown names are an error so
// that configuration typos surface instead of silently disabling logging.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nolog", "":
		return ModeNoLog, nil
	case "standard":
		return ModeStandard, nil
	case "verbose":
		return ModeVerbose, nil
	case "excessive":
		return ModeExcessive, nil
	case "excessive-mini":
		return ModeExcessiveMini, nil
	default:
		return ModeNoLog, &UnknownModeError{Name: s}
	}
}

// ModeFromEnv reads SQLTAP_LOG_MODE. Unset or unrecognized values mean
// ModeNoLog, so a process with no configuration logs nothing.
func ModeFromEnv() Mode {
	mode, err := ParseMode(os.Getenv(EnvLogMode))
	if err != nil {
		return ModeNoLog
	}
	return mode
}

// UnknownModeError reports an unrecognized log mode name.
type UnknownModeError struct {
	Name string
}

func (e *UnknownModeError) Error() string {
	return "unknown log mode " + strconv.Quote(e.Name) + " (allowed: nolog, standard, verbose, excessive, excessive-mini)"
}

// Record is the ephemeral measurement of a single query execution. It is
// constructed per call by an adapter and discarded once observed.
type Record struct {
	// SQL is the statement text exactly as the caller submitted it.
	SQL string
	// Params is the number of bound parameters forwarded with the statement.
	Params int
	// Start is when the adapter handed the statement to the wrapped
	// connection.
	Start time.Time
	// Duration is the elapsed wall time of the execution.
	Duration time.Duration
	// Rows is the affected/returned row count when the backend reports one.
	// Not every backend or execution path does; HasRows guards it.
	Rows    int64
	HasRows bool
	// Err is the wrapped connection's error, if the execution failed.
	Err error
}
