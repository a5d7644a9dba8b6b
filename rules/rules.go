// Package rules loads operator-controlled logging policy from a YAML file.
// Rules tune thresholds, suppress noisy statements, and switch on literal
// redaction without code changes.
package rules

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/guillermoBallester/sqltap"
	"github.com/guillermoBallester/sqltap/normalize"
	"gopkg.in/yaml.v3"
)

// Duration decodes Go duration strings ("250ms", "1s") from YAML scalars.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar, got %v", value.Kind)
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Rules holds the logging policy loaded from a YAML file.
//
//	slow_threshold: 250ms
//	warn_threshold: 2s
//	normalize: true
//	ignore:
//	  - '^SELECT 1$'
//	  - 'pg_catalog'
type Rules struct {
	SlowThreshold *Duration `yaml:"slow_threshold,omitempty"`
	WarnThreshold *Duration `yaml:"warn_threshold,omitempty"`
	Normalize     bool      `yaml:"normalize"`
	Ignore        []string  `yaml:"ignore"`

	ignore []*regexp.Regexp
}

// LoadFromFile reads a YAML rules file and returns validated Rules.
func LoadFromFile(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}

	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing rules YAML: %w", err)
	}

	if err := validate(&r); err != nil {
		return nil, fmt.Errorf("validating rules: %w", err)
	}

	return &r, nil
}

func validate(r *Rules) error {
	if r.SlowThreshold != nil && *r.SlowThreshold <= 0 {
		return fmt.Errorf("slow_threshold must be positive")
	}
	if r.WarnThreshold != nil && *r.WarnThreshold <= 0 {
		return fmt.Errorf("warn_threshold must be positive")
	}
	if r.SlowThreshold != nil && r.WarnThreshold != nil && *r.WarnThreshold < *r.SlowThreshold {
		return fmt.Errorf("warn_threshold (%s) must not be below slow_threshold (%s)",
			time.Duration(*r.WarnThreshold), time.Duration(*r.SlowThreshold))
	}

	r.ignore = r.ignore[:0]
	for _, pattern := range r.Ignore {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("ignore pattern %q: %w", pattern, err)
		}
		r.ignore = append(r.ignore, re)
	}
	return nil
}

// IgnorePatterns returns the compiled ignore expressions.
func (r *Rules) IgnorePatterns() []*regexp.Regexp {
	return r.ignore
}

// Options converts the rules into observer options. Rule thresholds are
// merged onto the caller's already-resolved values: a rule that sets one
// threshold keeps baseSlow or baseWarn for the other. The merged pair must
// still satisfy warn >= slow; a file can otherwise invert the ordering that
// each source enforces on its own.
func (r *Rules) Options(baseSlow, baseWarn time.Duration) ([]sqltap.Option, error) {
	var opts []sqltap.Option

	slow, warn := baseSlow, baseWarn
	if r.SlowThreshold != nil {
		slow = time.Duration(*r.SlowThreshold)
	}
	if r.WarnThreshold != nil {
		warn = time.Duration(*r.WarnThreshold)
	}
	if r.SlowThreshold != nil || r.WarnThreshold != nil {
		if warn < slow {
			return nil, fmt.Errorf("merged warn_threshold (%s) must not be below slow_threshold (%s)", warn, slow)
		}
		opts = append(opts, sqltap.WithThresholds(slow, warn))
	}

	if len(r.ignore) > 0 {
		opts = append(opts, sqltap.WithIgnore(r.ignore...))
	}

	if r.Normalize {
		opts = append(opts,
			sqltap.WithNormalizer(normalize.Normalize),
			sqltap.WithFingerprinter(normalize.Fingerprint),
		)
	}

	return opts, nil
}
