// Package normalize rewrites statement text for display using PostgreSQL's
// actual parser. Normalization replaces literal values with $n placeholders
// so logged queries never leak data; fingerprinting assigns a stable
// identifier to a statement's shape so identical queries with different
// literals group together in logs and audit output.
//
// Both functions understand PostgreSQL syntax only. Callers logging other
// dialects should skip normalization — the sqltap observer falls back to
// the raw statement text whenever normalization fails.
package normalize

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Normalize replaces literal values in sql with $n placeholders.
func Normalize(sql string) (string, error) {
	return pg_query.Normalize(sql)
}

// Fingerprint returns a stable hex identifier for the statement's shape.
// Two statements differing only in literal values share a fingerprint.
func Fingerprint(sql string) (string, error) {
	return pg_query.Fingerprint(sql)
}
