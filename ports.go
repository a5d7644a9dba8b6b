package sqltap

import (
	"context"
	"time"
)

// Instrumentation records aggregate query metrics. The telemetry package
// provides an OpenTelemetry implementation.
type Instrumentation interface {
	RecordQueryDuration(ctx context.Context, ms float64)
	IncrementQueryCount(ctx context.Context)
	IncrementQueryErrors(ctx context.Context)
	IncrementSlowQueries(ctx context.Context)
}

// NoopInstrumentation discards all metrics.
type NoopInstrumentation struct{}

func (NoopInstrumentation) RecordQueryDuration(context.Context, float64) {}
func (NoopInstrumentation) IncrementQueryCount(context.Context)          {}
func (NoopInstrumentation) IncrementQueryErrors(context.Context)         {}
func (NoopInstrumentation) IncrementSlowQueries(context.Context)         {}

// AuditEntry is the durable form of an observed execution.
type AuditEntry struct {
	SQL         string
	Fingerprint string
	Params      int
	Duration    time.Duration
	Rows        int64
	HasRows     bool
	Err         error
}

// Auditor persists observed executions. The audit package provides an
// NDJSON file implementation.
type Auditor interface {
	Record(ctx context.Context, entry AuditEntry)
	Close() error
}

// NoopAuditor discards all audit entries.
type NoopAuditor struct{}

func (NoopAuditor) Record(context.Context, AuditEntry) {}
func (NoopAuditor) Close() error                       { return nil }
