package pgxtap

import (
	"context"
	"time"

	"github.com/guillermoBallester/sqltap"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "github.com/guillermoBallester/sqltap/pgxtap"

// Tracer implements pgx.QueryTracer and pgx.BatchTracer. Installed on a
// connection or pool config, it times every query (batched or not),
// forwards a Record to the Observer, and when a real TracerProvider is
// supplied wraps each round trip in an OTel span carrying db.statement
// attributes.
type Tracer struct {
	obs    *sqltap.Observer
	tracer trace.Tracer
}

var (
	_ pgx.QueryTracer = (*Tracer)(nil)
	_ pgx.BatchTracer = (*Tracer)(nil)
)

// TracerOption configures a Tracer.
type TracerOption func(*Tracer)

// WithTracerProvider enables per-query OTel spans. The default provider is
// a noop, so spans cost nothing unless asked for.
func WithTracerProvider(tp trace.TracerProvider) TracerOption {
	return func(t *Tracer) {
		if tp != nil {
			t.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewTracer builds a Tracer observing through obs.
func NewTracer(obs *sqltap.Observer, opts ...TracerOption) *Tracer {
	if obs == nil {
		obs = sqltap.NewObserver(nil, sqltap.WithMode(sqltap.ModeNoLog))
	}
	t := &Tracer{
		obs:    obs,
		tracer: noop.NewTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type queryStartKey struct{}

type queryStart struct {
	start  time.Time
	sql    string
	params int
	span   trace.Span
}

// TraceQueryStart records the start timestamp and statement. In ModeNoLog
// the context is returned unchanged and no timing happens at all.
func (t *Tracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	if !t.obs.Enabled() {
		return ctx
	}

	ctx, span := t.tracer.Start(ctx, "pgx.query",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.statement", data.SQL),
		),
	)

	return context.WithValue(ctx, queryStartKey{}, &queryStart{
		start:  time.Now(),
		sql:    data.SQL,
		params: len(data.Args),
		span:   span,
	})
}

// TraceQueryEnd builds the Record and hands it to the Observer. The
// error, if any, has already been returned to the caller by pgx; nothing
// here alters it.
func (t *Tracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	qs, ok := ctx.Value(queryStartKey{}).(*queryStart)
	if !ok {
		return
	}

	rec := sqltap.Record{
		SQL:      qs.sql,
		Params:   qs.params,
		Start:    qs.start,
		Duration: time.Since(qs.start),
		Err:      data.Err,
	}
	if data.Err == nil {
		rec.Rows = data.CommandTag.RowsAffected()
		rec.HasRows = true
	}
	t.obs.Observe(ctx, rec)

	if data.Err != nil {
		qs.span.RecordError(data.Err)
		qs.span.SetStatus(codes.Error, data.Err.Error())
	} else {
		qs.span.SetAttributes(attribute.Int64("db.response.rows", rec.Rows))
	}
	qs.span.End()
}

type batchStartKey struct{}

// batchStart tracks the running clock for a batch. pgx delivers
// TraceBatchQuery per statement with no per-statement start callback, so
// each statement's duration is measured from the previous event.
type batchStart struct {
	last time.Time
	span trace.Span
}

// TraceBatchStart opens the batch span and starts the clock. In ModeNoLog
// the context is returned unchanged, same as TraceQueryStart.
func (t *Tracer) TraceBatchStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceBatchStartData) context.Context {
	if !t.obs.Enabled() {
		return ctx
	}

	size := 0
	if data.Batch != nil {
		size = data.Batch.Len()
	}
	ctx, span := t.tracer.Start(ctx, "pgx.batch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.Int("db.batch.size", size),
		),
	)

	return context.WithValue(ctx, batchStartKey{}, &batchStart{
		last: time.Now(),
		span: span,
	})
}

// TraceBatchQuery observes one batched statement. Each statement gets its
// own Record, so thresholds, ignore rules, and metrics apply exactly as
// they do for standalone queries.
func (t *Tracer) TraceBatchQuery(ctx context.Context, _ *pgx.Conn, data pgx.TraceBatchQueryData) {
	bs, ok := ctx.Value(batchStartKey{}).(*batchStart)
	if !ok {
		return
	}

	now := time.Now()
	rec := sqltap.Record{
		SQL:      data.SQL,
		Params:   len(data.Args),
		Start:    bs.last,
		Duration: now.Sub(bs.last),
		Err:      data.Err,
	}
	if data.Err == nil {
		rec.Rows = data.CommandTag.RowsAffected()
		rec.HasRows = true
	}
	bs.last = now
	t.obs.Observe(ctx, rec)
}

// TraceBatchEnd closes the batch span.
func (t *Tracer) TraceBatchEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceBatchEndData) {
	bs, ok := ctx.Value(batchStartKey{}).(*batchStart)
	if !ok {
		return
	}

	if data.Err != nil {
		bs.span.RecordError(data.Err)
		bs.span.SetStatus(codes.Error, data.Err.Error())
	}
	bs.span.End()
}
