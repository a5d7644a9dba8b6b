// Package pgxtap instruments pgx connections with sqltap query logging.
//
// Two integration points are offered. Tracer hooks into pgx's own tracing
// interface and observes every query a connection or pool runs, including
// those issued through Query and QueryRow. Conn is an explicit generic
// decorator over anything with a pgx-shaped Exec method, for callers that
// prefer wrapping a handle over configuring a tracer.
package pgxtap

import (
	"context"
	"time"

	"github.com/guillermoBallester/sqltap"
	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the minimal execute capability a wrapped handle must offer.
// *pgx.Conn, *pgxpool.Pool, *pgxpool.Conn, and pgx.Tx all satisfy it, so a
// single decorator covers direct connections, pooled handles, and open
// transactions.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Conn decorates an Execer so every Exec is timed and observed. It holds
// no state besides the wrapped handle and the shared Observer; its
// lifetime is the lifetime of the handle.
type Conn[C Execer] struct {
	conn C
	obs  *sqltap.Observer
}

// Wrap composes a Conn around an existing handle. It never fails.
// Wrapping an already-wrapped handle is valid and yields one observation
// per layer.
func Wrap[C Execer](conn C, obs *sqltap.Observer) *Conn[C] {
	if obs == nil {
		obs = sqltap.NewObserver(nil, sqltap.WithMode(sqltap.ModeNoLog))
	}
	return &Conn[C]{conn: conn, obs: obs}
}

// Exec forwards sql and args unmodified to the wrapped handle and returns
// its command tag and error untouched. The execution is observed even when
// it fails; in ModeNoLog timing is skipped entirely.
func (c *Conn[C]) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if !c.obs.Enabled() {
		return c.conn.Exec(ctx, sql, args...)
	}

	start := time.Now()
	tag, err := c.conn.Exec(ctx, sql, args...)
	rec := sqltap.Record{
		SQL:      sql,
		Params:   len(args),
		Start:    start,
		Duration: time.Since(start),
		Err:      err,
	}
	if err == nil {
		rec.Rows = tag.RowsAffected()
		rec.HasRows = true
	}
	c.obs.Observe(ctx, rec)

	return tag, err
}

// Unwrap returns the wrapped handle.
func (c *Conn[C]) Unwrap() C {
	return c.conn
}
