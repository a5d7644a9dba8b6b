package stdlib

import (
	"context"
	"database/sql/driver"
	"errors"
	"time"

	"github.com/guillermoBallester/sqltap"
)

// tapConn decorates a driver.Conn. It implements the optional context
// interfaces and delegates to the parent when the parent supports them,
// returning driver.ErrSkip otherwise so database/sql falls back to its
// prepared-statement path — which is observed too, via tapStmt.
type tapConn struct {
	parent driver.Conn
	obs    *sqltap.Observer
}

func newConn(parent driver.Conn, obs *sqltap.Observer) driver.Conn {
	return &tapConn{parent: parent, obs: obs}
}

func (c *tapConn) Prepare(query string) (driver.Stmt, error) {
	stmt, err := c.parent.Prepare(query)
	if err != nil {
		return nil, err
	}
	return &tapStmt{parent: stmt, query: query, obs: c.obs}, nil
}

func (c *tapConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if p, ok := c.parent.(driver.ConnPrepareContext); ok {
		stmt, err := p.PrepareContext(ctx, query)
		if err != nil {
			return nil, err
		}
		return &tapStmt{parent: stmt, query: query, obs: c.obs}, nil
	}
	return c.Prepare(query)
}

func (c *tapConn) Close() error { return c.parent.Close() }

func (c *tapConn) Begin() (driver.Tx, error) {
	return c.parent.Begin() //nolint:staticcheck // required by driver.Conn
}

func (c *tapConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if b, ok := c.parent.(driver.ConnBeginTx); ok {
		return b.BeginTx(ctx, opts)
	}
	return c.parent.Begin() //nolint:staticcheck // fallback for legacy drivers
}

func (c *tapConn) Ping(ctx context.Context) error {
	if p, ok := c.parent.(driver.Pinger); ok {
		return p.Ping(ctx)
	}
	// database/sql treats a missing Pinger as always-healthy; match that.
	return nil
}

func (c *tapConn) ResetSession(ctx context.Context) error {
	if r, ok := c.parent.(driver.SessionResetter); ok {
		return r.ResetSession(ctx)
	}
	return nil
}

func (c *tapConn) IsValid() bool {
	if v, ok := c.parent.(driver.Validator); ok {
		return v.IsValid()
	}
	return true
}

func (c *tapConn) CheckNamedValue(nv *driver.NamedValue) error {
	if ck, ok := c.parent.(driver.NamedValueChecker); ok {
		return ck.CheckNamedValue(nv)
	}
	return driver.ErrSkip
}

func (c *tapConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	execer, ok := c.parent.(driver.ExecerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	if !c.obs.Enabled() {
		return execer.ExecContext(ctx, query, args)
	}

	start := time.Now()
	res, err := execer.ExecContext(ctx, query, args)
	if errors.Is(err, driver.ErrSkip) {
		// The parent declined; database/sql will retry via Prepare.
		return res, err
	}

	rec := sqltap.Record{
		SQL:      query,
		Params:   len(args),
		Start:    start,
		Duration: time.Since(start),
		Err:      err,
	}
	if err == nil && res != nil {
		if n, raErr := res.RowsAffected(); raErr == nil {
			rec.Rows = n
			rec.HasRows = true
		}
	}
	c.obs.Observe(ctx, rec)

	return res, err
}

func (c *tapConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	queryer, ok := c.parent.(driver.QueryerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	if !c.obs.Enabled() {
		return queryer.QueryContext(ctx, query, args)
	}

	start := time.Now()
	rows, err := queryer.QueryContext(ctx, query, args)
	if errors.Is(err, driver.ErrSkip) {
		return rows, err
	}

	// Row counts are not knowable here: driver.Rows is consumed lazily by
	// the caller, so the record carries no row count on query paths.
	c.obs.Observe(ctx, sqltap.Record{
		SQL:      query,
		Params:   len(args),
		Start:    start,
		Duration: time.Since(start),
		Err:      err,
	})

	return rows, err
}
