package stdlib

import (
	"context"
	"database/sql/driver"
	"errors"
	"time"

	"github.com/guillermoBallester/sqltap"
)

// tapStmt decorates a prepared statement so its executions are observed
// with the text the statement was prepared from.
type tapStmt struct {
	parent driver.Stmt
	query  string
	obs    *sqltap.Observer
}

func (s *tapStmt) Close() error  { return s.parent.Close() }
func (s *tapStmt) NumInput() int { return s.parent.NumInput() }

func (s *tapStmt) Exec(args []driver.Value) (driver.Result, error) {
	if !s.obs.Enabled() {
		return s.parent.Exec(args) //nolint:staticcheck // required by driver.Stmt
	}

	start := time.Now()
	res, err := s.parent.Exec(args) //nolint:staticcheck // required by driver.Stmt
	s.observeExec(context.Background(), start, len(args), res, err)
	return res, err
}

func (s *tapStmt) Query(args []driver.Value) (driver.Rows, error) {
	if !s.obs.Enabled() {
		return s.parent.Query(args) //nolint:staticcheck // required by driver.Stmt
	}

	start := time.Now()
	rows, err := s.parent.Query(args) //nolint:staticcheck // required by driver.Stmt
	s.observeQuery(context.Background(), start, len(args), err)
	return rows, err
}

func (s *tapStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	execer, ok := s.parent.(driver.StmtExecContext)
	if !ok {
		vals, err := namedValuesToValues(args)
		if err != nil {
			return nil, err
		}
		return s.Exec(vals)
	}
	if !s.obs.Enabled() {
		return execer.ExecContext(ctx, args)
	}

	start := time.Now()
	res, err := execer.ExecContext(ctx, args)
	s.observeExec(ctx, start, len(args), res, err)
	return res, err
}

func (s *tapStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	queryer, ok := s.parent.(driver.StmtQueryContext)
	if !ok {
		vals, err := namedValuesToValues(args)
		if err != nil {
			return nil, err
		}
		return s.Query(vals)
	}
	if !s.obs.Enabled() {
		return queryer.QueryContext(ctx, args)
	}

	start := time.Now()
	rows, err := queryer.QueryContext(ctx, args)
	s.observeQuery(ctx, start, len(args), err)
	return rows, err
}

func (s *tapStmt) observeExec(ctx context.Context, start time.Time, params int, res driver.Result, err error) {
	rec := sqltap.Record{
		SQL:      s.query,
		Params:   params,
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
	s.obs.Observe(ctx, rec)
}

func (s *tapStmt) observeQuery(ctx context.Context, start time.Time, params int, err error) {
	s.obs.Observe(ctx, sqltap.Record{
		SQL:      s.query,
		Params:   params,
		Start:    start,
		Duration: time.Since(start),
		Err:      err,
	})
}

// namedValuesToValues is the fallback conversion database/sql performs for
// drivers that predate the context interfaces. Named parameters cannot be
// expressed in the legacy call shape.
func namedValuesToValues(named []driver.NamedValue) ([]driver.Value, error) {
	vals := make([]driver.Value, len(named))
	for i, nv := range named {
		if nv.Name != "" {
			return nil, errors.New("sqltap: driver does not support named parameters")
		}
		vals[i] = nv.Value
	}
	return vals, nil
}
