// Package stdlib instruments database/sql drivers with sqltap query
// logging. Because it decorates at the driver level, it works with any
// registered backend — Postgres, MySQL, SQLite, Oracle — without knowing
// which one it is wrapping.
//
// Typical use:
//
//	sql.Register("postgres-tapped", stdlib.WrapDriver(&pq.Driver{}, obs))
//	db, err := sql.Open("postgres-tapped", dsn)
//
// or, when a connector is available:
//
//	db := stdlib.OpenDB(connector, obs)
package stdlib

import (
	"context"
	"database/sql"
	"database/sql/driver"

	"github.com/guillermoBallester/sqltap"
)

// WrapDriver decorates d so every connection it opens observes its
// statement executions through obs. Wrapping never fails. The returned
// driver preserves d's driver.DriverContext capability when present.
func WrapDriver(d driver.Driver, obs *sqltap.Observer) driver.Driver {
	if obs == nil {
		obs = sqltap.NewObserver(nil, sqltap.WithMode(sqltap.ModeNoLog))
	}
	wrapped := tapDriver{parent: d, obs: obs}
	if _, ok := d.(driver.DriverContext); ok {
		return tapDriverContext{wrapped}
	}
	return wrapped
}

// WrapConnector decorates c so connections it produces are observed
// through obs.
func WrapConnector(c driver.Connector, obs *sqltap.Observer) driver.Connector {
	if obs == nil {
		obs = sqltap.NewObserver(nil, sqltap.WithMode(sqltap.ModeNoLog))
	}
	return tapConnector{parent: c, driver: WrapDriver(c.Driver(), obs), obs: obs}
}

// OpenDB opens a *sql.DB whose connections are observed through obs.
func OpenDB(c driver.Connector, obs *sqltap.Observer) *sql.DB {
	return sql.OpenDB(WrapConnector(c, obs))
}

type tapDriver struct {
	parent driver.Driver
	obs    *sqltap.Observer
}

func (d tapDriver) Open(name string) (driver.Conn, error) {
	conn, err := d.parent.Open(name)
	if err != nil {
		return nil, err
	}
	return newConn(conn, d.obs), nil
}

type tapDriverContext struct {
	tapDriver
}

func (d tapDriverContext) OpenConnector(name string) (driver.Connector, error) {
	connector, err := d.parent.(driver.DriverContext).OpenConnector(name)
	if err != nil {
		return nil, err
	}
	return tapConnector{parent: connector, driver: d, obs: d.obs}, nil
}

type tapConnector struct {
	parent driver.Connector
	driver driver.Driver
	obs    *sqltap.Observer
}

func (c tapConnector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := c.parent.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return newConn(conn, c.obs), nil
}

func (c tapConnector) Driver() driver.Driver { return c.driver }
