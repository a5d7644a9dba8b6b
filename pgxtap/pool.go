package pgxtap

import (
	"context"
	"fmt"
	"time"

	"github.com/guillermoBallester/sqltap"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool builds a pgxpool.Pool with the sqltap Tracer installed on every
// connection, then verifies connectivity with a ping. Each pooled
// connection shares the single Observer; the Observer is immutable after
// construction, so no synchronization is needed.
func NewPool(ctx context.Context, databaseURL string, obs *sqltap.Observer, opts ...TracerOption) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	config.ConnConfig.Tracer = NewTracer(obs, opts...)

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database (10s timeout): %w", err)
	}

	return pool, nil
}
