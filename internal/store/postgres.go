// Package store implements the Postgres-backed external collaborators
// the realtime core reads/updates without owning their schema.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odin-markets/realtime-core/internal/wserr"
)

// Pool wraps a pgx connection pool shared by the outbox, settings,
// and users stores, grounded on OmarEhab007-RemedyIQ/backend's
// PostgresClient. Every store method bounds its query with the read or
// write budget configured here rather than trusting the caller's ctx
// to carry one.
type Pool struct {
	db           *pgxpool.Pool
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func NewPool(ctx context.Context, dsn string, readTimeout, writeTimeout time.Duration) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Pool{db: pool, readTimeout: readTimeout, writeTimeout: writeTimeout}, nil
}

func (p *Pool) Close() { p.db.Close() }

// withRead bounds a query to the pool's read budget.
func (p *Pool) withRead(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.readTimeout)
}

// withWrite bounds a query to the pool's write budget.
func (p *Pool) withWrite(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.writeTimeout)
}

// asStoreErr surfaces a deadline exceeded as a transient wserr so
// callers upstream of the store can tell a slow database apart from a
// genuinely bad request.
func asStoreErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return wserr.Wrap(wserr.CodeExternalServiceFail, "database operation timed out", err)
	}
	return err
}
