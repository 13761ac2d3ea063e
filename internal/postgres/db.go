package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrPoolExhausted = errors.New("database pool exhausted")

type Options struct {
	MaxConns       int32
	MinConns       int32
	AcquireTimeout time.Duration
}

// DB wraps the pool so every unit of work acquires its connection under a
// bounded wait, then runs with the caller's context.
type DB struct {
	pool           *pgxpool.Pool
	acquireTimeout time.Duration
}

func Connect(ctx context.Context, dsn string, opts Options) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = opts.MaxConns
	cfg.MinConns = opts.MinConns
	cfg.HealthCheckPeriod = 30 * time.Second
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return NewDB(pool, opts.AcquireTimeout), nil
}

func NewDB(pool *pgxpool.Pool, acquireTimeout time.Duration) *DB {
	if acquireTimeout <= 0 {
		acquireTimeout = 2 * time.Second
	}
	return &DB{pool: pool, acquireTimeout: acquireTimeout}
}

func (d *DB) Pool() *pgxpool.Pool { return d.pool }

func (d *DB) Ping(ctx context.Context) error {
	return d.WithConn(ctx, func(c *pgxpool.Conn) error {
		return c.Ping(ctx)
	})
}

func (d *DB) Close() { d.pool.Close() }

func (d *DB) acquire(ctx context.Context) (*pgxpool.Conn, error) {
	actx, cancel := context.WithTimeout(ctx, d.acquireTimeout)
	defer cancel()
	conn, err := d.pool.Acquire(actx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: no connection within %s", ErrPoolExhausted, d.acquireTimeout)
		}
		return nil, err
	}
	return conn, nil
}

func (d *DB) WithConn(ctx context.Context, fn func(c *pgxpool.Conn) error) error {
	conn, err := d.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return fn(conn)
}

// WithTx runs fn in a transaction that commits only when fn returns nil.
func (d *DB) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return d.WithConn(ctx, func(c *pgxpool.Conn) error {
		tx, err := c.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
}
