package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	//nolint:revive,nolintlint // Idiomatic way of loading DB libraries.
	_ "github.com/glebarez/go-sqlite"
	//nolint:revive,nolintlint // Idiomatic way of loading DB libraries.
	_ "github.com/lib/pq"

	"go.hackfix.me/caravel/db/types"
)

// sqliteBusyTimeout bounds how long a statement waits for a lock held by
// another connection before failing with SQLITE_BUSY.
const sqliteBusyTimeout = 250 * time.Millisecond

// DB is a database session pinned to a single connection. Session level state
// such as PostgreSQL advisory locks depends on every statement running on the
// same connection, so all methods are routed through it.
type DB struct {
	pool     *sql.DB
	conn     *sql.Conn
	dialect  types.Dialect
	target   string
	database string
}

var _ types.Querier = (*DB)(nil)

// Open creates a new database session from the given configuration. If the
// session can't be established a types.ConnectionError is returned, and any
// partially opened resources are released.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	target := cfg.Target()

	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, &types.ConnectionError{Target: target, Err: err}
	}

	dsn, err := cfg.DSN()
	if err != nil {
		return nil, &types.ConnectionError{Target: target, Err: err}
	}

	pool, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, &types.ConnectionError{Target: target, Err: err}
	}

	d, err := NewDB(ctx, pool, dialect, target, cfg.Database())
	if err != nil {
		_ = pool.Close()
		return nil, err
	}

	if cfg.Driver == DriverSQLite {
		if _, err = d.ExecContext(ctx, `PRAGMA foreign_keys = ON;`); err != nil {
			_ = d.Close()
			return nil, &types.ConnectionError{
				Target: target,
				Err:    fmt.Errorf("failed enabling foreign key enforcement: %w", err),
			}
		}
		busyTimeout := fmt.Sprintf(`PRAGMA busy_timeout = %d;`, sqliteBusyTimeout.Milliseconds())
		if _, err = d.ExecContext(ctx, busyTimeout); err != nil {
			_ = d.Close()
			return nil, &types.ConnectionError{
				Target: target,
				Err:    fmt.Errorf("failed setting busy timeout: %w", err),
			}
		}
	}

	return d, nil
}

// NewDB pins a connection from an already opened pool and verifies that it's
// reachable. The pool is owned by the returned DB and closed with it.
func NewDB(
	ctx context.Context, pool *sql.DB, dialect types.Dialect, target, database string,
) (*DB, error) {
	conn, err := pool.Conn(ctx)
	if err != nil {
		return nil, &types.ConnectionError{Target: target, Err: err}
	}

	if err = conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, &types.ConnectionError{Target: target, Err: err}
	}

	return &DB{
		pool:     pool,
		conn:     conn,
		dialect:  dialect,
		target:   target,
		database: database,
	}, nil
}

// ExecContext executes a statement on the session connection.
func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	//nolint:wrapcheck // Callers add context.
	return d.conn.ExecContext(ctx, query, args...)
}

// QueryContext runs a query on the session connection.
func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	//nolint:wrapcheck // Callers add context.
	return d.conn.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a query returning at most one row on the session
// connection.
func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return d.conn.QueryRowContext(ctx, query, args...)
}

// BeginTx starts a transaction on the session connection.
func (d *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	//nolint:wrapcheck // Callers add context.
	return d.conn.BeginTx(ctx, opts)
}

// Dialect returns the SQL dialect of the session.
func (d *DB) Dialect() types.Dialect {
	return d.dialect
}

// Target returns a description of where the session is connected to.
func (d *DB) Target() string {
	return d.target
}

// Database returns the name of the connected database.
func (d *DB) Database() string {
	return d.database
}

// Close releases the session connection and the underlying pool.
func (d *DB) Close() error {
	var errs []error
	if d.conn != nil {
		if err := d.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			errs = append(errs, fmt.Errorf("failed closing connection: %w", err))
		}
	}
	if d.pool != nil {
		if err := d.pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed closing connection pool: %w", err))
		}
	}

	return errors.Join(errs...)
}
