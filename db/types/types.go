package types

import (
	"context"
	"database/sql"
	"time"
)

// Querier exposes only methods for running SQL queries. It's satisfied by
// *sql.DB, *sql.Conn and *sql.Tx, so the same query code runs both inside and
// outside of transactions.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect abstracts the SQL differences between the supported database
// engines.
type Dialect interface {
	// Name returns the name of the dialect, e.g. "postgres".
	Name() string
	// Placeholder returns the bind parameter for the n-th argument, starting at 1.
	Placeholder(n int) string
	// QuoteIdentifier quotes a table or column name.
	QuoteIdentifier(name string) string
	// TableExistsQuery returns a query with a single table name parameter that
	// returns a single boolean row.
	TableExistsQuery() string
	// TryLock attempts to acquire the advisory lock identified by key without
	// blocking. It reports whether the lock was acquired. Dialects whose locks
	// outlive the session take over a lock held for longer than staleAfter; a
	// zero staleAfter never takes over.
	TryLock(ctx context.Context, q Querier, key, owner string, staleAfter time.Duration) (bool, error)
	// Unlock releases a lock previously acquired with TryLock.
	Unlock(ctx context.Context, q Querier, key, owner string) error
}
