package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"go.hackfix.me/caravel/db/types"
)

// DialectFor returns the SQL dialect for the given driver name.
//
//nolint:ireturn // Intentional, callers only need the interface.
func DialectFor(driver string) (types.Dialect, error) {
	switch driver {
	case DriverPostgres:
		return Postgres{}, nil
	case DriverSQLite:
		return SQLite{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver '%s'", driver)
	}
}

// Postgres is the PostgreSQL dialect.
type Postgres struct{}

var _ types.Dialect = Postgres{}

// Name implements types.Dialect.
func (Postgres) Name() string { return DriverPostgres }

// Placeholder implements types.Dialect.
func (Postgres) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

// QuoteIdentifier implements types.Dialect.
func (Postgres) QuoteIdentifier(name string) string { return pq.QuoteIdentifier(name) }

// TableExistsQuery implements types.Dialect.
func (Postgres) TableExistsQuery() string {
	return `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1)`
}

// TryLock acquires a session level advisory lock keyed by the hash of key.
// The owner is implied by the session, and the lock is released when the
// session ends, so it never goes stale.
func (Postgres) TryLock(ctx context.Context, q types.Querier, key, _ string, _ time.Duration) (bool, error) {
	var locked bool
	err := q.QueryRowContext(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, key).Scan(&locked)
	if err != nil {
		return false, fmt.Errorf("failed acquiring advisory lock: %w", err)
	}

	return locked, nil
}

// Unlock releases the advisory lock keyed by the hash of key.
func (Postgres) Unlock(ctx context.Context, q types.Querier, key, _ string) error {
	var unlocked bool
	err := q.QueryRowContext(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, key).Scan(&unlocked)
	if err != nil {
		return fmt.Errorf("failed releasing advisory lock: %w", err)
	}
	if !unlocked {
		return fmt.Errorf("advisory lock '%s' isn't held by this session", key)
	}

	return nil
}

// LockTableName returns the name of the table holding the SQLite lock
// identified by key.
func LockTableName(key string) string {
	return key + "_lock"
}

// SQLite is the SQLite dialect. SQLite has no advisory locks, so locking is
// emulated with a single-row table naming the owner. The row survives the
// session, so a row older than the stale threshold is considered abandoned and
// taken over.
type SQLite struct{}

var _ types.Dialect = SQLite{}

// Name implements types.Dialect.
func (SQLite) Name() string { return DriverSQLite }

// Placeholder implements types.Dialect.
func (SQLite) Placeholder(int) string { return "?" }

// QuoteIdentifier implements types.Dialect.
func (SQLite) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// TableExistsQuery implements types.Dialect.
func (SQLite) TableExistsQuery() string {
	return `SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?)`
}

// TryLock implements types.Dialect. A database locked by another connection,
// e.g. a runner in the middle of a migration, means the lock is busy.
func (s SQLite) TryLock(
	ctx context.Context, q types.Querier, key, owner string, staleAfter time.Duration,
) (bool, error) {
	table := s.QuoteIdentifier(LockTableName(key))
	_, err := q.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id          INTEGER PRIMARY KEY CHECK (id = 1),
		owner       TEXT NOT NULL,
		acquired_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`, table))
	if err != nil {
		if types.IsBusy(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed creating lock table: %w", err)
	}

	// The insert takes over the row only if it belongs to the same owner, or
	// has gone stale.
	stmt := fmt.Sprintf(`INSERT INTO %s (id, owner) VALUES (1, ?)
		ON CONFLICT (id) DO UPDATE SET owner = excluded.owner, acquired_at = CURRENT_TIMESTAMP
		WHERE owner = excluded.owner`, table)
	args := []any{owner}
	if staleAfter > 0 {
		stmt += ` OR acquired_at < datetime('now', ?)`
		args = append(args, fmt.Sprintf("-%f seconds", staleAfter.Seconds()))
	}

	res, err := q.ExecContext(ctx, stmt, args...)
	if err != nil {
		if types.IsBusy(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed acquiring lock: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed getting affected rows: %w", err)
	}

	return n == 1, nil
}

// Unlock implements types.Dialect.
func (s SQLite) Unlock(ctx context.Context, q types.Querier, key, owner string) error {
	table := s.QuoteIdentifier(LockTableName(key))
	res, err := q.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = 1 AND owner = ?`, table), owner)
	if err != nil {
		return fmt.Errorf("failed releasing lock: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed getting affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("lock '%s' isn't held by %s", key, owner)
	}

	return nil
}
