package queries

import (
	"context"
	"fmt"

	"go.hackfix.me/caravel/db/types"
)

// TableExists checks the database catalog for a table with the given name.
func TableExists(ctx context.Context, q types.Querier, d types.Dialect, table string) (bool, error) {
	var exists bool
	if err := q.QueryRowContext(ctx, d.TableExistsQuery(), table).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed checking if table %s exists: %w", table, err)
	}

	return exists, nil
}

// CreateMigrationsTable creates the table that tracks applied migration
// versions.
func CreateMigrationsTable(ctx context.Context, q types.Querier, d types.Dialect, table string) error {
	stmt := fmt.Sprintf(`CREATE TABLE %s (version text PRIMARY KEY)`, d.QuoteIdentifier(table))
	if _, err := q.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed creating table %s: %w", table, err)
	}

	return nil
}

// AppliedVersions returns all versions stored in the migrations table, in no
// particular order.
func AppliedVersions(ctx context.Context, q types.Querier, d types.Dialect, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`SELECT version FROM %s`, d.QuoteIdentifier(table)))
	if err != nil {
		return nil, fmt.Errorf("failed querying table %s: %w", table, err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var version string
		if err = rows.Scan(&version); err != nil {
			return nil, types.ScanError{ModelName: "migration", Err: err}
		}
		versions = append(versions, version)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading table %s: %w", table, err)
	}

	return versions, nil
}

// InsertVersion records version as applied.
func InsertVersion(ctx context.Context, q types.Querier, d types.Dialect, table, version string) error {
	stmt := fmt.Sprintf(`INSERT INTO %s (version) VALUES (%s)`,
		d.QuoteIdentifier(table), d.Placeholder(1))
	if _, err := q.ExecContext(ctx, stmt, version); err != nil {
		return types.Err("migration", fmt.Sprintf("version %s", version), err)
	}

	return nil
}

// DeleteVersion removes the record of version. It returns a
// types.NoResultError if the version wasn't recorded.
func DeleteVersion(ctx context.Context, q types.Querier, d types.Dialect, table, version string) error {
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE version = %s`,
		d.QuoteIdentifier(table), d.Placeholder(1))
	res, err := q.ExecContext(ctx, stmt, version)
	if err != nil {
		return fmt.Errorf("failed deleting migration version %s: %w", version, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed getting affected rows: %w", err)
	}
	if n == 0 {
		return types.NoResultError{ModelName: "migration", ID: fmt.Sprintf("version %s", version)}
	}

	return nil
}
