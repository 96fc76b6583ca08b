package migrator

import (
	"context"
	"fmt"
	"regexp"

	"go.hackfix.me/caravel/db/queries"
	"go.hackfix.me/caravel/db/types"
)

// DefaultTable is the default name of the migrations table.
const DefaultTable = "caravel_migrations"

var identifierRx = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Store manages the table recording which migration versions were applied.
type Store struct {
	dialect types.Dialect
	table   string
}

// NewStore returns a new Store for the given table.
func NewStore(dialect types.Dialect, table string) (*Store, error) {
	if !identifierRx.MatchString(table) {
		return nil, types.InvalidInputError{Msg: fmt.Sprintf("invalid migrations table name '%s'", table)}
	}

	return &Store{dialect: dialect, table: table}, nil
}

// Table returns the name of the migrations table.
func (s *Store) Table() string {
	return s.table
}

// EnsureTable creates the migrations table if it doesn't exist. It reports
// whether the table was created.
func (s *Store) EnsureTable(ctx context.Context, q types.Querier) (bool, error) {
	exists, err := queries.TableExists(ctx, q, s.dialect, s.table)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	if err = queries.CreateMigrationsTable(ctx, q, s.dialect, s.table); err != nil {
		return false, err
	}

	return true, nil
}

// TableExists reports whether the migrations table exists.
func (s *Store) TableExists(ctx context.Context, q types.Querier) (bool, error) {
	return queries.TableExists(ctx, q, s.dialect, s.table)
}

// ListApplied returns the applied migration records. The order is undefined;
// use SortApplied before depending on it.
func (s *Store) ListApplied(ctx context.Context, q types.Querier) ([]AppliedRecord, error) {
	versions, err := queries.AppliedVersions(ctx, q, s.dialect, s.table)
	if err != nil {
		return nil, err
	}

	records := make([]AppliedRecord, len(versions))
	for i, v := range versions {
		records[i] = AppliedRecord{Version: v}
	}

	return records, nil
}

// InsertApplied records version as applied. It should be called within the
// transaction that executes the up script.
func (s *Store) InsertApplied(ctx context.Context, q types.Querier, version string) error {
	return queries.InsertVersion(ctx, q, s.dialect, s.table, version)
}

// DeleteApplied removes the record of version. It should be called within the
// transaction that executes the down script.
func (s *Store) DeleteApplied(ctx context.Context, q types.Querier, version string) error {
	return queries.DeleteVersion(ctx, q, s.dialect, s.table, version)
}
