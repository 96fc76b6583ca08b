package snapshot

import (
	"context"
	"fmt"
	"strings"

	"github.com/mandelsoft/vfs/pkg/vfs"

	"go.hackfix.me/caravel/db/migrator"
	"go.hackfix.me/caravel/db/types"
)

// SQLite writes the schema of an SQLite database from its catalog.
type SQLite struct {
	fs      vfs.FileSystem
	exclude []string
}

var _ migrator.Snapshotter = (*SQLite)(nil)

// NewSQLite returns a new SQLite snapshotter. Objects belonging to the tables
// named in exclude are omitted.
func NewSQLite(fsys vfs.FileSystem, exclude ...string) *SQLite {
	return &SQLite{fs: fsys, exclude: exclude}
}

// Snapshot implements migrator.Snapshotter.
func (s *SQLite) Snapshot(ctx context.Context, q types.Querier, _, outPath string) error {
	var (
		filter string
		args   = make([]any, 0, len(s.exclude))
	)
	if len(s.exclude) > 0 {
		filter = " AND tbl_name NOT IN (?" + strings.Repeat(", ?", len(s.exclude)-1) + ")"
		for _, tbl := range s.exclude {
			args = append(args, tbl)
		}
	}

	rows, err := q.QueryContext(ctx, `SELECT sql FROM sqlite_master
		WHERE sql IS NOT NULL AND name NOT LIKE 'sqlite_%'`+filter+`
		ORDER BY CASE type WHEN 'table' THEN 0 WHEN 'index' THEN 1 ELSE 2 END, name`, args...)
	if err != nil {
		return fmt.Errorf("failed querying schema: %w", err)
	}
	defer rows.Close()

	var b strings.Builder
	for rows.Next() {
		var stmt string
		if err = rows.Scan(&stmt); err != nil {
			return types.ScanError{ModelName: "schema", Err: err}
		}
		b.WriteString(stmt)
		b.WriteString(";\n\n")
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("failed reading schema: %w", err)
	}

	return writeFile(s.fs, outPath, []byte(b.String()))
}
