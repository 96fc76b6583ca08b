// Package snapshot exports the schema definition of a database to a file.
package snapshot

import (
	"fmt"
	"path/filepath"

	"github.com/mandelsoft/vfs/pkg/vfs"

	"go.hackfix.me/caravel/db"
	"go.hackfix.me/caravel/db/migrator"
)

// New returns the snapshotter suited to the database configured in cfg.
// Tables named in exclude are left out of SQLite snapshots.
//
//nolint:ireturn // Intentional, the implementation depends on the driver.
func New(
	fsys vfs.FileSystem, cfg db.Config, pgDumpBin string, exclude ...string,
) (migrator.Snapshotter, error) {
	switch cfg.Driver {
	case db.DriverPostgres:
		return NewPgDump(fsys, cfg, pgDumpBin), nil
	case db.DriverSQLite:
		return NewSQLite(fsys, exclude...), nil
	default:
		return nil, fmt.Errorf("schema snapshots aren't supported for driver '%s'", cfg.Driver)
	}
}

func writeFile(fsys vfs.FileSystem, path string, data []byte) error {
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed creating snapshot directory: %w", err)
	}
	if err := vfs.WriteFile(fsys, path, data, 0o644); err != nil {
		return fmt.Errorf("failed writing snapshot file: %w", err)
	}

	return nil
}
