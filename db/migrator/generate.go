package migrator

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mandelsoft/vfs/pkg/vfs"

	"go.hackfix.me/caravel/db/types"
)

const scaffoldContent = "-- Your migration code here.\n"

// Generate creates an empty pair of up and down migration files in folder,
// versioned with the Unix millisecond timestamp of now. The folder is created
// if it doesn't exist. It returns the paths of the created files.
func Generate(
	fsys vfs.FileSystem, folder, name string, now time.Time, logger *slog.Logger,
) ([]string, error) {
	slug := strings.Join(strings.Fields(name), "-")
	if slug == "" {
		return nil, types.InvalidInputError{Msg: "migration name is required"}
	}
	if strings.ContainsAny(slug, `/\`) {
		return nil, types.InvalidInputError{Msg: fmt.Sprintf("invalid migration name '%s'", name)}
	}

	_, err := fsys.Stat(folder)
	switch {
	case vfs.IsErrNotExist(err):
		logger.Info("creating migrations folder", "folder", folder)
		if err = fsys.MkdirAll(folder, 0o755); err != nil {
			return nil, fmt.Errorf("failed creating migrations folder: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed checking migrations folder %s: %w", folder, err)
	}

	base := fmt.Sprintf("%d-%s", now.UnixMilli(), slug)
	paths := []string{
		filepath.Join(folder, base+".up.sql"),
		filepath.Join(folder, base+".down.sql"),
	}
	for _, path := range paths {
		if err = writeNewFile(fsys, path, []byte(scaffoldContent)); err != nil {
			return nil, err
		}
		logger.Info("created migration file", "path", path)
	}

	return paths, nil
}

func writeNewFile(fsys vfs.FileSystem, path string, data []byte) error {
	if _, err := fsys.Stat(path); err == nil {
		return fmt.Errorf("failed creating migration file %s: %w", path, os.ErrExist)
	}

	f, err := fsys.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed creating migration file %s: %w", path, err)
	}

	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed writing migration file %s: %w", path, err)
	}

	if err = f.Close(); err != nil {
		return fmt.Errorf("failed closing migration file %s: %w", path, err)
	}

	return nil
}
