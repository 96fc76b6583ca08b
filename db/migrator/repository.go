package migrator

import (
	"crypto/sha512"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"slices"

	"github.com/mandelsoft/vfs/pkg/vfs"
)

var migrationFileRx = regexp.MustCompile(`^([^-]+)-(.+)\.(up|down)\.sql$`)

// LoadMigrations reads all migration files from dir, pairs up and down scripts
// by version, and returns them sorted by ascending version.
func LoadMigrations(fsys vfs.FileSystem, dir string, logger *slog.Logger) ([]*Migration, error) {
	fi, err := fsys.Stat(dir)
	if err != nil {
		if vfs.IsErrNotExist(err) {
			return nil, &FolderNotFoundError{Path: dir}
		}
		return nil, fmt.Errorf("failed reading migrations folder %s: %w", dir, err)
	}
	if !fi.IsDir() {
		return nil, &FolderNotFoundError{Path: dir}
	}

	entries, err := vfs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed reading migrations folder %s: %w", dir, err)
	}

	var (
		ups   = map[string]*Migration{}
		downs = map[string]string{}
		// The file names of down scripts, by version.
		downFiles = map[string]string{}
	)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := migrationFileRx.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		version, name, direction := match[1], match[2], match[3]

		content, err := vfs.ReadFile(fsys, filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed reading migration file %s: %w", entry.Name(), err)
		}

		switch direction {
		case "up":
			if m, ok := ups[version]; ok {
				return nil, &DuplicateVersionError{Version: version, Files: []string{m.UpFile, entry.Name()}}
			}
			ups[version] = &Migration{
				Version: version,
				Name:    name,
				UpFile:  entry.Name(),
				UpSQL:   string(content),
				Hash:    sha512.Sum512(content),
			}
		case "down":
			if f, ok := downFiles[version]; ok {
				return nil, &DuplicateVersionError{Version: version, Files: []string{f, entry.Name()}}
			}
			downFiles[version] = entry.Name()
			downs[version] = string(content)
		}
	}

	migrations := make([]*Migration, 0, len(ups))
	for version, m := range ups {
		if f, ok := downFiles[version]; ok {
			m.DownFile = f
			m.DownSQL = downs[version]
		}
		migrations = append(migrations, m)
	}
	for version, f := range downFiles {
		if _, ok := ups[version]; !ok {
			logger.Warn("ignoring down script without a matching up script",
				"version", version, "file", f)
		}
	}

	// Map iteration and directory listings are unordered.
	slices.SortFunc(migrations, func(a, b *Migration) int {
		return compareVersions(a.Version, b.Version)
	})

	return migrations, nil
}
