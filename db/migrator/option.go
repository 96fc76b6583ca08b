package migrator

import (
	"log/slog"
	"path/filepath"
	"time"
)

// DefaultLockStaleAfter is the default age of an abandoned migration lock.
const DefaultLockStaleAfter = time.Hour

// Option is a function that allows configuring the Migrator.
type Option func(*Migrator) error

// WithFolder sets the folder migration files are read from.
func WithFolder(folder string) Option {
	return func(m *Migrator) error {
		m.folder = folder
		return nil
	}
}

// WithTable sets the name of the migrations table.
func WithTable(table string) Option {
	return func(m *Migrator) error {
		m.table = table
		return nil
	}
}

// WithLogger sets the logger used by the Migrator.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Migrator) error {
		m.logger = logger.With("component", "migrator")
		return nil
	}
}

// WithSnapshotter sets the schema snapshotter run after every run or revert.
// If outPath is empty, the snapshot is written to schema.sql next to the
// migrations folder.
func WithSnapshotter(s Snapshotter, outPath string) Option {
	return func(m *Migrator) error {
		m.snapshotter = s
		m.schemaOutput = outPath
		return nil
	}
}

// WithEnvironment sets the name of the runtime environment. Reverting is
// refused in production environments.
func WithEnvironment(env string) Option {
	return func(m *Migrator) error {
		m.environment = env
		return nil
	}
}

// WithLock enables the migration lock, waiting up to timeout for it to be
// released by other runners.
func WithLock(timeout time.Duration) Option {
	return func(m *Migrator) error {
		m.lockEnabled = true
		m.lockTimeout = timeout
		return nil
	}
}

// WithLockStaleAfter sets the age after which a lock left behind by a runner
// that didn't release it is taken over. It applies only to databases whose
// locks outlive the session, i.e. SQLite. Zero disables takeovers.
func WithLockStaleAfter(d time.Duration) Option {
	return func(m *Migrator) error {
		m.lockStale = d
		return nil
	}
}

// WithoutLock disables the migration lock.
func WithoutLock() Option {
	return func(m *Migrator) error {
		m.lockEnabled = false
		return nil
	}
}

// DefaultOptions returns the default Migrator options.
func DefaultOptions() []Option {
	return []Option{
		WithFolder("migrations"),
		WithTable(DefaultTable),
		WithLogger(slog.Default()),
		WithLock(time.Minute),
		WithLockStaleAfter(DefaultLockStaleAfter),
	}
}

func (m *Migrator) snapshotPath() string {
	if m.schemaOutput != "" {
		return m.schemaOutput
	}
	return filepath.Join(filepath.Dir(filepath.Clean(m.folder)), "schema.sql")
}
