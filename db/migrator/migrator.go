package migrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/mandelsoft/vfs/pkg/vfs"

	"go.hackfix.me/caravel/db/types"
)

// Migrator applies and reverts migrations stored in a folder.
type Migrator struct {
	connect      Connector
	fs           vfs.FileSystem
	folder       string
	table        string
	logger       *slog.Logger
	snapshotter  Snapshotter
	schemaOutput string
	environment  string
	lockEnabled  bool
	lockTimeout  time.Duration
	lockStale    time.Duration
	lockPoll     time.Duration
}

// Report summarizes the outcome of a run or revert.
type Report struct {
	// Applied are the versions applied by a run, in order.
	Applied []string
	// Reverted are the versions reverted by a revert, in order.
	Reverted []string
	// FailedAt is the version whose script failed, if any.
	FailedAt string
}

// New returns a new Migrator that opens a session with connect on every
// operation, and reads migrations from fsys.
func New(connect Connector, fsys vfs.FileSystem, opts ...Option) (*Migrator, error) {
	if connect == nil {
		return nil, errors.New("database connector is required")
	}
	if fsys == nil {
		return nil, errors.New("filesystem is required")
	}

	m := &Migrator{connect: connect, fs: fsys, lockPoll: defaultLockPollInterval}

	opts = append(DefaultOptions(), opts...)
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Run applies all pending migrations in ascending version order.
func (m *Migrator) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	err := m.withSession(ctx, true, func(sess Session, st *state, logger *slog.Logger) error {
		pending := Pending(st.applied, st.available)
		logger.Info("found pending migrations", "count", len(pending))

		applied, err := Apply(ctx, sess, st.store, pending, logger)
		report.Applied = applied
		var execErr *ExecutionError
		if errors.As(err, &execErr) {
			report.FailedAt = execErr.Version
		}

		if err == nil || len(applied) > 0 {
			m.snapshot(ctx, sess, logger)
		}

		return err
	})

	return report, err
}

// Revert reverts the count most recently applied migrations, in descending
// version order.
func (m *Migrator) Revert(ctx context.Context, count int) (*Report, error) {
	report := &Report{}

	if count < 1 {
		return report, types.InvalidInputError{Msg: fmt.Sprintf("revert count must be at least 1, got %d", count)}
	}
	if m.isProduction() {
		return report, &SafetyGuardError{Environment: m.environment}
	}

	err := m.withSession(ctx, true, func(sess Session, st *state, logger *slog.Logger) error {
		if len(st.applied) == 0 {
			logger.Info("no applied migrations to revert")
			return nil
		}

		appliedDesc := SortApplied(st.applied, true)
		reverted, err := Revert(ctx, sess, st.store, count, appliedDesc, st.available, logger)
		report.Reverted = reverted
		var (
			execErr *ExecutionError
			downErr *MissingDownScriptError
		)
		switch {
		case errors.As(err, &execErr):
			report.FailedAt = execErr.Version
		case errors.As(err, &downErr):
			report.FailedAt = downErr.Version
		}

		if err == nil || len(reverted) > 0 {
			m.snapshot(ctx, sess, logger)
		}

		return err
	})

	return report, err
}

// StatusEntry describes the state of a single migration.
type StatusEntry struct {
	Migration *Migration
	// Version is set for every entry, including orphans without a Migration.
	Version string
	Applied bool
	// Orphan is true if the version is recorded as applied, but no migration
	// file for it exists.
	Orphan bool
}

// Status returns the state of all known migrations, ordered by version. It
// doesn't modify the database.
func (m *Migrator) Status(ctx context.Context) ([]StatusEntry, error) {
	var entries []StatusEntry

	err := m.withSession(ctx, false, func(_ Session, st *state, _ *slog.Logger) error {
		done := make(map[string]struct{}, len(st.applied))
		for _, a := range st.applied {
			done[a.Version] = struct{}{}
		}

		for _, mig := range st.available {
			_, applied := done[mig.Version]
			entries = append(entries, StatusEntry{Migration: mig, Version: mig.Version, Applied: applied})
		}
		orphans := Orphans(SortApplied(st.applied, false), st.available)
		for _, v := range orphans {
			entries = append(entries, StatusEntry{Version: v, Applied: true, Orphan: true})
		}
		slices.SortStableFunc(entries, func(a, b StatusEntry) int {
			return compareVersions(a.Version, b.Version)
		})

		return nil
	})

	return entries, err
}

// state is the reconciliation input shared by all operations.
type state struct {
	store     *Store
	applied   []AppliedRecord
	available []*Migration
}

// withSession opens a session, acquires the migration lock, loads the applied
// and available migrations, and runs fn. The lock and session are released on
// every path. If mutate is false, the migrations table isn't created, and no
// lock is taken.
func (m *Migrator) withSession(
	ctx context.Context, mutate bool, fn func(Session, *state, *slog.Logger) error,
) (err error) {
	sess, err := m.connect(ctx)
	if err != nil {
		return err
	}

	logger := m.logger.With("target", sess.Target())
	logger.Debug("connected to database")

	defer func() {
		if cerr := sess.Close(); cerr != nil {
			logger.Warn("failed closing database session", "error", cerr)
		}
	}()

	store, err := NewStore(sess.Dialect(), m.table)
	if err != nil {
		return err
	}

	if mutate && m.lockEnabled {
		lock, lerr := acquireLock(ctx, sess, m.table, m.lockTimeout, m.lockStale, m.lockPoll, logger)
		if lerr != nil {
			return lerr
		}
		defer func() {
			if rerr := lock.release(ctx); rerr != nil {
				err = errors.Join(err, rerr)
			}
		}()
	}

	st := &state{store: store}
	exists := true
	if mutate {
		created, terr := store.EnsureTable(ctx, sess)
		if terr != nil {
			return terr
		}
		if created {
			logger.Info("created migrations table", "table", m.table)
		}
	} else if exists, err = store.TableExists(ctx, sess); err != nil {
		return err
	}

	if exists {
		if st.applied, err = store.ListApplied(ctx, sess); err != nil {
			return err
		}
	}

	if st.available, err = LoadMigrations(m.fs, m.folder, logger); err != nil {
		return err
	}
	logger.Debug("loaded migrations", "folder", m.folder,
		"available", len(st.available), "applied", len(st.applied))

	return fn(sess, st, logger)
}

// snapshot exports the current schema. Failures are only logged.
func (m *Migrator) snapshot(ctx context.Context, sess Session, logger *slog.Logger) {
	if m.snapshotter == nil {
		return
	}

	path := m.snapshotPath()
	if err := m.snapshotter.Snapshot(ctx, sess, sess.Database(), path); err != nil {
		logger.Warn("schema snapshot failed", "error", &SnapshotError{Path: path, Err: err})
		return
	}
	logger.Info("wrote schema snapshot", "path", path)
}

func (m *Migrator) isProduction() bool {
	env := strings.ToLower(strings.TrimSpace(m.environment))
	return env == "production" || env == "prod"
}
