package migrator

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mandelsoft/vfs/pkg/memoryfs"
	"github.com/mandelsoft/vfs/pkg/vfs"
	"github.com/stretchr/testify/require"

	"go.hackfix.me/caravel/db"
	"go.hackfix.me/caravel/db/queries"
	"go.hackfix.me/caravel/db/types"
)

const testFolder = "/migrations"

// newTestFS returns an in-memory filesystem with the given files written to
// the migrations folder.
func newTestFS(t *testing.T, files map[string]string) vfs.FileSystem {
	t.Helper()

	fs := memoryfs.New()
	require.NoError(t, fs.MkdirAll(testFolder, 0o755))
	for name, content := range files {
		require.NoError(t, vfs.WriteFile(fs, filepath.Join(testFolder, name), []byte(content), 0o644))
	}

	return fs
}

// testSession wraps a real database session, counting transactions, and
// optionally overriding its dialect.
type testSession struct {
	*db.DB
	dialect types.Dialect
	begins  *int
}

func (s *testSession) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	*s.begins++
	return s.DB.BeginTx(ctx, opts)
}

//nolint:ireturn // Implements Session.
func (s *testSession) Dialect() types.Dialect {
	if s.dialect != nil {
		return s.dialect
	}
	return s.DB.Dialect()
}

// testDB is an SQLite database file shared by all sessions of a test.
type testDB struct {
	path    string
	dialect types.Dialect
	// Counts of opened sessions and started transactions, across all sessions.
	connects int
	begins   int
	// If set, connecting fails with this error.
	connErr error
}

func newTestDB(t *testing.T) *testDB {
	t.Helper()
	return &testDB{path: filepath.Join(t.TempDir(), "caravel.db")}
}

func (tdb *testDB) config() db.Config {
	return db.Config{Driver: db.DriverSQLite, Name: tdb.path}
}

func (tdb *testDB) connect(ctx context.Context) (Session, error) {
	tdb.connects++
	if tdb.connErr != nil {
		return nil, tdb.connErr
	}
	d, err := db.Open(ctx, tdb.config())
	if err != nil {
		return nil, err
	}

	return &testSession{DB: d, dialect: tdb.dialect, begins: &tdb.begins}, nil
}

// query opens a separate session to inspect the database.
func (tdb *testDB) query(t *testing.T, fn func(d *db.DB)) {
	t.Helper()

	d, err := db.Open(t.Context(), tdb.config())
	require.NoError(t, err)
	defer func() { require.NoError(t, d.Close()) }()

	fn(d)
}

func (tdb *testDB) appliedVersions(t *testing.T) []string {
	t.Helper()

	var versions []string
	tdb.query(t, func(d *db.DB) {
		var err error
		versions, err = queries.AppliedVersions(t.Context(), d, d.Dialect(), DefaultTable)
		require.NoError(t, err)
	})
	records := make([]AppliedRecord, len(versions))
	for i, v := range versions {
		records[i] = AppliedRecord{Version: v}
	}
	sorted := SortApplied(records, false)
	out := make([]string, len(sorted))
	for i, r := range sorted {
		out[i] = r.Version
	}

	return out
}

func (tdb *testDB) tableExists(t *testing.T, table string) bool {
	t.Helper()

	var exists bool
	tdb.query(t, func(d *db.DB) {
		var err error
		exists, err = queries.TableExists(t.Context(), d, d.Dialect(), table)
		require.NoError(t, err)
	})

	return exists
}

// lockedDialect simulates a migration lock held by another runner.
type lockedDialect struct {
	types.Dialect
}

func (lockedDialect) TryLock(
	context.Context, types.Querier, string, string, time.Duration,
) (bool, error) {
	return false, nil
}

// fakeSnapshotter records snapshot requests, and writes the list of tables to
// the output path.
type fakeSnapshotter struct {
	fs    vfs.FileSystem
	err   error
	paths []string
}

func (s *fakeSnapshotter) Snapshot(ctx context.Context, q types.Querier, _, outPath string) error {
	s.paths = append(s.paths, outPath)
	if s.err != nil {
		return s.err
	}

	rows, err := q.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var buf bytes.Buffer
	for rows.Next() {
		var name string
		if err = rows.Scan(&name); err != nil {
			return err
		}
		buf.WriteString(name + "\n")
	}
	if err = rows.Err(); err != nil {
		return err
	}

	return vfs.WriteFile(s.fs, outPath, buf.Bytes(), 0o644)
}

// safeBuffer is a thread-safe buffer for capturing log output.
type safeBuffer struct {
	mx  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.buf.String()
}

func newTestLogger() (*slog.Logger, *safeBuffer) {
	buf := &safeBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

var errBoom = errors.New("boom")
