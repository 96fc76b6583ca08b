package app

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mandelsoft/vfs/pkg/memoryfs"
	"github.com/mandelsoft/vfs/pkg/vfs"
	"github.com/stretchr/testify/require"

	actx "go.hackfix.me/caravel/app/context"
	"go.hackfix.me/caravel/db"
	"go.hackfix.me/caravel/db/migrator"
	"go.hackfix.me/caravel/db/queries"
)

var timeNow = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func timeNowFn() time.Time {
	return timeNow
}

type testApp struct {
	*App
	fs             vfs.FileSystem
	stdout, stderr *safeBuffer
	env            *mockEnv
	dbPath         string
}

// newTestApp returns an application that migrates an SQLite database file in
// a temporary directory, with migrations read from an in-memory filesystem.
func newTestApp(t *testing.T, cfg map[string]any, files map[string]string) *testApp {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "caravel.db")
	fs := memoryfs.New()

	if cfg == nil {
		cfg = map[string]any{}
	}
	if _, ok := cfg["database"]; !ok {
		cfg["database"] = map[string]any{"driver": "sqlite", "name": dbPath}
	}
	cfgJSON, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, vfs.WriteFile(fs, "/config.json", cfgJSON, 0o644))

	require.NoError(t, fs.MkdirAll("/app/migrations", 0o755))
	for name, content := range files {
		require.NoError(t, vfs.WriteFile(fs, filepath.Join("/app/migrations", name), []byte(content), 0o644))
	}

	stdout, stderr := newSafeBuffer(), newSafeBuffer()
	env := &mockEnv{env: map[string]string{"MIGRATIONS_FOLDER_NAME": "/app/migrations"}}
	app, err := New("caravel", "/config.json",
		WithTimeNow(timeNowFn),
		WithEnv(env),
		WithContext(t.Context()),
		WithFDs(&bytes.Buffer{}, stdout, stderr),
		WithFS(fs),
		WithLogger(false, false),
		WithVersion("v1.0.0"),
	)
	require.NoError(t, err)

	return &testApp{App: app, fs: fs, stdout: stdout, stderr: stderr, env: env, dbPath: dbPath}
}

func (ta *testApp) Run(args ...string) error {
	ta.stdout.Reset()
	ta.stderr.Reset()

	return ta.App.Run(args)
}

func (ta *testApp) appliedVersions(t *testing.T) []string {
	t.Helper()

	d, err := db.Open(t.Context(), db.Config{Driver: db.DriverSQLite, Name: ta.dbPath})
	require.NoError(t, err)
	defer d.Close()

	exists, err := queries.TableExists(t.Context(), d, d.Dialect(), migrator.DefaultTable)
	require.NoError(t, err)
	if !exists {
		return []string{}
	}

	versions, err := queries.AppliedVersions(t.Context(), d, d.Dialect(), migrator.DefaultTable)
	require.NoError(t, err)
	records := make([]migrator.AppliedRecord, len(versions))
	for i, v := range versions {
		records[i] = migrator.AppliedRecord{Version: v}
	}
	out := []string{}
	for _, r := range migrator.SortApplied(records, false) {
		out = append(out, r.Version)
	}

	return out
}

type mockEnv struct {
	mx  sync.RWMutex
	env map[string]string
}

var _ actx.Environment = (*mockEnv)(nil)

func (me *mockEnv) Get(key string) string {
	me.mx.RLock()
	defer me.mx.RUnlock()
	return me.env[key]
}

func (me *mockEnv) Set(key, val string) error {
	me.mx.Lock()
	defer me.mx.Unlock()
	me.env[key] = val
	return nil
}

// safeBuffer is a thread-safe buffer.
type safeBuffer struct {
	mx  sync.RWMutex
	buf *bytes.Buffer
}

func newSafeBuffer() *safeBuffer {
	return &safeBuffer{buf: &bytes.Buffer{}}
}

func (b *safeBuffer) Write(p []byte) (n int, err error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) Reset() {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.buf.Reset()
}

func (b *safeBuffer) String() string {
	b.mx.RLock()
	defer b.mx.RUnlock()
	return b.buf.String()
}
