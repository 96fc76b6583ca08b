package app

import (
	"testing"

	"github.com/mandelsoft/vfs/pkg/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aerrors "go.hackfix.me/caravel/app/errors"
	"go.hackfix.me/caravel/db/migrator"
)

var testMigrations = map[string]string{
	"1700000000000-create-users.up.sql":   "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL);",
	"1700000000000-create-users.down.sql": "DROP TABLE users;",
	"1700000000001-create-orders.up.sql": `CREATE TABLE orders (
		id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users (id)
	);
	CREATE INDEX orders_user_id_idx ON orders (user_id);`,
	"1700000000001-create-orders.down.sql": "DROP TABLE orders;",
}

func TestAppRun(t *testing.T) {
	t.Parallel()

	t.Run("ok/apply_all", func(t *testing.T) {
		t.Parallel()

		tapp := newTestApp(t, nil, testMigrations)
		require.NoError(t, tapp.Run("run"))

		assert.Equal(t, []string{"1700000000000", "1700000000001"}, tapp.appliedVersions(t))
		assert.Contains(t, tapp.stderr.String(), "created migrations table")
		assert.Contains(t, tapp.stderr.String(), "migrations finished successfully")

		schema, err := vfs.ReadFile(tapp.fs, "/app/schema.sql")
		require.NoError(t, err)
		assert.Contains(t, string(schema), "CREATE TABLE users")
		assert.Contains(t, string(schema), "CREATE INDEX orders_user_id_idx")
	})

	t.Run("ok/up_to_date", func(t *testing.T) {
		t.Parallel()

		tapp := newTestApp(t, nil, testMigrations)
		require.NoError(t, tapp.Run("run"))
		require.NoError(t, tapp.Run("run"))

		assert.Contains(t, tapp.stderr.String(), "database is up to date")
		assert.NotContains(t, tapp.stderr.String(), "applied migration")
	})

	t.Run("ok/schema_disabled", func(t *testing.T) {
		t.Parallel()

		tapp := newTestApp(t, map[string]any{"schema": map[string]any{"disabled": true}}, testMigrations)
		require.NoError(t, tapp.Run("run"))

		_, err := tapp.fs.Stat("/app/schema.sql")
		assert.True(t, vfs.IsErrNotExist(err))
	})

	t.Run("ok/schema_output", func(t *testing.T) {
		t.Parallel()

		tapp := newTestApp(t, map[string]any{"schema": map[string]any{"output": "/app/db/structure.sql"}}, testMigrations)
		require.NoError(t, tapp.Run("run", "--no-lock"))

		_, err := vfs.ReadFile(tapp.fs, "/app/db/structure.sql")
		require.NoError(t, err)
	})

	t.Run("err/folder_flag", func(t *testing.T) {
		t.Parallel()

		tapp := newTestApp(t, nil, testMigrations)
		err := tapp.Run("--folder", "/nope", "run")

		var dirErr *migrator.FolderNotFoundError
		require.ErrorAs(t, err, &dirErr)
		assert.Equal(t, "/nope", dirErr.Path)
	})

	t.Run("err/failing_migration", func(t *testing.T) {
		t.Parallel()

		files := map[string]string{
			"1-ok.up.sql":     "CREATE TABLE a (id int);",
			"2-broken.up.sql": "CREATE TABLE b (id int); INSERT INTO missing VALUES (1);",
		}
		tapp := newTestApp(t, nil, files)
		err := tapp.Run("run")

		var execErr *migrator.ExecutionError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, "2", execErr.Version)
		assert.Equal(t, []string{"1"}, tapp.appliedVersions(t))
		assert.Contains(t, tapp.stderr.String(), "stopped applying migrations")

		var serr *aerrors.StructuredError
		require.ErrorAs(t, aerrors.Describe(err), &serr)
		assert.Equal(t, "migration failed", serr.Error())
		assert.Equal(t, "broken", serr.Metadata()["name"])
	})
}

func TestAppRevert(t *testing.T) {
	t.Parallel()

	t.Run("ok/default_count", func(t *testing.T) {
		t.Parallel()

		tapp := newTestApp(t, nil, testMigrations)
		require.NoError(t, tapp.Run("run"))
		require.NoError(t, tapp.Run("revert"))

		assert.Equal(t, []string{"1700000000000"}, tapp.appliedVersions(t))
		assert.Contains(t, tapp.stderr.String(), "reverting finished successfully")

		schema, err := vfs.ReadFile(tapp.fs, "/app/schema.sql")
		require.NoError(t, err)
		assert.NotContains(t, string(schema), "orders")
	})

	t.Run("ok/count", func(t *testing.T) {
		t.Parallel()

		tapp := newTestApp(t, nil, testMigrations)
		require.NoError(t, tapp.Run("run"))
		require.NoError(t, tapp.Run("revert", "-n", "5"))

		assert.Empty(t, tapp.appliedVersions(t))
	})

	t.Run("ok/nothing_applied", func(t *testing.T) {
		t.Parallel()

		tapp := newTestApp(t, nil, testMigrations)
		require.NoError(t, tapp.Run("revert"))
		assert.Contains(t, tapp.stderr.String(), "no applied migrations to revert")
	})

	t.Run("err/production_env", func(t *testing.T) {
		t.Parallel()

		tapp := newTestApp(t, nil, testMigrations)
		require.NoError(t, tapp.Run("run"))
		require.NoError(t, tapp.env.Set("CARAVEL_ENV", "production"))

		err := tapp.Run("revert")
		var guardErr *migrator.SafetyGuardError
		require.ErrorAs(t, err, &guardErr)
		assert.Equal(t, []string{"1700000000000", "1700000000001"}, tapp.appliedVersions(t))
	})

	t.Run("err/production_config", func(t *testing.T) {
		t.Parallel()

		tapp := newTestApp(t, map[string]any{"environment": "prod"}, testMigrations)
		err := tapp.Run("revert")
		var guardErr *migrator.SafetyGuardError
		require.ErrorAs(t, err, &guardErr)
	})

	t.Run("err/invalid_count", func(t *testing.T) {
		t.Parallel()

		tapp := newTestApp(t, nil, testMigrations)
		err := tapp.Run("revert", "-n", "0")
		assert.EqualError(t, err, "revert count must be at least 1, got 0")
	})
}

func TestAppStatus(t *testing.T) {
	t.Parallel()

	tapp := newTestApp(t, nil, testMigrations)
	require.NoError(t, tapp.Run("status"))
	assert.Contains(t, tapp.stdout.String(), "pending")
	assert.NotContains(t, tapp.stdout.String(), "applied")

	require.NoError(t, tapp.Run("run"))
	require.NoError(t, vfs.WriteFile(tapp.fs, "/app/migrations/1700000000002-add-email.up.sql",
		[]byte("ALTER TABLE users ADD COLUMN email TEXT;"), 0o644))

	require.NoError(t, tapp.Run("status"))
	out := tapp.stdout.String()
	assert.Contains(t, out, "1700000000000")
	assert.Contains(t, out, "create-users")
	assert.Contains(t, out, "applied")
	assert.Contains(t, out, "add-email")
	assert.Contains(t, out, "pending")
}

func TestAppGenerate(t *testing.T) {
	t.Parallel()

	tapp := newTestApp(t, nil, nil)
	require.NoError(t, tapp.Run("generate", "add", "orders"))

	assert.Equal(t,
		"/app/migrations/1735689600000-add-orders.up.sql\n"+
			"/app/migrations/1735689600000-add-orders.down.sql\n",
		tapp.stdout.String())

	content, err := vfs.ReadFile(tapp.fs, "/app/migrations/1735689600000-add-orders.up.sql")
	require.NoError(t, err)
	assert.Equal(t, "-- Your migration code here.\n", string(content))

	// The generated scaffolding applies cleanly.
	require.NoError(t, tapp.Run("run"))
	assert.Equal(t, []string{"1735689600000"}, tapp.appliedVersions(t))
}

func TestAppGenerateCreatesFolder(t *testing.T) {
	t.Parallel()

	tapp := newTestApp(t, nil, nil)
	require.NoError(t, tapp.Run("--folder", "/new/migrations", "generate", "init"))

	fi, err := tapp.fs.Stat("/new/migrations")
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
	assert.Contains(t, tapp.stderr.String(), "creating migrations folder")
}
