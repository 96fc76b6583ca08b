package migrator

import (
	"database/sql"
	"errors"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.hackfix.me/caravel/db"
)

const (
	pgInsert = `INSERT INTO "caravel_migrations" (version) VALUES ($1)`
	pgDelete = `DELETE FROM "caravel_migrations" WHERE version = $1`
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store, err := NewStore(db.Postgres{}, DefaultTable)
	require.NoError(t, err)

	return store, mock, sqlDB
}

func TestApply(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)

	t.Run("ok/each_in_own_transaction", func(t *testing.T) {
		t.Parallel()

		store, mock, conn := newMockStore(t)
		pending := []*Migration{
			{Version: "1", Name: "a", UpSQL: "CREATE TABLE a (id int);"},
			{Version: "2", Name: "b", UpSQL: "CREATE TABLE b (id int);"},
		}
		for _, m := range pending {
			mock.ExpectBegin()
			mock.ExpectExec(m.UpSQL).WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec(pgInsert).WithArgs(m.Version).WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectCommit()
		}

		applied, err := Apply(t.Context(), conn, store, pending, logger)
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "2"}, applied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ok/blank_script", func(t *testing.T) {
		t.Parallel()

		store, mock, conn := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(pgInsert).WithArgs("1").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		applied, err := Apply(t.Context(), conn, store,
			[]*Migration{{Version: "1", Name: "noop", UpSQL: "  \n"}}, logger)
		require.NoError(t, err)
		assert.Equal(t, []string{"1"}, applied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ok/empty", func(t *testing.T) {
		t.Parallel()

		store, mock, conn := newMockStore(t)
		logger, logs := newTestLogger()

		applied, err := Apply(t.Context(), conn, store, nil, logger)
		require.NoError(t, err)
		assert.Empty(t, applied)
		assert.Contains(t, logs.String(), "database is up to date")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("err/stops_at_failure", func(t *testing.T) {
		t.Parallel()

		store, mock, conn := newMockStore(t)
		pending := []*Migration{
			{Version: "1", Name: "a", UpFile: "1-a.up.sql", UpSQL: "CREATE TABLE a (id int);"},
			{Version: "2", Name: "b", UpFile: "2-b.up.sql", UpSQL: "CREATE TABLE b (id int);"},
			{Version: "3", Name: "c", UpFile: "3-c.up.sql", UpSQL: "CREATE TABLE c (id int);"},
		}
		mock.ExpectBegin()
		mock.ExpectExec(pending[0].UpSQL).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(pgInsert).WithArgs("1").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
		mock.ExpectBegin()
		mock.ExpectExec(pending[1].UpSQL).WillReturnError(errBoom)
		mock.ExpectRollback()

		applied, err := Apply(t.Context(), conn, store, pending, logger)
		assert.Equal(t, []string{"1"}, applied)

		var execErr *ExecutionError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, "2", execErr.Version)
		assert.Equal(t, "apply", execErr.Op)
		assert.ErrorIs(t, err, errBoom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("err/rollback_failure", func(t *testing.T) {
		t.Parallel()

		store, mock, conn := newMockStore(t)
		errRollback := errors.New("rollback failed")
		mock.ExpectBegin()
		mock.ExpectExec("CREATE TABLE a (id int);").WillReturnError(errBoom)
		mock.ExpectRollback().WillReturnError(errRollback)

		applied, err := Apply(t.Context(), conn, store,
			[]*Migration{{Version: "1", Name: "a", UpSQL: "CREATE TABLE a (id int);"}}, logger)
		assert.Empty(t, applied)
		assert.ErrorIs(t, err, errBoom)
		assert.ErrorIs(t, err, errRollback)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("err/insert_failure", func(t *testing.T) {
		t.Parallel()

		store, mock, conn := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec("SELECT 1;").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(pgInsert).WithArgs("1").WillReturnError(errBoom)
		mock.ExpectRollback()

		applied, err := Apply(t.Context(), conn, store,
			[]*Migration{{Version: "1", Name: "a", UpSQL: "SELECT 1;"}}, logger)
		assert.Empty(t, applied)
		var execErr *ExecutionError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, "1", execErr.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRevert(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)
	available := []*Migration{
		{Version: "1", Name: "a", DownFile: "1-a.down.sql", DownSQL: "DROP TABLE a;"},
		{Version: "2", Name: "b"},
		{Version: "3", Name: "c", DownFile: "3-c.down.sql", DownSQL: "DROP TABLE c;"},
	}

	t.Run("ok/latest_first", func(t *testing.T) {
		t.Parallel()

		store, mock, conn := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec("DROP TABLE c;").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(pgDelete).WithArgs("3").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		reverted, err := Revert(t.Context(), conn, store, 1, records("3", "2", "1"), available, logger)
		require.NoError(t, err)
		assert.Equal(t, []string{"3"}, reverted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("err/missing_down", func(t *testing.T) {
		t.Parallel()

		store, mock, conn := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec("DROP TABLE c;").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(pgDelete).WithArgs("3").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		reverted, err := Revert(t.Context(), conn, store, 3, records("3", "2", "1"), available, logger)
		assert.Equal(t, []string{"3"}, reverted)
		var downErr *MissingDownScriptError
		require.ErrorAs(t, err, &downErr)
		assert.Equal(t, "2", downErr.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("err/missing_file", func(t *testing.T) {
		t.Parallel()

		store, mock, conn := newMockStore(t)

		reverted, err := Revert(t.Context(), conn, store, 1, records("9"), available, logger)
		assert.Empty(t, reverted)
		var downErr *MissingDownScriptError
		require.ErrorAs(t, err, &downErr)
		assert.Equal(t, "9", downErr.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("err/script_failure", func(t *testing.T) {
		t.Parallel()

		store, mock, conn := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec("DROP TABLE c;").WillReturnError(errBoom)
		mock.ExpectRollback()

		reverted, err := Revert(t.Context(), conn, store, 1, records("3"), available, logger)
		assert.Empty(t, reverted)
		var execErr *ExecutionError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, "revert", execErr.Op)
		assert.ErrorIs(t, err, errBoom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("err/invalid_count", func(t *testing.T) {
		t.Parallel()

		store, _, conn := newMockStore(t)
		_, err := Revert(t.Context(), conn, store, 0, records("3"), available, logger)
		assert.EqualError(t, err, "revert count must be at least 1, got 0")
	})
}
