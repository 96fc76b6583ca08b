package migrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Apply runs the up script of each pending migration in order, each in its own
// transaction together with the insertion of its version record. Processing
// stops at the first failure, which rolls back the transaction of the failing
// migration only, and is returned as an *ExecutionError. The versions that
// were committed are always returned.
func Apply(
	ctx context.Context, b Beginner, store *Store, pending []*Migration, logger *slog.Logger,
) ([]string, error) {
	if len(pending) == 0 {
		logger.Info("database is up to date")
		return nil, nil
	}

	applied := make([]string, 0, len(pending))
	for _, m := range pending {
		mlogger := logger.With("version", m.Version, "name", m.Name)
		mlogger.Debug("applying migration")

		err := inTx(ctx, b, func(tx *sql.Tx) error {
			if err := execScript(ctx, tx, m.UpSQL); err != nil {
				return fmt.Errorf("failed executing %s: %w", m.UpFile, err)
			}
			return store.InsertApplied(ctx, tx, m.Version)
		})
		if err != nil {
			return applied, &ExecutionError{Version: m.Version, Name: m.Name, Op: "apply", Err: err}
		}

		applied = append(applied, m.Version)
		mlogger.Info("applied migration")
	}

	logger.Info("migrations finished successfully", "count", len(applied))

	return applied, nil
}

// inTx runs fn within a transaction, which is committed if fn succeeds, and
// rolled back otherwise.
func inTx(ctx context.Context, b Beginner, fn func(tx *sql.Tx) error) error {
	tx, err := b.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed starting transaction: %w", err)
	}

	if err = fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("failed rolling back transaction: %w", rerr))
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed committing transaction: %w", err)
	}

	return nil
}

// execScript executes a possibly multi-statement SQL script. Blank scripts
// are a no-op.
func execScript(ctx context.Context, tx *sql.Tx, script string) error {
	if strings.TrimSpace(script) == "" {
		return nil
	}
	_, err := tx.ExecContext(ctx, script)
	return err //nolint:wrapcheck // This is wrapped by the caller.
}
