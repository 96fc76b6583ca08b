package migrator

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"go.hackfix.me/caravel/db/types"
)

// Revert undoes up to count of the applied migrations, which must be sorted by
// descending version. Each down script runs in its own transaction together
// with the deletion of its version record.
//
// If an applied migration has no down script, a *MissingDownScriptError is
// returned immediately. Reverting past it would leave a gap in the applied
// history. Migrations reverted before a failure stay reverted, and their
// versions are always returned.
func Revert(
	ctx context.Context, b Beginner, store *Store, count int,
	appliedDesc []AppliedRecord, available []*Migration, logger *slog.Logger,
) ([]string, error) {
	if count < 1 {
		return nil, types.InvalidInputError{Msg: fmt.Sprintf("revert count must be at least 1, got %d", count)}
	}

	byVersion := make(map[string]*Migration, len(available))
	for _, m := range available {
		byVersion[m.Version] = m
	}

	n := min(count, len(appliedDesc))
	reverted := make([]string, 0, n)
	for _, rec := range appliedDesc[:n] {
		m, ok := byVersion[rec.Version]
		if !ok || !m.HasDown() {
			return reverted, &MissingDownScriptError{Version: rec.Version}
		}

		mlogger := logger.With("version", m.Version, "name", m.Name)
		mlogger.Debug("reverting migration")

		err := inTx(ctx, b, func(tx *sql.Tx) error {
			if err := execScript(ctx, tx, m.DownSQL); err != nil {
				return fmt.Errorf("failed executing %s: %w", m.DownFile, err)
			}
			return store.DeleteApplied(ctx, tx, m.Version)
		})
		if err != nil {
			return reverted, &ExecutionError{Version: m.Version, Name: m.Name, Op: "revert", Err: err}
		}

		reverted = append(reverted, m.Version)
		mlogger.Info("reverted migration")
	}

	logger.Info("reverting finished successfully", "count", len(reverted))

	return reverted, nil
}
