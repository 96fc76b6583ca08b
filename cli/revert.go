package cli

import (
	actx "go.hackfix.me/caravel/app/context"
)

// The Revert command reverts the most recently applied migrations.
type Revert struct {
	Count  int  `short:"n" default:"1" help:"Number of migrations to revert."`
	NoLock bool `help:"Don't acquire the migration lock. Only safe if no other runner can migrate the same database."`
}

// Run the revert command.
func (c *Revert) Run(appCtx *actx.Context) error {
	m, err := newMigrator(appCtx, c.NoLock)
	if err != nil {
		return err
	}

	report, err := m.Revert(appCtx.Ctx, c.Count)
	if err != nil {
		if report.FailedAt != "" {
			appCtx.Logger.Error("stopped reverting migrations",
				"failed_at", report.FailedAt, "reverted", len(report.Reverted))
		}
		return err
	}

	return nil
}
