package cli

import (
	actx "go.hackfix.me/caravel/app/context"
)

// The Run command applies all pending migrations.
type Run struct {
	NoLock bool `help:"Don't acquire the migration lock. Only safe if no other runner can migrate the same database."`
}

// Run the run command.
func (c *Run) Run(appCtx *actx.Context) error {
	m, err := newMigrator(appCtx, c.NoLock)
	if err != nil {
		return err
	}

	report, err := m.Run(appCtx.Ctx)
	if err != nil {
		if report.FailedAt != "" {
			appCtx.Logger.Error("stopped applying migrations",
				"failed_at", report.FailedAt, "applied", len(report.Applied))
		}
		return err
	}

	return nil
}
