package cli

import (
	"context"

	actx "go.hackfix.me/caravel/app/context"
	"go.hackfix.me/caravel/db"
	"go.hackfix.me/caravel/db/migrator"
	"go.hackfix.me/caravel/snapshot"
)

// newMigrator creates a Migrator from the application configuration.
func newMigrator(appCtx *actx.Context, noLock bool) (*migrator.Migrator, error) {
	cfg := appCtx.Config
	dbCfg := cfg.DB()

	connect := func(ctx context.Context) (migrator.Session, error) {
		d, err := db.Open(ctx, dbCfg)
		if err != nil {
			return nil, err
		}
		return d, nil
	}

	opts := []migrator.Option{
		migrator.WithFolder(cfg.Migrations.Folder.V),
		migrator.WithTable(cfg.Migrations.Table.V),
		migrator.WithEnvironment(cfg.Environment.V),
		migrator.WithLogger(appCtx.Logger),
		migrator.WithLock(cfg.Migrations.LockTimeout.V),
		migrator.WithLockStaleAfter(cfg.Migrations.LockStaleAfter.V),
	}
	if noLock {
		opts = append(opts, migrator.WithoutLock())
	}
	if !cfg.Schema.Disabled {
		snap, err := snapshot.New(appCtx.FS, dbCfg, cfg.Schema.PgDump.V,
			db.LockTableName(cfg.Migrations.Table.V))
		if err != nil {
			return nil, err
		}
		opts = append(opts, migrator.WithSnapshotter(snap, cfg.Schema.Output.V))
	}

	return migrator.New(connect, appCtx.FS, opts...)
}
