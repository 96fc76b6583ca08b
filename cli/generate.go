package cli

import (
	"fmt"
	"strings"

	actx "go.hackfix.me/caravel/app/context"
	"go.hackfix.me/caravel/db/migrator"
)

// The Generate command creates a new pair of up and down migration files.
type Generate struct {
	Name []string `arg:"" help:"Descriptive name of the migration. Spaces are replaced with hyphens."`
}

// Run the generate command.
func (c *Generate) Run(appCtx *actx.Context) error {
	paths, err := migrator.Generate(
		appCtx.FS, appCtx.Config.Migrations.Folder.V, strings.Join(c.Name, " "),
		appCtx.TimeNow(), appCtx.Logger,
	)
	if err != nil {
		return err
	}

	for _, p := range paths {
		if _, err = fmt.Fprintln(appCtx.Stdout, p); err != nil {
			return fmt.Errorf("failed writing output: %w", err)
		}
	}

	return nil
}
