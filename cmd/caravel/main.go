package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/adrg/xdg"
	"github.com/mandelsoft/vfs/pkg/osfs"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"go.hackfix.me/caravel/app"
	aerrors "go.hackfix.me/caravel/app/errors"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Canceling on interrupt lets a run roll back its transaction and release
	// the migration lock before exiting.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configFile := filepath.Join(xdg.ConfigHome, "caravel", "config.json")
	a, err := app.New("caravel", configFile,
		app.WithContext(ctx),
		app.WithFDs(
			os.Stdin,
			colorable.NewColorable(os.Stdout),
			colorable.NewColorable(os.Stderr),
		),
		app.WithFS(osfs.New()),
		app.WithLogger(
			isatty.IsTerminal(os.Stdout.Fd()),
			isatty.IsTerminal(os.Stderr.Fd()),
		),
	)
	if err != nil {
		aerrors.Errorf(err)
		return 1
	}
	if err = a.Run(os.Args[1:]); err != nil {
		aerrors.Errorf(err)
		return 1
	}

	return 0
}
