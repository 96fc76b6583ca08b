package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/mandelsoft/vfs/pkg/memoryfs"

	"go.hackfix.me/caravel/app/config"
	actx "go.hackfix.me/caravel/app/context"
	"go.hackfix.me/caravel/cli"
)

// App is the application.
type App struct {
	name string
	ctx  *actx.Context
	cli  *cli.CLI
	// the logging level is set via the CLI, if the app was initialized with the
	// WithLogger option.
	logLevel *slog.LevelVar
}

// New initializes a new application. configFilePath is the default path of the
// configuration file, which can be overridden via the CLI.
func New(name, configFilePath string, opts ...Option) (*App, error) {
	defaultCtx := &actx.Context{
		Ctx:     context.Background(),
		FS:      memoryfs.New(),
		Env:     processEnv{},
		Logger:  slog.Default(),
		TimeNow: time.Now,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Version: buildVersion(),
	}
	app := &App{name: name, ctx: defaultCtx}

	for _, opt := range opts {
		opt(app)
	}

	var err error
	ver := fmt.Sprintf("%s %s", app.name, app.ctx.Version)
	app.cli, err = cli.New(configFilePath, ver)
	if err != nil {
		return nil, err
	}

	return app, nil
}

// Run initializes the application environment and starts execution of the
// application.
func (app *App) Run(args []string) error {
	if err := app.cli.Parse(args); err != nil {
		return err
	}

	if app.logLevel != nil {
		app.logLevel.Set(app.cli.Log.Level)
		slog.SetLogLoggerLevel(app.cli.Log.Level)
	}

	if err := app.loadConfig(); err != nil {
		return err
	}

	if err := app.cli.Execute(app.ctx); err != nil {
		return err
	}

	return nil
}

// loadConfig resolves the configuration in order of precedence: CLI flags,
// the configuration file, environment variables and defaults.
func (app *App) loadConfig() error {
	cfg := config.NewConfig(app.ctx.FS, app.cli.ConfigFile)
	if err := cfg.Load(); err != nil {
		return err
	}
	if err := cfg.ApplyEnv(app.ctx.Env.Get); err != nil {
		return err
	}
	app.cli.ApplyConfig(cfg)
	cfg.SetDefaults(app.ctx.Env.Get)

	app.ctx.Config = cfg
	app.ctx.Logger.Debug("loaded configuration", "path", cfg.Path(),
		"driver", cfg.Database.Driver.V, "folder", cfg.Migrations.Folder.V)

	return nil
}

func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" {
		return "(devel)"
	}
	return info.Main.Version
}

type processEnv struct{}

var _ actx.Environment = processEnv{}

func (processEnv) Get(key string) string {
	return os.Getenv(key)
}

func (processEnv) Set(key, val string) error {
	//nolint:wrapcheck // This is fine.
	return os.Setenv(key, val)
}
