package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/alecthomas/kong"

	"go.hackfix.me/caravel/app/config"
	actx "go.hackfix.me/caravel/app/context"
)

// CLI is the command line interface of Caravel.
type CLI struct {
	Run      Run      `kong:"cmd,help='Apply all pending migrations.'"`
	Revert   Revert   `kong:"cmd,help='Revert the most recently applied migrations.'"`
	Status   Status   `kong:"cmd,help='Show the state of all migrations.'"`
	Generate Generate `kong:"cmd,help='Create a new pair of migration files.'"`

	Log struct {
		Level slog.Level `enum:"DEBUG,INFO,WARN,ERROR" default:"INFO" help:"Set the app logging level."`
	} `embed:"" prefix:"log-"`
	// NOTE: Not using kong.ConfigFlag, since the configuration file has its own
	// format and environment fallbacks.
	ConfigFile string           `kong:"default='${configFile}',help='Path to the Caravel configuration file.'"`
	Folder     string           `kong:"short='f',help='Path to the migrations folder. Overrides the configuration file.'"`
	Version    kong.VersionFlag `kong:"help='Output version and exit.'"`

	kong *kong.Kong
	kctx *kong.Context
}

// New initializes the command-line interface.
func New(configFilePath, version string) (*CLI, error) {
	c := &CLI{}
	kparser, err := kong.New(c,
		kong.Name("caravel"),
		kong.Description("Apply and revert SQL schema migrations."),
		kong.UsageOnError(),
		kong.DefaultEnvars("CARAVEL"),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			Summary:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"configFile": configFilePath,
			"version":    version,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed creating the Kong parser: %w", err)
	}

	c.kong = kparser

	return c, nil
}

// Execute starts the command execution. Parse must be called before this method.
func (c *CLI) Execute(appCtx *actx.Context) error {
	if c.kctx == nil {
		panic("the CLI wasn't initialized properly")
	}
	c.kong.Stdout = appCtx.Stdout
	c.kong.Stderr = appCtx.Stderr

	//nolint:wrapcheck // This is fine.
	return c.kctx.Run(appCtx)
}

// Parse the given command line arguments. This method must be called before
// Execute.
func (c *CLI) Parse(args []string) error {
	kctx, err := c.kong.Parse(args)
	if err != nil {
		return fmt.Errorf("failed parsing CLI arguments: %w", err)
	}
	c.kctx = kctx

	return nil
}

// Command returns the full path of the executed command.
func (c *CLI) Command() string {
	if c.kctx == nil {
		panic("the CLI wasn't initialized properly")
	}
	cmdPath := []string{}
	for _, p := range c.kctx.Path {
		if p.Command != nil {
			cmdPath = append(cmdPath, p.Command.Name)
		}
	}

	return strings.Join(cmdPath, " ")
}

// ApplyConfig applies CLI flag values to the configuration, which take
// precedence over the configuration file and the environment.
func (c *CLI) ApplyConfig(cfg *config.Config) {
	if c.Folder != "" {
		cfg.Migrations.Folder.V = c.Folder
		cfg.Migrations.Folder.Valid = true
	}
}
