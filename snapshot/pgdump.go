package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/mandelsoft/vfs/pkg/vfs"

	"go.hackfix.me/caravel/db"
	"go.hackfix.me/caravel/db/migrator"
	"go.hackfix.me/caravel/db/types"
)

// Runner runs an external command and returns its standard output.
type Runner func(ctx context.Context, name string, args, env []string) ([]byte, error)

// PgDump writes the schema of a PostgreSQL database with the pg_dump utility.
type PgDump struct {
	fs  vfs.FileSystem
	cfg db.Config
	bin string
	run Runner
}

var _ migrator.Snapshotter = (*PgDump)(nil)

// NewPgDump returns a new PgDump snapshotter. If bin is empty, pg_dump is
// looked up in PATH.
func NewPgDump(fsys vfs.FileSystem, cfg db.Config, bin string) *PgDump {
	if bin == "" {
		bin = "pg_dump"
	}
	return &PgDump{fs: fsys, cfg: cfg, bin: bin, run: execRunner}
}

// WithRunner replaces the function used to run pg_dump.
func (p *PgDump) WithRunner(run Runner) *PgDump {
	p.run = run
	return p
}

// Snapshot implements migrator.Snapshotter. Connection parameters are passed
// through libpq environment variables, so the password never appears in the
// process arguments.
func (p *PgDump) Snapshot(ctx context.Context, _ types.Querier, database, outPath string) error {
	args := []string{"--schema-only", "--no-owner", "--no-privileges"}
	env := []string{}

	if p.cfg.URL != "" {
		u, err := url.Parse(p.cfg.URL)
		if err != nil {
			return fmt.Errorf("failed parsing database URL: %w", err)
		}
		if pw, ok := u.User.Password(); ok {
			env = append(env, "PGPASSWORD="+pw)
			u.User = url.User(u.User.Username())
		}
		args = append(args, "--dbname="+u.String())
	} else {
		env = appendEnv(env, "PGHOST", p.cfg.Host)
		if p.cfg.Port != 0 {
			env = appendEnv(env, "PGPORT", strconv.Itoa(int(p.cfg.Port)))
		}
		env = appendEnv(env, "PGUSER", p.cfg.User)
		env = appendEnv(env, "PGPASSWORD", p.cfg.Password)
		env = appendEnv(env, "PGSSLMODE", p.cfg.SSLMode)
		env = appendEnv(env, "PGDATABASE", database)
	}

	out, err := p.run(ctx, p.bin, args, env)
	if err != nil {
		return err
	}

	return writeFile(p.fs, outPath, out)
}

func appendEnv(env []string, key, val string) []string {
	if val == "" {
		return env
	}
	return append(env, key+"="+val)
}

func execRunner(ctx context.Context, name string, args, env []string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%s exited with code %d: %s",
				name, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("failed running %s: %w", name, err)
	}

	return stdout.Bytes(), nil
}
