package config

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mandelsoft/vfs/pkg/vfs"

	"go.hackfix.me/caravel/db"
	"go.hackfix.me/caravel/db/migrator"
	"go.hackfix.me/caravel/xtime"
)

// Config represents the application configuration, read from a JSON file.
type Config struct {
	// Environment is the name of the runtime environment. Reverting migrations
	// is refused in production.
	Environment sql.Null[string]
	Database    Database
	Migrations  Migrations
	Schema      Schema

	fs   vfs.FileSystem
	path string
}

// NewConfig creates a new Config instance with the specified filesystem
// and configuration file path.
func NewConfig(fs vfs.FileSystem, path string) *Config {
	return &Config{fs: fs, path: path}
}

// Load reads and parses the configuration file from the filesystem.
// If the file doesn't exist, it initializes with an empty configuration.
func (c *Config) Load() error {
	if c.path == "" {
		return nil
	}

	configJSON, err := vfs.ReadFile(c.fs, c.path)
	if err != nil && !vfs.IsErrNotExist(err) {
		return fmt.Errorf("failed reading configuration file: %w", err)
	}

	// Ensure that unmarshalling JSON doesn't fail if the file doesn't exist or is empty.
	if len(configJSON) == 0 {
		configJSON = []byte("{}")
	}

	if err = json.Unmarshal(configJSON, c); err != nil {
		return fmt.Errorf("failed parsing configuration file: %w", err)
	}

	return nil
}

// Path returns the filesystem path of the configuration file.
func (c *Config) Path() string {
	return c.path
}

// Database defines the connection parameters of the migrated database.
type Database struct {
	// Driver is either "postgres" or "sqlite".
	Driver sql.Null[string] `json:"driver"`
	// URL is a full connection URL, or an SQLite DSN. If set, it takes
	// precedence over the individual connection fields.
	URL      sql.Null[string] `json:"url"`
	Host     sql.Null[string] `json:"host"`
	Port     sql.Null[uint16] `json:"port"`
	User     sql.Null[string] `json:"user"`
	Password sql.Null[string] `json:"password"`
	// Name is the database name, or the database file path for SQLite.
	Name    sql.Null[string] `json:"name"`
	SSLMode sql.Null[string] `json:"sslmode"`
}

// Migrations defines where migrations are read from and how they're tracked.
type Migrations struct {
	Folder sql.Null[string] `json:"folder"`
	Table  sql.Null[string] `json:"table"`
	// LockTimeout is the maximum time to wait for other runners to release the
	// migration lock. It serializes from/to xtime.Duration string values.
	LockTimeout sql.Null[time.Duration] `json:"lock_timeout"`
	// LockStaleAfter is the age after which an SQLite lock left behind by a
	// runner that crashed is taken over. Zero disables takeovers.
	LockStaleAfter sql.Null[time.Duration] `json:"lock_stale_after"`
}

// Schema defines the schema snapshot written after every run or revert.
type Schema struct {
	// Output is the snapshot file path. By default it's schema.sql next to the
	// migrations folder.
	Output   sql.Null[string] `json:"output"`
	Disabled bool             `json:"disabled"`
	// PgDump is the path to the pg_dump binary.
	PgDump sql.Null[string] `json:"pg_dump"`
}

type cfgWrapper struct {
	Environment string           `json:"environment,omitempty"`
	Database    dbCfgWrapper     `json:"database"`
	Migrations  migCfgWrapper    `json:"migrations"`
	Schema      schemaCfgWrapper `json:"schema"`
}
type dbCfgWrapper struct {
	Driver   string `json:"driver,omitempty"`
	URL      string `json:"url,omitempty"`
	Host     string `json:"host,omitempty"`
	Port     uint16 `json:"port,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	Name     string `json:"name,omitempty"`
	SSLMode  string `json:"sslmode,omitempty"`
}
type migCfgWrapper struct {
	Folder         string `json:"folder,omitempty"`
	Table          string `json:"table,omitempty"`
	LockTimeout    string `json:"lock_timeout,omitempty"`
	LockStaleAfter string `json:"lock_stale_after,omitempty"`
}
type schemaCfgWrapper struct {
	Output   string `json:"output,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
	PgDump   string `json:"pg_dump,omitempty"`
}

// MarshalJSON implements custom JSON marshaling to convert sql.Null values
// to their underlying types, omitting invalid/null fields from the output.
func (c Config) MarshalJSON() ([]byte, error) {
	w := cfgWrapper{
		Environment: c.Environment.V,
		Database: dbCfgWrapper{
			Driver:   c.Database.Driver.V,
			URL:      c.Database.URL.V,
			Host:     c.Database.Host.V,
			Port:     c.Database.Port.V,
			User:     c.Database.User.V,
			Password: c.Database.Password.V,
			Name:     c.Database.Name.V,
			SSLMode:  c.Database.SSLMode.V,
		},
		Migrations: migCfgWrapper{
			Folder: c.Migrations.Folder.V,
			Table:  c.Migrations.Table.V,
		},
		Schema: schemaCfgWrapper{
			Output:   c.Schema.Output.V,
			Disabled: c.Schema.Disabled,
			PgDump:   c.Schema.PgDump.V,
		},
	}
	if c.Migrations.LockTimeout.Valid {
		w.Migrations.LockTimeout = xtime.FormatDuration(c.Migrations.LockTimeout.V)
	}
	if c.Migrations.LockStaleAfter.Valid {
		w.Migrations.LockStaleAfter = xtime.FormatDuration(c.Migrations.LockStaleAfter.V)
	}

	//nolint:wrapcheck // This is fine.
	return json.Marshal(w)
}

// UnmarshalJSON implements custom JSON unmarshaling to convert plain values
// into sql.Null types and parse duration strings into time.Duration values.
func (c *Config) UnmarshalJSON(data []byte) error {
	var w cfgWrapper
	if err := json.Unmarshal(data, &w); err != nil {
		//nolint:wrapcheck // This is fine.
		return err
	}

	setString(&c.Environment, w.Environment)

	if w.Database.Driver != "" {
		if _, err := db.DialectFor(w.Database.Driver); err != nil {
			return err //nolint:wrapcheck // The message is descriptive enough.
		}
		c.Database.Driver = sql.Null[string]{V: w.Database.Driver, Valid: true}
	}
	setString(&c.Database.URL, w.Database.URL)
	setString(&c.Database.Host, w.Database.Host)
	if w.Database.Port != 0 {
		c.Database.Port = sql.Null[uint16]{V: w.Database.Port, Valid: true}
	}
	setString(&c.Database.User, w.Database.User)
	setString(&c.Database.Password, w.Database.Password)
	setString(&c.Database.Name, w.Database.Name)
	setString(&c.Database.SSLMode, w.Database.SSLMode)

	setString(&c.Migrations.Folder, w.Migrations.Folder)
	setString(&c.Migrations.Table, w.Migrations.Table)
	if w.Migrations.LockTimeout != "" {
		dur, err := xtime.ParseDuration(w.Migrations.LockTimeout)
		if err != nil {
			return fmt.Errorf("failed parsing migrations lock timeout: %w", err)
		}
		c.Migrations.LockTimeout = sql.Null[time.Duration]{V: dur, Valid: true}
	}
	if w.Migrations.LockStaleAfter != "" {
		dur, err := xtime.ParseDuration(w.Migrations.LockStaleAfter)
		if err != nil {
			return fmt.Errorf("failed parsing migrations lock stale threshold: %w", err)
		}
		c.Migrations.LockStaleAfter = sql.Null[time.Duration]{V: dur, Valid: true}
	}

	setString(&c.Schema.Output, w.Schema.Output)
	c.Schema.Disabled = w.Schema.Disabled
	setString(&c.Schema.PgDump, w.Schema.PgDump)

	return nil
}

// ApplyEnv sets values from environment variables, but only if they weren't
// already set by the configuration file. Connection variables are ignored if a
// database URL or the SQLite driver is configured.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	setIfUnset(&c.Environment, getenv("CARAVEL_ENV"))
	setIfUnset(&c.Migrations.Folder, getenv("MIGRATIONS_FOLDER_NAME"))

	if c.Database.URL.Valid || c.Database.Driver.V == db.DriverSQLite {
		return nil
	}

	if dbURL := getenv("DATABASE_URL"); dbURL != "" && !c.Database.Host.Valid && !c.Database.Name.Valid {
		c.Database.URL = sql.Null[string]{V: dbURL, Valid: true}
		return nil
	}

	setIfUnset(&c.Database.Host, getenv("PGHOST"))
	if port := getenv("PGPORT"); port != "" && !c.Database.Port.Valid {
		p, err := strconv.ParseUint(port, 10, 16)
		if err != nil {
			return fmt.Errorf("failed parsing PGPORT value '%s': %w", port, err)
		}
		c.Database.Port = sql.Null[uint16]{V: uint16(p), Valid: true}
	}
	setIfUnset(&c.Database.User, getenv("PGUSER"))
	setIfUnset(&c.Database.Password, getenv("PGPASSWORD"))
	setIfUnset(&c.Database.Name, getenv("PGDATABASE"))
	setIfUnset(&c.Database.SSLMode, getenv("PGSSLMODE"))

	return nil
}

// SetDefaults sets default configuration values if they weren't set already.
func (c *Config) SetDefaults(getenv func(string) string) {
	setIfUnset(&c.Database.Driver, db.DriverPostgres)
	if c.Database.Driver.V == db.DriverPostgres && !c.Database.URL.Valid {
		setIfUnset(&c.Database.Host, "localhost")
		if !c.Database.Port.Valid {
			c.Database.Port = sql.Null[uint16]{V: 5432, Valid: true}
		}
		setIfUnset(&c.Database.User, getenv("USER"))
		setIfUnset(&c.Database.Name, c.Database.User.V)
		setIfUnset(&c.Database.SSLMode, "disable")
	}

	setIfUnset(&c.Migrations.Folder, "migrations")
	setIfUnset(&c.Migrations.Table, migrator.DefaultTable)
	if !c.Migrations.LockTimeout.Valid {
		c.Migrations.LockTimeout = sql.Null[time.Duration]{V: time.Minute, Valid: true}
	}
	if !c.Migrations.LockStaleAfter.Valid {
		c.Migrations.LockStaleAfter = sql.Null[time.Duration]{V: migrator.DefaultLockStaleAfter, Valid: true}
	}
	setIfUnset(&c.Schema.PgDump, "pg_dump")
}

// DB returns the database connection configuration.
func (c *Config) DB() db.Config {
	return db.Config{
		Driver:   c.Database.Driver.V,
		URL:      c.Database.URL.V,
		Host:     c.Database.Host.V,
		Port:     c.Database.Port.V,
		User:     c.Database.User.V,
		Password: c.Database.Password.V,
		Name:     c.Database.Name.V,
		SSLMode:  c.Database.SSLMode.V,
	}
}

func setString(dst *sql.Null[string], val string) {
	if val != "" {
		*dst = sql.Null[string]{V: val, Valid: true}
	}
}

func setIfUnset(dst *sql.Null[string], val string) {
	if !dst.Valid && val != "" {
		*dst = sql.Null[string]{V: val, Valid: true}
	}
}
