package db

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config contains the parameters required to open a database session.
type Config struct {
	Driver   string
	URL      string
	Host     string
	Port     uint16
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN returns the data source name passed to the driver.
func (c Config) DSN() (string, error) {
	switch c.Driver {
	case DriverPostgres:
		u, err := c.postgresURL()
		if err != nil {
			return "", err
		}
		return u.String(), nil
	case DriverSQLite:
		if c.URL != "" {
			return c.URL, nil
		}
		if c.Name == "" {
			return "", fmt.Errorf("no SQLite database path was specified")
		}
		return c.Name, nil
	default:
		return "", fmt.Errorf("unsupported database driver '%s'", c.Driver)
	}
}

// Target returns a human-readable description of where the session connects
// to, with any password redacted.
func (c Config) Target() string {
	switch c.Driver {
	case DriverPostgres:
		u, err := c.postgresURL()
		if err != nil {
			return fmt.Sprintf("postgres://%s/%s", c.hostPort(), c.Name)
		}
		return u.Redacted()
	case DriverSQLite:
		dsn, _ := c.DSN()
		return "sqlite://" + strings.TrimPrefix(dsn, "file:")
	default:
		return fmt.Sprintf("%s://%s/%s", c.Driver, c.hostPort(), c.Name)
	}
}

// Database returns the name of the database the session connects to.
func (c Config) Database() string {
	if c.Driver == DriverPostgres && c.URL != "" {
		if u, err := url.Parse(c.URL); err == nil {
			return strings.TrimPrefix(u.Path, "/")
		}
	}
	if c.Driver == DriverSQLite {
		dsn, _ := c.DSN()
		dsn = strings.TrimPrefix(dsn, "file:")
		if i := strings.IndexByte(dsn, '?'); i >= 0 {
			dsn = dsn[:i]
		}
		return dsn
	}

	return c.Name
}

func (c Config) hostPort() string {
	if c.Port == 0 {
		return c.Host
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}

func (c Config) postgresURL() (*url.URL, error) {
	if c.URL != "" {
		u, err := url.Parse(c.URL)
		if err != nil {
			return nil, fmt.Errorf("failed parsing database URL: %w", err)
		}
		if u.Scheme != "postgres" && u.Scheme != "postgresql" {
			return nil, fmt.Errorf("unsupported database URL scheme '%s'", u.Scheme)
		}
		return u, nil
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   c.hostPort(),
		Path:   "/" + c.Name,
	}
	switch {
	case c.User != "" && c.Password != "":
		u.User = url.UserPassword(c.User, c.Password)
	case c.User != "":
		u.User = url.User(c.User)
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.SSLMode}}.Encode()
	}

	return u, nil
}
