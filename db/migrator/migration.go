package migrator

import (
	"context"
	"crypto/sha512"
	"database/sql"
	"strings"

	"go.hackfix.me/caravel/db/types"
)

// Migration is a schema change loaded from the migrations folder.
type Migration struct {
	Version  string
	Name     string
	UpFile   string
	DownFile string
	UpSQL    string
	DownSQL  string
	// Hash is the digest of UpSQL. It's reserved for detecting changes to
	// already applied migrations, and currently only displayed.
	Hash [sha512.Size]byte
}

// HasDown returns true if the migration can be reverted.
func (m *Migration) HasDown() bool {
	return m.DownFile != ""
}

// AppliedRecord is a migration version stored in the migrations table.
type AppliedRecord struct {
	Version string
}

// Session is an exclusively owned database session. All statements of a run
// are issued sequentially through it.
type Session interface {
	types.Querier
	Beginner
	Dialect() types.Dialect
	// Target describes where the session is connected to, for diagnostics.
	Target() string
	Database() string
	Close() error
}

// Beginner starts transactions.
type Beginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Connector opens a new Session.
type Connector func(ctx context.Context) (Session, error)

// Snapshotter exports the current schema definition of a database to a file.
type Snapshotter interface {
	Snapshot(ctx context.Context, q types.Querier, database, outPath string) error
}

// compareVersions orders versions numerically if both consist only of digits,
// and lexicographically otherwise. Distinct versions never compare equal, so
// numerically equal versions such as "01" and "1" are ordered by their text.
func compareVersions(a, b string) int {
	if isNumeric(a) && isNumeric(b) {
		ta, tb := strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
		if len(ta) != len(tb) {
			if len(ta) < len(tb) {
				return -1
			}
			return 1
		}
		if c := strings.Compare(ta, tb); c != 0 {
			return c
		}
	}

	return strings.Compare(a, b)
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
