package types

import (
	"errors"
	"fmt"

	"github.com/glebarez/go-sqlite"
	"github.com/lib/pq"
	sqlite3 "modernc.org/sqlite/lib"
)

// ConnectionError is returned when a database session can't be established.
type ConnectionError struct {
	Target string
	Err    error
}

// Error returns a string representation of the error.
func (e ConnectionError) Error() string {
	return fmt.Sprintf("failed connecting to %s: %s", e.Target, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e ConnectionError) Unwrap() error {
	return e.Err
}

// DuplicateError represents an error when attempting to create a record that
// already exists.
type DuplicateError struct {
	ModelName string
	ID        string
}

func (e DuplicateError) Error() string {
	return fmt.Sprintf("%s with %s already exists", e.ModelName, e.ID)
}

// InvalidInputError represents an error due to invalid input data.
type InvalidInputError struct {
	Msg string
}

// Error returns a string representation of the error.
func (e InvalidInputError) Error() string {
	return e.Msg
}

// NoResultError represents an error when a statement matched no rows.
type NoResultError struct {
	ModelName string
	ID        string
}

// Error returns a string representation of the error.
func (e NoResultError) Error() string {
	return fmt.Sprintf("%s with %s doesn't exist", e.ModelName, e.ID)
}

// ScanError represents an error that occurred while scanning database results
// into Go types.
type ScanError struct {
	ModelName string
	Err       error
}

// Error returns a string representation of the error.
func (e ScanError) Error() string {
	return fmt.Sprintf("failed scanning %s data: %s", e.ModelName, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e ScanError) Unwrap() error {
	return e.Err
}

// Err converts an expected error returned by the database driver into a
// friendly DB error of one of the types defined above.
func Err(modelName, id string, err error) error {
	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return &DuplicateError{ModelName: modelName, ID: id}
		}
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return &DuplicateError{ModelName: modelName, ID: id}
	}

	return err
}

// IsBusy returns true if err is an SQLite error caused by another connection
// holding a conflicting lock on the database or a table.
func IsBusy(err error) bool {
	var sqlErr *sqlite.Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	// Extended result codes keep the primary code in the lowest byte.
	switch sqlErr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}

	return false
}

// ErrFields extracts driver specific diagnostics from err as slog style
// key/value pairs. It returns nil if err doesn't originate from a known driver.
func ErrFields(err error) []any {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		fields := []any{"sqlstate", string(pqErr.Code), "sqlstate_name", pqErr.Code.Name()}
		if pqErr.Detail != "" {
			fields = append(fields, "detail", pqErr.Detail)
		}
		if pqErr.Hint != "" {
			fields = append(fields, "hint", pqErr.Hint)
		}
		if pqErr.Position != "" {
			fields = append(fields, "position", pqErr.Position)
		}
		return fields
	}

	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		return []any{"sqlite_code", sqlErr.Code()}
	}

	return nil
}
