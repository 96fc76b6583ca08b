package migrator

import (
	"fmt"
	"strings"
	"time"
)

// FolderNotFoundError is returned when the migrations folder doesn't exist.
type FolderNotFoundError struct {
	Path string
}

// Error returns a string representation of the error.
func (e FolderNotFoundError) Error() string {
	return fmt.Sprintf("migrations folder %s doesn't exist", e.Path)
}

// DuplicateVersionError is returned when more than one migration file of the
// same direction declares the same version.
type DuplicateVersionError struct {
	Version string
	Files   []string
}

// Error returns a string representation of the error.
func (e DuplicateVersionError) Error() string {
	return fmt.Sprintf("migration version %s is declared by multiple files: %s",
		e.Version, strings.Join(e.Files, ", "))
}

// ExecutionError is returned when a migration script, or the bookkeeping
// statement paired with it, fails. The transaction of that migration is rolled
// back entirely.
type ExecutionError struct {
	Version string
	Name    string
	// Op is either "apply" or "revert".
	Op  string
	Err error
}

// Error returns a string representation of the error.
func (e ExecutionError) Error() string {
	return fmt.Sprintf("failed to %s migration %s-%s: %s", e.Op, e.Version, e.Name, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e ExecutionError) Unwrap() error {
	return e.Err
}

// MissingDownScriptError is returned when an applied migration that should be
// reverted has no down script.
type MissingDownScriptError struct {
	Version string
}

// Error returns a string representation of the error.
func (e MissingDownScriptError) Error() string {
	return fmt.Sprintf("migration %s doesn't have a down script", e.Version)
}

// SafetyGuardError is returned when reverting is attempted in a production
// environment.
type SafetyGuardError struct {
	Environment string
}

// Error returns a string representation of the error.
func (e SafetyGuardError) Error() string {
	return fmt.Sprintf("refusing to revert migrations in the %s environment", e.Environment)
}

// SnapshotError is returned when the schema snapshot couldn't be written. It
// never fails a run or revert, and is only logged.
type SnapshotError struct {
	Path string
	Err  error
}

// Error returns a string representation of the error.
func (e SnapshotError) Error() string {
	return fmt.Sprintf("failed writing schema snapshot to %s: %s", e.Path, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e SnapshotError) Unwrap() error {
	return e.Err
}

// LockTimeoutError is returned when the migration lock is held by another
// runner for longer than the configured timeout.
type LockTimeoutError struct {
	Key     string
	Timeout time.Duration
}

// Error returns a string representation of the error.
func (e LockTimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for migration lock %s", e.Timeout, e.Key)
}
