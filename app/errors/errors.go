package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"go.hackfix.me/caravel/db"
	"go.hackfix.me/caravel/db/migrator"
	"go.hackfix.me/caravel/db/types"
)

// Log logs an error using the default slog logger, extracting metadata if it's
// a StructuredError.
func Log(err error) {
	var serr *StructuredError
	if !errors.As(err, &serr) {
		slog.Error(err.Error())
		return
	}

	args := make([]any, 0, len(serr.metadata)*2+2)

	cause := serr.metadata["cause"]
	if serr.cause != nil {
		cause = serr.cause
	}
	if cause != nil {
		args = append(args, "cause", cause)
	}

	keys := make([]string, 0, len(serr.metadata))
	for k := range serr.metadata {
		if k != "cause" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		args = append(args, k, serr.metadata[k])
	}

	slog.Error(serr.Error(), args...)
}

// Errorf describes and logs err. It's meant to be used for errors that
// terminate the application.
func Errorf(err error) {
	Log(Describe(err))
}

// Describe converts known database and migration errors into a
// StructuredError with a short message, and the details as metadata. Other
// errors are returned unchanged.
func Describe(err error) error {
	var (
		connErr  *types.ConnectionError
		dirErr   *migrator.FolderNotFoundError
		dupErr   *migrator.DuplicateVersionError
		execErr  *migrator.ExecutionError
		downErr  *migrator.MissingDownScriptError
		guardErr *migrator.SafetyGuardError
		lockErr  *migrator.LockTimeoutError
	)

	switch {
	case errors.As(err, &connErr):
		return NewWithCause("unable to connect to the database", connErr.Err,
			"target", connErr.Target, "hint", "Are you sure it is up and running?")
	case errors.As(err, &dirErr):
		return NewWith("migrations folder not found",
			"folder", dirErr.Path, "hint", "Create the folder first, or run 'caravel generate'.")
	case errors.As(err, &dupErr):
		return NewWith("duplicate migration version",
			"version", dupErr.Version, "files", dupErr.Files)
	case errors.As(err, &execErr):
		fields := []any{"version", execErr.Version, "name", execErr.Name, "operation", execErr.Op}
		fields = append(fields, types.ErrFields(execErr.Err)...)
		return NewWithCause("migration failed", execErr.Err, fields...)
	case errors.As(err, &downErr):
		return NewWith("migration can't be reverted",
			"version", downErr.Version, "hint", "Add a down script for this version.")
	case errors.As(err, &guardErr):
		return NewWith("reverting migrations is disabled",
			"environment", guardErr.Environment)
	case errors.As(err, &lockErr):
		return NewWith("migrations are locked by another runner",
			"lock_key", lockErr.Key, "timeout", lockErr.Timeout,
			"hint", fmt.Sprintf("If no other runner is active, the lock was left behind by a "+
				"crashed run. On SQLite it's taken over once older than the configured "+
				"lock_stale_after, or can be removed with: DELETE FROM %s;",
				db.LockTableName(lockErr.Key)))
	}

	return err
}
