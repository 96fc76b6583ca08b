// Package migrator reconciles a database schema with a folder of SQL migration
// files.
//
// Features:
//   - Loads migration files named `{version}-{name}.{up|down}.sql` from any
//     vfs.FileSystem, ordered by version
//   - Tracks applied versions in a dedicated database table, created on demand
//   - Applies pending migrations one transaction at a time, stopping at the
//     first failure
//   - Reverts the most recently applied migrations using their down scripts
//   - Serializes concurrent runners with a database-scoped advisory lock
//   - Exports a schema snapshot after every run or revert
package migrator
