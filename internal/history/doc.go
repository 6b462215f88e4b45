// Package history records batch runs and their per-file outcomes in a local
// SQLite database so past runs can be listed and inspected from the CLI.
//
// The schema is embedded and versioned. A database written by a different
// schema version is rejected with ErrSchemaMismatch rather than migrated.
package history
