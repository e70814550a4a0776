// Package sqlite provides the SQLite-based implementation of the history port.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that
// requires no CGO. Analysis records live in analysis_history; the input file
// summaries of each record live in history_files, keyed by record and upload
// position.
//
// # Schema
//
// The schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql
// files; applied versions are recorded in schema_migrations.
//
// # Data Location
//
// By default, the database is stored at ~/.tabula/data/history.db
//
// # Thread Safety
//
// All operations are safe for concurrent use. The store relies on SQLite's
// locking in WAL mode with a busy timeout.
package sqlite
