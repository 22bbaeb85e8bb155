// Package database provides SQLite-based storage for lexcrawl.
//
// This package implements the DocumentDB, which stores:
//   - The live record of every legal document ever discovered
//   - Append-only version snapshots taken before a record is overwritten
//   - Run summaries for history browsing
//
// Design decision: We use SQLite (via modernc.org/sqlite) because:
// 1. No external dependencies - the database is a single file
// 2. CGO-free implementation allows easy cross-compilation
// 3. WAL mode lets the history command read while a crawl writes
//
// Records are only ever inserted or updated; nothing in this package deletes
// a document or a version.
package database
