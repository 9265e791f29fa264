// Package store provides the gateway's SQLite ledger.
//
// # Scope
//
// The ledger records that widget sessions existed and how their generation
// calls went. It never stores message text: conversation history lives only
// in memory for the lifetime of a session.
//
// Two interfaces split the concerns:
//
//   - SessionStore: mount and unmount records, submission counters
//   - UsageStore: one row per generation call with outcome, tokens and latency
//
// SQLiteStore implements both, and MockStore is an in-memory stand-in for
// tests.
//
// # SQLite Configuration
//
// The store uses modernc.org/sqlite (pure Go, no CGO) with WAL mode:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Database file locations:
//
//   - Production: configured by database.path
//   - Development: ~/.local/share/chatia/gateway.db
//   - Testing: a file under t.TempDir()
//
// # Errors
//
// ErrNotFound is returned for unknown session IDs. All methods accept a
// context.Context.
package store
