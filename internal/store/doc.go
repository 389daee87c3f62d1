// Package store provides a SQLite-backed durability backend for the ledger.
//
// The three ledger artifacts map to three tables:
//   - accounts: the per-currency accounts, ordered by insertion position
//   - rates: one row per directed currency pair
//   - log_entries: the append-only settlement log, ordered by seq
//
// # Atomicity
//
// Unlike the file backend, every Save runs in a single transaction, so the
// artifacts of one committed operation become durable together or not at
// all. Accounts and rates are rewritten wholesale; the log only ever gains
// rows (INSERT of entries past the current row count).
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=FULL: a committed operation survives power loss
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
//
// Amounts are stored as decimal TEXT, never REAL.
package store
