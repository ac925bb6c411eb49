// Package store provides SQLite-backed durable storage for giftkeep.
//
// The store holds every entity collection plus the append-only ledger.
// Collections are declared in internal/schema; this package owns the
// physical schema and the transaction machinery.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//
// Foreign key enforcement may be suspended only through SetForeignKeys,
// and only by the restore engine, which guarantees re-enable on exit.
// The connection pool is limited to a single connection so that
// connection-scoped pragmas apply to every statement.
package store
