// Package store provides SQLite-backed durable storage for synced designs.
//
// The store keeps:
//   - Users, components and designs keyed by their external uuid
//   - Component and design revisions keyed by (parent, version number)
//   - Assembly edges keyed by (parent revision, child revision)
//   - The run ledger: one row per sync call plus the events it committed
//
// # Write Semantics
//
// Identity rows (users, components, designs) are written with
// INSERT ... ON CONFLICT(uuid) DO NOTHING followed by a select, so two
// syncs racing on the same uuid converge on one row.
//
// Revisions and edges rely on UNIQUE constraints; a violation surfaces as
// domain.ErrConflict and the caller retries the whole sync.
//
// Event queries order by seq (the run's logical clock), never by timestamps.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
