// Package store provides the SQLite-backed revision store for revgraph.
//
// The store is an append-only graph of revisions:
//   - Revisions: numbered, immutable deltas with a single parent (0 for a root)
//   - Entity changes: the per-entity payload of each revision, including the
//     composition state (which entity composes which) before and after
//
// # Critical Patterns
//
// Append-only:
//   - Revisions and entity changes are never updated or deleted; triggers in
//     the schema abort any attempt.
//   - Revision numbers are assigned inside the append transaction as
//     MAX(number)+1, so a child always has a higher number than its parent.
//
// Deterministic reads:
//   - Every multi-row query orders by revision number (and change position).
//   - Ancestry and descendant queries use recursive CTEs, never wall-clock time.
//
// Consistent snapshots:
//   - Snapshot runs a callback against a View bound to a single transaction,
//     so "read the latest number, then read revisions up to it" cannot observe
//     a commit that lands in between.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
