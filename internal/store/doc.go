// Package store provides SQLite-backed persistence for task baselines,
// repository properties and the submission log.
//
// Everything is keyed by repository URL and, for per-task data, task id.
//
// # Ordering
//
// Baseline writes and submissions carry a seq INTEGER assigned by the store
// from a single-writer connection. Queries order by seq ASC, id ASC COLLATE
// BINARY, never by timestamps.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
