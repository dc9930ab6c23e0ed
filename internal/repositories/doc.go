// Package repositories implements SQLite persistence for datasets and acquisition tasks.
//
// Key Implementations:
//   - [DatasetRepository] : Dataset records with a guarded state write used by reconciliation
//   - [TaskRepository] : The task status store shared by the web process and the worker
//
// Sequence numbers provide stable ordering independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
