// Package repositories implements SQLite persistence for the run ledger.
//
// Each repository handles CRUD operations with atomic sequence generation for human-readable ordering.
// All repositories support soft deletes via deleted_at timestamps and exclude deleted records from queries by default.
//
// Key Implementations:
//   - [TaskRunRepository] : Data task executions with their counts and status
//   - [HandoffRepository] : Placement handoff step reports, queryable for partial handoffs
//
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
