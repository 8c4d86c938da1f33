// Package models defines the entities persisted in the local SQLite run ledger.
//
// The document store (Firestore) holds the platform's real data and is accessed through
// the store package as loosely typed documents. This package only covers what the backend
// records about its own work:
//   - [TaskRun] : One execution of a data task with scanned/changed/skipped/failed counts
//   - [HandoffReport] : The step-by-step outcome of a placement-to-billing handoff
//
// All entities implement the Model interface providing ID, timestamps, and validation.
// The Repository[T] interface defines standard CRUD operations for database access.
package models
