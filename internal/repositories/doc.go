// Package repositories implements SQLite persistence for collection runs.
//
// Key Implementations:
//   - [RunRepository] : runs and their hit-candidate rows, written in one transaction
//   - [RunSink] : adapts a RunRepository to the collector's row sink
//
// Rows keep their output position so reads return them in the order they were written.
// NULL feature and album columns round-trip to nil pointers; popularity is stored with its default of 0 applied.
// Deleting a run cascades to its rows.
package repositories
