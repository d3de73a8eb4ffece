// Package tasks runs the hit-candidate collection pipeline with real-time progress reporting.
//
// # Stages
//
// [Collector.Collect] composes pure stages, each returning a new collection:
//
//  1. Fetch release pages ([NormalizePages] clamps the count; offset = page × page size)
//     - Missing or empty pages are skipped
//     - Albums are flattened and deduplicated by URI; albums without one are dropped
//  2. Fetch each album's tracks with features and popularity
//     - Tracks without a URI are dropped and logged
//     - A failed lookup leaves the field unset
//  3. Build the featured index from every page of every featured playlist
//  4. Mark membership, left join tracks onto albums ([JoinRows]) and label rows ([Classify])
//  5. Hand the rows to each [RowSink]
//
// # Errors
//
// Provider errors are transient gaps and are recorded in [CollectResult.Warnings].
// Setup failures ([shared.IsSetupFailure]) and context errors abort the run.
// A failing sink keeps the rows and yields an error wrapping [shared.ErrPersistFailed].
//
// # Progress Reporting
//
// The [ProgressUpdate] struct contains phase, step counters and a message.
// Updates use select with default to prevent blocking.
//
// # Concurrency
//
// [CollectorOpts.Workers] albums are fetched concurrently with an errgroup.
// Results are stored by album position, so output order does not depend on the worker count.
package tasks
