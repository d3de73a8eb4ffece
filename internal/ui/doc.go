// Package ui renders terminal output for the CLI.
//
// [Palette] holds the [lipgloss] styles used for headers, summaries and warnings.
// [RenderTable] draws rows with go-pretty's rounded style; [HitsTable] lays out hit candidate rows.
//
// # Progress View
//
// [ProgressModel] is a bubbletea model that runs a collection in the background and
// renders its [tasks.ProgressUpdate] stream as a spinner, phase label and progress bar.
// Pressing q or ctrl+c cancels the run's context; the model quits once the run returns.
// [RunProgress] wraps the model in a program and returns the run's result.
package ui
