// Package models defines the records that flow through a hit-candidate collection run.
//
// The package contains two categories of types:
//
// 1. Catalog pages: provider-neutral shapes returned by a music catalog
//   - [AlbumPage], [Album], [Artist] : new-release listings
//   - [TrackPage], [TrackItem] : album track listings
//   - [AudioFeatures], [AudioAnalysis], [TrackDetails] : per-track lookups
//   - [PlaylistPage], [PlaylistItemPage] : featured playlists and their items
//
// 2. Pipeline records: the flattened, typed rows a run produces
//   - [AlbumRecord] : one per album (first artist only)
//   - [TrackRecord] : one per track with an identifier, optional fields as pointers (nil = absent)
//   - [FeaturedIndex] : read-only set of track URIs found in featured playlists
//   - [HitCandidateRow] : a track left-joined with its album plus the hit-candidate label
//   - [Run] : metadata for a persisted run
//
// Column order for tabular output is fixed by [Columns] and every row renders a value (possibly empty) for every column.
package models
