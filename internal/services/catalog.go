package services

import (
	"context"
	"iter"

	"github.com/desertthunder/hitscan/internal/models"
)

// Catalog is the set of read operations a collection run needs from a music provider.
//
// Lookups for a single item return (nil, nil) when the provider has nothing for it.
// Errors for which [shared.IsSetupFailure] reports true mean no further call can succeed.
type Catalog interface {
	// NewReleases returns one page of the new-releases listing for locale.
	NewReleases(ctx context.Context, locale string, limit, offset int) (*models.AlbumPage, error)

	// AlbumTracks returns the first page of an album's tracks.
	AlbumTracks(ctx context.Context, albumURI string, limit int) (*models.TrackPage, error)

	// AudioFeatures returns the audio features of a single track.
	AudioFeatures(ctx context.Context, trackURI string) (*models.AudioFeatures, error)

	// TrackDetails returns the popularity-bearing details of a single track.
	TrackDetails(ctx context.Context, trackURI string) (*models.TrackDetails, error)

	// FeaturedPlaylists returns the featured playlists for locale.
	FeaturedPlaylists(ctx context.Context, locale string, limit int) (*models.PlaylistPage, error)

	// PlaylistItems yields a playlist's item pages in order. The sequence is not restartable.
	PlaylistItems(ctx context.Context, playlistID string) iter.Seq2[*models.PlaylistItemPage, error]

	// Name returns the provider name.
	Name() string
}

// AnalysisFetcher is implemented by catalogs that can return low-level audio analysis.
type AnalysisFetcher interface {
	AudioAnalysis(ctx context.Context, trackURI string) (*models.AudioAnalysis, error)
}
