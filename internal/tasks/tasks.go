// package tasks implements the hit-candidate collection run.
//
// The core abstraction is Collector, which pages through a catalog, aggregates albums and tracks,
// labels them and hands the rows to sinks. Progress is reported over a channel without blocking.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/hitscan/internal/models"
	"github.com/desertthunder/hitscan/internal/services"
	"github.com/desertthunder/hitscan/internal/shared"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultPageSize is the page size for release, album track and featured playlist listings.
	DefaultPageSize = 50
	defaultLocale   = "US"
	maxWorkers      = 16
)

// RowSink persists the rows of a finished run.
type RowSink interface {
	WriteRows(ctx context.Context, run models.Run, rows []models.HitCandidateRow) error
}

// CollectorOpts contains configuration for a [Collector].
type CollectorOpts struct {
	PageSize     int         // Listing page size (default: 50)
	Threshold    int         // Popularity threshold; zero selects the default of 60, callers validate explicit values
	Workers      int         // Albums fetched concurrently (default: 1)
	WithAnalysis bool        // Fetch audio analysis when the catalog supports it
	Logger       *log.Logger // Defaults to log.Default()
	Sinks        []RowSink   // Written in order when the run has rows
}

// CollectRequest holds the per-run inputs.
type CollectRequest struct {
	Locale string // Market code (default: US)
	Pages  int    // Release pages to fetch; values below 1 become 1
}

// CollectResult contains all data from a collection run.
type CollectResult struct {
	Run           models.Run               // Run metadata
	Albums        []models.AlbumRecord     // Distinct albums in listing order
	Tracks        []models.TrackRecord     // Tracks in album order then track order
	FeaturedCount int                      // Distinct track URIs seen in featured playlists
	Rows          []models.HitCandidateRow // Labeled rows, one per track
	Warnings      []string                 // Skipped lookups and normalized inputs
	Skipped       int                      // Albums and tracks dropped for missing identifiers
	PersistErrors []error                  // One entry per failing sink
}

// Collector runs the aggregation pipeline against a [services.Catalog].
type Collector struct {
	catalog services.Catalog
	opts    CollectorOpts
	logger  *log.Logger
}

// NewCollector creates a Collector, filling zero options with defaults.
func NewCollector(catalog services.Catalog, opts CollectorOpts) *Collector {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Threshold == 0 {
		opts.Threshold = models.DefaultPopularityThreshold
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Workers > maxWorkers {
		opts.Workers = maxWorkers
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Collector{catalog: catalog, opts: opts, logger: opts.Logger}
}

// sendProgress sends a progress update through the channel without blocking.
func (c *Collector) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// warn logs a skipped lookup and records it on the result.
func (c *Collector) warn(res *CollectResult, msg string, kv ...any) {
	c.logger.Warn(msg, kv...)
	res.Warnings = append(res.Warnings, formatWarning(msg, kv...))
}

func formatWarning(msg string, kv ...any) string {
	for i := 0; i+1 < len(kv); i += 2 {
		msg += fmt.Sprintf(" %v=%v", kv[i], kv[i+1])
	}
	return msg
}

// fatal reports whether err must stop the run.
func fatal(err error) bool {
	return shared.IsSetupFailure(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Collect performs a full collection run.
//
// Lookup failures leave gaps and are recorded as warnings. Setup failures and cancellation abort the run.
// When a sink fails the rows are still returned alongside an error wrapping [shared.ErrPersistFailed].
func (c *Collector) Collect(ctx context.Context, progress chan<- ProgressUpdate, req CollectRequest) (*CollectResult, error) {
	if c.catalog == nil {
		return nil, fmt.Errorf("%w: catalog not initialized", shared.ErrServiceUnavailable)
	}

	locale := req.Locale
	if locale == "" {
		locale = defaultLocale
	}

	res := &CollectResult{}
	pages, clamped := NormalizePages(req.Pages)
	if clamped {
		c.warn(res, "invalid page count, using 1", "pages", req.Pages)
	}

	res.Run = models.Run{
		ID:        shared.GenerateID(),
		Locale:    locale,
		Pages:     pages,
		Threshold: c.opts.Threshold,
		StartedAt: time.Now().UTC(),
	}

	releasePages, err := c.fetchReleases(ctx, progress, res, locale, pages)
	if err != nil {
		return res, err
	}

	albums, skipped := normalizeAlbums(releasePages)
	if skipped > 0 {
		c.warn(res, "skipping albums with missing URI", "count", skipped)
	}
	res.Skipped += skipped
	res.Albums = albums

	tracks, err := c.collectTracks(ctx, progress, res, albums)
	if err != nil {
		return res, err
	}

	idx, err := c.fetchFeatured(ctx, progress, res, locale)
	if err != nil {
		return res, err
	}
	res.FeaturedCount = idx.Len()

	res.Tracks = markFeatured(tracks, idx)
	res.Rows = Classify(JoinRows(res.Tracks, res.Albums), c.opts.Threshold)

	hits := countHits(res.Rows)
	c.sendProgress(progress, classifyUpdate(len(res.Rows), hits))

	res.Run.RowCount = len(res.Rows)
	res.Run.HitCount = hits
	res.Run.FinishedAt = time.Now().UTC()

	c.logger.Info("collection finished",
		"run", res.Run.ID, "albums", len(res.Albums), "tracks", len(res.Tracks),
		"featured", res.FeaturedCount, "hits", hits)

	return res, c.persist(ctx, progress, res)
}

// fetchReleases pages through the new-releases listing. Failed pages are skipped.
func (c *Collector) fetchReleases(ctx context.Context, progress chan<- ProgressUpdate, res *CollectResult, locale string, pages int) ([]*models.AlbumPage, error) {
	out := make([]*models.AlbumPage, 0, pages)
	for i := range pages {
		c.sendProgress(progress, releasesPageUpdate(i+1, pages, locale))

		page, err := c.catalog.NewReleases(ctx, locale, c.opts.PageSize, i*c.opts.PageSize)
		if err != nil {
			if fatal(err) {
				return nil, fmt.Errorf("fetch new releases: %w", err)
			}
			c.warn(res, "skipping release page", "page", i, "error", err)
			continue
		}
		if page == nil || len(page.Items) == 0 {
			c.logger.Debug("empty release page", "page", i)
			continue
		}
		out = append(out, page)
	}
	return out, nil
}

// albumTracks is the per-album output of [Collector.collectTracks].
type albumTracks struct {
	tracks   []models.TrackRecord
	skipped  int
	warnings []string
}

// collectTracks fetches track pages and per-track lookups for every album.
//
// Albums are processed by up to Workers goroutines; results are stored by album index so the output order is fixed.
func (c *Collector) collectTracks(ctx context.Context, progress chan<- ProgressUpdate, res *CollectResult, albums []models.AlbumRecord) ([]models.TrackRecord, error) {
	results := make([]albumTracks, len(albums))
	total := len(albums)
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)
	for i, album := range albums {
		g.Go(func() error {
			out, err := c.fetchAlbum(gctx, album)
			if err != nil {
				return err
			}
			results[i] = out
			c.sendProgress(progress, albumTracksUpdate(int(done.Add(1)), total, album.Name))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch album tracks: %w", err)
	}

	var tracks []models.TrackRecord
	for _, r := range results {
		tracks = append(tracks, r.tracks...)
		res.Skipped += r.skipped
		res.Warnings = append(res.Warnings, r.warnings...)
	}
	return tracks, nil
}

// fetchAlbum returns the tracks of one album with their features, popularity and analysis.
func (c *Collector) fetchAlbum(ctx context.Context, album models.AlbumRecord) (albumTracks, error) {
	var out albumTracks
	warn := func(msg string, kv ...any) {
		c.logger.Warn(msg, kv...)
		out.warnings = append(out.warnings, formatWarning(msg, kv...))
	}

	page, err := c.catalog.AlbumTracks(ctx, album.URI, c.opts.PageSize)
	if err != nil {
		if fatal(err) {
			return out, err
		}
		warn("skipping album tracks", "album", album.URI, "error", err)
		return out, nil
	}
	if page == nil {
		return out, nil
	}

	for _, item := range page.Items {
		track, ok := models.NewTrackRecord(album.URI, item)
		if !ok {
			warn("skipping track with missing URI", "album", album.URI, "name", item.Name)
			out.skipped++
			continue
		}

		features, err := c.catalog.AudioFeatures(ctx, track.URI)
		if err != nil {
			if fatal(err) {
				return out, err
			}
			warn("missing audio features", "track", track.URI, "error", err)
		}
		track.Features = features

		details, err := c.catalog.TrackDetails(ctx, track.URI)
		if err != nil {
			if fatal(err) {
				return out, err
			}
			warn("missing track details", "track", track.URI, "error", err)
		}
		if details != nil {
			track.Popularity = details.Popularity
		}

		if c.opts.WithAnalysis {
			if af, ok := c.catalog.(services.AnalysisFetcher); ok {
				analysis, err := af.AudioAnalysis(ctx, track.URI)
				if err != nil {
					if fatal(err) {
						return out, err
					}
					warn("missing audio analysis", "track", track.URI, "error", err)
				}
				track.Analysis = analysis
			}
		}

		out.tracks = append(out.tracks, track)
	}
	return out, nil
}

// fetchFeatured builds the index of track URIs found in the locale's featured playlists.
func (c *Collector) fetchFeatured(ctx context.Context, progress chan<- ProgressUpdate, res *CollectResult, locale string) (models.FeaturedIndex, error) {
	page, err := c.catalog.FeaturedPlaylists(ctx, locale, c.opts.PageSize)
	if err != nil {
		if fatal(err) {
			return models.FeaturedIndex{}, fmt.Errorf("fetch featured playlists: %w", err)
		}
		c.warn(res, "skipping featured playlists", "error", err)
		return models.FeaturedIndex{}, nil
	}
	if page == nil {
		return models.FeaturedIndex{}, nil
	}

	var uris []string
	for i, pl := range page.Items {
		c.sendProgress(progress, featuredPlaylistUpdate(i+1, len(page.Items), pl.Name))

		for items, err := range c.catalog.PlaylistItems(ctx, pl.ID) {
			if err != nil {
				if fatal(err) {
					return models.FeaturedIndex{}, fmt.Errorf("fetch playlist items: %w", err)
				}
				c.warn(res, "skipping rest of playlist", "playlist", pl.ID, "error", err)
				break
			}
			if items != nil {
				uris = append(uris, items.TrackURIs...)
			}
		}
	}
	return models.NewFeaturedIndex(uris...), nil
}

// persist writes rows to every sink. Runs without rows are not persisted.
func (c *Collector) persist(ctx context.Context, progress chan<- ProgressUpdate, res *CollectResult) error {
	if len(res.Rows) == 0 {
		c.logger.Info("no rows to persist", "run", res.Run.ID)
		return nil
	}

	for i, sink := range c.opts.Sinks {
		c.sendProgress(progress, persistUpdate(i+1, len(c.opts.Sinks), sink))
		if err := sink.WriteRows(ctx, res.Run, res.Rows); err != nil {
			c.logger.Error("failed to persist rows", "sink", sinkName(sink), "error", err)
			res.PersistErrors = append(res.PersistErrors, err)
		}
	}

	if len(res.PersistErrors) > 0 {
		return fmt.Errorf("%w: %v", shared.ErrPersistFailed, errors.Join(res.PersistErrors...))
	}
	return nil
}
