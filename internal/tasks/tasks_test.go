package tasks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/hitscan/internal/formatter"
	"github.com/desertthunder/hitscan/internal/models"
	"github.com/desertthunder/hitscan/internal/shared"
	th "github.com/desertthunder/hitscan/internal/testing"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func album(id string) models.Album {
	return models.Album{
		URI:         "spotify:album:" + id,
		Type:        "album",
		Name:        "Album " + id,
		Href:        "https://api.spotify.com/v1/albums/" + id,
		ReleaseDate: "2024-01-01",
		Artists:     []models.Artist{{Name: "Artist " + id, URI: "spotify:artist:" + id}},
	}
}

func track(id string) models.TrackItem {
	return models.TrackItem{URI: "spotify:track:" + id, Name: "Track " + id, DurationMS: 1000}
}

// singleAlbumCatalog has one album with two tracks: t1 popular and not featured, t2 unpopular and featured.
func singleAlbumCatalog() *th.StubCatalog {
	return &th.StubCatalog{
		Releases: map[int]*models.AlbumPage{0: {Items: []models.Album{album("a1")}}},
		Tracks: map[string]*models.TrackPage{
			"spotify:album:a1": {Items: []models.TrackItem{track("t1"), track("t2")}},
		},
		Features: map[string]*models.AudioFeatures{
			"spotify:track:t1": {Danceability: 0.7, Tempo: 120},
			"spotify:track:t2": {Danceability: 0.3, Tempo: 90},
		},
		Popularity: map[string]int{"spotify:track:t1": 75, "spotify:track:t2": 10},
		Featured:   &models.PlaylistPage{Items: []models.PlaylistRef{{ID: "p1", Name: "Hits"}}},
		Playlists: map[string][]models.PlaylistItemPage{
			"p1": {{TrackURIs: []string{"spotify:track:t2", "spotify:track:other"}}},
		},
	}
}

// multiAlbumCatalog has n albums with three tracks each.
func multiAlbumCatalog(n int) *th.StubCatalog {
	c := &th.StubCatalog{
		Releases:   map[int]*models.AlbumPage{0: {}},
		Tracks:     map[string]*models.TrackPage{},
		Features:   map[string]*models.AudioFeatures{},
		Popularity: map[string]int{},
		Featured:   &models.PlaylistPage{Items: []models.PlaylistRef{{ID: "p1", Name: "Hits"}}},
		Playlists:  map[string][]models.PlaylistItemPage{"p1": {{TrackURIs: []string{"spotify:track:a0-t2"}}}},
	}
	for i := range n {
		id := fmt.Sprintf("a%d", i)
		c.Releases[0].Items = append(c.Releases[0].Items, album(id))
		page := &models.TrackPage{}
		for j := range 3 {
			tr := track(fmt.Sprintf("%s-t%d", id, j))
			page.Items = append(page.Items, tr)
			c.Features[tr.URI] = &models.AudioFeatures{Energy: float64(j) / 10}
			c.Popularity[tr.URI] = (i*3 + j) * 7 % 101
		}
		c.Tracks["spotify:album:"+id] = page
	}
	return c
}

func TestNormalizePages(t *testing.T) {
	tests := []struct {
		in      int
		want    int
		clamped bool
	}{
		{in: -5, want: 1, clamped: true},
		{in: 0, want: 1, clamped: true},
		{in: 1, want: 1},
		{in: 3, want: 3},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.in), func(t *testing.T) {
			got, clamped := NormalizePages(tt.in)
			if got != tt.want || clamped != tt.clamped {
				t.Errorf("NormalizePages(%d) = %d, %v; want %d, %v", tt.in, got, clamped, tt.want, tt.clamped)
			}
		})
	}
}

func TestStages(t *testing.T) {
	t.Run("normalizeAlbums", func(t *testing.T) {
		pages := []*models.AlbumPage{
			{Items: []models.Album{album("a1"), {Name: "No URI"}, album("a2")}},
			nil,
			{Items: []models.Album{album("a1"), album("a3")}},
		}

		albums, skipped := normalizeAlbums(pages)
		if skipped != 1 {
			t.Errorf("expected 1 skipped album, got %d", skipped)
		}
		var uris []string
		for _, a := range albums {
			uris = append(uris, a.URI)
		}
		if strings.Join(uris, ",") != "spotify:album:a1,spotify:album:a2,spotify:album:a3" {
			t.Errorf("expected distinct albums in listing order, got %v", uris)
		}
	})

	t.Run("markFeatured does not mutate input", func(t *testing.T) {
		tracks := []models.TrackRecord{{URI: "x"}, {URI: "y"}}
		out := markFeatured(tracks, models.NewFeaturedIndex("y"))

		if out[0].InFeaturedPlaylist || !out[1].InFeaturedPlaylist {
			t.Errorf("unexpected membership %+v", out)
		}
		if tracks[1].InFeaturedPlaylist {
			t.Error("input slice was modified")
		}
	})

	t.Run("JoinRows is total on tracks", func(t *testing.T) {
		albums := []models.AlbumRecord{{URI: "a1", Name: "One"}}
		tracks := []models.TrackRecord{
			{URI: "t1", AlbumURI: "a1"},
			{URI: "t2", AlbumURI: "missing"},
			{URI: "t3", AlbumURI: "a1"},
		}

		rows := JoinRows(tracks, albums)
		if len(rows) != len(tracks) {
			t.Fatalf("expected %d rows, got %d", len(tracks), len(rows))
		}
		if rows[0].Album == nil || rows[0].Album.Name != "One" {
			t.Errorf("expected joined album, got %+v", rows[0].Album)
		}
		if rows[1].Album != nil {
			t.Errorf("orphan track should have no album, got %+v", rows[1].Album)
		}
		if rows[2].Track.URI != "t3" {
			t.Errorf("row order should follow track order, got %s", rows[2].Track.URI)
		}

		if got := JoinRows(tracks, nil); len(got) != len(tracks) {
			t.Errorf("join without albums should keep every track, got %d", len(got))
		}
	})

	t.Run("Classify grid", func(t *testing.T) {
		for _, popularity := range []int{-1, 0, 59, 60, 100} {
			for _, featured := range []bool{true, false} {
				p := popularity
				rows := Classify([]models.HitCandidateRow{{
					Track: models.TrackRecord{URI: "t", Popularity: &p, InFeaturedPlaylist: featured},
				}}, models.DefaultPopularityThreshold)

				want := popularity >= 60 || featured
				if rows[0].IsHitCandidate != want {
					t.Errorf("popularity=%d featured=%v: got %v, want %v", popularity, featured, rows[0].IsHitCandidate, want)
				}
			}
		}
	})

	t.Run("Classify missing popularity", func(t *testing.T) {
		rows := Classify([]models.HitCandidateRow{{Track: models.TrackRecord{URI: "t"}}}, 60)
		if rows[0].IsHitCandidate {
			t.Error("missing popularity counts as 0")
		}
	})
}

func TestCollector_Collect(t *testing.T) {
	ctx := context.Background()

	t.Run("popular or featured tracks are both hits", func(t *testing.T) {
		sink := &th.RecordingSink{}
		c := NewCollector(singleAlbumCatalog(), CollectorOpts{Logger: quietLogger(), Sinks: []RowSink{sink}})

		res, err := c.Collect(ctx, nil, CollectRequest{Locale: "US", Pages: 1})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(res.Rows) != 2 {
			t.Fatalf("expected 2 rows, got %d", len(res.Rows))
		}
		for _, r := range res.Rows {
			if !r.IsHitCandidate {
				t.Errorf("expected %s to be a hit candidate", r.Track.URI)
			}
		}
		if res.Rows[0].Track.InFeaturedPlaylist || !res.Rows[1].Track.InFeaturedPlaylist {
			t.Error("featured membership not applied")
		}
		if res.Rows[0].Album == nil || res.Rows[0].Album.ArtistName != "Artist a1" {
			t.Errorf("expected album fields on row, got %+v", res.Rows[0].Album)
		}
		if res.FeaturedCount != 2 {
			t.Errorf("expected 2 featured uris, got %d", res.FeaturedCount)
		}
		if sink.Writes != 1 || len(sink.Rows) != 2 {
			t.Errorf("expected one write of 2 rows, got %d writes of %d", sink.Writes, len(sink.Rows))
		}
		if res.Run.RowCount != 2 || res.Run.HitCount != 2 || !shared.ValidID(res.Run.ID) {
			t.Errorf("unexpected run %+v", res.Run)
		}
		if err := res.Run.Validate(); err != nil {
			t.Errorf("run should be valid: %v", err)
		}
	})

	t.Run("empty release page persists nothing", func(t *testing.T) {
		catalog := &th.StubCatalog{Releases: map[int]*models.AlbumPage{0: {}}}
		sink := &th.RecordingSink{}
		c := NewCollector(catalog, CollectorOpts{Logger: quietLogger(), Sinks: []RowSink{sink, &th.FailingSink{}}})

		res, err := c.Collect(ctx, nil, CollectRequest{Pages: 1})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(res.Rows) != 0 {
			t.Errorf("expected no rows, got %d", len(res.Rows))
		}
		if sink.Writes != 0 {
			t.Error("no persistence call should be attempted")
		}
		if len(catalog.Calls("AlbumTracks")) != 0 {
			t.Error("no album tracks should be fetched")
		}
		if len(catalog.Calls("FeaturedPlaylists")) != 1 {
			t.Error("featured playlists are still fetched")
		}
	})

	t.Run("feature failure keeps the row", func(t *testing.T) {
		catalog := &th.StubCatalog{
			Releases:    map[int]*models.AlbumPage{0: {Items: []models.Album{album("a1")}}},
			Tracks:      map[string]*models.TrackPage{"spotify:album:a1": {Items: []models.TrackItem{track("t1")}}},
			FeaturesErr: map[string]error{"spotify:track:t1": fmt.Errorf("%w: boom", shared.ErrAPIRequest)},
			Popularity:  map[string]int{"spotify:track:t1": 80},
		}
		c := NewCollector(catalog, CollectorOpts{Logger: quietLogger()})

		res, err := c.Collect(ctx, nil, CollectRequest{Pages: 1})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(res.Rows) != 1 {
			t.Fatalf("expected 1 row, got %d", len(res.Rows))
		}
		row := res.Rows[0]
		if row.Track.Features != nil {
			t.Error("features should be missing")
		}
		if !row.IsHitCandidate {
			t.Error("popularity 80 should make a hit candidate")
		}
		if len(res.Warnings) == 0 {
			t.Error("expected a warning for the failed lookup")
		}
	})

	t.Run("tracks without uri are dropped", func(t *testing.T) {
		catalog := singleAlbumCatalog()
		catalog.Tracks["spotify:album:a1"].Items = append(catalog.Tracks["spotify:album:a1"].Items, models.TrackItem{Name: "local"})
		c := NewCollector(catalog, CollectorOpts{Logger: quietLogger()})

		res, err := c.Collect(ctx, nil, CollectRequest{Pages: 1})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(res.Rows) != 2 || res.Skipped != 1 {
			t.Errorf("expected 2 rows and 1 skipped, got %d and %d", len(res.Rows), res.Skipped)
		}
		for _, r := range res.Rows {
			if r.Track.URI == "" {
				t.Error("row with empty track uri")
			}
		}

		var warned bool
		for _, w := range res.Warnings {
			warned = warned || strings.Contains(w, "skipping track with missing URI")
		}
		if !warned {
			t.Errorf("expected a warning for the skipped track, got %v", res.Warnings)
		}
	})

	t.Run("page count is clamped", func(t *testing.T) {
		catalog := singleAlbumCatalog()
		c := NewCollector(catalog, CollectorOpts{Logger: quietLogger()})

		res, err := c.Collect(ctx, nil, CollectRequest{Pages: 0})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Run.Pages != 1 || len(catalog.Calls("NewReleases")) != 1 {
			t.Errorf("expected a single page, got run pages %d and %d calls", res.Run.Pages, len(catalog.Calls("NewReleases")))
		}
		if len(res.Warnings) == 0 || !strings.Contains(res.Warnings[0], "page count") {
			t.Errorf("expected clamp warning, got %v", res.Warnings)
		}
		if res.Run.Locale != "US" {
			t.Errorf("expected default locale, got %s", res.Run.Locale)
		}
	})

	t.Run("pages use offsets", func(t *testing.T) {
		catalog := singleAlbumCatalog()
		catalog.Releases[50] = &models.AlbumPage{Items: []models.Album{album("a2"), album("a1")}}
		catalog.ReleaseErr = map[int]error{100: fmt.Errorf("%w: flaky", shared.ErrServiceUnavailable)}
		c := NewCollector(catalog, CollectorOpts{Logger: quietLogger()})

		res, err := c.Collect(ctx, nil, CollectRequest{Pages: 3})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(res.Albums) != 2 {
			t.Errorf("expected 2 distinct albums, got %d", len(res.Albums))
		}
		if len(res.Warnings) != 1 {
			t.Errorf("expected one warning for the failed page, got %v", res.Warnings)
		}
	})

	t.Run("setup failure aborts", func(t *testing.T) {
		catalog := singleAlbumCatalog()
		catalog.DetailsErr = map[string]error{"spotify:track:t2": fmt.Errorf("%w: 401", shared.ErrTokenExpired)}
		sink := &th.RecordingSink{}
		c := NewCollector(catalog, CollectorOpts{Logger: quietLogger(), Sinks: []RowSink{sink}})

		_, err := c.Collect(ctx, nil, CollectRequest{Pages: 1})
		if !errors.Is(err, shared.ErrTokenExpired) {
			t.Fatalf("expected ErrTokenExpired, got %v", err)
		}
		if sink.Writes != 0 {
			t.Error("aborted run should not persist")
		}
	})

	t.Run("playlist error keeps earlier pages", func(t *testing.T) {
		catalog := singleAlbumCatalog()
		catalog.PlaylistErr = map[string]error{"p1": fmt.Errorf("%w: page 2", shared.ErrAPIRequest)}
		c := NewCollector(catalog, CollectorOpts{Logger: quietLogger()})

		res, err := c.Collect(ctx, nil, CollectRequest{Pages: 1})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !res.Rows[1].Track.InFeaturedPlaylist {
			t.Error("membership from the first page should survive")
		}
	})

	t.Run("persist failure keeps rows", func(t *testing.T) {
		sink := &th.RecordingSink{}
		c := NewCollector(singleAlbumCatalog(), CollectorOpts{
			Logger: quietLogger(),
			Sinks:  []RowSink{&th.FailingSink{}, sink},
		})

		res, err := c.Collect(ctx, nil, CollectRequest{Pages: 1})
		if !errors.Is(err, shared.ErrPersistFailed) {
			t.Fatalf("expected ErrPersistFailed, got %v", err)
		}
		if res == nil || len(res.Rows) != 2 {
			t.Fatal("rows should be returned despite persistence failure")
		}
		if len(res.PersistErrors) != 1 {
			t.Errorf("expected 1 persist error, got %d", len(res.PersistErrors))
		}
		if sink.Writes != 1 {
			t.Error("remaining sinks should still be written")
		}
	})

	t.Run("analysis when requested", func(t *testing.T) {
		catalog := singleAlbumCatalog()
		catalog.Analysis = map[string]*models.AudioAnalysis{
			"spotify:track:t1": {Bars: []models.Marker{{Start: 0, Duration: 2, Confidence: 1}}},
		}

		res, err := NewCollector(catalog, CollectorOpts{Logger: quietLogger(), WithAnalysis: true}).
			Collect(ctx, nil, CollectRequest{Pages: 1})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Rows[0].Track.Analysis == nil || len(res.Rows[0].Track.Analysis.Bars) != 1 {
			t.Error("expected analysis on first track")
		}

		catalog = singleAlbumCatalog()
		if _, err := NewCollector(catalog, CollectorOpts{Logger: quietLogger()}).Collect(ctx, nil, CollectRequest{Pages: 1}); err != nil {
			t.Fatal(err)
		}
		if len(catalog.Calls("AudioAnalysis")) != 0 {
			t.Error("analysis should not be fetched unless requested")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		catalog := singleAlbumCatalog()
		catalog.ReleaseErr = map[int]error{0: context.Canceled}

		if _, err := NewCollector(catalog, CollectorOpts{Logger: quietLogger()}).Collect(cctx, nil, CollectRequest{Pages: 1}); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("nil catalog", func(t *testing.T) {
		if _, err := NewCollector(nil, CollectorOpts{}).Collect(ctx, nil, CollectRequest{}); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("progress phases", func(t *testing.T) {
		progress := make(chan ProgressUpdate, 64)
		sink := &th.RecordingSink{}
		c := NewCollector(singleAlbumCatalog(), CollectorOpts{Logger: quietLogger(), Sinks: []RowSink{sink}})

		if _, err := c.Collect(ctx, progress, CollectRequest{Pages: 1}); err != nil {
			t.Fatal(err)
		}
		close(progress)

		seen := map[Phase]bool{}
		for u := range progress {
			seen[u.Phase] = true
		}
		for _, p := range []Phase{FetchReleases, FetchTracks, FetchFeatured, ClassifyRows, PersistRows} {
			if !seen[p] {
				t.Errorf("expected a %s update", p)
			}
		}
	})

	t.Run("full progress channel does not block", func(t *testing.T) {
		progress := make(chan ProgressUpdate)
		c := NewCollector(singleAlbumCatalog(), CollectorOpts{Logger: quietLogger()})
		if _, err := c.Collect(ctx, progress, CollectRequest{Pages: 1}); err != nil {
			t.Fatal(err)
		}
	})
}

func TestCollector_Deterministic(t *testing.T) {
	ctx := context.Background()

	render := func(t *testing.T, workers int) []byte {
		t.Helper()
		res, err := NewCollector(multiAlbumCatalog(8), CollectorOpts{Logger: quietLogger(), Workers: workers}).
			Collect(ctx, nil, CollectRequest{Pages: 1})
		if err != nil {
			t.Fatalf("collect failed: %v", err)
		}
		data, err := formatter.RowsToCSV(res.Rows)
		if err != nil {
			t.Fatalf("render failed: %v", err)
		}
		return data
	}

	t.Run("identical inputs give identical CSV", func(t *testing.T) {
		first, second := render(t, 1), render(t, 1)
		if !bytes.Equal(first, second) {
			t.Error("two runs over identical data differ")
		}
		if n := strings.Count(string(first), "\n"); n != 25 {
			t.Errorf("expected header plus 24 rows, got %d lines", n)
		}
	})

	t.Run("worker count does not change output", func(t *testing.T) {
		sequential := render(t, 1)
		for _, workers := range []int{2, 4, 32} {
			if !bytes.Equal(sequential, render(t, workers)) {
				t.Errorf("output with %d workers differs from sequential", workers)
			}
		}
	})
}

func TestPhaseString(t *testing.T) {
	tests := map[Phase]string{
		FetchReleases: "fetch_releases",
		FetchTracks:   "fetch_tracks",
		FetchFeatured: "fetch_featured",
		ClassifyRows:  "classify",
		PersistRows:   "persist",
		Phase(99):     "",
	}
	for p, want := range tests {
		if got := p.String(); got != want {
			t.Errorf("Phase(%d).String() = %q, want %q", p, got, want)
		}
	}
}
