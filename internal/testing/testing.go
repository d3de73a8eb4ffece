// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"iter"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/hitscan/internal/models"
)

// StubCatalog is an in-memory test double for services.Catalog.
//
// Missing map entries behave as provider absence. Calls are recorded and safe for concurrent use.
type StubCatalog struct {
	Releases    map[int]*models.AlbumPage // Keyed by offset
	ReleaseErr  map[int]error
	Tracks      map[string]*models.TrackPage // Keyed by album URI
	TracksErr   map[string]error
	Features    map[string]*models.AudioFeatures // Keyed by track URI
	FeaturesErr map[string]error
	Popularity  map[string]int
	DetailsErr  map[string]error
	Analysis    map[string]*models.AudioAnalysis
	Featured    *models.PlaylistPage
	FeaturedErr error
	Playlists   map[string][]models.PlaylistItemPage // Keyed by playlist ID
	PlaylistErr map[string]error                     // Yielded after the playlist's pages

	mu    sync.Mutex
	calls []string
}

func (s *StubCatalog) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

// Calls returns the recorded calls whose name starts with prefix.
func (s *StubCatalog) Calls(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, c := range s.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (s *StubCatalog) NewReleases(ctx context.Context, locale string, limit, offset int) (*models.AlbumPage, error) {
	s.record("NewReleases")
	if err := s.ReleaseErr[offset]; err != nil {
		return nil, err
	}
	return s.Releases[offset], nil
}

func (s *StubCatalog) AlbumTracks(ctx context.Context, albumURI string, limit int) (*models.TrackPage, error) {
	s.record("AlbumTracks " + albumURI)
	if err := s.TracksErr[albumURI]; err != nil {
		return nil, err
	}
	return s.Tracks[albumURI], nil
}

func (s *StubCatalog) AudioFeatures(ctx context.Context, trackURI string) (*models.AudioFeatures, error) {
	s.record("AudioFeatures " + trackURI)
	if err := s.FeaturesErr[trackURI]; err != nil {
		return nil, err
	}
	return s.Features[trackURI], nil
}

func (s *StubCatalog) TrackDetails(ctx context.Context, trackURI string) (*models.TrackDetails, error) {
	s.record("TrackDetails " + trackURI)
	if err := s.DetailsErr[trackURI]; err != nil {
		return nil, err
	}
	p, ok := s.Popularity[trackURI]
	if !ok {
		return nil, nil
	}
	return &models.TrackDetails{URI: trackURI, Popularity: &p}, nil
}

func (s *StubCatalog) FeaturedPlaylists(ctx context.Context, locale string, limit int) (*models.PlaylistPage, error) {
	s.record("FeaturedPlaylists")
	if s.FeaturedErr != nil {
		return nil, s.FeaturedErr
	}
	return s.Featured, nil
}

func (s *StubCatalog) PlaylistItems(ctx context.Context, playlistID string) iter.Seq2[*models.PlaylistItemPage, error] {
	s.record("PlaylistItems " + playlistID)
	return func(yield func(*models.PlaylistItemPage, error) bool) {
		for _, page := range s.Playlists[playlistID] {
			if !yield(&page, nil) {
				return
			}
		}
		if err := s.PlaylistErr[playlistID]; err != nil {
			yield(nil, err)
		}
	}
}

func (s *StubCatalog) AudioAnalysis(ctx context.Context, trackURI string) (*models.AudioAnalysis, error) {
	s.record("AudioAnalysis " + trackURI)
	return s.Analysis[trackURI], nil
}

func (s *StubCatalog) Name() string { return "stub" }

// RecordingSink keeps the last rows written to it.
type RecordingSink struct {
	Run    models.Run
	Rows   []models.HitCandidateRow
	Writes int
}

func (r *RecordingSink) WriteRows(ctx context.Context, run models.Run, rows []models.HitCandidateRow) error {
	r.Run = run
	r.Rows = rows
	r.Writes++
	return nil
}

// FailingSink always returns an error from WriteRows
type FailingSink struct{}

func (f *FailingSink) WriteRows(ctx context.Context, run models.Run, rows []models.HitCandidateRow) error {
	return errors.New("sink unavailable")
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
