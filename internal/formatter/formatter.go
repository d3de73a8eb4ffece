// package formatter renders hit-candidate rows to files (CSV, JSON)
package formatter

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/desertthunder/hitscan/internal/models"
	"github.com/desertthunder/hitscan/internal/shared"
)

const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// RowsToCSV renders rows with a header line in [models.Columns] order.
func RowsToCSV(rows []models.HitCandidateRow) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(models.Columns()); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, row := range rows {
		if err := writer.Write(row.Values()); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// jsonRow is the JSON shape of a row. Missing values encode as null.
type jsonRow struct {
	AlbumURI           string                `json:"album_uri"`
	TrackName          string                `json:"track_name"`
	TrackDurationMS    int                   `json:"track_duration_ms"`
	TrackURI           string                `json:"track_uri"`
	Danceability       *float64              `json:"danceability"`
	Energy             *float64              `json:"energy"`
	Key                *int                  `json:"key"`
	Loudness           *float64              `json:"loudness"`
	Mode               *int                  `json:"mode"`
	Speechiness        *float64              `json:"speechiness"`
	Acousticness       *float64              `json:"acousticness"`
	Instrumentalness   *float64              `json:"instrumentalness"`
	Liveness           *float64              `json:"liveness"`
	Valence            *float64              `json:"valence"`
	Tempo              *float64              `json:"tempo"`
	Popularity         int                   `json:"popularity"`
	InFeaturedPlaylist bool                  `json:"in_featured_playlist"`
	AlbumType          *string               `json:"album_type"`
	AlbumName          *string               `json:"album_name"`
	AlbumURL           *string               `json:"album_url"`
	ArtistName         *string               `json:"artist_name"`
	ArtistURI          *string               `json:"artist_uri"`
	ReleaseDate        *string               `json:"release_date"`
	IsHitCandidate     bool                  `json:"is_hit_candidate"`
	Analysis           *models.AudioAnalysis `json:"analysis,omitempty"`
}

func newJSONRow(r models.HitCandidateRow) jsonRow {
	t := r.Track
	out := jsonRow{
		AlbumURI:           t.AlbumURI,
		TrackName:          t.Name,
		TrackDurationMS:    t.DurationMS,
		TrackURI:           t.URI,
		Popularity:         t.EffectivePopularity(),
		InFeaturedPlaylist: t.InFeaturedPlaylist,
		IsHitCandidate:     r.IsHitCandidate,
		Analysis:           t.Analysis,
	}
	if f := t.Features; f != nil {
		out.Danceability, out.Energy, out.Key = &f.Danceability, &f.Energy, &f.Key
		out.Loudness, out.Mode, out.Speechiness = &f.Loudness, &f.Mode, &f.Speechiness
		out.Acousticness, out.Instrumentalness = &f.Acousticness, &f.Instrumentalness
		out.Liveness, out.Valence, out.Tempo = &f.Liveness, &f.Valence, &f.Tempo
	}
	if a := r.Album; a != nil {
		out.AlbumType, out.AlbumName, out.AlbumURL = &a.Type, &a.Name, &a.URL
		out.ArtistName, out.ArtistURI, out.ReleaseDate = &a.ArtistName, &a.ArtistURI, &a.ReleaseDate
	}
	return out
}

// RowsToJSON renders rows as an indented JSON array. Audio analysis is included when present.
func RowsToJSON(rows []models.HitCandidateRow) ([]byte, error) {
	out := make([]jsonRow, len(rows))
	for i, r := range rows {
		out[i] = newJSONRow(r)
	}
	return shared.MarshalJSON(out, true)
}

// Render encodes rows in format, defaulting to CSV.
func Render(rows []models.HitCandidateRow, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", FormatCSV:
		return RowsToCSV(rows)
	case FormatJSON:
		return RowsToJSON(rows)
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", shared.ErrInvalidArgument, format)
	}
}

// FileSink writes a run's rows to a single file.
type FileSink struct {
	Path   string
	Format string // csv (default) or json
}

// WriteRows renders rows and replaces the file at Path, creating parent directories.
func (s FileSink) WriteRows(ctx context.Context, run models.Run, rows []models.HitCandidateRow) error {
	if s.Path == "" {
		return fmt.Errorf("%w: output path is empty", shared.ErrMissingArgument)
	}

	data, err := Render(rows, s.Format)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(s.Path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s file: %w", s.formatName(), err)
	}
	return nil
}

func (s FileSink) formatName() string {
	if s.Format == "" {
		return FormatCSV
	}
	return strings.ToLower(s.Format)
}

func (s FileSink) String() string {
	return fmt.Sprintf("%s (%s)", s.Path, s.formatName())
}

// TopHits returns up to n hit candidates ordered by popularity, highest first. Ties keep row order.
func TopHits(rows []models.HitCandidateRow, n int) []models.HitCandidateRow {
	var hits []models.HitCandidateRow
	for _, r := range rows {
		if r.IsHitCandidate {
			hits = append(hits, r)
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Track.EffectivePopularity() > hits[j].Track.EffectivePopularity()
	})
	if n >= 0 && len(hits) > n {
		hits = hits[:n]
	}
	return hits
}
