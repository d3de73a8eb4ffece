package models

import (
	"strconv"
)

// AlbumRecord is the flattened form of an [Album]. Only the first artist is kept.
type AlbumRecord struct {
	URI         string `json:"album_uri"`
	Type        string `json:"album_type"`
	Name        string `json:"album_name"`
	URL         string `json:"album_url"`
	ArtistName  string `json:"artist_name"`
	ArtistURI   string `json:"artist_uri"`
	ReleaseDate string `json:"release_date"`
}

// NewAlbumRecord flattens an album. It reports false when the album has no URI, since the URI is the join key.
func NewAlbumRecord(a Album) (AlbumRecord, bool) {
	if a.URI == "" {
		return AlbumRecord{}, false
	}

	rec := AlbumRecord{
		URI:         a.URI,
		Type:        a.Type,
		Name:        a.Name,
		URL:         a.Href,
		ReleaseDate: a.ReleaseDate,
	}
	if len(a.Artists) > 0 {
		rec.ArtistName = a.Artists[0].Name
		rec.ArtistURI = a.Artists[0].URI
	}
	return rec, true
}

// TrackRecord is one track found under an album.
//
// Features, Popularity and Analysis are nil when the provider returned nothing for them.
type TrackRecord struct {
	URI                string
	AlbumURI           string
	Name               string
	DurationMS         int
	Features           *AudioFeatures
	Popularity         *int
	InFeaturedPlaylist bool
	Analysis           *AudioAnalysis
}

// NewTrackRecord builds the record for an album track item. It reports false for items without a URI.
func NewTrackRecord(albumURI string, item TrackItem) (TrackRecord, bool) {
	if item.URI == "" {
		return TrackRecord{}, false
	}
	return TrackRecord{
		URI:        item.URI,
		AlbumURI:   albumURI,
		Name:       item.Name,
		DurationMS: item.DurationMS,
	}, true
}

// EffectivePopularity returns the popularity, or 0 when it is missing.
func (t TrackRecord) EffectivePopularity() int {
	if t.Popularity == nil {
		return 0
	}
	return *t.Popularity
}

// FeaturedIndex is the set of track URIs found in featured playlists. The zero value is empty.
type FeaturedIndex struct {
	uris map[string]struct{}
}

// NewFeaturedIndex builds an index from uris, ignoring empty strings.
func NewFeaturedIndex(uris ...string) FeaturedIndex {
	idx := FeaturedIndex{uris: make(map[string]struct{}, len(uris))}
	for _, u := range uris {
		if u != "" {
			idx.uris[u] = struct{}{}
		}
	}
	return idx
}

// Contains reports whether uri is in the index. The empty URI is never a member.
func (f FeaturedIndex) Contains(uri string) bool {
	if uri == "" {
		return false
	}
	_, ok := f.uris[uri]
	return ok
}

// Len returns the number of distinct URIs.
func (f FeaturedIndex) Len() int {
	return len(f.uris)
}

// IsHitCandidate applies the labeling rule.
func IsHitCandidate(popularity int, inFeatured bool, threshold int) bool {
	return popularity >= threshold || inFeatured
}

// HitCandidateRow is a track left-joined with its album. Album is nil for orphaned tracks.
type HitCandidateRow struct {
	Track          TrackRecord
	Album          *AlbumRecord
	IsHitCandidate bool
}

var columns = []string{
	"album_uri", "track_name", "track_duration_ms", "track_uri",
	"danceability", "energy", "key", "loudness", "mode", "speechiness",
	"acousticness", "instrumentalness", "liveness", "valence", "tempo",
	"popularity", "in_featured_playlist",
	"album_type", "album_name", "album_url", "artist_name", "artist_uri", "release_date",
	"is_hit_candidate",
}

// Columns returns the tabular column order: track fields, then album fields, then the label.
func Columns() []string {
	out := make([]string, len(columns))
	copy(out, columns)
	return out
}

// Values renders the row in [Columns] order. Missing values render as empty strings.
func (r HitCandidateRow) Values() []string {
	t := r.Track
	vals := make([]string, 0, len(columns))
	vals = append(vals, t.AlbumURI, t.Name, strconv.Itoa(t.DurationMS), t.URI)

	if f := t.Features; f != nil {
		vals = append(vals,
			formatFloat(f.Danceability), formatFloat(f.Energy), strconv.Itoa(f.Key),
			formatFloat(f.Loudness), strconv.Itoa(f.Mode), formatFloat(f.Speechiness),
			formatFloat(f.Acousticness), formatFloat(f.Instrumentalness), formatFloat(f.Liveness),
			formatFloat(f.Valence), formatFloat(f.Tempo),
		)
	} else {
		vals = append(vals, make([]string, 11)...)
	}

	vals = append(vals, strconv.Itoa(t.EffectivePopularity()), formatBool(t.InFeaturedPlaylist))

	if a := r.Album; a != nil {
		vals = append(vals, a.Type, a.Name, a.URL, a.ArtistName, a.ArtistURI, a.ReleaseDate)
	} else {
		vals = append(vals, make([]string, 6)...)
	}

	return append(vals, formatBool(r.IsHitCandidate))
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
