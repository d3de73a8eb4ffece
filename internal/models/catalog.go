package models

// Artist is an artist credit on an album.
type Artist struct {
	Name string
	URI  string
}

// Album is a release returned by a new-releases listing.
type Album struct {
	URI         string
	Type        string // album, single, compilation
	Name        string
	Href        string // API endpoint for the full album
	ReleaseDate string
	Artists     []Artist
}

// AlbumPage is one page of a new-releases listing.
type AlbumPage struct {
	Items []Album
	Total int
}

// TrackItem is a track as listed on an album page.
//
// URI is empty for items the provider cannot identify (local files).
type TrackItem struct {
	URI        string
	Name       string
	DurationMS int
}

// TrackPage is one page of an album's tracks.
type TrackPage struct {
	Items []TrackItem
}

// AudioFeatures holds provider-computed descriptors for a track.
type AudioFeatures struct {
	Danceability     float64 `json:"danceability"`
	Energy           float64 `json:"energy"`
	Key              int     `json:"key"`
	Loudness         float64 `json:"loudness"`
	Mode             int     `json:"mode"`
	Speechiness      float64 `json:"speechiness"`
	Acousticness     float64 `json:"acousticness"`
	Instrumentalness float64 `json:"instrumentalness"`
	Liveness         float64 `json:"liveness"`
	Valence          float64 `json:"valence"`
	Tempo            float64 `json:"tempo"`
}

// Marker is one timed interval of an audio analysis (a bar, beat or tatum).
type Marker struct {
	Start      float64 `json:"start"`
	Duration   float64 `json:"duration"`
	Confidence float64 `json:"confidence"`
}

// AudioAnalysis is the low-level rhythmic structure of a track.
type AudioAnalysis struct {
	Bars   []Marker `json:"bars"`
	Beats  []Marker `json:"beats"`
	Tatums []Marker `json:"tatums"`
}

// TrackDetails is the subset of a full track lookup the pipeline uses.
//
// Popularity is nil when the provider omits it.
type TrackDetails struct {
	URI        string
	Popularity *int
}

// PlaylistRef identifies a featured playlist.
type PlaylistRef struct {
	ID   string
	Name string
}

// PlaylistPage is one page of featured playlists.
type PlaylistPage struct {
	Items []PlaylistRef
}

// PlaylistItemPage is one page of a playlist's items, reduced to track URIs.
//
// Next is empty on the last page.
type PlaylistItemPage struct {
	TrackURIs []string
	Next      string
}
