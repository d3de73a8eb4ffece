package tasks

import (
	"github.com/desertthunder/hitscan/internal/models"
)

// NormalizePages clamps a requested page count to at least 1. The second return reports whether it was clamped.
func NormalizePages(pages int) (int, bool) {
	if pages < 1 {
		return 1, true
	}
	return pages, false
}

// normalizeAlbums flattens release pages into album records in listing order.
//
// Duplicate URIs keep the first occurrence. Albums without a URI are counted as skipped.
func normalizeAlbums(pages []*models.AlbumPage) (albums []models.AlbumRecord, skipped int) {
	seen := make(map[string]struct{})
	for _, page := range pages {
		if page == nil {
			continue
		}
		for _, a := range page.Items {
			rec, ok := models.NewAlbumRecord(a)
			if !ok {
				skipped++
				continue
			}
			if _, dup := seen[rec.URI]; dup {
				continue
			}
			seen[rec.URI] = struct{}{}
			albums = append(albums, rec)
		}
	}
	return albums, skipped
}

// markFeatured returns a copy of tracks with InFeaturedPlaylist set from idx.
func markFeatured(tracks []models.TrackRecord, idx models.FeaturedIndex) []models.TrackRecord {
	out := make([]models.TrackRecord, len(tracks))
	for i, t := range tracks {
		t.InFeaturedPlaylist = idx.Contains(t.URI)
		out[i] = t
	}
	return out
}

// JoinRows left-joins tracks onto albums by album URI. Every track yields exactly one row, in track order.
func JoinRows(tracks []models.TrackRecord, albums []models.AlbumRecord) []models.HitCandidateRow {
	byURI := make(map[string]*models.AlbumRecord, len(albums))
	for i := range albums {
		if _, ok := byURI[albums[i].URI]; !ok {
			byURI[albums[i].URI] = &albums[i]
		}
	}

	rows := make([]models.HitCandidateRow, len(tracks))
	for i, t := range tracks {
		row := models.HitCandidateRow{Track: t}
		if a, ok := byURI[t.AlbumURI]; ok {
			album := *a
			row.Album = &album
		}
		rows[i] = row
	}
	return rows
}

// Classify returns a copy of rows labeled with the hit-candidate rule at threshold.
func Classify(rows []models.HitCandidateRow, threshold int) []models.HitCandidateRow {
	out := make([]models.HitCandidateRow, len(rows))
	for i, r := range rows {
		r.IsHitCandidate = models.IsHitCandidate(r.Track.EffectivePopularity(), r.Track.InFeaturedPlaylist, threshold)
		out[i] = r
	}
	return out
}

// countHits returns the number of labeled hit candidates.
func countHits(rows []models.HitCandidateRow) int {
	n := 0
	for _, r := range rows {
		if r.IsHitCandidate {
			n++
		}
	}
	return n
}
