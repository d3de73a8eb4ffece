package tasks

import (
	"fmt"
)

// ProgressUpdate represents a progress event during a collection run.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	FetchReleases Phase = iota
	FetchTracks
	FetchFeatured
	ClassifyRows
	PersistRows
)

func (p Phase) String() string {
	switch p {
	case FetchReleases:
		return "fetch_releases"
	case FetchTracks:
		return "fetch_tracks"
	case FetchFeatured:
		return "fetch_featured"
	case ClassifyRows:
		return "classify"
	case PersistRows:
		return "persist"
	default:
		return ""
	}
}

func releasesPageUpdate(step, total int, locale string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchReleases,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Fetching new releases (%s)...", step, total, locale),
	}
}

func albumTracksUpdate(step, total int, album string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s", step, total, album),
	}
}

func featuredPlaylistUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchFeatured,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Scanning featured playlist: %s", step, total, name),
	}
}

func classifyUpdate(rows, hits int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ClassifyRows,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Labeled %d rows (%d hit candidates)", rows, hits),
	}
}

func persistUpdate(step, total int, sink RowSink) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PersistRows,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Writing rows to %s", step, total, sinkName(sink)),
		Data:    sink,
	}
}

func sinkName(s RowSink) string {
	if n, ok := s.(fmt.Stringer); ok {
		return n.String()
	}
	return fmt.Sprintf("%T", s)
}
