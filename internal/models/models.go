// package models defines the data model for hit-candidate collection
package models

import (
	"fmt"
	"time"
)

// DefaultPopularityThreshold is the popularity at or above which a track is a hit candidate.
const DefaultPopularityThreshold = 60

// Run records one collection run.
type Run struct {
	ID         string
	Locale     string
	Pages      int
	Threshold  int
	RowCount   int
	HitCount   int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Validate checks the run's data is storable.
func (r Run) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if r.Locale == "" {
		return fmt.Errorf("run locale is required")
	}
	if r.Pages < 1 {
		return fmt.Errorf("run pages must be at least 1, got %d", r.Pages)
	}
	if r.FinishedAt.Before(r.StartedAt) {
		return fmt.Errorf("run finished before it started")
	}
	return nil
}

// Duration returns how long the run took.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
