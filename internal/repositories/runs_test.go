package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/hitscan/internal/models"
	"github.com/desertthunder/hitscan/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func intPtr(i int) *int { return &i }

func newRun(started time.Time) models.Run {
	return models.Run{
		ID:         shared.GenerateID(),
		Locale:     "US",
		Pages:      1,
		Threshold:  60,
		RowCount:   2,
		HitCount:   1,
		StartedAt:  started.UTC(),
		FinishedAt: started.Add(3 * time.Second).UTC(),
	}
}

func sampleRows() []models.HitCandidateRow {
	return []models.HitCandidateRow{
		{
			Track: models.TrackRecord{
				URI: "spotify:track:1", AlbumURI: "spotify:album:1", Name: "Hit", DurationMS: 200000,
				Features:   &models.AudioFeatures{Danceability: 0.8, Energy: 0.6, Key: 7, Loudness: -4.5, Mode: 0, Tempo: 124.5},
				Popularity: intPtr(81),
			},
			Album: &models.AlbumRecord{
				URI: "spotify:album:1", Type: "single", Name: "Hit Single", URL: "href",
				ArtistName: "Artist", ArtistURI: "spotify:artist:1", ReleaseDate: "2024-02-02",
			},
			IsHitCandidate: true,
		},
		{
			Track: models.TrackRecord{URI: "spotify:track:2", AlbumURI: "spotify:album:gone", Name: "Orphan"},
		},
	}
}

func TestRunRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Create And Get", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))
		run := newRun(time.Now())

		if err := repo.Create(ctx, run, sampleRows()); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}

		got, err := repo.Get(ctx, run.ID)
		if err != nil {
			t.Fatalf("failed to get run: %v", err)
		}
		if got.Locale != "US" || got.RowCount != 2 || got.HitCount != 1 {
			t.Errorf("unexpected run %+v", got)
		}
		if !got.StartedAt.Equal(run.StartedAt) || got.Duration() != 3*time.Second {
			t.Errorf("timestamps did not round-trip: %v to %v", got.StartedAt, got.FinishedAt)
		}
	})

	t.Run("Rows", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))
		run := newRun(time.Now())
		if err := repo.Create(ctx, run, sampleRows()); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}

		rows, err := repo.Rows(ctx, run.ID, false)
		if err != nil {
			t.Fatalf("failed to get rows: %v", err)
		}
		if len(rows) != 2 {
			t.Fatalf("expected 2 rows, got %d", len(rows))
		}

		want := sampleRows()
		for i := range rows {
			got, exp := rows[i].Values(), want[i].Values()
			for j := range got {
				if got[j] != exp[j] {
					t.Errorf("row %d column %s: got %q, want %q", i, models.Columns()[j], got[j], exp[j])
				}
			}
		}
		if rows[1].Track.Features != nil || rows[1].Album != nil {
			t.Error("NULL columns should read back as nil")
		}

		hits, err := repo.Rows(ctx, run.ID, true)
		if err != nil {
			t.Fatalf("failed to get hit rows: %v", err)
		}
		if len(hits) != 1 || hits[0].Track.URI != "spotify:track:1" {
			t.Errorf("expected only the hit row, got %+v", hits)
		}
	})

	t.Run("List", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))
		base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
		older, newer := newRun(base), newRun(base.Add(time.Hour))

		for _, run := range []models.Run{older, newer} {
			if err := repo.Create(ctx, run, nil); err != nil {
				t.Fatalf("failed to create run: %v", err)
			}
		}

		runs, err := repo.List(ctx, 0)
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(runs) != 2 || runs[0].ID != newer.ID {
			t.Errorf("expected newest run first, got %+v", runs)
		}

		limited, err := repo.List(ctx, 1)
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(limited) != 1 {
			t.Errorf("expected 1 run, got %d", len(limited))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewRunRepository(db)
		run := newRun(time.Now())
		if err := repo.Create(ctx, run, sampleRows()); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}

		if err := repo.Delete(ctx, run.ID); err != nil {
			t.Fatalf("failed to delete run: %v", err)
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM hit_candidates").Scan(&count); err != nil {
			t.Fatalf("failed to count rows: %v", err)
		}
		if count != 0 {
			t.Errorf("expected rows to cascade, got %d", count)
		}

		if err := repo.Delete(ctx, run.ID); !errors.Is(err, shared.ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound, got %v", err)
		}
	})
}

func TestRunRepositoryErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("Create", func(t *testing.T) {
		t.Run("ValidationError", func(t *testing.T) {
			repo := NewRunRepository(setupTestDB(t))
			if err := repo.Create(ctx, models.Run{Locale: "US", Pages: 1}, nil); err == nil {
				t.Fatal("expected validation error for missing id")
			}
		})

		t.Run("DuplicateID Rolls Back", func(t *testing.T) {
			db := setupTestDB(t)
			repo := NewRunRepository(db)
			run := newRun(time.Now())

			if err := repo.Create(ctx, run, sampleRows()); err != nil {
				t.Fatalf("failed to create first run: %v", err)
			}
			if err := repo.Create(ctx, run, sampleRows()); err == nil {
				t.Fatal("expected error for duplicate run id")
			}

			var count int
			if err := db.QueryRow("SELECT COUNT(*) FROM hit_candidates").Scan(&count); err != nil {
				t.Fatalf("failed to count rows: %v", err)
			}
			if count != 2 {
				t.Errorf("expected only the first run's rows, got %d", count)
			}
		})
	})

	t.Run("Get", func(t *testing.T) {
		t.Run("NotFound", func(t *testing.T) {
			repo := NewRunRepository(setupTestDB(t))
			if _, err := repo.Get(ctx, "nonexistent-id"); !errors.Is(err, shared.ErrRunNotFound) {
				t.Fatalf("expected ErrRunNotFound, got %v", err)
			}
		})
	})

	t.Run("Closed Database", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewRunRepository(db)
		db.Close()

		if _, err := repo.List(ctx, 0); err == nil {
			t.Error("expected error listing from closed database")
		}
		if _, err := repo.Rows(ctx, "id", false); err == nil {
			t.Error("expected error reading rows from closed database")
		}
		if err := repo.Create(ctx, newRun(time.Now()), nil); err == nil {
			t.Error("expected error creating in closed database")
		}
	})
}

func TestRunSink(t *testing.T) {
	ctx := context.Background()

	t.Run("stores run", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))
		sink := RunSink{Repo: repo}
		run := newRun(time.Now())

		if err := sink.WriteRows(ctx, run, sampleRows()); err != nil {
			t.Fatalf("WriteRows failed: %v", err)
		}
		if _, err := repo.Get(ctx, run.ID); err != nil {
			t.Errorf("run should be stored: %v", err)
		}
		if sink.String() != "sqlite" {
			t.Errorf("unexpected name %s", sink.String())
		}
	})

	t.Run("nil repository", func(t *testing.T) {
		if err := (RunSink{}).WriteRows(ctx, newRun(time.Now()), nil); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})
}
