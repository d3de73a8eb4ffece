package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/hitscan/internal/models"
	"github.com/desertthunder/hitscan/internal/shared"
)

// RunRepository stores collection runs and their rows.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

const insertRowQuery = `
	INSERT INTO hit_candidates (
		run_id, position, album_uri, track_name, track_duration_ms, track_uri,
		danceability, energy, key, loudness, mode, speechiness, acousticness,
		instrumentalness, liveness, valence, tempo, popularity, in_featured_playlist,
		album_type, album_name, album_url, artist_name, artist_uri, release_date, is_hit_candidate
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// Create inserts a run and all of its rows in a single transaction.
func (r *RunRepository) Create(ctx context.Context, run models.Run, rows []models.HitCandidateRow) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, locale, pages, threshold, row_count, hit_count, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Locale, run.Pages, run.Threshold, run.RowCount, run.HitCount, run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertRowQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare row insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range rows {
		if _, err := stmt.ExecContext(ctx, rowArgs(run.ID, i, row)...); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

func rowArgs(runID string, position int, row models.HitCandidateRow) []any {
	t := row.Track
	args := []any{runID, position, t.AlbumURI, t.Name, t.DurationMS, t.URI}

	if f := t.Features; f != nil {
		args = append(args, f.Danceability, f.Energy, f.Key, f.Loudness, f.Mode, f.Speechiness,
			f.Acousticness, f.Instrumentalness, f.Liveness, f.Valence, f.Tempo)
	} else {
		args = append(args, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil)
	}

	args = append(args, t.EffectivePopularity(), t.InFeaturedPlaylist)

	if a := row.Album; a != nil {
		args = append(args, a.Type, a.Name, a.URL, a.ArtistName, a.ArtistURI, a.ReleaseDate)
	} else {
		args = append(args, nil, nil, nil, nil, nil, nil)
	}

	return append(args, row.IsHitCandidate)
}

const selectRunQuery = `
	SELECT id, locale, pages, threshold, row_count, hit_count, started_at, finished_at
	FROM runs
`

// Get retrieves a run by ID.
func (r *RunRepository) Get(ctx context.Context, id string) (*models.Run, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx, selectRunQuery+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// List returns the most recent runs first. A limit of zero or less returns every run.
func (r *RunRepository) List(ctx context.Context, limit int) ([]models.Run, error) {
	query := selectRunQuery + " ORDER BY started_at DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

// Rows returns a run's rows in their original order, optionally only hit candidates.
func (r *RunRepository) Rows(ctx context.Context, runID string, hitsOnly bool) ([]models.HitCandidateRow, error) {
	query := `
		SELECT album_uri, track_name, track_duration_ms, track_uri,
			danceability, energy, key, loudness, mode, speechiness, acousticness,
			instrumentalness, liveness, valence, tempo, popularity, in_featured_playlist,
			album_type, album_name, album_url, artist_name, artist_uri, release_date, is_hit_candidate
		FROM hit_candidates
		WHERE run_id = ?
	`
	if hitsOnly {
		query += " AND is_hit_candidate = 1"
	}
	query += " ORDER BY position ASC"

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}
	defer rows.Close()

	var out []models.HitCandidateRow
	for rows.Next() {
		row, err := scanHitCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

// Delete removes a run and, by cascade, its rows.
func (r *RunRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", shared.ErrRunNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRun scans a single row into a [models.Run]. [sql.ErrNoRows] is returned unwrapped.
func scanRun(s scanner) (*models.Run, error) {
	var (
		run                   models.Run
		startedAt, finishedAt time.Time
	)

	err := s.Scan(&run.ID, &run.Locale, &run.Pages, &run.Threshold, &run.RowCount, &run.HitCount, &startedAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.StartedAt, run.FinishedAt = startedAt, finishedAt
	return &run, nil
}

// scanHitCandidate rebuilds a row. NULL feature or album columns become nil pointers.
func scanHitCandidate(s scanner) (models.HitCandidateRow, error) {
	var (
		row                                 models.HitCandidateRow
		popularity                          int
		dance, energy, loud, speech, acoust sql.NullFloat64
		instr, live, valence, tempo         sql.NullFloat64
		key, mode                           sql.NullInt64
		albumType, albumName, albumURL      sql.NullString
		artistName, artistURI, releaseDate  sql.NullString
	)

	t := &row.Track
	err := s.Scan(&t.AlbumURI, &t.Name, &t.DurationMS, &t.URI,
		&dance, &energy, &key, &loud, &mode, &speech, &acoust, &instr, &live, &valence, &tempo,
		&popularity, &t.InFeaturedPlaylist,
		&albumType, &albumName, &albumURL, &artistName, &artistURI, &releaseDate,
		&row.IsHitCandidate)
	if err != nil {
		return row, fmt.Errorf("failed to scan row: %w", err)
	}

	t.Popularity = &popularity

	if dance.Valid {
		t.Features = &models.AudioFeatures{
			Danceability:     dance.Float64,
			Energy:           energy.Float64,
			Key:              int(key.Int64),
			Loudness:         loud.Float64,
			Mode:             int(mode.Int64),
			Speechiness:      speech.Float64,
			Acousticness:     acoust.Float64,
			Instrumentalness: instr.Float64,
			Liveness:         live.Float64,
			Valence:          valence.Float64,
			Tempo:            tempo.Float64,
		}
	}

	if albumName.Valid {
		row.Album = &models.AlbumRecord{
			URI:         t.AlbumURI,
			Type:        albumType.String,
			Name:        albumName.String,
			URL:         albumURL.String,
			ArtistName:  artistName.String,
			ArtistURI:   artistURI.String,
			ReleaseDate: releaseDate.String,
		}
	}

	return row, nil
}

// RunSink records collection runs in the database.
type RunSink struct {
	Repo *RunRepository
}

// WriteRows stores the run and its rows.
func (s RunSink) WriteRows(ctx context.Context, run models.Run, rows []models.HitCandidateRow) error {
	if s.Repo == nil {
		return fmt.Errorf("%w: run repository not initialized", shared.ErrServiceUnavailable)
	}
	return s.Repo.Create(ctx, run, rows)
}

func (s RunSink) String() string {
	return "sqlite"
}
