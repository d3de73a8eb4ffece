package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/hitscan/internal/formatter"
	"github.com/desertthunder/hitscan/internal/shared"
	"github.com/desertthunder/hitscan/internal/ui"
	"github.com/urfave/cli/v3"
)

// RunsList prints recorded runs, newest first.
func (r *Runner) RunsList(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	repo, db, err := r.openRepository(config)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := repo.List(ctx, cmd.Int("limit"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(runs, true)
	}

	if len(runs) == 0 {
		return r.writePlain("No runs recorded. Use 'hitscan collect --db' to record one.\n")
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.ID,
			run.StartedAt.Local().Format(time.DateTime),
			run.Locale,
			strconv.Itoa(run.Pages),
			strconv.Itoa(run.Threshold),
			strconv.Itoa(run.RowCount),
			strconv.Itoa(run.HitCount),
		})
	}

	headers := []string{"ID", "Started", "Locale", "Pages", "Threshold", "Rows", "Hits"}
	aligns := []ui.Align{ui.AlignLeft, ui.AlignLeft, ui.AlignLeft, ui.AlignRight, ui.AlignRight, ui.AlignRight, ui.AlignRight}
	return r.writePlain("%s\n", ui.RenderTable(headers, rows, aligns))
}

// RunsShow prints the rows of one run as a table, CSV or JSON.
func (r *Runner) RunsShow(ctx context.Context, cmd *cli.Command) error {
	id := cmd.String("id")
	if !shared.ValidID(id) {
		return fmt.Errorf("%w: run id %q is not a UUID", shared.ErrInvalidArgument, id)
	}

	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	repo, db, err := r.openRepository(config)
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}

	rows, err := repo.Rows(ctx, id, cmd.Bool("hits"))
	if err != nil {
		return err
	}

	format := strings.ToLower(cmd.String("format"))
	if format == "" || format == "table" {
		r.writePlainHeader(fmt.Sprintf("Run %s", run.ID))
		r.writePlain("Started:   %s\n", run.StartedAt.Local().Format(time.DateTime))
		r.writePlain("Locale:    %s (%d pages, threshold %d)\n", run.Locale, run.Pages, run.Threshold)
		r.writePlain("Hits:      %d of %d\n\n", run.HitCount, run.RowCount)
		return r.writePlain("%s\n", ui.HitsTable(rows))
	}

	data, err := formatter.Render(rows, format)
	if err != nil {
		return err
	}
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// RunsDelete removes a run and its rows.
func (r *Runner) RunsDelete(ctx context.Context, cmd *cli.Command) error {
	id := cmd.String("id")
	if !shared.ValidID(id) {
		return fmt.Errorf("%w: run id %q is not a UUID", shared.ErrInvalidArgument, id)
	}

	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	repo, db, err := r.openRepository(config)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repo.Delete(ctx, id); err != nil {
		return err
	}

	r.logger.Info("run deleted", "id", id)
	return r.writePlain("✓ Deleted run %s\n", id)
}
