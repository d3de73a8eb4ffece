package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/desertthunder/hitscan/internal/formatter"
	"github.com/desertthunder/hitscan/internal/repositories"
	"github.com/desertthunder/hitscan/internal/shared"
	"github.com/desertthunder/hitscan/internal/tasks"
	"github.com/desertthunder/hitscan/internal/ui"
	"github.com/urfave/cli/v3"
)

// parsePages reads the pages argument. Empty input yields fallback; unparsable input yields 1 and false.
func parsePages(raw string, fallback int) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 1, false
	}
	return n, true
}

// Collect runs the pipeline and writes the rows to the output file and, with --db, the database.
//
// When a sink fails the summary is still printed before the error is returned.
func (r *Runner) Collect(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	locale := cmd.StringArg("locale")
	if locale == "" {
		locale = config.Collect.Locale
	}

	pages, ok := parsePages(cmd.StringArg("pages"), config.Collect.Pages)
	if !ok {
		r.logger.Warn("invalid pages argument, using 1", "pages", cmd.StringArg("pages"))
	}

	opts := tasks.CollectorOpts{
		PageSize:     config.Collect.PageSize,
		Threshold:    config.Collect.PopularityThreshold,
		Workers:      config.Collect.Workers,
		WithAnalysis: cmd.Bool("analysis"),
		Logger:       shared.WithLogger(r.logger, "locale", locale),
	}
	if cmd.IsSet("threshold") {
		opts.Threshold = cmd.Int("threshold")
		if err := shared.ValidateThreshold(opts.Threshold); err != nil {
			return fmt.Errorf("--threshold: %w", err)
		}
	}
	if cmd.IsSet("workers") {
		opts.Workers = cmd.Int("workers")
	}

	sink := formatter.FileSink{Path: config.Collect.Output, Format: config.Collect.Format}
	if cmd.IsSet("output") {
		sink.Path = cmd.String("output")
	}
	if cmd.IsSet("format") {
		sink.Format = cmd.String("format")
	}
	if _, err := formatter.Render(nil, sink.Format); err != nil {
		return err
	}
	if opts.WithAnalysis && !strings.EqualFold(sink.Format, formatter.FormatJSON) {
		r.logger.Warn("audio analysis is only written with --format json")
	}
	opts.Sinks = append(opts.Sinks, sink)

	if cmd.Bool("db") {
		repo, db, err := r.openRepository(config)
		if err != nil {
			return err
		}
		defer db.Close()
		opts.Sinks = append(opts.Sinks, repositories.RunSink{Repo: repo})
	}

	catalog, err := r.spotifyCatalog(ctx, config)
	if err != nil {
		return err
	}

	collector := tasks.NewCollector(catalog, opts)
	run := func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.CollectResult, error) {
		return collector.Collect(ctx, progress, tasks.CollectRequest{Locale: locale, Pages: pages})
	}

	r.logger.Info("collecting new releases", "locale", locale, "pages", pages, "threshold", opts.Threshold)
	var res *tasks.CollectResult
	if r.interactive() && !cmd.Bool("no-progress") {
		res, err = ui.RunProgress(ctx, fmt.Sprintf("Collecting new releases (%s)", locale), run, r.output)
	} else {
		res, err = r.logProgress(ctx, run)
	}

	if err != nil && !errors.Is(err, shared.ErrPersistFailed) {
		return err
	}

	r.printSummary(res, sink)
	if n := cmd.Int("show"); n > 0 {
		r.writePlain("%s\n", ui.HitsTable(formatter.TopHits(res.Rows, n)))
	}
	return err
}

// logProgress runs fn while logging phase changes at info level and every step at debug level.
func (r *Runner) logProgress(ctx context.Context, fn ui.RunFunc) (*tasks.CollectResult, error) {
	progress := make(chan tasks.ProgressUpdate, 32)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		phase := tasks.Phase(-1)
		for u := range progress {
			if u.Phase != phase {
				phase = u.Phase
				r.logger.Info(u.Message, "phase", u.Phase)
				continue
			}
			r.logger.Debug(u.Message, "phase", u.Phase, "step", u.Step, "total", u.Total)
		}
	}()

	res, err := fn(ctx, progress)
	close(progress)
	wg.Wait()
	return res, err
}

func (r *Runner) printSummary(res *tasks.CollectResult, sink formatter.FileSink) {
	r.writePlainHeader(fmt.Sprintf("Run %s", res.Run.ID))
	r.writePlain("Locale:      %s (%d pages)\n", res.Run.Locale, res.Run.Pages)
	r.writePlain("Albums:      %d\n", len(res.Albums))
	r.writePlain("Tracks:      %d\n", len(res.Rows))
	r.writePlain("Featured:    %d\n", res.FeaturedCount)
	r.writePlain("Hits:        %s\n", ui.Styles.OK(strconv.Itoa(res.Run.HitCount)))
	if res.Skipped > 0 {
		r.writePlain("Skipped:     %d\n", res.Skipped)
	}

	if len(res.Warnings) > 0 {
		r.writePlain("%s\n", ui.Styles.Warn(fmt.Sprintf("%d warnings", len(res.Warnings))))
		for _, w := range res.Warnings {
			r.writePlain("  %s\n", ui.Styles.Help(w))
		}
	}

	switch {
	case len(res.Rows) == 0:
		r.writePlainln("No rows to write")
	case len(res.PersistErrors) > 0:
		for _, e := range res.PersistErrors {
			r.writePlain("%s %v\n", ui.Styles.Err("✗"), e)
		}
	default:
		r.writePlainln("✓ Rows written to %s", sink)
	}
}
