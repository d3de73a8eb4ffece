// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// collectCommand runs the aggregation pipeline.
func collectCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "collect",
		Usage:     "Fetch new releases and label hit candidates",
		ArgsUsage: "[locale] [pages]",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "locale"},
			&cli.StringArg{Name: "pages"},
		},
		Flags: []cli.Flag{
			configFlag(),
			&cli.IntFlag{
				Name:    "threshold",
				Aliases: []string{"t"},
				Usage:   "Popularity at or above which a track is a hit candidate",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file path",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format (csv or json)",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Albums fetched concurrently",
			},
			&cli.BoolFlag{
				Name:  "analysis",
				Usage: "Also fetch audio analysis (JSON output only)",
			},
			&cli.BoolFlag{
				Name:  "db",
				Usage: "Record the run in the SQLite database",
			},
			&cli.IntFlag{
				Name:  "show",
				Usage: "Print the top N hit candidates",
			},
			&cli.BoolFlag{
				Name:  "no-progress",
				Usage: "Log progress instead of drawing the progress view",
			},
		},
		Action: r.Collect,
	}
}

// runsCommand reads and prunes recorded runs.
func runsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "Inspect runs recorded with collect --db",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recorded runs, newest first",
				Flags: []cli.Flag{
					configFlag(),
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of runs to list",
						Value: 20,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.RunsList,
			},
			{
				Name:  "show",
				Usage: "Print the rows of a recorded run",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Run ID",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "hits",
						Usage: "Only hit candidates",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format (table, csv or json)",
						Value:   "table",
					},
				},
				Action: r.RunsShow,
			},
			{
				Name:  "delete",
				Usage: "Delete a recorded run and its rows",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Run ID",
						Required: true,
					},
				},
				Action: r.RunsDelete,
			},
		},
	}
}

// authCommand authorizes hitscan with a Spotify account.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with Spotify using OAuth2 and save the tokens",
		Flags: []cli.Flag{
			configFlag(),
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the browser callback",
				Value: defaultAuthTimeout,
			},
		},
		Action: r.Auth,
	}
}

// setupCommand handles setup operations for configuration and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write an example config.toml",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupConfig,
			},
			{
				Name:  "database",
				Usage: "Initialize database and run migrations",
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Roll back the most recent migration instead",
					},
				},
				Action: r.SetupDatabase,
			},
		},
	}
}
