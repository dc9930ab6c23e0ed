// submodule cmd contains command definitions
package main

import (
	"github.com/desertthunder/bidshelf/internal/ui"
	"github.com/urfave/cli/v3"
)

// setupCommand handles setup operations for the database and the config file.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup bidshelf configuration and database",
		Commands: []*cli.Command{
			{
				Name:  "database",
				Usage: "Initialize the SQLite database and run migrations",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Roll back the latest applied migration instead",
					},
				},
				Action: r.SetupDatabase,
			},
			{
				Name:  "config",
				Usage: "Write a commented configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
				},
				Action: r.SetupConfig,
			},
		},
	}
}

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address, defaults to server.host:server.port",
			},
			&cli.BoolFlag{
				Name:  "open",
				Usage: "Open the UI in the default browser",
			},
		},
		Action: r.Serve,
	}
}

func workerCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Consume acquisition jobs from RabbitMQ",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve /metrics on this address (disabled when empty)",
			},
		},
		Action: r.Worker,
	}
}

// datasetsCommand manages registered datasets without the web UI.
func datasetsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "datasets",
		Aliases: []string{"ds"},
		Usage:   "Manage registered datasets",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List datasets with their reconciled state",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
				},
				Action: r.DatasetsList,
			},
			{
				Name:  "show",
				Usage: "Show dataset_description.json and summary metadata",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Dataset ID",
						Required: true,
					},
				},
				Action: r.DatasetsShow,
			},
			{
				Name:  "add",
				Usage: "Register a dataset from a folder, an archive or OpenNeuro",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "name",
						Usage:    "Display name",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "folder",
						Usage: "Existing BIDS folder",
					},
					&cli.BoolFlag{
						Name:  "copy",
						Usage: "Copy the folder into the data directory",
					},
					&cli.StringFlag{
						Name:  "archive",
						Usage: "Archive to unpack (.zip, .tar, .tar.gz, .7z)",
					},
					&cli.StringFlag{
						Name:  "database-id",
						Usage: "OpenNeuro accession number, e.g. ds000001",
					},
					&cli.StringFlag{
						Name:  "version",
						Usage: "OpenNeuro snapshot tag, defaults to the latest",
					},
					&cli.StringFlag{
						Name:  "icon",
						Usage: "Icon image",
					},
				},
				Action: r.DatasetsAdd,
			},
			{
				Name:  "subjects",
				Usage: "Export the subject table",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Dataset ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "csv, markdown or json",
						Value:   "csv",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path (stdout when empty)",
					},
				},
				Action: r.DatasetsSubjects,
			},
		},
	}
}

func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tui",
		Usage: "Launch the terminal dataset browser",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Refresh interval",
				Value: ui.DefaultRefreshInterval,
			},
		},
		Action: r.TUI,
	}
}
