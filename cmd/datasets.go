package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/desertthunder/bidshelf/internal/catalog"
	"github.com/desertthunder/bidshelf/internal/formatter"
	"github.com/desertthunder/bidshelf/internal/models"
	"github.com/desertthunder/bidshelf/internal/shared"
	"github.com/urfave/cli/v3"
)

type datasetEntry struct {
	Dataset *models.Dataset `json:"dataset"`
	Error   string          `json:"error,omitempty"`
}

// DatasetsList prints every dataset after reconciling its state.
func (r *Runner) DatasetsList(ctx context.Context, cmd *cli.Command) error {
	app, err := r.open(ctx, false)
	if err != nil {
		return err
	}
	defer app.Close()

	outcomes, err := app.catalog.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list datasets: %w", err)
	}

	if cmd.Bool("json") {
		entries := make([]datasetEntry, len(outcomes))
		for i, o := range outcomes {
			entries[i] = datasetEntry{Dataset: o.Dataset}
			if o.Err != nil {
				entries[i].Error = o.Err.Error()
			}
		}
		return r.writeJSON(entries, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Datasets (%d)", len(outcomes)))
	for _, o := range outcomes {
		d := o.Dataset
		r.writePlain("%-12s  %-8s  %s\n", d.ID(), d.State(), d.Name())
		if d.Folder() != "" {
			r.writePlain("              folder: %s\n", d.Folder())
		}
		if o.Err != nil {
			r.writePlain("              error:  %v\n", o.Err)
		}
	}
	return nil
}

// DatasetsShow prints the dataset description and summary metadata.
func (r *Runner) DatasetsShow(ctx context.Context, cmd *cli.Command) error {
	app, err := r.open(ctx, false)
	if err != nil {
		return err
	}
	defer app.Close()

	d, parsed, err := app.catalog.View(ctx, cmd.String("id"))
	if err != nil {
		return err
	}

	r.writePlain("%s", formatter.ExportToText(d.Name(), parsed.AllMetaData()))
	return nil
}

// DatasetsAdd registers a dataset. With the local backend it waits for the acquisition to finish.
func (r *Runner) DatasetsAdd(ctx context.Context, cmd *cli.Command) error {
	req := catalog.CreateRequest{
		Name:       cmd.String("name"),
		Folder:     cmd.String("folder"),
		DatabaseID: cmd.String("database-id"),
		Version:    cmd.String("version"),
		CopyFolder: cmd.Bool("copy"),
	}
	if req.Folder == "" && req.DatabaseID == "" && cmd.String("archive") == "" {
		return fmt.Errorf("%w: one of --folder, --archive or --database-id is required", shared.ErrMissingArgument)
	}

	var files []*os.File
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()
	upload := func(path string) (*catalog.Upload, error) {
		if path == "" {
			return nil, nil
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
		}
		files = append(files, f)
		return &catalog.Upload{Filename: filepath.Base(path), Body: f}, nil
	}

	var err error
	if req.Archive, err = upload(cmd.String("archive")); err != nil {
		return err
	}
	if req.Icon, err = upload(cmd.String("icon")); err != nil {
		return err
	}

	app, err := r.open(ctx, true)
	if err != nil {
		return err
	}
	defer app.Close()

	d, err := app.catalog.Create(ctx, req)
	if err != nil {
		return err
	}
	r.logger.Info("dataset created", "id", d.ID(), "state", d.State())

	if d.HasTask() && r.config.Worker.Backend == backendLocal {
		r.logger.Info("waiting for acquisition", "task_id", d.TaskID())
		app.drain()
	}

	out, err := app.catalog.Get(ctx, d.ID())
	if err != nil {
		return err
	}
	if out.Err != nil {
		r.logger.Warn("state not reconciled", "id", d.ID(), "error", out.Err)
	}

	r.writePlain("%s  %s  %s\n", out.Dataset.ID(), out.Dataset.State(), out.Dataset.Name())
	return nil
}

// DatasetsSubjects exports the subject table to --output, or to stdout.
func (r *Runner) DatasetsSubjects(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	app, err := r.open(ctx, false)
	if err != nil {
		return err
	}
	defer app.Close()

	d, table, err := app.catalog.Subjects(ctx, cmd.String("id"))
	if err != nil {
		return err
	}

	if output := cmd.String("output"); output != "" {
		path, err := formatter.WriteExport(format, d.Name(), table, output, "")
		if err != nil {
			return err
		}
		r.logger.Info("subjects exported", "path", path, "rows", len(table.Rows))
		return nil
	}

	data, err := formatter.Export(format, d.Name(), table)
	if err != nil {
		return err
	}
	return r.writePlain("%s", data)
}
