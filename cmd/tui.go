package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/bidshelf/internal/shared"
	"github.com/desertthunder/bidshelf/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal dataset browser.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/bidshelf-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	app, err := r.open(ctx, false)
	if err != nil {
		return err
	}
	defer app.Close()

	model := ui.NewModel(ctx, app.catalog, cmd.Duration("interval"))
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
