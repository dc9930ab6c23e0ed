package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/desertthunder/bidshelf/internal/models"
	"github.com/desertthunder/bidshelf/internal/tasks"
)

var columns = []table.Column{
	{Title: "ID", Width: 8},
	{Title: "Name", Width: 24},
	{Title: "State", Width: 9},
	{Title: "Source", Width: 22},
	{Title: "Folder", Width: 40},
}

func datasetRows(outcomes []tasks.Outcome) []table.Row {
	rows := make([]table.Row, len(outcomes))
	for i, o := range outcomes {
		rows[i] = datasetRow(o)
	}
	return rows
}

// datasetRow marks a row whose reconciliation failed with a trailing "!" on the state.
func datasetRow(o tasks.Outcome) table.Row {
	d := o.Dataset
	state := d.State().String()
	if o.Err != nil {
		state += "!"
	}
	id := d.ID()
	if len(id) > 8 {
		id = id[:8]
	}
	return table.Row{id, d.Name(), state, datasetSource(d), d.Folder()}
}

func datasetSource(d *models.Dataset) string {
	switch {
	case d.IsRemote() && d.Version() != "":
		return fmt.Sprintf("openneuro %s@%s", d.DatabaseID(), d.Version())
	case d.IsRemote():
		return "openneuro " + d.DatabaseID()
	case d.HasTask():
		return "job"
	default:
		return "local"
	}
}

// stateSummary renders per-state counts in a fixed order, skipping empty states.
func stateSummary(outcomes []tasks.Outcome) string {
	counts := map[models.State]int{}
	for _, o := range outcomes {
		counts[o.Dataset.State()]++
	}

	var parts []string
	for _, s := range []models.State{models.StatePending, models.StateStarted, models.StateSuccess, models.StateFailure} {
		if counts[s] > 0 {
			parts = append(parts, styles.state(s).Render(fmt.Sprintf("%d %s", counts[s], s)))
		}
	}
	return strings.Join(parts, " · ")
}
