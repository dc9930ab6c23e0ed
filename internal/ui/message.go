package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/bidshelf/internal/bids"
	"github.com/desertthunder/bidshelf/internal/models"
	"github.com/desertthunder/bidshelf/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgDatasetsFetched MsgKind = iota
	MsgDatasetViewed
	MsgRefreshTick
)

type fetched struct {
	outcomes []tasks.Outcome
	err      error
	at       time.Time
}

type viewed struct {
	dataset *models.Dataset
	parsed  *bids.Dataset
	err     error
}

// datasetsFetchedMsg is the constructor for [MsgDatasetsFetched]
func datasetsFetchedMsg(outcomes []tasks.Outcome, err error, at time.Time) Msg {
	return Msg{kind: MsgDatasetsFetched, data: fetched{outcomes: outcomes, err: err, at: at}}
}

// datasetViewedMsg is the constructor for [MsgDatasetViewed]
func datasetViewedMsg(d *models.Dataset, parsed *bids.Dataset, err error) Msg {
	return Msg{kind: MsgDatasetViewed, data: viewed{dataset: d, parsed: parsed, err: err}}
}

// refreshTickMsg is the constructor for [MsgRefreshTick]. Ticks from an older generation are ignored.
func refreshTickMsg(generation int) Msg {
	return Msg{kind: MsgRefreshTick, data: generation}
}
