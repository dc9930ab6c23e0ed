package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/bidshelf/internal/bids"
	"github.com/desertthunder/bidshelf/internal/formatter"
	"github.com/desertthunder/bidshelf/internal/models"
	"github.com/desertthunder/bidshelf/internal/tasks"
)

// DefaultRefreshInterval is how often the dataset table is reconciled.
const DefaultRefreshInterval = 3 * time.Second

// ViewState represents the current view in the TUI.
type ViewState int

const (
	DatasetListView ViewState = iota
	DatasetDetailView
)

// Source lists reconciled datasets and parses their metadata (see catalog.Service).
type Source interface {
	List(ctx context.Context) ([]tasks.Outcome, error)
	View(ctx context.Context, id string) (*models.Dataset, *bids.Dataset, error)
}

// Model represents the TUI application state.
type Model struct {
	ctx        context.Context
	source     Source
	interval   time.Duration
	view       ViewState
	width      int
	height     int
	table      table.Model
	spinner    spinner.Model
	help       help.Model
	keys       keyMap
	outcomes   []tasks.Outcome
	ids        []string
	refreshing bool
	generation int
	updated    time.Time
	err        error
	detail     *models.Dataset
	meta       []bids.Field
	detailErr  error
}

// NewModel creates a new TUI model. A non-positive interval uses [DefaultRefreshInterval].
func NewModel(ctx context.Context, source Source, interval time.Duration) *Model {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	t.SetStyles(table.DefaultStyles())

	return &Model{
		ctx:      ctx,
		source:   source,
		interval: interval,
		view:     DatasetListView,
		table:    t,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.busy)),
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Init starts the spinner and the first refresh.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.refresh())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(msg.Width - 4)
		m.table.SetHeight(max(msg.Height-10, 3))
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.quit) {
			return m, tea.Quit
		}
		switch m.view {
		case DatasetListView:
			return m.handleListKeys(msg)
		case DatasetDetailView:
			return m.handleDetailKeys(msg)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		return m.handleMsg(msg)
	}

	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgDatasetsFetched:
		data := msg.data.(fetched)
		m.refreshing = false
		m.err = data.err
		if data.err == nil {
			m.setOutcomes(data.outcomes)
			m.updated = data.at
		}
		m.generation++
		return m, m.scheduleRefresh(m.generation)

	case MsgRefreshTick:
		if msg.data.(int) != m.generation || m.refreshing {
			return m, nil
		}
		return m, m.refresh()

	case MsgDatasetViewed:
		data := msg.data.(viewed)
		m.view = DatasetDetailView
		m.detail = data.dataset
		m.detailErr = data.err
		m.meta = nil
		if data.parsed != nil {
			m.meta = data.parsed.AllMetaData()
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) setOutcomes(outcomes []tasks.Outcome) {
	m.outcomes = outcomes
	m.ids = make([]string, len(outcomes))
	for i, o := range outcomes {
		m.ids[i] = o.Dataset.ID()
	}
	m.table.SetRows(datasetRows(outcomes))
	if c := m.table.Cursor(); c >= len(outcomes) && len(outcomes) > 0 {
		m.table.SetCursor(len(outcomes) - 1)
	}
}

func (m *Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.refresh):
		if m.refreshing {
			return m, nil
		}
		return m, m.refresh()
	case key.Matches(msg, m.keys.enter):
		if id, ok := m.selectedID(); ok {
			return m, m.viewDataset(id)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.back) {
		m.view = DatasetListView
		m.detail = nil
		m.meta = nil
		m.detailErr = nil
	}
	return m, nil
}

func (m *Model) selectedID() (string, bool) {
	c := m.table.Cursor()
	if c < 0 || c >= len(m.ids) {
		return "", false
	}
	return m.ids[c], true
}

func (m *Model) selectedOutcome() (tasks.Outcome, bool) {
	c := m.table.Cursor()
	if c < 0 || c >= len(m.outcomes) {
		return tasks.Outcome{}, false
	}
	return m.outcomes[c], true
}

func (m *Model) refresh() tea.Cmd {
	m.refreshing = true
	return func() tea.Msg {
		outcomes, err := m.source.List(m.ctx)
		return datasetsFetchedMsg(outcomes, err, time.Now())
	}
}

func (m *Model) scheduleRefresh(generation int) tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg {
		return refreshTickMsg(generation)
	})
}

func (m *Model) viewDataset(id string) tea.Cmd {
	return func() tea.Msg {
		d, parsed, err := m.source.View(m.ctx, id)
		return datasetViewedMsg(d, parsed, err)
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case DatasetDetailView:
		return m.renderDetail()
	default:
		return m.renderList()
	}
}

func (m *Model) renderList() string {
	title := styles.title.Render("Datasets")

	var status string
	switch {
	case m.refreshing:
		status = fmt.Sprintf("%s reconciling…", m.spinner.View())
	case m.err != nil:
		status = styles.err.Render(fmt.Sprintf("Refresh failed: %v", m.err))
	case !m.updated.IsZero():
		status = styles.help.Render("updated " + m.updated.Format("15:04:05"))
	}

	var selected string
	if o, ok := m.selectedOutcome(); ok && o.Err != nil {
		selected = "\n" + styles.warn.Render(o.Err.Error())
	}

	summary := stateSummary(m.outcomes)
	if len(m.outcomes) == 0 {
		summary = styles.help.Render("No datasets registered yet.")
	}

	return fmt.Sprintf("%s\n%s\n\n%s\n%s%s\n\n%s",
		title, m.table.View(), summary, status, selected, m.help.View(m.keys))
}

func (m *Model) renderDetail() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.quit})

	name := "Dataset"
	if m.detail != nil {
		name = m.detail.Name()
	}
	title := styles.title.Render(name)

	if m.detailErr != nil {
		return fmt.Sprintf("%s\n%s\n\n%s", title, styles.err.Render(m.detailErr.Error()), helpView)
	}

	var state string
	if m.detail != nil {
		state = styles.state(m.detail.State()).Render(m.detail.State().String())
	}

	return fmt.Sprintf("%s\n%s\n\n%s\n%s", title, state, formatter.ExportToText("", m.meta), helpView)
}
