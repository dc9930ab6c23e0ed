package ui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/bidshelf/internal/bids"
	"github.com/desertthunder/bidshelf/internal/models"
	"github.com/desertthunder/bidshelf/internal/shared"
	"github.com/desertthunder/bidshelf/internal/tasks"
)

type fakeSource struct {
	outcomes []tasks.Outcome
	listErr  error
	parsed   *bids.Dataset
	viewErr  error
	viewed   []string
}

func (f *fakeSource) List(context.Context) ([]tasks.Outcome, error) {
	return f.outcomes, f.listErr
}

func (f *fakeSource) View(_ context.Context, id string) (*models.Dataset, *bids.Dataset, error) {
	f.viewed = append(f.viewed, id)
	for _, o := range f.outcomes {
		if o.Dataset.ID() == id {
			return o.Dataset, f.parsed, f.viewErr
		}
	}
	return nil, nil, shared.ErrNotFound
}

func dataset(id, name string, state models.State) *models.Dataset {
	d := models.NewDataset(models.DatasetParams{Name: name, Folder: "/data/" + id})
	d.SetID(id)
	d.SetState(state)
	return d
}

func outcomes() []tasks.Outcome {
	return []tasks.Outcome{
		{Dataset: dataset("ds-1", "Balloon", models.StateSuccess)},
		{Dataset: dataset("ds-2", "Flanker", models.StatePending), Err: shared.ErrTransientWorker},
	}
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// run executes cmd and feeds its message back into the model.
func run(t *testing.T, m *Model, cmd tea.Cmd) tea.Cmd {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	_, next := m.Update(cmd())
	return next
}

func TestModel(t *testing.T) {
	ctx := context.Background()

	t.Run("refresh fills the table", func(t *testing.T) {
		src := &fakeSource{outcomes: outcomes()}
		m := NewModel(ctx, src, time.Hour)

		next := run(t, m, m.refresh())

		if next == nil {
			t.Error("expected the next refresh to be scheduled")
		}
		if m.refreshing {
			t.Error("expected refreshing to be cleared")
		}
		if got := len(m.table.Rows()); got != 2 {
			t.Fatalf("expected 2 rows, got %d", got)
		}
		if row := m.table.Rows()[1]; row[2] != "PENDING!" || row[3] != "local" {
			t.Errorf("unexpected row %v", row)
		}

		view := m.View()
		for _, want := range []string{"Balloon", "Flanker", "1 SUCCESS", "1 PENDING", "updated"} {
			if !strings.Contains(view, want) {
				t.Errorf("expected view to contain %q", want)
			}
		}
	})

	t.Run("selected row shows its reconciliation error", func(t *testing.T) {
		m := NewModel(ctx, &fakeSource{outcomes: outcomes()}, time.Hour)
		run(t, m, m.refresh())

		if strings.Contains(m.View(), shared.ErrTransientWorker.Error()) {
			t.Error("expected no error for the first row")
		}

		m.Update(tea.KeyMsg{Type: tea.KeyDown})

		if !strings.Contains(m.View(), shared.ErrTransientWorker.Error()) {
			t.Error("expected the error of the selected row")
		}
	})

	t.Run("list failure keeps the previous rows", func(t *testing.T) {
		src := &fakeSource{outcomes: outcomes()}
		m := NewModel(ctx, src, time.Hour)
		run(t, m, m.refresh())

		src.listErr = errors.New("database is locked")
		run(t, m, m.refresh())

		if len(m.table.Rows()) != 2 {
			t.Errorf("expected rows to be kept, got %d", len(m.table.Rows()))
		}
		if !strings.Contains(m.View(), "database is locked") {
			t.Error("expected the refresh error in the view")
		}
	})

	t.Run("stale ticks are ignored", func(t *testing.T) {
		m := NewModel(ctx, &fakeSource{outcomes: outcomes()}, time.Hour)
		run(t, m, m.refresh())

		if _, cmd := m.Update(refreshTickMsg(m.generation - 1)); cmd != nil {
			t.Error("expected a stale tick to be dropped")
		}
		if _, cmd := m.Update(refreshTickMsg(m.generation)); cmd == nil || !m.refreshing {
			t.Error("expected the current tick to refresh")
		}
	})

	t.Run("enter opens metadata and esc goes back", func(t *testing.T) {
		src := &fakeSource{
			outcomes: outcomes(),
			parsed: &bids.Dataset{
				Folder:      "/data/ds-1",
				Description: map[string]any{"Name": "Balloon Task", "BIDSVersion": "1.8.0"},
			},
		}
		m := NewModel(ctx, src, time.Hour)
		run(t, m, m.refresh())

		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		run(t, m, cmd)

		if m.view != DatasetDetailView {
			t.Fatalf("expected detail view, got %d", m.view)
		}
		if len(src.viewed) != 1 || src.viewed[0] != "ds-1" {
			t.Errorf("expected ds-1 to be viewed, got %v", src.viewed)
		}
		view := m.View()
		if !strings.Contains(view, "BIDSVersion:") || !strings.Contains(view, "1.8.0") {
			t.Errorf("expected metadata in view, got %s", view)
		}

		m.Update(tea.KeyMsg{Type: tea.KeyEsc})
		if m.view != DatasetListView {
			t.Error("expected esc to return to the list")
		}
	})

	t.Run("view error is shown", func(t *testing.T) {
		src := &fakeSource{outcomes: outcomes(), viewErr: shared.ErrParse}
		m := NewModel(ctx, src, time.Hour)
		run(t, m, m.refresh())

		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		run(t, m, cmd)

		if !strings.Contains(m.View(), shared.ErrParse.Error()) {
			t.Error("expected the parse error in the detail view")
		}
	})

	t.Run("refresh key is ignored while refreshing", func(t *testing.T) {
		m := NewModel(ctx, &fakeSource{}, time.Hour)
		m.refreshing = true

		if _, cmd := m.Update(keyRunes("r")); cmd != nil {
			t.Error("expected no command while a refresh is in flight")
		}
	})

	t.Run("quit", func(t *testing.T) {
		m := NewModel(ctx, &fakeSource{}, time.Hour)

		_, cmd := m.Update(keyRunes("q"))
		if cmd == nil {
			t.Fatal("expected a quit command")
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Error("expected tea.QuitMsg")
		}
	})
}
