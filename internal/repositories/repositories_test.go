package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/desertthunder/bidshelf/internal/models"
	"github.com/desertthunder/bidshelf/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func newDataset(name string) *models.Dataset {
	return models.NewDataset(models.DatasetParams{Name: name, Folder: "/data/" + name})
}

func TestNextSequence(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		got, err := NextSequence(ctx, db, "datasets")
		if err != nil {
			t.Fatalf("NextSequence failed: %v", err)
		}
		if got != want {
			t.Errorf("expected sequence %d, got %d", want, got)
		}
	}
}

func TestDatasetRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Create", func(t *testing.T) {
		repo := NewDatasetRepository(setupTestDB(t))
		d := newDataset("ds1")

		if err := repo.Create(ctx, d); err != nil {
			t.Fatalf("failed to create dataset: %v", err)
		}

		if d.ID() == "" {
			t.Error("dataset ID should be set after creation")
		}
		if d.Sequence() != 1 {
			t.Errorf("expected sequence 1, got %d", d.Sequence())
		}
	})

	t.Run("Create validation error", func(t *testing.T) {
		repo := NewDatasetRepository(setupTestDB(t))
		d := models.NewDataset(models.DatasetParams{})

		if err := repo.Create(ctx, d); !errors.Is(err, shared.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("Get", func(t *testing.T) {
		repo := NewDatasetRepository(setupTestDB(t))
		d := models.NewDataset(models.DatasetParams{Name: "remote", DatabaseID: "ds000001", Version: "1.0.0"})
		d.AttachTask("task-1")

		if err := repo.Create(ctx, d); err != nil {
			t.Fatalf("failed to create dataset: %v", err)
		}

		got, err := repo.Get(ctx, d.ID())
		if err != nil {
			t.Fatalf("failed to get dataset: %v", err)
		}

		if got.Name() != "remote" {
			t.Errorf("expected name remote, got %s", got.Name())
		}
		if got.DatabaseID() != "ds000001" || got.Version() != "1.0.0" {
			t.Errorf("expected ds000001@1.0.0, got %s@%s", got.DatabaseID(), got.Version())
		}
		if got.TaskID() != "task-1" || got.State() != models.StatePending {
			t.Errorf("expected task-1 PENDING, got %s %s", got.TaskID(), got.State())
		}
	})

	t.Run("Get NotFound", func(t *testing.T) {
		repo := NewDatasetRepository(setupTestDB(t))

		_, err := repo.Get(ctx, "missing")
		if !errors.Is(err, shared.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("List orders by sequence", func(t *testing.T) {
		repo := NewDatasetRepository(setupTestDB(t))
		for _, name := range []string{"a", "b", "c"} {
			if err := repo.Create(ctx, newDataset(name)); err != nil {
				t.Fatalf("failed to create %s: %v", name, err)
			}
		}

		list, err := repo.List(ctx, nil)
		if err != nil {
			t.Fatalf("failed to list: %v", err)
		}
		if len(list) != 3 {
			t.Fatalf("expected 3 datasets, got %d", len(list))
		}
		for i, name := range []string{"a", "b", "c"} {
			if list[i].Name() != name {
				t.Errorf("position %d: expected %s, got %s", i, name, list[i].Name())
			}
		}
	})

	t.Run("List criteria", func(t *testing.T) {
		repo := NewDatasetRepository(setupTestDB(t))

		local := newDataset("local")
		pending := models.NewDataset(models.DatasetParams{Name: "pending", DatabaseID: "ds000002"})
		pending.AttachTask("t-2")
		for _, d := range []*models.Dataset{local, pending} {
			if err := repo.Create(ctx, d); err != nil {
				t.Fatalf("failed to create: %v", err)
			}
		}

		tc := []struct {
			name     string
			criteria map[string]any
			want     []string
		}{
			{name: "state", criteria: map[string]any{"state": models.StatePending}, want: []string{"pending"}},
			{name: "states", criteria: map[string]any{"state": []models.State{models.StateSuccess, models.StatePending}}, want: []string{"local", "pending"}},
			{name: "has task", criteria: map[string]any{"has_task": true}, want: []string{"pending"}},
			{name: "no task", criteria: map[string]any{"has_task": false}, want: []string{"local"}},
			{name: "database id", criteria: map[string]any{"database_id": "ds000002"}, want: []string{"pending"}},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				list, err := repo.List(ctx, tt.criteria)
				if err != nil {
					t.Fatalf("failed to list: %v", err)
				}
				if len(list) != len(tt.want) {
					t.Fatalf("expected %d datasets, got %d", len(tt.want), len(list))
				}
				for i, name := range tt.want {
					if list[i].Name() != name {
						t.Errorf("expected %s, got %s", name, list[i].Name())
					}
				}
			})
		}
	})

	t.Run("Update", func(t *testing.T) {
		repo := NewDatasetRepository(setupTestDB(t))
		d := newDataset("ds")
		if err := repo.Create(ctx, d); err != nil {
			t.Fatalf("failed to create: %v", err)
		}

		d.SetIcon("/icons/ds.png")
		d.AttachTask("t-9")
		if err := repo.Update(ctx, d); err != nil {
			t.Fatalf("failed to update: %v", err)
		}

		got, err := repo.Get(ctx, d.ID())
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}
		if got.Icon() != "/icons/ds.png" || got.TaskID() != "t-9" || got.State() != models.StatePending {
			t.Errorf("update not persisted: icon=%s task=%s state=%s", got.Icon(), got.TaskID(), got.State())
		}
	})

	t.Run("Update NotFound", func(t *testing.T) {
		repo := NewDatasetRepository(setupTestDB(t))
		d := newDataset("ghost")
		d.SetID("ghost-id")

		if err := repo.Update(ctx, d); !errors.Is(err, shared.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestDatasetRepositoryUpdateState(t *testing.T) {
	ctx := context.Background()

	create := func(t *testing.T, repo *DatasetRepository, folder string, state models.State) *models.Dataset {
		t.Helper()
		d := models.NewDataset(models.DatasetParams{Name: "ds", Folder: folder})
		d.AttachTask("t-1")
		d.SetState(state)
		if err := repo.Create(ctx, d); err != nil {
			t.Fatalf("failed to create: %v", err)
		}
		return d
	}

	t.Run("advances and fills empty folder", func(t *testing.T) {
		repo := NewDatasetRepository(setupTestDB(t))
		d := create(t, repo, "", models.StatePending)

		got, err := repo.UpdateState(ctx, d.ID(), models.StateSuccess, "/data/ds")
		if err != nil {
			t.Fatalf("UpdateState failed: %v", err)
		}
		if got.State() != models.StateSuccess || got.Folder() != "/data/ds" {
			t.Errorf("expected SUCCESS in /data/ds, got %s in %q", got.State(), got.Folder())
		}
	})

	t.Run("keeps an existing folder", func(t *testing.T) {
		repo := NewDatasetRepository(setupTestDB(t))
		d := create(t, repo, "/chosen", models.StateStarted)

		got, err := repo.UpdateState(ctx, d.ID(), models.StateSuccess, "/elsewhere")
		if err != nil {
			t.Fatalf("UpdateState failed: %v", err)
		}
		if got.Folder() != "/chosen" {
			t.Errorf("expected folder /chosen, got %q", got.Folder())
		}
	})

	t.Run("terminal never regresses", func(t *testing.T) {
		repo := NewDatasetRepository(setupTestDB(t))
		d := create(t, repo, "", models.StateSuccess)

		got, err := repo.UpdateState(ctx, d.ID(), models.StateStarted, "")
		if err != nil {
			t.Fatalf("UpdateState failed: %v", err)
		}
		if got.State() != models.StateSuccess {
			t.Errorf("expected SUCCESS to stick, got %s", got.State())
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		repo := NewDatasetRepository(setupTestDB(t))

		_, err := repo.UpdateState(ctx, "missing", models.StateSuccess, "")
		if !errors.Is(err, shared.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("rejects unknown state", func(t *testing.T) {
		repo := NewDatasetRepository(setupTestDB(t))
		d := create(t, repo, "", models.StatePending)

		_, err := repo.UpdateState(ctx, d.ID(), models.State("REVOKED"), "")
		if !errors.Is(err, shared.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})
}

func TestTaskRepository(t *testing.T) {
	ctx := context.Background()
	job := func(id string) models.Job {
		return models.Job{TaskID: id, Kind: models.JobUnpackArchive, Archive: "/tmp/a.zip", Destination: "/data"}
	}

	t.Run("Create and Status", func(t *testing.T) {
		repo := NewTaskRepository(setupTestDB(t))

		rec, err := repo.Create(ctx, job("t-1"))
		if err != nil {
			t.Fatalf("failed to create task: %v", err)
		}
		if rec.State != models.StatePending {
			t.Errorf("expected PENDING, got %s", rec.State)
		}

		status, err := repo.Status(ctx, "t-1")
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if status.State != models.StatePending {
			t.Errorf("expected PENDING, got %s", status.State)
		}

		got, err := repo.Get(ctx, "t-1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		decoded, err := got.Job()
		if err != nil {
			t.Fatalf("payload should decode: %v", err)
		}
		if decoded != job("t-1") {
			t.Errorf("expected %+v, got %+v", job("t-1"), decoded)
		}
	})

	t.Run("lifecycle", func(t *testing.T) {
		repo := NewTaskRepository(setupTestDB(t))
		if _, err := repo.Create(ctx, job("t-1")); err != nil {
			t.Fatalf("failed to create task: %v", err)
		}

		if err := repo.MarkStarted(ctx, "t-1"); err != nil {
			t.Fatalf("MarkStarted failed: %v", err)
		}
		if err := repo.Complete(ctx, "t-1", "/data/ds"); err != nil {
			t.Fatalf("Complete failed: %v", err)
		}

		rec, err := repo.Get(ctx, "t-1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if rec.State != models.StateSuccess || rec.ResultFolder != "/data/ds" {
			t.Errorf("expected SUCCESS /data/ds, got %s %q", rec.State, rec.ResultFolder)
		}
		if rec.StartedAt == nil || rec.FinishedAt == nil {
			t.Error("expected started_at and finished_at to be set")
		}

		if err := repo.Fail(ctx, "t-1", "late failure"); err != nil {
			t.Fatalf("Fail on terminal task should be a no-op, got %v", err)
		}
		rec, _ = repo.Get(ctx, "t-1")
		if rec.State != models.StateSuccess {
			t.Errorf("terminal task regressed to %s", rec.State)
		}
	})

	t.Run("Fail", func(t *testing.T) {
		repo := NewTaskRepository(setupTestDB(t))
		if _, err := repo.Create(ctx, job("t-1")); err != nil {
			t.Fatalf("failed to create task: %v", err)
		}

		if err := repo.Fail(ctx, "t-1", "archive corrupt"); err != nil {
			t.Fatalf("Fail failed: %v", err)
		}

		status, err := repo.Status(ctx, "t-1")
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if status.State != models.StateFailure || status.Message != "archive corrupt" {
			t.Errorf("expected FAILURE with message, got %+v", status)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		repo := NewTaskRepository(setupTestDB(t))

		if _, err := repo.Status(ctx, "missing"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound from Status, got %v", err)
		}
		if err := repo.MarkStarted(ctx, "missing"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound from MarkStarted, got %v", err)
		}
	})

	t.Run("ListIncomplete", func(t *testing.T) {
		repo := NewTaskRepository(setupTestDB(t))
		for _, id := range []string{"t-1", "t-2", "t-3"} {
			if _, err := repo.Create(ctx, job(id)); err != nil {
				t.Fatalf("failed to create task: %v", err)
			}
		}
		if err := repo.MarkStarted(ctx, "t-2"); err != nil {
			t.Fatal(err)
		}
		if err := repo.Complete(ctx, "t-3", "/x"); err != nil {
			t.Fatal(err)
		}

		recs, err := repo.ListIncomplete(ctx)
		if err != nil {
			t.Fatalf("ListIncomplete failed: %v", err)
		}
		if len(recs) != 2 {
			t.Fatalf("expected 2 incomplete tasks, got %d", len(recs))
		}
	})
}
