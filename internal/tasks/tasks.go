package tasks

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/bidshelf/internal/models"
	"github.com/desertthunder/bidshelf/internal/shared"
)

// StatusOracle reports the status of a submitted job.
type StatusOracle interface {
	Status(ctx context.Context, taskID string) (models.TaskStatus, error)
}

// Submitter hands a job to the background worker and returns its task id without waiting for it to run.
type Submitter interface {
	Submit(ctx context.Context, job models.Job) (string, error)
}

// Transport delivers a recorded job to whatever executes it.
type Transport interface {
	Enqueue(ctx context.Context, job models.Job) error
}

// Handler performs one kind of acquisition and returns the folder holding the result.
type Handler interface {
	Handle(ctx context.Context, job models.Job, progress chan<- ProgressUpdate) (string, error)
}

// HandlerFunc adapts a function to [Handler].
type HandlerFunc func(ctx context.Context, job models.Job, progress chan<- ProgressUpdate) (string, error)

func (f HandlerFunc) Handle(ctx context.Context, job models.Job, progress chan<- ProgressUpdate) (string, error) {
	return f(ctx, job, progress)
}

// TaskStore is the task status store (see repositories.TaskRepository).
type TaskStore interface {
	StatusOracle
	Create(ctx context.Context, job models.Job) (*models.TaskRecord, error)
	MarkStarted(ctx context.Context, id string) error
	Complete(ctx context.Context, id, folder string) error
	Fail(ctx context.Context, id, message string) error
	ListIncomplete(ctx context.Context) ([]models.TaskRecord, error)
}

// Dispatcher implements [Submitter] on top of a [TaskStore] and a [Transport].
type Dispatcher struct {
	store     TaskStore
	transport Transport
	logger    *log.Logger
}

// NewDispatcher creates a Dispatcher. The logger defaults to [shared.NewLogger].
func NewDispatcher(store TaskStore, transport Transport, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Dispatcher{store: store, transport: transport, logger: logger}
}

// Submit records job as PENDING and enqueues it. A job that cannot be enqueued is marked FAILURE.
func (d *Dispatcher) Submit(ctx context.Context, job models.Job) (string, error) {
	if job.TaskID == "" {
		job.TaskID = shared.GenerateID()
	}
	if err := job.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}

	if _, err := d.store.Create(ctx, job); err != nil {
		return "", fmt.Errorf("failed to record task: %w", err)
	}

	if err := d.transport.Enqueue(ctx, job); err != nil {
		if ferr := d.store.Fail(ctx, job.TaskID, "enqueue failed: "+err.Error()); ferr != nil {
			d.logger.Error("failed to mark unqueued task", "task_id", job.TaskID, "error", ferr)
		}
		return "", fmt.Errorf("%w: failed to enqueue task: %v", shared.ErrServiceUnavailable, err)
	}

	d.logger.Info("task submitted", "task_id", job.TaskID, "kind", job.Kind, "dataset_id", job.DatasetID)
	return job.TaskID, nil
}

// Resume re-enqueues PENDING and STARTED tasks, for transports that lose their queue on restart.
//
// Returns the number of tasks enqueued.
func Resume(ctx context.Context, store TaskStore, transport Transport, logger *log.Logger) (int, error) {
	recs, err := store.ListIncomplete(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, rec := range recs {
		job, err := rec.Job()
		if err != nil {
			logger.Warn("dropping task with unreadable payload", "task_id", rec.ID, "error", err)
			if ferr := store.Fail(ctx, rec.ID, "unreadable payload: "+err.Error()); ferr != nil {
				logger.Error("failed to mark task", "task_id", rec.ID, "error", ferr)
			}
			continue
		}
		if err := transport.Enqueue(ctx, job); err != nil {
			return n, fmt.Errorf("failed to resume task %s: %w", rec.ID, err)
		}
		n++
	}
	return n, nil
}
