package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/bidshelf/internal/metrics"
	"github.com/desertthunder/bidshelf/internal/models"
	"github.com/desertthunder/bidshelf/internal/shared"
)

// Executor runs jobs and records their lifecycle in a [TaskStore].
type Executor struct {
	store    TaskStore
	handlers map[models.JobKind]Handler
	metrics  *metrics.Metrics
	logger   *log.Logger
	mu       sync.RWMutex
}

// NewExecutor creates an Executor with no handlers registered.
func NewExecutor(store TaskStore, m *metrics.Metrics, logger *log.Logger) *Executor {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Executor{
		store:    store,
		handlers: make(map[models.JobKind]Handler),
		metrics:  m,
		logger:   logger,
	}
}

// Register installs h for kind, replacing any previous handler.
func (e *Executor) Register(kind models.JobKind, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[kind] = h
}

func (e *Executor) handler(kind models.JobKind) (Handler, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.handlers[kind]
	return h, ok
}

// Execute runs job to completion.
//
// Handler failures (and panics) are recorded as FAILURE and are not returned. The returned error
// means the task store itself could not be updated, so the job may be retried.
func (e *Executor) Execute(ctx context.Context, job models.Job) error {
	logger := shared.WithLogger(e.logger, "task_id", job.TaskID, "kind", job.Kind)

	status, err := e.store.Status(ctx, job.TaskID)
	if err != nil {
		return fmt.Errorf("failed to load task %s: %w", job.TaskID, err)
	}
	if status.State.IsTerminal() {
		logger.Info("task already finished, skipping", "state", status.State)
		return nil
	}

	h, ok := e.handler(job.Kind)
	if !ok {
		logger.Error("no handler registered")
		return e.store.Fail(ctx, job.TaskID, fmt.Sprintf("%v: %s", shared.ErrUnknownJob, job.Kind))
	}

	if err := e.store.MarkStarted(ctx, job.TaskID); err != nil {
		return fmt.Errorf("failed to mark task started: %w", err)
	}
	logger.Info("task started")
	done := e.metrics.JobStarted(string(job.Kind))

	progress := make(chan ProgressUpdate, 16)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for u := range progress {
			u.TaskID = job.TaskID
			logger.Debug("progress", "update", u.String())
		}
	}()

	folder, runErr := e.run(ctx, h, job, progress)
	close(progress)
	<-drained

	if runErr != nil {
		done(string(models.StateFailure))
		logger.Error("task failed", "error", runErr)
		// the job's own context may be gone; the failure still has to be recorded
		if err := e.store.Fail(context.WithoutCancel(ctx), job.TaskID, runErr.Error()); err != nil {
			return fmt.Errorf("failed to record task failure: %w", err)
		}
		return nil
	}

	done(string(models.StateSuccess))
	logger.Info("task finished", "folder", folder)
	if err := e.store.Complete(context.WithoutCancel(ctx), job.TaskID, folder); err != nil {
		return fmt.Errorf("failed to record task completion: %w", err)
	}
	return nil
}

func (e *Executor) run(ctx context.Context, h Handler, job models.Job, progress chan<- ProgressUpdate) (folder string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	folder, err = h.Handle(ctx, job, progress)
	if err == nil && folder == "" {
		err = errors.New("handler returned no result folder")
	}
	return folder, err
}
