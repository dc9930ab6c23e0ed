package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/bidshelf/internal/metrics"
	"github.com/desertthunder/bidshelf/internal/models"
	"github.com/desertthunder/bidshelf/internal/shared"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultStatusTimeout = 5 * time.Second
	defaultParallelism   = 8
)

// DatasetStore persists reconciled states (see repositories.DatasetRepository).
type DatasetStore interface {
	UpdateState(ctx context.Context, id string, state models.State, folder string) (*models.Dataset, error)
}

// Outcome is the result of reconciling one dataset.
//
// Dataset is never nil: when Err is set it holds the record as it was before reconciliation.
type Outcome struct {
	Dataset *models.Dataset
	Err     error
}

// ReconcilerOpts configures a [Reconciler].
type ReconcilerOpts struct {
	Timeout     time.Duration // per status query, default [DefaultStatusTimeout]
	Parallelism int           // concurrent reconciliations in ReconcileAll, default 8
	Metrics     *metrics.Metrics
	Logger      *log.Logger
}

// Reconciler syncs dataset states with the status of their acquisition tasks.
type Reconciler struct {
	store       DatasetStore
	oracle      StatusOracle
	timeout     time.Duration
	parallelism int
	metrics     *metrics.Metrics
	logger      *log.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(store DatasetStore, oracle StatusOracle, opts ReconcilerOpts) *Reconciler {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultStatusTimeout
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = defaultParallelism
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	return &Reconciler{
		store:       store,
		oracle:      oracle,
		timeout:     opts.Timeout,
		parallelism: opts.Parallelism,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
	}
}

// Reconcile brings one dataset in line with its task.
func (r *Reconciler) Reconcile(ctx context.Context, d *models.Dataset) Outcome {
	if !d.HasTask() {
		return r.forceSuccess(ctx, d)
	}

	if d.State().IsTerminal() {
		r.metrics.Reconciled(metrics.OutcomeSkipped)
		return Outcome{Dataset: d}
	}

	status, err := r.queryStatus(ctx, d.TaskID())
	if err != nil {
		r.metrics.Reconciled(metrics.OutcomeError)
		r.logger.Warn("task status unavailable", "dataset_id", d.ID(), "task_id", d.TaskID(), "error", err)
		return Outcome{Dataset: d, Err: err}
	}

	folder := ""
	if status.State == models.StateSuccess && d.Folder() == "" {
		folder = status.Folder
	}

	if status.State == d.State() && folder == "" {
		r.metrics.Reconciled(metrics.OutcomeUnchanged)
		return Outcome{Dataset: d}
	}

	updated, err := r.store.UpdateState(ctx, d.ID(), status.State, folder)
	if err != nil {
		r.metrics.Reconciled(metrics.OutcomeError)
		return Outcome{Dataset: d, Err: fmt.Errorf("failed to persist state of dataset %s: %w", d.ID(), err)}
	}

	r.metrics.Reconciled(metrics.OutcomeUpdated)
	r.logger.Debug("dataset state changed", "dataset_id", d.ID(), "from", d.State(), "to", updated.State())
	return Outcome{Dataset: updated}
}

// ReconcileAll reconciles every dataset and returns outcomes in input order.
func (r *Reconciler) ReconcileAll(ctx context.Context, datasets []*models.Dataset) []Outcome {
	outcomes := make([]Outcome, len(datasets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for i, d := range datasets {
		g.Go(func() error {
			outcomes[i] = r.Reconcile(gctx, d)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (r *Reconciler) forceSuccess(ctx context.Context, d *models.Dataset) Outcome {
	if d.State() == models.StateSuccess {
		r.metrics.Reconciled(metrics.OutcomeUnchanged)
		return Outcome{Dataset: d}
	}

	updated, err := r.store.UpdateState(ctx, d.ID(), models.StateSuccess, "")
	if err != nil {
		r.metrics.Reconciled(metrics.OutcomeError)
		return Outcome{Dataset: d, Err: fmt.Errorf("failed to persist state of dataset %s: %w", d.ID(), err)}
	}

	r.metrics.Reconciled(metrics.OutcomeForced)
	return Outcome{Dataset: updated}
}

// queryStatus asks the oracle within the configured timeout. Every failure wraps [shared.ErrTransientWorker].
//
// The query runs on its own goroutine so an oracle that ignores ctx still cannot stall a read.
func (r *Reconciler) queryStatus(ctx context.Context, taskID string) (models.TaskStatus, error) {
	qctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type reply struct {
		status models.TaskStatus
		err    error
	}
	ch := make(chan reply, 1)

	start := time.Now()
	go func() {
		status, err := r.oracle.Status(qctx, taskID)
		ch <- reply{status, err}
	}()

	var res reply
	select {
	case res = <-ch:
	case <-qctx.Done():
		res.err = qctx.Err()
	}
	r.metrics.StatusQueried(time.Since(start))

	switch {
	case res.err == nil && !res.status.State.Valid():
		return res.status, fmt.Errorf("%w: task %s reported unknown state %q", shared.ErrTransientWorker, taskID, res.status.State)
	case res.err == nil:
		return res.status, nil
	case errors.Is(res.err, context.DeadlineExceeded):
		return res.status, fmt.Errorf("%w: status of task %s timed out after %s", shared.ErrTransientWorker, taskID, r.timeout)
	default:
		return res.status, fmt.Errorf("%w: status of task %s: %v", shared.ErrTransientWorker, taskID, res.err)
	}
}
