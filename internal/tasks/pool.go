package tasks

import (
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/bidshelf/internal/models"
	"github.com/desertthunder/bidshelf/internal/shared"
)

// ErrPoolClosed is returned by [Pool.Enqueue] after [Pool.Close].
var ErrPoolClosed = errors.New("worker pool closed")

// Pool is an in-process [Transport]: a fixed set of goroutines executing jobs from a buffered channel.
type Pool struct {
	exec    *Executor
	jobs    chan models.Job
	workers int
	logger  *log.Logger

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewPool creates a Pool with the given number of workers (minimum 1) and queue capacity.
func NewPool(exec *Executor, workers, queueSize int, logger *log.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < workers {
		queueSize = workers
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Pool{
		exec:    exec,
		jobs:    make(chan models.Job, queueSize),
		workers: workers,
		logger:  logger,
	}
}

// Start launches the workers. They stop when ctx is cancelled or the pool is closed.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(ctx, i)
	}
}

func (p *Pool) work(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			if err := p.exec.Execute(ctx, job); err != nil {
				p.logger.Error("job execution failed", "worker", id, "task_id", job.TaskID, "error", err)
			}
		}
	}
}

// Enqueue queues job, waiting for room until ctx is done.
func (p *Pool) Enqueue(ctx context.Context, job models.Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs, lets workers drain the queue and waits for them.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	p.wg.Wait()
}
