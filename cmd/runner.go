package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/bidshelf/internal/bids"
	"github.com/desertthunder/bidshelf/internal/catalog"
	"github.com/desertthunder/bidshelf/internal/metrics"
	"github.com/desertthunder/bidshelf/internal/models"
	"github.com/desertthunder/bidshelf/internal/queue"
	"github.com/desertthunder/bidshelf/internal/repositories"
	"github.com/desertthunder/bidshelf/internal/services"
	"github.com/desertthunder/bidshelf/internal/shared"
	"github.com/desertthunder/bidshelf/internal/tasks"
	"github.com/urfave/cli/v3"
)

const (
	backendLocal    = "local"
	backendRabbitMQ = "rabbitmq"
	localQueueSize  = 64
	reconcileFanout = 8
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

// SetLogger replaces the logger, e.g. with a file logger while the TUI owns the terminal.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, serveCommand, workerCommand, datasetsCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// stack is the dependency graph behind a command.
//
// transport is nil for read-only commands; drain stops it (waiting for local jobs) before Close.
type stack struct {
	db        *sql.DB
	datasets  *repositories.DatasetRepository
	tasks     *repositories.TaskRepository
	transport tasks.Transport
	catalog   *catalog.Service
	drainers  []func()
}

func (s *stack) drain() {
	for i := len(s.drainers) - 1; i >= 0; i-- {
		s.drainers[i]()
	}
	s.drainers = nil
}

// Close drains the transport and closes the database.
func (s *stack) Close() {
	s.drain()
	s.db.Close()
}

// open builds the stores, the view cache and the catalog. With submit set it also starts the configured transport.
func (r *Runner) open(ctx context.Context, submit bool) (*stack, error) {
	for _, dir := range []string{r.config.Storage.DataDir, r.config.Storage.UploadDir, r.config.Storage.IconDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory %s: %w", dir, err)
		}
	}

	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &stack{
		db:       db,
		datasets: repositories.NewDatasetRepository(db),
		tasks:    repositories.NewTaskRepository(db),
	}

	cache, err := bids.NewCache(r.config.Cache.Datasets, nil, r.metrics)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create view cache: %w", err)
	}

	var submitter tasks.Submitter
	if submit {
		if err := r.startTransport(ctx, s); err != nil {
			s.Close()
			return nil, err
		}
		submitter = tasks.NewDispatcher(s.tasks, s.transport, r.logger)
	}

	s.catalog = catalog.NewService(catalog.Options{
		Store:     s.datasets,
		Submitter: submitter,
		Reconciler: tasks.NewReconciler(s.datasets, s.tasks, tasks.ReconcilerOpts{
			Timeout:     r.config.Worker.Timeout(),
			Parallelism: reconcileFanout,
			Metrics:     r.metrics,
			Logger:      r.logger,
		}),
		Cache:    cache,
		Versions: services.NewOpenNeuroClient(ctx, r.config.OpenNeuro.GraphQLURL, r.config.OpenNeuro.APIKey, r.httpClient),
		Storage:  r.config.Storage,
		Logger:   r.logger,
	})

	return s, nil
}

// startTransport runs jobs in-process for the local backend, or publishes them to RabbitMQ.
func (r *Runner) startTransport(ctx context.Context, s *stack) error {
	switch r.config.Worker.Backend {
	case backendRabbitMQ:
		pub, err := queue.NewPublisher(r.config.RabbitMQ, r.logger)
		if err != nil {
			return err
		}
		s.transport = pub
		s.drainers = append(s.drainers, func() {
			if err := pub.Close(); err != nil {
				r.logger.Warn("failed to close publisher", "error", err)
			}
		})
		return nil

	default:
		exec, err := r.newExecutor(ctx, s.tasks)
		if err != nil {
			return err
		}
		pool := tasks.NewPool(exec, r.config.Worker.Concurrency, localQueueSize, r.logger)
		pool.Start(ctx)
		s.transport = pool
		s.drainers = append(s.drainers, pool.Close)
		return nil
	}
}

// newExecutor registers a handler for every job kind.
func (r *Runner) newExecutor(ctx context.Context, store tasks.TaskStore) (*tasks.Executor, error) {
	exec := tasks.NewExecutor(store, r.metrics, r.logger)
	exec.Register(models.JobUnpackArchive, tasks.NewArchiveUnpacker(r.logger))
	exec.Register(models.JobCopyFolder, tasks.FolderCopier{})

	client, err := tasks.NewS3Client(ctx, r.config.OpenNeuro)
	if err != nil {
		return nil, err
	}
	exec.Register(models.JobOpenNeuroDownload, tasks.NewOpenNeuroFetcher(
		client,
		r.config.OpenNeuro.Bucket,
		r.config.OpenNeuro.RequestsPerSecond,
		r.metrics,
		r.logger,
	))

	return exec, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
