package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/bidshelf/internal/queue"
	"github.com/desertthunder/bidshelf/internal/repositories"
	"github.com/desertthunder/bidshelf/internal/server"
	"github.com/desertthunder/bidshelf/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

// Worker executes jobs published by `bidshelf serve` with the rabbitmq backend.
func (r *Runner) Worker(ctx context.Context, cmd *cli.Command) error {
	if r.config.Worker.Backend != backendRabbitMQ {
		r.logger.Warn("worker.backend is not rabbitmq, jobs are executed by serve", "backend", r.config.Worker.Backend)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(r.config.Storage.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	exec, err := r.newExecutor(ctx, repositories.NewTaskRepository(db))
	if err != nil {
		return err
	}

	consumer, err := queue.NewConsumer(r.config.RabbitMQ, r.config.Worker.Concurrency, exec, r.logger)
	if err != nil {
		return err
	}
	defer consumer.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Run(ctx) })

	if addr := cmd.String("metrics-addr"); addr != "" {
		router := server.NewBasicRouter()
		router.Handle(http.MethodGet, "/metrics", r.metrics.Handler())
		srv := server.New(addr, router)
		g.Go(func() error { return server.Run(ctx, srv, r.logger) })
	}

	return g.Wait()
}
