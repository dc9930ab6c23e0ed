package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/bidshelf/internal/server"
	"github.com/desertthunder/bidshelf/internal/shared"
	"github.com/desertthunder/bidshelf/internal/tasks"
	"github.com/desertthunder/bidshelf/internal/web"
	"github.com/urfave/cli/v3"
)

// Serve runs the web UI until interrupted.
//
// With the local backend, tasks left PENDING or STARTED by a previous run are re-enqueued first.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := r.open(ctx, true)
	if err != nil {
		return err
	}
	defer app.Close()

	if r.config.Worker.Backend == backendLocal {
		n, err := tasks.Resume(ctx, app.tasks, app.transport, r.logger)
		if err != nil {
			r.logger.Error("failed to resume tasks", "error", err)
		} else if n > 0 {
			r.logger.Info("resumed unfinished tasks", "count", n)
		}
	}

	ui, err := web.New(web.Options{
		Catalog: app.catalog,
		IconDir: r.config.Storage.IconDir,
		Metrics: r.metrics,
		Logger:  r.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}
	srv := server.New(addr, ui.Handler())

	if cmd.Bool("open") {
		go r.openWhenReady(ctx, "http://"+addr+"/")
	}

	return server.Run(ctx, srv, r.logger)
}

// openWhenReady waits for /health to answer before opening the browser.
func (r *Runner) openWhenReady(ctx context.Context, url string) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for range 50 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"health", nil)
		if err != nil {
			return
		}
		resp, err := r.httpClient.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()

		if err := shared.OpenBrowser(url); err != nil {
			r.logger.Warn("failed to open browser", "url", url, "error", err)
		}
		return
	}
	r.logger.Warn("server did not become ready, not opening browser", "url", url)
}
