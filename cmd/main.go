package main

import (
	"cmp"
	"context"
	"os"

	"github.com/desertthunder/bidshelf/internal/metrics"
	"github.com/desertthunder/bidshelf/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	if err := shared.LoadEnv("."); err != nil {
		logger.Warn("failed to load .env files", "error", err)
	}

	configPath := cmp.Or(os.Getenv("BIDSHELF_CONFIG"), "config.toml")
	config, err := shared.ResolveConfig(configPath)
	if err != nil {
		logger.Fatalf("configuration error: %v", err)
	}
	shared.SetLogLevelString(logger, config.Log.Level)

	runner := NewRunner(RunnerOpts{
		Config:     config,
		ConfigPath: configPath,
		Logger:     logger,
		Metrics:    metrics.New("bidshelf"),
	})

	app := &cli.Command{
		Name:     "bidshelf",
		Usage:    "Register, acquire and browse BIDS datasets",
		Version:  "0.1.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatalf("application error: %v", err)
	}
}
