package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/mozbugbox/bitiwo/internal/shared"
)

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	if _, err := os.Stat("config.toml"); err == nil {
		if loadedConfig, err := shared.LoadConfig("config.toml"); err == nil {
			config = loadedConfig
		} else {
			logger.Warn("failed to load config, using defaults", "error", err)
		}
	}

	runner := NewRunner(RunnerOpts{
		Config: config,
		Logger: logger,
	})
	defer runner.Close()

	app := &cli.Command{
		Name:     "bitiwo",
		Usage:    "Track Bilibili members and their new videos",
		Version:  "0.1.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatalf("application error: %v", err)
	}
}
