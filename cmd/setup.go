package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/mozbugbox/bitiwo/internal/shared"
)

// Setup creates the config file when missing and initializes the
// database, creating tables and applying column migrations.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if _, err := os.Stat(configPath); err == nil {
		if config, err := shared.LoadConfig(configPath); err == nil {
			r.config = config
		} else {
			r.logger.Warn("failed to load config, using defaults", "error", err)
		}
	} else {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else if config, err := shared.LoadConfig(configPath); err == nil {
			r.config = config
		}
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)
	st, err := r.openStore()
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	version, _, err := st.GetConfig("db_version")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(r.config.Cache.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	r.writePlainln("Database ready at %s (schema %s)", r.config.Database.Path, version)
	r.writePlainln("Cover cache at %s", r.config.Cache.Dir)
	return nil
}

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize the config file and database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
		},
		Action: r.Setup,
	}
}
