package main

import (
	"context"
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/mozbugbox/bitiwo/internal/cache"
	"github.com/mozbugbox/bitiwo/internal/shared"
	"github.com/mozbugbox/bitiwo/internal/tasks"
	"github.com/mozbugbox/bitiwo/internal/ui"
)

// tuiLogPath puts the session log next to the cover cache, which is
// always a writable application directory.
func (r *Runner) tuiLogPath() string {
	return filepath.Join(r.config.Cache.Dir, "bitiwo-tui.log")
}

// watchCovers downloads the cover image of every newly stored video on
// the image-net pool.
func watchCovers(bus *tasks.Bus, co *tasks.Coordinator, covers *cache.Covers) {
	bus.Subscribe(func(event tasks.Event) {
		ev, ok := event.(tasks.VideosAddedEvent)
		if !ok {
			return
		}
		for _, v := range ev.Videos {
			if v.PictureURL == "" {
				continue
			}
			mid, url := v.MID, v.PictureURL
			co.Submit(tasks.PoolImageNet, func(ctx context.Context) error {
				_, err := covers.Download(ctx, mid, url)
				return err
			})
		}
	})
}

// TUI launches the interactive member/video browser.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to a file so they do not tear the TUI rendering.
	fileLogger, err := shared.NewFileLogger(r.tuiLogPath())
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.logger = fileLogger

	st, err := r.openStore()
	if err != nil {
		return err
	}

	// A long-lived session gets the full worker-pool setup; refreshes
	// run on the member-sync pool, cover downloads on the image-net
	// pool, and events and deferred store writes drain through the
	// owner loop.
	co := tasks.NewCoordinator(tasks.PoolSizes{
		ImageDisk:  r.config.Pools.ImageDisk,
		ImageNet:   r.config.Pools.ImageNet,
		MemberSync: r.config.Pools.MemberSync,
		Misc:       r.config.Pools.Misc,
	}, fileLogger)
	defer co.Shutdown()
	go co.Run(ctx)

	covers := r.getCovers()
	watchCovers(r.bus, co, covers)
	r.engine = tasks.NewEngine(st, r.getExtractor(), r.bus, co, fileLogger)
	r.reaper = cache.NewReaper(st, covers, co, r.config.Cache.GracePeriod(), fileLogger)

	// Run the startup cache sweep off the UI path.
	reaper := r.reaper
	co.Submit(tasks.PoolMisc, func(ctx context.Context) error {
		reaper.Sweep()
		return nil
	})

	p, err := r.getPlayer()
	if err != nil {
		return err
	}

	model := ui.NewModel(ctx, st, r.engine, p)
	program := tea.NewProgram(model)

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}

func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "tui",
		Usage:  "Browse members and videos interactively",
		Action: r.TUI,
	}
}
