package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/mozbugbox/bitiwo/internal/bilibili"
	"github.com/mozbugbox/bitiwo/internal/formatter"
)

// Parts lists the parts of a multi-part video.
func (r *Runner) Parts(ctx context.Context, cmd *cli.Command) error {
	bvid := cmd.Args().First()
	if bvid == "" {
		return fmt.Errorf("video id required")
	}

	parts, err := r.getExtractor().VideoParts(ctx, bvid)
	if err != nil {
		return err
	}
	if len(parts) == 0 {
		return r.writePlainln("%s has a single part", bvid)
	}

	if cmd.Bool("json") {
		return r.writeJSON(parts, true)
	}
	return r.writePlain("%s", formatter.PartsToText(parts))
}

// Play opens a video in the configured external player and marks it as
// seen.
func (r *Runner) Play(ctx context.Context, cmd *cli.Command) error {
	bvid := cmd.Args().First()
	if bvid == "" {
		return fmt.Errorf("video id required")
	}

	url := bilibili.VideoURL(bvid)
	if part := cmd.Int("part"); part > 0 {
		url = bilibili.VideoPartURL(bvid, int64(part))
	}

	p, err := r.getPlayer()
	if err != nil {
		return err
	}
	pid, err := p.Play(url)
	if err != nil {
		return err
	}
	r.logger.Info("player launched", "pid", pid, "bvid", bvid)

	// Playing from the store implies the video is known; a raw bvid
	// straight from the site is fine too.
	if engine, err := r.getEngine(); err == nil {
		if err := engine.SetVideoVisited(bvid, true); err != nil {
			r.logger.Debug("video not tracked, skipping visited mark", "bvid", bvid)
		}
	}

	return r.writePlainln("Playing %s (pid %d)", url, pid)
}

func partsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "parts",
		Usage:     "List the parts of a multi-part video",
		ArgsUsage: "<bvid>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output as JSON",
			},
		},
		Action: r.Parts,
	}
}

func playCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "play",
		Usage:     "Open a video in the external player",
		ArgsUsage: "<bvid>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "part",
				Aliases: []string{"p"},
				Usage:   "Part number to play",
			},
		},
		Action: r.Play,
	}
}
