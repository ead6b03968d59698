package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/mozbugbox/bitiwo/internal/formatter"
	"github.com/mozbugbox/bitiwo/internal/models"
)

// Videos lists a member's videos, newest first.
func (r *Runner) Videos(ctx context.Context, cmd *cli.Command) error {
	mid, err := parseMID(cmd.Args().First())
	if err != nil {
		return err
	}

	st, err := r.openStore()
	if err != nil {
		return err
	}
	if _, err := st.MemberInfo(mid); err != nil {
		return err
	}

	videos, err := st.MemberVideos(mid, int64(cmd.Int("limit")), int64(cmd.Int("before")))
	if err != nil {
		return err
	}

	return r.outputVideos(cmd, videos)
}

// Search finds videos matching a pattern. Every whitespace-separated
// token must occur in the title; with --member the member's
// descriptions are searched too.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	pattern := cmd.Args().First()
	if pattern == "" {
		return fmt.Errorf("search pattern required")
	}

	st, err := r.openStore()
	if err != nil {
		return err
	}

	var videos []models.Video
	if midArg := cmd.String("member"); midArg != "" {
		mid, err := parseMID(midArg)
		if err != nil {
			return err
		}
		videos, err = st.MatchedMemberVideos(mid, pattern)
		if err != nil {
			return err
		}
	} else {
		videos, err = st.MatchedVideos(pattern, cmd.Int("limit"))
		if err != nil {
			return err
		}
	}

	return r.outputVideos(cmd, videos)
}

func (r *Runner) outputVideos(cmd *cli.Command, videos []models.Video) error {
	if path := cmd.String("csv"); path != "" {
		written, err := formatter.WriteCSVExport(videos, path)
		if err != nil {
			return err
		}
		return r.writePlainln("Wrote %d videos to %s", len(videos), written)
	}
	if cmd.Bool("json") {
		return r.writeJSON(videos, true)
	}
	return r.writePlain("%s", formatter.VideosToText(videos))
}

func videoOutputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output as JSON",
		},
		&cli.StringFlag{
			Name:  "csv",
			Usage: "Write results to a CSV file",
		},
	}
}

func videosCommand(r *Runner) *cli.Command {
	flags := []cli.Flag{
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"n"},
			Usage:   "Maximum number of videos, -1 for all",
			Value:   -1,
		},
		&cli.IntFlag{
			Name:  "before",
			Usage: "Only videos published before this unix timestamp, -1 for no bound",
			Value: -1,
		},
	}
	return &cli.Command{
		Name:      "videos",
		Usage:     "List a member's videos, newest first",
		ArgsUsage: "<mid>",
		Flags:     append(flags, videoOutputFlags()...),
		Action:    r.Videos,
	}
}

func searchCommand(r *Runner) *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "member",
			Aliases: []string{"m"},
			Usage:   "Search only this member, including descriptions",
		},
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"n"},
			Usage:   "Maximum number of results, 0 for the default cap",
		},
	}
	return &cli.Command{
		Name:      "search",
		Usage:     "Search stored videos",
		ArgsUsage: "<pattern>",
		Flags:     append(flags, videoOutputFlags()...),
		Action:    r.Search,
	}
}
