package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// Visited marks a video as seen, or unseen with --unset.
func (r *Runner) Visited(ctx context.Context, cmd *cli.Command) error {
	bvid := cmd.Args().First()
	if bvid == "" {
		return fmt.Errorf("video id required")
	}

	engine, err := r.getEngine()
	if err != nil {
		return err
	}

	visited := !cmd.Bool("unset")
	if err := engine.SetVideoVisited(bvid, visited); err != nil {
		return err
	}

	state := "seen"
	if !visited {
		state = "unseen"
	}
	return r.writePlainln("Marked %s as %s", bvid, state)
}

// Catchup marks every video of a member as seen.
func (r *Runner) Catchup(ctx context.Context, cmd *cli.Command) error {
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
	engine, err := r.getEngine()
	if err != nil {
		return err
	}

	if err := engine.CatchUpMember(mid); err != nil {
		return err
	}
	return r.writePlainln("Caught up member %d", mid)
}

func visitedCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "visited",
		Usage:     "Mark a video as seen",
		ArgsUsage: "<bvid>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "unset",
				Usage: "Mark as unseen instead",
			},
		},
		Action: r.Visited,
	}
}

func catchupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "catchup",
		Usage:     "Mark all of a member's videos as seen",
		ArgsUsage: "<mid>",
		Action:    r.Catchup,
	}
}
