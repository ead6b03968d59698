package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// Sync refreshes the given members, or every tracked member with
// --all. Members are processed one at a time in the order given and a
// failing member does not stop the rest.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.getEngine()
	if err != nil {
		return err
	}

	var mids []int64
	if cmd.Bool("all") {
		st, err := r.openStore()
		if err != nil {
			return err
		}
		members, err := st.MemberList()
		if err != nil {
			return err
		}
		for _, m := range members {
			mids = append(mids, m.MID)
		}
	} else {
		for _, arg := range cmd.Args().Slice() {
			mid, err := parseMID(arg)
			if err != nil {
				return err
			}
			mids = append(mids, mid)
		}
	}
	if len(mids) == 0 {
		return fmt.Errorf("nothing to sync, pass member ids or --all")
	}

	if len(mids) == 1 {
		videos, err := engine.RefreshMember(ctx, mids[0])
		if err != nil {
			return fmt.Errorf("failed to refresh member %d: %w", mids[0], err)
		}
		r.writePlainln("Member %d: %d new videos", mids[0], len(videos))
		return nil
	}

	if err := engine.RefreshAll(ctx, mids...); err != nil {
		return fmt.Errorf("sync interrupted: %w", err)
	}
	r.writePlainln("Synced %d members", len(mids))
	return nil
}

func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "sync",
		Usage:     "Fetch new videos for members",
		ArgsUsage: "[mid...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "all",
				Aliases: []string{"a"},
				Usage:   "Sync every tracked member",
			},
		},
		Action: r.Sync,
	}
}
