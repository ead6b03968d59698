package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/mozbugbox/bitiwo/internal/formatter"
)

// MemberAdd starts tracking a member: downloads the full submission
// list and stores member and videos.
func (r *Runner) MemberAdd(ctx context.Context, cmd *cli.Command) error {
	mid, err := parseMID(cmd.Args().First())
	if err != nil {
		return err
	}

	engine, err := r.getEngine()
	if err != nil {
		return err
	}

	r.logger.Info("adding member", "mid", mid)
	videos, err := engine.BootstrapMember(ctx, mid)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}

	st, err := r.openStore()
	if err != nil {
		return err
	}
	member, err := st.MemberInfo(mid)
	if err != nil {
		return err
	}

	r.writePlainln("Added %s (mid %d) with %d videos", member.Name, mid, len(videos))
	return nil
}

// MemberRemove stops tracking a member. Videos are deleted right away;
// the cover cache lingers until the reaper's grace period runs out.
func (r *Runner) MemberRemove(ctx context.Context, cmd *cli.Command) error {
	mid, err := parseMID(cmd.Args().First())
	if err != nil {
		return err
	}

	engine, err := r.getEngine()
	if err != nil {
		return err
	}
	reaper, err := r.getReaper()
	if err != nil {
		return err
	}

	if err := engine.RemoveMember(mid); err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	reaper.OnMemberRemoved(mid)

	r.writePlainln("Removed member %d; cached covers kept for the grace period", mid)
	return nil
}

// MemberList prints all tracked members with their unseen counts.
func (r *Runner) MemberList(ctx context.Context, cmd *cli.Command) error {
	st, err := r.openStore()
	if err != nil {
		return err
	}

	statuses, err := st.MemberStatusAll()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(statuses, true)
	}
	return r.writePlain("%s", formatter.StatusToText(statuses))
}

func memberCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "member",
		Usage: "Manage tracked members",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Track a member by id and download their videos",
				ArgsUsage: "<mid>",
				Action:    r.MemberAdd,
			},
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "Stop tracking a member",
				ArgsUsage: "<mid>",
				Action:    r.MemberRemove,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List tracked members with unseen counts",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output as JSON",
					},
				},
				Action: r.MemberList,
			},
		},
	}
}
