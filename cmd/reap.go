package main

import (
	"context"

	"github.com/urfave/cli/v3"
)

// Reap evicts cover caches of members removed longer than the grace
// period ago, then scans for orphaned cache directories. The orphan
// scan is throttled to once per grace period unless --force is given.
func (r *Runner) Reap(ctx context.Context, cmd *cli.Command) error {
	reaper, err := r.getReaper()
	if err != nil {
		return err
	}

	swept, err := reaper.SweepRemovedMembers()
	if err != nil {
		return err
	}
	if swept {
		r.writePlainln("Evicted expired member caches")
	} else {
		r.writePlainln("No removed-member caches past their grace period")
	}

	if cmd.Bool("force") {
		st, err := r.openStore()
		if err != nil {
			return err
		}
		// Drop the throttle timestamp so the scan runs now.
		if _, err := st.SetConfig("timestamp_last_orphaned_check", "0"); err != nil {
			return err
		}
	}
	scanned, err := reaper.SweepOrphanedCache()
	if err != nil {
		return err
	}
	if scanned {
		return r.writePlainln("Orphan scan complete")
	}
	return r.writePlainln("Orphan scan skipped, ran recently")
}

func reapCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "reap",
		Usage: "Clean up cover caches of removed members",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Run the orphan scan even if it ran recently",
			},
		},
		Action: r.Reap,
	}
}
