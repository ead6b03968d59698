// Package player launches an external media player for a video URL.
package player

import (
	"fmt"
	"os/exec"

	"github.com/charmbracelet/log"
	"github.com/google/shlex"

	"github.com/mozbugbox/bitiwo/internal/shared"
)

// Player starts a configured media player command. The command line is
// shell-split, the video URL is appended as the last argument and the
// process is detached so it outlives the caller.
type Player struct {
	command string
	log     *log.Logger
}

// New creates a player for the given command line, e.g. "mpv --mute".
func New(command string, logger *log.Logger) *Player {
	if logger == nil {
		logger = log.Default()
	}
	return &Player{command: command, log: logger}
}

// Play starts the player with the URL appended and returns the child
// pid without waiting for it.
func (p *Player) Play(url string) (int, error) {
	if p.command == "" {
		return 0, fmt.Errorf("%w: no player command configured", shared.ErrMissingConfig)
	}

	args, err := shlex.Split(p.command)
	if err != nil || len(args) == 0 {
		return 0, fmt.Errorf("%w: bad player command %q: %v", shared.ErrInvalidConfig, p.command, err)
	}
	args = append(args, url)

	cmd := exec.Command(args[0], args[1:]...)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start player: %w", err)
	}
	pid := cmd.Process.Pid
	p.log.Info("player started", "pid", pid, "url", url)

	// Reap the child in the background so it never turns into a zombie.
	go func() {
		if err := cmd.Wait(); err != nil {
			p.log.Debug("player exited", "pid", pid, "error", err)
		}
	}()
	return pid, nil
}
