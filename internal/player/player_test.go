package player

import (
	"errors"
	"io"
	"testing"

	"github.com/mozbugbox/bitiwo/internal/shared"
)

func TestPlayer_Play(t *testing.T) {
	p := New("sh -c true", shared.NewLogger(io.Discard))

	pid, err := p.Play("http://example.com/video")
	if err != nil {
		t.Fatalf("play failed: %v", err)
	}
	if pid <= 0 {
		t.Errorf("expected a pid, got %d", pid)
	}
}

func TestPlayer_PlayErrors(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    error
	}{
		{"empty command", "", shared.ErrMissingConfig},
		{"unbalanced quote", `mpv "--mute`, shared.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.command, shared.NewLogger(io.Discard))
			if _, err := p.Play("http://example.com/video"); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
