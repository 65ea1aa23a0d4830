package feedback

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/banshee-data/ph.report/internal/monitoring"
)

// Player announces a pH label by playing the matching audio clip from a
// directory of <label>.mp3 files. Lookup is case-insensitive because the
// clips are hand-named.
type Player struct {
	dir     string
	command string

	// run executes the player command. Tests replace it to avoid spawning
	// processes.
	run func(ctx context.Context, name string, args ...string) error
}

// NewPlayer creates a Player using the given external player command.
func NewPlayer(dir, command string) *Player {
	return &Player{
		dir:     dir,
		command: command,
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
	}
}

// Play finds and plays the clip for label. A missing clip is logged rather
// than returned as a hard failure so a reading is never lost to a missing
// recording.
func (p *Player) Play(ctx context.Context, label string) error {
	path, err := p.find(label)
	if err != nil {
		monitoring.Logf("audio: %v", err)
		return nil
	}

	if err := p.run(ctx, p.command, path); err != nil {
		return fmt.Errorf("failed to play %s: %w", path, err)
	}
	return nil
}

func (p *Player) find(label string) (string, error) {
	want := strings.ToLower(label + ".mp3")

	matches, err := filepath.Glob(filepath.Join(p.dir, "*"))
	if err != nil {
		return "", fmt.Errorf("failed to scan audio dir %s: %w", p.dir, err)
	}

	for _, m := range matches {
		if strings.ToLower(filepath.Base(m)) == want {
			return m, nil
		}
	}
	return "", fmt.Errorf("no audio clip for %q in %s", label, p.dir)
}
