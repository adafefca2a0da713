// Package playback owns the lifecycle of the single audio playback task:
// start, poll until done, cancel gracefully then forcefully. At most one
// playback session exists at a time; starting a new one cancels the old.
package playback

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"sync"

	"github.com/daisyvoice/daisy/pkg/provider/tts"
)

// Task is an opaque long-running playback job. The two-phase stop contract
// (Terminate, short grace, Kill) is what the coordinator relies on.
type Task interface {
	// IsRunning reports whether the task is still producing audio.
	IsRunning() bool

	// Terminate requests a graceful stop. Safe to call more than once and
	// after the task has finished.
	Terminate() error

	// Kill stops the task immediately. Same idempotency rules as
	// Terminate.
	Kill() error
}

// Player starts playback of a synthesized artifact.
type Player interface {
	Start(ctx context.Context, artifact tts.Artifact) (Task, error)
}

// ExecPlayer plays artifacts through an external command line player
// (afplay on darwin, ffplay elsewhere), which gives the coordinator a real
// process to terminate.
type ExecPlayer struct {
	// Command overrides the player binary. Empty selects by platform.
	Command string
}

var _ Player = (*ExecPlayer)(nil)

// Start implements Player.
func (p *ExecPlayer) Start(ctx context.Context, artifact tts.Artifact) (Task, error) {
	name, args := p.command(artifact)
	if _, err := exec.LookPath(name); err != nil {
		return nil, fmt.Errorf("playback: player %q not found: %w", name, err)
	}

	cmd := exec.CommandContext(ctx, name, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("playback: start %q: %w", name, err)
	}

	t := &execTask{cmd: cmd, done: make(chan struct{})}
	go func() {
		t.err = cmd.Wait()
		close(t.done)
	}()
	return t, nil
}

func (p *ExecPlayer) command(artifact tts.Artifact) (string, []string) {
	if p.Command != "" {
		return p.Command, []string{artifact.Path}
	}
	if runtime.GOOS == "darwin" {
		return "afplay", []string{artifact.Path}
	}
	return "ffplay", []string{"-nodisp", "-autoexit", "-loglevel", "quiet", artifact.Path}
}

// execTask wraps a running player process.
type execTask struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error

	stopMu sync.Mutex
}

var _ Task = (*execTask)(nil)

func (t *execTask) IsRunning() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

func (t *execTask) Terminate() error {
	t.stopMu.Lock()
	defer t.stopMu.Unlock()
	if !t.IsRunning() {
		return nil
	}
	return t.cmd.Process.Signal(terminateSignal)
}

func (t *execTask) Kill() error {
	t.stopMu.Lock()
	defer t.stopMu.Unlock()
	if !t.IsRunning() {
		return nil
	}
	return t.cmd.Process.Kill()
}
