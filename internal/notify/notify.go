// Package notify sends best-effort desktop notifications. Failures are
// logged and never interrupt a conversation turn.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"time"
)

const sendTimeout = 3 * time.Second

// Notifier posts a desktop notification using whatever the host provides.
type Notifier struct {
	logger  *slog.Logger
	disable bool
}

// Option configures a [Notifier].
type Option func(*Notifier)

// WithLogger sets the logger used for delivery failures.
func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) {
		n.logger = l
	}
}

// Disabled turns every Send into a no-op.
func Disabled() Option {
	return func(n *Notifier) {
		n.disable = true
	}
}

// New returns a Notifier for the current platform.
func New(opts ...Option) *Notifier {
	n := &Notifier{logger: slog.Default()}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Send delivers a notification with the given title and body.
func (n *Notifier) Send(ctx context.Context, title, body string) {
	if n.disable {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		script := fmt.Sprintf("display notification %q with title %q", body, title)
		cmd = exec.CommandContext(ctx, "osascript", "-e", script)
	case "linux":
		cmd = exec.CommandContext(ctx, "notify-send", title, body)
	default:
		return
	}
	if err := cmd.Run(); err != nil {
		n.logger.Debug("notification delivery failed", "error", err)
	}
}
