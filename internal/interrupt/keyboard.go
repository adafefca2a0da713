package interrupt

import (
	"context"
	"fmt"
	"log/slog"

	kb "github.com/eiannone/keyboard"

	"github.com/daisyvoice/daisy/internal/observe"
	"github.com/daisyvoice/daisy/internal/session"
)

// KeyPressSource abstracts "wait for any keypress" so the detector does not
// depend on a specific terminal API and headless environments can plug in
// [NoopKeys].
type KeyPressSource interface {
	// WaitForKey blocks until a key is pressed or ctx is done.
	WaitForKey(ctx context.Context) error

	// Close releases the input device.
	Close() error
}

// TerminalKeys reads raw keypresses from the controlling terminal.
type TerminalKeys struct {
	events <-chan kb.KeyEvent
}

var _ KeyPressSource = (*TerminalKeys)(nil)

// OpenTerminalKeys puts the terminal into raw key mode. Fails on
// non-interactive environments; callers fall back to [NoopKeys].
func OpenTerminalKeys() (*TerminalKeys, error) {
	events, err := kb.GetKeys(16)
	if err != nil {
		return nil, fmt.Errorf("interrupt: open keyboard: %w", err)
	}
	return &TerminalKeys{events: events}, nil
}

// WaitForKey implements KeyPressSource.
func (t *TerminalKeys) WaitForKey(ctx context.Context) error {
	select {
	case ev, ok := <-t.events:
		if !ok {
			return fmt.Errorf("interrupt: keyboard closed")
		}
		return ev.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements KeyPressSource.
func (t *TerminalKeys) Close() error {
	return kb.Close()
}

// NoopKeys is the unavailable implementation: WaitForKey blocks until ctx
// is done and never reports a press.
type NoopKeys struct{}

var _ KeyPressSource = NoopKeys{}

func (NoopKeys) WaitForKey(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (NoopKeys) Close() error { return nil }

// Keyboard raises the cancellation signal on any single keypress.
type Keyboard struct {
	keys    KeyPressSource
	logger  *slog.Logger
	metrics *observe.Metrics
}

var _ Detector = (*Keyboard)(nil)

// NewKeyboard builds the keypress detector over keys.
func NewKeyboard(keys KeyPressSource, logger *slog.Logger, metrics *observe.Metrics) *Keyboard {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Keyboard{keys: keys, logger: logger, metrics: metrics}
}

// Name implements Detector.
func (k *Keyboard) Name() string { return "keyboard" }

// Run implements Detector. Any keypress is sufficient.
func (k *Keyboard) Run(ctx context.Context, sess *session.Session) error {
	if err := k.keys.WaitForKey(ctx); err != nil {
		return err
	}
	k.logger.Debug("keypress detected during playback")
	raise(ctx, sess, k.metrics, k.Name())
	return nil
}
