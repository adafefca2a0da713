// Package interrupt runs the ensemble of concurrent cancellation detectors:
// keyboard, spoken stop word, and voice activity. Each detector is an
// independent task active only while a response is playing; all of them
// write solely through the session's raise-once [session.Signal], so
// whichever fires first wins and the rest become no-ops for the turn.
package interrupt

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/daisyvoice/daisy/internal/observe"
	"github.com/daisyvoice/daisy/internal/session"
)

// Detector is one concurrently running cancellation source. Run blocks
// until ctx is done or the detector has raised the signal; it must return
// promptly on cancellation so no listener leaks into the next turn.
type Detector interface {
	Name() string
	Run(ctx context.Context, sess *session.Session) error
}

// Ensemble supervises a fixed set of detectors for the duration of one
// playback.
type Ensemble struct {
	detectors []Detector
	logger    *slog.Logger
}

// Option configures an [Ensemble].
type Option func(*Ensemble)

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Ensemble) { e.logger = l }
}

// New builds an Ensemble over the given detectors.
func New(detectors []Detector, opts ...Option) *Ensemble {
	e := &Ensemble{detectors: detectors, logger: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Watch runs every detector until ctx is done or the session's signal is
// raised, then waits for all of them to exit. Detector failures are logged
// and swallowed: a broken detector must not take down its siblings or the
// turn.
func (e *Ensemble) Watch(ctx context.Context, sess *session.Session) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Once any detector wins the raise, the rest have nothing left to do
	// this turn.
	go func() {
		select {
		case <-sess.Signal().Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	for _, d := range e.detectors {
		d := d
		g.Go(func() error {
			if err := d.Run(gctx, sess); err != nil &&
				!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				e.logger.Warn("detector stopped", "detector", d.Name(), "error", err)
			}
			return nil
		})
	}
	g.Wait()
}

// raise records a detector win in one place so all detectors report the
// same way.
func raise(ctx context.Context, sess *session.Session, metrics *observe.Metrics, source string) {
	if sess.Signal().Raise(source) {
		metrics.RecordInterrupt(ctx, source)
	}
}
