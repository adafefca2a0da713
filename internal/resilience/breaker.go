// Package resilience provides failover for speech backends.
//
// [Chain] tries a list of providers in preference order, each guarded by a
// [Breaker] so a dead backend is skipped instead of re-probed on every
// utterance. Errors that describe the input rather than the backend (silence,
// cancelled context) stop the chain instead of falling through.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [Breaker.Do] while the backend is considered
// down and the retry window has not yet elapsed.
var ErrBreakerOpen = errors.New("resilience: breaker open")

// BreakerConfig tunes a [Breaker]. Zero fields take defaults.
type BreakerConfig struct {
	// Name labels the breaker in log messages.
	Name string

	// MaxFailures is how many consecutive failures open the breaker.
	// Default: 3.
	MaxFailures int

	// RetryAfter is how long to wait before letting a probe call through.
	// Default: 30s.
	RetryAfter time.Duration

	// Logger receives state transitions. Default: slog.Default().
	Logger *slog.Logger
}

// Breaker is a circuit breaker with a single-probe half-open phase: after
// RetryAfter one call is allowed through, and its outcome decides whether
// the breaker closes again or re-opens.
type Breaker struct {
	name       string
	maxFail    int
	retryAfter time.Duration
	logger     *slog.Logger

	mu       sync.Mutex
	open     bool
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a [Breaker] from cfg.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Breaker{
		name:       cfg.Name,
		maxFail:    cfg.MaxFailures,
		retryAfter: cfg.RetryAfter,
		logger:     cfg.Logger,
	}
}

// Do runs fn unless the breaker is open. While open, calls fail immediately
// with [ErrBreakerOpen] until the retry window elapses, after which a single
// probe call is admitted.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	if b.open {
		if time.Since(b.openedAt) < b.retryAfter || b.probing {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.probing = true
		b.logger.Info("breaker admitting probe call", "backend", b.name)
	}
	wasProbe := b.probing
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if wasProbe {
		b.probing = false
	}
	if err != nil {
		b.failures++
		if b.open || b.failures >= b.maxFail {
			if !b.open {
				b.logger.Warn("breaker opened",
					"backend", b.name, "consecutive_failures", b.failures)
			}
			b.open = true
			b.openedAt = time.Now()
		}
		return err
	}
	if b.open {
		b.logger.Info("breaker closed after successful probe", "backend", b.name)
	}
	b.open = false
	b.failures = 0
	return nil
}

// Open reports whether calls would currently be rejected.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open && time.Since(b.openedAt) < b.retryAfter
}
