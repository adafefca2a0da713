package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrChainExhausted is returned when every backend in a [Chain] failed or had
// an open breaker.
var ErrChainExhausted = errors.New("resilience: all backends failed")

// ChainConfig configures a [Chain] and the breaker created for each entry.
type ChainConfig struct {
	Breaker BreakerConfig

	// Terminal reports whether an error should stop the chain instead of
	// triggering failover. Terminal errors describe the request, not the
	// backend, and do not count against the breaker either.
	Terminal func(error) bool

	// Logger receives failover events. Default: slog.Default().
	Logger *slog.Logger
}

type chainEntry[T any] struct {
	name    string
	backend T
	breaker *Breaker
}

// Chain tries backends in registration order until one succeeds.
// Entries with open breakers are skipped.
type Chain[T any] struct {
	entries  []chainEntry[T]
	terminal func(error) bool
	logger   *slog.Logger
	cfg      ChainConfig
}

// NewChain creates a [Chain] with primary as the preferred backend. Further
// backends are registered with [Chain.Add].
func NewChain[T any](name string, primary T, cfg ChainConfig) *Chain[T] {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Breaker.Logger == nil {
		cfg.Breaker.Logger = cfg.Logger
	}
	c := &Chain[T]{
		terminal: cfg.Terminal,
		logger:   cfg.Logger,
		cfg:      cfg,
	}
	c.Add(name, primary)
	return c
}

// Add appends a backend tried after all previously registered ones.
func (c *Chain[T]) Add(name string, backend T) {
	bcfg := c.cfg.Breaker
	bcfg.Name = name
	c.entries = append(c.entries, chainEntry[T]{
		name:    name,
		backend: backend,
		breaker: NewBreaker(bcfg),
	})
}

// Names returns the backend names in preference order.
func (c *Chain[T]) Names() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.name
	}
	return names
}

// Run executes fn against each backend in order until one succeeds. Go has no
// method-level type parameters, so this is a package-level function.
func Run[T, R any](ctx context.Context, c *Chain[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range c.entries {
		entry := &c.entries[i]
		var (
			result      R
			terminalErr error
		)
		err := entry.breaker.Do(func() error {
			var callErr error
			result, callErr = fn(entry.backend)
			if callErr != nil && c.isTerminal(callErr) {
				// Shield the breaker: the backend answered, the input
				// was just not actionable.
				terminalErr = callErr
				return nil
			}
			return callErr
		})
		if terminalErr != nil {
			return zero, terminalErr
		}
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if errors.Is(err, ErrBreakerOpen) {
			c.logger.Debug("skipping backend, breaker open", "backend", entry.name)
		} else {
			c.logger.Warn("backend failed, trying next",
				"backend", entry.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrChainExhausted, lastErr)
}

func (c *Chain[T]) isTerminal(err error) bool {
	return c.terminal != nil && c.terminal(err)
}
