// Package cascade resolves a conversation history into response text by
// trying chat providers in a fixed preference order.
//
// The cascade remembers two things per provider, each with its own TTL: the
// model that last worked (so the common case is a single completion call
// with no model discovery) and a quota-exceeded deadline (so an exhausted
// provider is skipped outright instead of burning a request per turn). Both
// live in [ProviderState] and survive restarts through the checkpoint hook.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/daisyvoice/daisy/internal/observe"
	"github.com/daisyvoice/daisy/pkg/provider/llm"
)

// ErrNoProviderAvailable is returned when every model of every provider
// failed for the turn. The orchestrator surfaces a fixed apology instead of
// crashing the turn loop.
var ErrNoProviderAvailable = errors.New("cascade: no provider available")

// Result is a successful resolution.
type Result struct {
	Text     string
	Model    string
	Provider string
}

// CheckpointFunc receives a cache snapshot after a successful resolution or
// a cache invalidation, for persistence.
type CheckpointFunc func(map[string]ProviderState)

// Cascade tries providers in order with TTL-cached success and failure
// state. Resolution is single-threaded; a Cascade must not be used from
// multiple goroutines concurrently.
type Cascade struct {
	providers   []llm.Provider
	cache       *cache
	logger      *slog.Logger
	metrics     *observe.Metrics
	checkpoint  CheckpointFunc
	temperature float64
	maxTokens   int
}

// Option configures a [Cascade].
type Option func(*Cascade)

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Cascade) { c.logger = l }
}

// WithMetrics sets the metrics instance. Default is [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Cascade) { c.metrics = m }
}

// WithCheckpoint registers the persistence hook.
func WithCheckpoint(fn CheckpointFunc) Option {
	return func(c *Cascade) { c.checkpoint = fn }
}

// WithTTLs overrides the model-recheck, model-list, and quota TTLs. Zero
// values keep the defaults.
func WithTTLs(recheck, list, quota time.Duration) Option {
	return func(c *Cascade) { c.cache = newCache(recheck, list, quota) }
}

// WithTemperature sets the sampling temperature passed to providers.
func WithTemperature(t float64) Option {
	return func(c *Cascade) { c.temperature = t }
}

// WithMaxTokens caps completion length.
func WithMaxTokens(n int) Option {
	return func(c *Cascade) { c.maxTokens = n }
}

// withClock overrides the cache clock in tests.
func withClock(now func() time.Time) Option {
	return func(c *Cascade) { c.cache.now = now }
}

// New builds a Cascade over providers in preference order.
func New(providers []llm.Provider, opts ...Option) (*Cascade, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("cascade: at least one provider required")
	}
	c := &Cascade{
		providers: providers,
		cache:     newCache(0, 0, 0),
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c, nil
}

// Seed installs persisted provider state, typically at session start.
func (c *Cascade) Seed(states map[string]ProviderState) {
	c.cache.seed(states)
}

// Snapshot returns a copy of the current provider cache state.
func (c *Cascade) Snapshot() map[string]ProviderState {
	return c.cache.Snapshot()
}

// Resolve produces response text for the history, or ErrNoProviderAvailable.
func (c *Cascade) Resolve(ctx context.Context, messages []llm.Message) (*Result, error) {
	return c.resolve(ctx, messages, nil)
}

// ResolveStream is the streaming variant: emit is called with each text
// fragment as it arrives. The full text is still accumulated and returned;
// a mid-stream provider failure moves on to the next model, so emit may see
// fragments from more than one attempt.
func (c *Cascade) ResolveStream(ctx context.Context, messages []llm.Message, emit func(string)) (*Result, error) {
	if emit == nil {
		emit = func(string) {}
	}
	return c.resolve(ctx, messages, emit)
}

func (c *Cascade) resolve(ctx context.Context, messages []llm.Message, emit func(string)) (*Result, error) {
	start := time.Now()
	defer func() {
		c.metrics.CascadeDuration.Record(ctx, time.Since(start).Seconds())
	}()

	for _, p := range c.providers {
		name := p.Name()
		if c.cache.quotaBlocked(name) {
			c.logger.Debug("skipping quota-blocked provider",
				"provider", name,
				"until", c.cache.state(name).QuotaExceededUntil)
			continue
		}

		res, err := c.tryProvider(ctx, p, messages, emit)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
	}

	c.logger.Warn("all providers exhausted")
	return nil, ErrNoProviderAvailable
}

// tryProvider runs the per-provider portion of the cascade. It returns a
// non-nil Result on success, (nil, nil) when the cascade should move to the
// next provider, and a non-nil error only for context cancellation.
func (c *Cascade) tryProvider(ctx context.Context, p llm.Provider, messages []llm.Message, emit func(string)) (*Result, error) {
	name := p.Name()
	triedCached := ""

	// Fast path: the model that worked last time, while still fresh.
	if model := c.cache.workingModel(name); model != "" {
		text, err := c.attempt(ctx, p, model, messages, emit)
		if err == nil {
			c.cache.touchWorkingModel(name, model)
			c.saveCheckpoint()
			return &Result{Text: text, Model: model, Provider: name}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		kind := llm.Classify(err)
		c.logger.Info("cached model failed",
			"provider", name,
			"model", model,
			"kind", kind,
			"error", err)
		switch kind {
		case llm.KindQuotaExceeded:
			c.cache.markQuotaExceeded(name)
			c.saveCheckpoint()
			return nil, nil
		case llm.KindRateLimited, llm.KindUnavailable:
			// Transient: keep the cached model, it may recover. Search
			// the list for this turn only.
			triedCached = model
		default:
			c.cache.clearWorkingModel(name)
			c.saveCheckpoint()
			triedCached = model
		}
	}

	// Model discovery, TTL-cached.
	models := c.cache.cachedModels(name)
	if models == nil {
		fetched, err := p.ListModels(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			kind := llm.Classify(err)
			c.logger.Warn("model list fetch failed",
				"provider", name,
				"kind", kind,
				"error", err)
			c.metrics.RecordProviderError(ctx, name, kind.String())
			if kind == llm.KindQuotaExceeded {
				c.cache.markQuotaExceeded(name)
				c.saveCheckpoint()
			}
			return nil, nil
		}
		c.cache.storeModels(name, fetched)
		models = fetched
	}

	for _, model := range RankModels(FilterModels(models)) {
		if model == triedCached {
			continue
		}
		text, err := c.attempt(ctx, p, model, messages, emit)
		if err == nil {
			c.cache.touchWorkingModel(name, model)
			c.saveCheckpoint()
			return &Result{Text: text, Model: model, Provider: name}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		kind := llm.Classify(err)
		c.logger.Debug("model attempt failed",
			"provider", name,
			"model", model,
			"kind", kind,
			"error", err)
		if kind == llm.KindQuotaExceeded {
			c.cache.markQuotaExceeded(name)
			c.saveCheckpoint()
			return nil, nil
		}
		// RateLimited, NotFound, Unavailable, Unknown: next model.
	}
	return nil, nil
}

// attempt performs one completion call against a specific model, streaming
// when emit is non-nil.
func (c *Cascade) attempt(ctx context.Context, p llm.Provider, model string, messages []llm.Message, emit func(string)) (string, error) {
	name := p.Name()
	req := llm.CompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	var (
		text string
		err  error
	)
	if emit == nil {
		var resp *llm.CompletionResponse
		resp, err = p.Complete(ctx, req)
		if err == nil {
			text = resp.Content
		}
	} else {
		text, err = c.streamAttempt(ctx, p, req, emit)
	}

	if err != nil {
		c.metrics.RecordProviderRequest(ctx, name, "chat", "error")
		c.metrics.RecordProviderError(ctx, name, llm.Classify(err).String())
		return "", err
	}
	c.metrics.RecordProviderRequest(ctx, name, "chat", "ok")
	return text, nil
}

func (c *Cascade) streamAttempt(ctx context.Context, p llm.Provider, req llm.CompletionRequest, emit func(string)) (string, error) {
	ch, err := p.StreamComplete(ctx, req)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for chunk := range ch {
		if chunk.FinishReason == "error" {
			return "", fmt.Errorf("%s: stream aborted: %s: %w", p.Name(), chunk.Text, llm.ErrUnavailable)
		}
		if chunk.Text != "" {
			b.WriteString(chunk.Text)
			emit(chunk.Text)
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", fmt.Errorf("%s: %w", p.Name(), llm.ErrEmptyResponse)
	}
	return b.String(), nil
}

func (c *Cascade) saveCheckpoint() {
	if c.checkpoint != nil {
		c.checkpoint(c.cache.Snapshot())
	}
}
