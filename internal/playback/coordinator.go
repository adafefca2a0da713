package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/daisyvoice/daisy/internal/observe"
	"github.com/daisyvoice/daisy/internal/session"
	"github.com/daisyvoice/daisy/pkg/provider/tts"
)

// State is the coordinator's lifecycle position.
type State int

const (
	Idle State = iota
	Playing
	Cancelling
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Cancelling:
		return "cancelling"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Timing defaults. The poll interval bounds how quickly a raised
// cancellation is observed; the ceiling is a fail-safe against a stuck
// external player, not a normal path.
const (
	DefaultPollInterval = 50 * time.Millisecond
	DefaultMaxDuration  = 5 * time.Minute
	DefaultGracePeriod  = 200 * time.Millisecond
)

// Outcome reports how a playback session ended.
type Outcome struct {
	// Interrupted is true when a detector raised the cancellation signal
	// or the duration ceiling fired.
	Interrupted bool

	// Source names the winning detector, or "ceiling" for the duration
	// fail-safe. Empty when playback completed normally.
	Source string

	// Elapsed is the wall-clock playback time.
	Elapsed time.Duration
}

// Coordinator drives the Idle → Playing → (Cancelling) → Idle state
// machine. Play blocks for the whole session and always leaves the
// coordinator Idle: no orphaned player process, no leaked handle.
type Coordinator struct {
	player  Player
	sess    *session.Session
	logger  *slog.Logger
	metrics *observe.Metrics

	pollInterval time.Duration
	maxDuration  time.Duration
	grace        time.Duration

	// playMu serializes whole playback sessions so a second Play cannot
	// overlap the teardown of the first.
	playMu sync.Mutex

	mu    sync.Mutex
	state State
	task  Task
}

// Option configures a [Coordinator].
type Option func(*Coordinator)

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithMetrics sets the metrics instance. Default is [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithTiming overrides the poll interval, duration ceiling, and kill grace
// period. Zero values keep the defaults.
func WithTiming(poll, ceiling, grace time.Duration) Option {
	return func(c *Coordinator) {
		if poll > 0 {
			c.pollInterval = poll
		}
		if ceiling > 0 {
			c.maxDuration = ceiling
		}
		if grace > 0 {
			c.grace = grace
		}
	}
}

// New builds a Coordinator playing through player against the shared
// session state.
func New(player Player, sess *session.Session, opts ...Option) *Coordinator {
	c := &Coordinator{
		player:       player,
		sess:         sess,
		logger:       slog.Default(),
		pollInterval: DefaultPollInterval,
		maxDuration:  DefaultMaxDuration,
		grace:        DefaultGracePeriod,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Play runs one playback session to completion and returns how it ended.
// If a session is already live it is cancelled synchronously first. Player
// errors are not fatal to the turn: the coordinator logs them and reports a
// completed, zero-length outcome.
func (c *Coordinator) Play(ctx context.Context, artifact tts.Artifact) Outcome {
	c.Cancel()
	c.playMu.Lock()
	defer c.playMu.Unlock()

	// Signal reset belongs to the orchestrator, which installs a fresh
	// signal before its watchers start. A raise already pending here came
	// from one of those watchers in the gap before the player spawned, so
	// honor it instead of lowering a channel they are still holding.
	sig := c.sess.Signal()
	if sig.Raised() {
		c.sess.MarkInterrupted()
		c.sess.MarkResponseEnd()
		return Outcome{Interrupted: true, Source: sig.Source()}
	}

	task, err := c.player.Start(ctx, artifact)
	if err != nil {
		c.logger.Error("player start failed", "error", err)
		c.sess.MarkResponseEnd()
		return Outcome{}
	}

	c.mu.Lock()
	c.state = Playing
	c.task = task
	c.mu.Unlock()

	c.sess.SetSpeaking(true)
	c.metrics.ActivePlayback.Add(ctx, 1)
	start := time.Now()

	defer func() {
		c.sess.SetSpeaking(false)
		c.metrics.ActivePlayback.Add(ctx, -1)
		c.metrics.PlaybackDuration.Record(ctx, time.Since(start).Seconds())
		c.mu.Lock()
		c.state = Idle
		c.task = nil
		c.mu.Unlock()
		c.sess.MarkResponseEnd()
	}()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	deadline := start.Add(c.maxDuration)

	for {
		select {
		case <-ctx.Done():
			c.stop(task)
			c.sess.MarkInterrupted()
			return Outcome{Interrupted: true, Source: "shutdown", Elapsed: time.Since(start)}

		case <-sig.Done():
			c.stop(task)
			c.sess.MarkInterrupted()
			return Outcome{Interrupted: true, Source: sig.Source(), Elapsed: time.Since(start)}

		case <-ticker.C:
			if !task.IsRunning() {
				return Outcome{Elapsed: time.Since(start)}
			}
			if time.Now().After(deadline) {
				c.logger.Warn("playback exceeded duration ceiling", "ceiling", c.maxDuration)
				c.stop(task)
				c.sess.MarkInterrupted()
				return Outcome{Interrupted: true, Source: "ceiling", Elapsed: time.Since(start)}
			}
		}
	}
}

// Cancel tears down any live session synchronously. Safe to call when
// already Idle.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	task := c.task
	if task == nil {
		c.mu.Unlock()
		return
	}
	c.state = Cancelling
	c.mu.Unlock()

	c.stop(task)
}

// stop is the two-phase teardown: graceful terminate, short grace wait,
// then force kill. Idempotent against an already-finished task.
func (c *Coordinator) stop(task Task) {
	if !task.IsRunning() {
		return
	}
	if err := task.Terminate(); err != nil {
		c.logger.Debug("terminate failed", "error", err)
	}

	waitUntil := time.Now().Add(c.grace)
	for task.IsRunning() && time.Now().Before(waitUntil) {
		time.Sleep(c.grace / 10)
	}
	if task.IsRunning() {
		if err := task.Kill(); err != nil {
			c.logger.Warn("kill failed", "error", err)
		}
	}
}
