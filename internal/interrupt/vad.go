package interrupt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/daisyvoice/daisy/internal/observe"
	"github.com/daisyvoice/daisy/internal/session"
	"github.com/daisyvoice/daisy/pkg/audio"
)

// VADConfig holds the energy-gate tuning. The defaults are hand-tuned for a
// laptop microphone picking up its own speaker; treat them as starting
// points, not universal truths.
type VADConfig struct {
	// InitialThreshold rejects the assistant's own audio bleeding into
	// the microphone right after playback starts.
	InitialThreshold float64

	// MidThreshold applies once MidAfter frames have elapsed, as the
	// echo starts to fade.
	MidThreshold float64
	MidAfter     int

	// FloorThreshold is the final, lowest gate, from FloorAfter frames
	// onward. The effective threshold never drops below it.
	FloorThreshold float64
	FloorAfter     int

	// ConsecutiveFrames is how many successive frames must exceed the
	// gate before the signal is raised (3 frames ≈ 96ms at 512/16k).
	ConsecutiveFrames int

	// StartupDiscard drops this many frames after stream open to skip
	// device-startup noise.
	StartupDiscard int
}

// DefaultVADConfig returns the stock tuning.
func DefaultVADConfig() VADConfig {
	return VADConfig{
		InitialThreshold:  6000,
		MidThreshold:      4500,
		MidAfter:          10,
		FloorThreshold:    3500,
		FloorAfter:        30,
		ConsecutiveFrames: 3,
		StartupDiscard:    5,
	}
}

// threshold returns the energy gate for the given elapsed frame count. It
// is monotonically non-increasing and never below the floor.
func (c VADConfig) threshold(frame int) float64 {
	switch {
	case frame >= c.FloorAfter:
		return c.FloorThreshold
	case frame >= c.MidAfter:
		return c.MidThreshold
	default:
		return c.InitialThreshold
	}
}

// VAD raises the cancellation signal when sustained voice energy is heard
// over the assistant's own playback. The gate starts high and steps down at
// fixed checkpoints because residual echo diminishes as playback buffers
// drain.
//
// Each Run opens its own capture stream and closes it on return. A stream
// that sits open between playbacks accumulates a backlog nobody reads; the
// first frames of the next playback would then be the user's own just-spoken
// utterance, loud enough to self-interrupt at onset.
type VAD struct {
	open    func() (audio.FrameSource, error)
	cfg     VADConfig
	logger  *slog.Logger
	metrics *observe.Metrics
}

var _ Detector = (*VAD)(nil)

// NewVAD builds the voice-activity detector over a stream opener. A zero
// cfg selects [DefaultVADConfig].
func NewVAD(open func() (audio.FrameSource, error), cfg VADConfig, logger *slog.Logger, metrics *observe.Metrics) *VAD {
	if cfg == (VADConfig{}) {
		cfg = DefaultVADConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &VAD{open: open, cfg: cfg, logger: logger, metrics: metrics}
}

// Name implements Detector.
func (v *VAD) Name() string { return "vad" }

// Run implements Detector.
func (v *VAD) Run(ctx context.Context, sess *session.Session) error {
	frames, err := v.open()
	if err != nil {
		return fmt.Errorf("interrupt: open vad stream: %w", err)
	}
	defer func() { frames.Close() }()

	var (
		frameNum    int
		consecutive int
		reopened    bool
	)
	start := time.Now()

	for ctx.Err() == nil {
		frame, err := frames.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if reopened {
				return err
			}
			// A broken read must not leave playback uninterruptible for
			// the rest of the turn; take a fresh stream and keep listening.
			v.logger.Debug("vad stream read failed, reopening", "error", err)
			frames.Close()
			if frames, err = v.open(); err != nil {
				return fmt.Errorf("interrupt: reopen vad stream: %w", err)
			}
			reopened = true
			continue
		}
		reopened = false
		frameNum++

		if frameNum <= v.cfg.StartupDiscard {
			continue
		}

		energy := audio.RMS(frame)
		gate := v.cfg.threshold(frameNum - v.cfg.StartupDiscard)
		if energy >= gate {
			consecutive++
		} else {
			consecutive = 0
		}

		if consecutive >= v.cfg.ConsecutiveFrames {
			v.logger.Debug("voice activity over playback",
				"energy", energy,
				"gate", gate,
				"after", time.Since(start))
			raise(ctx, sess, v.metrics, v.Name())
			return nil
		}
	}
	return ctx.Err()
}
