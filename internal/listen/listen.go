// Package listen records one user utterance from a microphone frame
// source. Recording starts at the first frame with enough energy and ends
// after a stretch of trailing silence or when the utterance cap is hit.
package listen

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/daisyvoice/daisy/pkg/audio"
	"github.com/daisyvoice/daisy/pkg/provider/stt"
)

// Defaults tuned for close-range speech at 16 kHz.
const (
	DefaultOnsetThreshold  = 1200.0
	DefaultTrailingSilence = 900 * time.Millisecond
	DefaultMaxUtterance    = 30 * time.Second

	// preRollFrames are kept from just before onset so the first word is
	// not clipped.
	preRollFrames = 3

	// clipLevel is the peak amplitude above which the input is treated as
	// clipped. Slightly under int16 max to catch limiters that saturate
	// just short of it.
	clipLevel = 32000
)

// Recorder captures utterances. It owns no microphone state itself and may
// be reused across turns.
type Recorder struct {
	frames   audio.FrameSource
	onset    float64
	trailing time.Duration
	maxLen   time.Duration
	logger   *slog.Logger
}

// Option configures a [Recorder].
type Option func(*Recorder)

// WithOnsetThreshold sets the RMS level that starts a recording.
func WithOnsetThreshold(rms float64) Option {
	return func(r *Recorder) {
		if rms > 0 {
			r.onset = rms
		}
	}
}

// WithTrailingSilence sets how much quiet ends the utterance.
func WithTrailingSilence(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.trailing = d
		}
	}
}

// WithMaxUtterance caps the total recording length.
func WithMaxUtterance(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.maxLen = d
		}
	}
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// NewRecorder builds a Recorder over frames.
func NewRecorder(frames audio.FrameSource, opts ...Option) *Recorder {
	r := &Recorder{
		frames:   frames,
		onset:    DefaultOnsetThreshold,
		trailing: DefaultTrailingSilence,
		maxLen:   DefaultMaxUtterance,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Record blocks until one utterance has been captured. It waits
// indefinitely for speech onset, so cancel ctx to stop listening. A source
// that ends before any speech yields [stt.ErrNoSpeech].
func (r *Recorder) Record(ctx context.Context) (stt.Clip, error) {
	rate := r.frames.SampleRate()
	var (
		preRoll  [][]int16
		pcm      []int16
		speaking bool
		quiet    time.Duration
		voiced   time.Duration
		peak     int
	)

	for {
		frame, err := r.frames.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				if speaking {
					break
				}
				return stt.Clip{}, stt.ErrNoSpeech
			}
			return stt.Clip{}, err
		}
		frameDur := time.Duration(len(frame)) * time.Second / time.Duration(rate)
		level := audio.RMS(frame)

		if !speaking {
			if level < r.onset {
				preRoll = append(preRoll, frame)
				if len(preRoll) > preRollFrames {
					preRoll = preRoll[1:]
				}
				continue
			}
			speaking = true
			for _, f := range preRoll {
				pcm = append(pcm, f...)
			}
			r.logger.Debug("speech onset", "rms", level)
		}

		pcm = append(pcm, frame...)
		voiced += frameDur
		if p := audio.Peak(frame); p > peak {
			peak = p
		}

		if level < r.onset {
			quiet += frameDur
			if quiet >= r.trailing {
				break
			}
		} else {
			quiet = 0
		}
		if voiced >= r.maxLen {
			r.logger.Warn("utterance hit length cap", "cap", r.maxLen)
			break
		}
	}

	if peak >= clipLevel {
		r.logger.Warn("utterance clipped, transcription may degrade", "peak", peak)
	}
	return stt.Clip{PCM: pcm, SampleRate: rate}, nil
}
