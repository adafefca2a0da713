package interrupt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/daisyvoice/daisy/internal/observe"
	"github.com/daisyvoice/daisy/internal/session"
	"github.com/daisyvoice/daisy/pkg/audio"
	"github.com/daisyvoice/daisy/pkg/provider/stt"
)

// stopPhrases are the spoken commands that cancel playback. Matched against
// the lower-cased snippet transcript.
var stopPhrases = []string{
	"stop", "stop speaking", "stop talking", "quiet", "shush", "enough",
}

// fuzzyThreshold is the Jaro-Winkler score above which a single transcript
// token counts as a stop word, absorbing small transcription slips like
// "stopp" or "quiets".
const fuzzyThreshold = 0.92

// ContainsStopPhrase reports whether the transcript asks playback to stop.
// Multi-word phrases match by substring; single words also match fuzzily
// per token.
func ContainsStopPhrase(transcript string) bool {
	text := strings.ToLower(strings.TrimSpace(transcript))
	if text == "" {
		return false
	}
	for _, phrase := range stopPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	tokens := strings.Fields(strings.Map(stripPunct, text))
	for _, tok := range tokens {
		for _, phrase := range stopPhrases {
			if strings.Contains(phrase, " ") {
				continue
			}
			if matchr.JaroWinkler(tok, phrase, false) >= fuzzyThreshold {
				return true
			}
		}
	}
	return false
}

func stripPunct(r rune) rune {
	switch r {
	case '.', ',', '!', '?', ';', ':':
		return ' '
	}
	return r
}

// StopWord listens for spoken stop commands during playback. It records
// short snippets from its own capture stream, transcribes them cheaply, and
// raises the signal on a phrase hit. Transcription failures are swallowed;
// the detector is strictly best-effort.
//
// Like [VAD], each Run opens a fresh capture stream so no stale backlog
// from between playbacks gets transcribed as if it were live audio.
type StopWord struct {
	open        func() (audio.FrameSource, error)
	transcriber stt.Provider
	snippet     time.Duration
	logger      *slog.Logger
	metrics     *observe.Metrics
}

var _ Detector = (*StopWord)(nil)

// NewStopWord builds the spoken-stop detector over a stream opener.
// snippet of 0 selects 1.5s.
func NewStopWord(open func() (audio.FrameSource, error), transcriber stt.Provider, snippet time.Duration, logger *slog.Logger, metrics *observe.Metrics) *StopWord {
	if snippet <= 0 {
		snippet = 1500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &StopWord{
		open:        open,
		transcriber: transcriber,
		snippet:     snippet,
		logger:      logger,
		metrics:     metrics,
	}
}

// Name implements Detector.
func (s *StopWord) Name() string { return "stopword" }

// Run implements Detector.
func (s *StopWord) Run(ctx context.Context, sess *session.Session) error {
	frames, err := s.open()
	if err != nil {
		return fmt.Errorf("interrupt: open stop-word stream: %w", err)
	}
	defer func() { frames.Close() }()

	rate := frames.SampleRate()
	samplesPerSnippet := int(float64(rate) * s.snippet.Seconds())
	reopened := false

	for ctx.Err() == nil {
		clip, err := s.record(ctx, frames, rate, samplesPerSnippet)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if reopened {
				return err
			}
			s.logger.Debug("stop-word stream read failed, reopening", "error", err)
			frames.Close()
			if frames, err = s.open(); err != nil {
				return fmt.Errorf("interrupt: reopen stop-word stream: %w", err)
			}
			reopened = true
			continue
		}
		reopened = false

		// Skip snippets that are clearly silence; no point paying for a
		// transcription call.
		if audio.RMS(clip.PCM) < 500 {
			continue
		}

		tctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		text, err := s.transcriber.Transcribe(tctx, clip)
		cancel()
		if err != nil {
			continue // best-effort
		}

		if ContainsStopPhrase(text) {
			s.logger.Debug("stop phrase heard", "transcript", text)
			raise(ctx, sess, s.metrics, s.Name())
			return nil
		}
	}
	return ctx.Err()
}

func (s *StopWord) record(ctx context.Context, frames audio.FrameSource, rate, samples int) (stt.Clip, error) {
	pcm := make([]int16, 0, samples)
	for len(pcm) < samples {
		frame, err := frames.ReadFrame(ctx)
		if err != nil {
			return stt.Clip{}, err
		}
		pcm = append(pcm, frame...)
	}
	return stt.Clip{PCM: pcm, SampleRate: rate}, nil
}
