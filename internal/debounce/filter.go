// Package debounce gates user utterances before they become turns,
// discarding noise and the self-triggered loops that audio bleed causes
// right after a cancellation or an acknowledgement response.
package debounce

import (
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/daisyvoice/daisy/internal/session"
)

// Default windows. An interrupt leaves echoes in the capture pipeline for a
// few seconds; a completed response slightly longer.
const (
	DefaultMinLength         = 3
	DefaultInterruptCooldown = 3 * time.Second
	DefaultResponseCooldown  = 5 * time.Second
)

// Verdict says what happened to an utterance.
type Verdict struct {
	Accept bool
	// Rule names the discard reason: "too_short", "control_chars",
	// "thanks_after_interrupt", "thanks_after_ack". Empty on accept.
	Rule string
}

// thanksVariants match gratitude-only utterances, the classic bleed-back
// when the assistant's "you're welcome" reaches the microphone.
var thanksVariants = map[string]struct{}{
	"thanks":    {},
	"thank you": {},
	"thankyou":  {},
	"ty":        {},
	"thx":       {},
	"ευχαριστω": {},
	"ευχαριστώ": {},
}

// ackPatterns match assistant responses that tend to elicit a reflexive
// "thanks" from the audio loop itself.
var ackPatterns = []string{
	"welcome", "pleasure", "glad to help", "happy to help", "anytime",
}

var controlChars = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f]|\\\\x1b|\\[\\d+m")

// Filter applies the debounce rules against the shared session state.
type Filter struct {
	minLength         int
	interruptCooldown time.Duration
	responseCooldown  time.Duration
	logger            *slog.Logger
	now               func() time.Time
}

// Option configures a [Filter].
type Option func(*Filter)

// WithMinLength overrides the minimum utterance length.
func WithMinLength(n int) Option {
	return func(f *Filter) { f.minLength = n }
}

// WithCooldowns overrides the post-interrupt and post-response windows.
// Zero values keep the defaults.
func WithCooldowns(interrupt, response time.Duration) Option {
	return func(f *Filter) {
		if interrupt > 0 {
			f.interruptCooldown = interrupt
		}
		if response > 0 {
			f.responseCooldown = response
		}
	}
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(f *Filter) { f.logger = l }
}

// withClock overrides time in tests.
func withClock(now func() time.Time) Option {
	return func(f *Filter) { f.now = now }
}

// New builds a Filter with the stock rules.
func New(opts ...Option) *Filter {
	f := &Filter{
		minLength:         DefaultMinLength,
		interruptCooldown: DefaultInterruptCooldown,
		responseCooldown:  DefaultResponseCooldown,
		logger:            slog.Default(),
		now:               time.Now,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Check decides whether the utterance becomes a turn. Discarded utterances
// must not be appended to history or reach the cascade.
func (f *Filter) Check(utterance string, sess *session.Session) Verdict {
	trimmed := strings.TrimSpace(utterance)

	if len([]rune(trimmed)) < f.minLength {
		return f.discard("too_short", trimmed)
	}
	if controlChars.MatchString(trimmed) {
		return f.discard("control_chars", trimmed)
	}

	if isThanks(trimmed) {
		now := f.now()
		if last := sess.LastInterrupt(); !last.IsZero() && now.Sub(last) < f.interruptCooldown {
			return f.discard("thanks_after_interrupt", trimmed)
		}
		if last := sess.LastResponseEnd(); !last.IsZero() && now.Sub(last) < f.responseCooldown {
			if isAcknowledgement(sess.LastAssistant()) {
				return f.discard("thanks_after_ack", trimmed)
			}
		}
	}

	return Verdict{Accept: true}
}

func (f *Filter) discard(rule, utterance string) Verdict {
	f.logger.Debug("utterance discarded", "rule", rule, "utterance", utterance)
	return Verdict{Rule: rule}
}

// isThanks reports whether the utterance is a gratitude-only phrase.
func isThanks(utterance string) bool {
	text := strings.ToLower(strings.TrimSpace(utterance))
	text = strings.Trim(text, ".,!?;:")
	if _, ok := thanksVariants[text]; ok {
		return true
	}
	// "thanks a lot", "thank you very much" and friends.
	return strings.HasPrefix(text, "thanks ") || strings.HasPrefix(text, "thank you ")
}

// isAcknowledgement reports whether a response reads like "you're welcome".
func isAcknowledgement(response string) bool {
	text := strings.ToLower(response)
	for _, p := range ackPatterns {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
