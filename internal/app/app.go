// Package app wires the Daisy subsystems into a running assistant.
//
// [New] connects everything from a [config.Config] plus a [Providers]
// struct, [App.Run] executes the conversation loop, and [App.Shutdown]
// tears the subsystems down in order. Inject test doubles through the
// Providers fields and the functional options.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/daisyvoice/daisy/internal/config"
	"github.com/daisyvoice/daisy/internal/debounce"
	"github.com/daisyvoice/daisy/internal/engine/cascade"
	"github.com/daisyvoice/daisy/internal/health"
	"github.com/daisyvoice/daisy/internal/interrupt"
	"github.com/daisyvoice/daisy/internal/lang"
	"github.com/daisyvoice/daisy/internal/listen"
	"github.com/daisyvoice/daisy/internal/notify"
	"github.com/daisyvoice/daisy/internal/observe"
	"github.com/daisyvoice/daisy/internal/playback"
	"github.com/daisyvoice/daisy/internal/session"
	"github.com/daisyvoice/daisy/internal/voicetext"
	"github.com/daisyvoice/daisy/pkg/audio"
	"github.com/daisyvoice/daisy/pkg/provider/llm"
	"github.com/daisyvoice/daisy/pkg/provider/stt"
	"github.com/daisyvoice/daisy/pkg/provider/tts"
)

// exitPhrases end the conversation when spoken or typed on their own.
var exitPhrases = map[string]bool{
	"quit":    true,
	"exit":    true,
	"goodbye": true,
	"bye":     true,
	"αντίο":   true,
}

// Providers holds the external backends the app talks to. Chat is required;
// the speech fields may be nil in text mode. Populated by main.go from the
// config, or by tests with mocks.
type Providers struct {
	// Chat lists completion providers in preference order.
	Chat []llm.Provider

	// STT transcribes recorded utterances.
	STT stt.Provider

	// TTS renders responses to audio artifacts.
	TTS tts.Provider

	// Player plays synthesized artifacts.
	Player playback.Player

	// Keys delivers key presses for the keyboard interrupt detector.
	Keys interrupt.KeyPressSource

	// OpenFrames opens a fresh microphone stream. The recorder holds one
	// for the whole session; the audio interrupt detectors open and close
	// one per playback.
	OpenFrames func() (audio.FrameSource, error)
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	logger    *slog.Logger
	metrics   *observe.Metrics

	sess     *session.Session
	store    *session.Store
	states   *cascade.StateFile
	cascade  *cascade.Cascade
	filter   *debounce.Filter
	recorder *listen.Recorder
	coord    *playback.Coordinator
	ensemble *interrupt.Ensemble
	notifier *notify.Notifier
	sidecar  *health.Server

	input  io.Reader
	output io.Writer

	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for [New].
type Option func(*App)

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithMetrics sets the metrics instance. Default is [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithInput overrides the text-mode input stream. Default is os.Stdin.
func WithInput(r io.Reader) Option {
	return func(a *App) { a.input = r }
}

// WithOutput overrides where transcripts and text responses are written.
// Default is os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.output = w }
}

// New wires the app. It resumes the saved conversation, seeds the provider
// cascade from the persisted state file, builds the debounce filter and
// playback coordinator, and in voice mode opens the microphone and the
// interrupt detectors.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if len(providers.Chat) == 0 {
		return nil, errors.New("app: at least one chat provider is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
		logger:    slog.Default(),
		input:     os.Stdin,
		output:    os.Stdout,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	language := cfg.Language
	if language == "" {
		language = lang.English
	}
	a.sess = session.New(lang.SystemPrompt(language), cfg.Session.MaxHistory)
	a.sess.SetLanguage(language)
	a.store = session.NewStore(filepath.Join(cfg.Session.StateDir, "conversation.json"))
	if saved, err := a.store.Load(); err != nil {
		a.logger.Warn("saved conversation unreadable, starting fresh", "error", err)
	} else if len(saved) > 0 {
		a.sess.Restore(saved)
		a.logger.Info("conversation resumed", "messages", len(saved))
	}

	if err := a.initCascade(); err != nil {
		return nil, err
	}

	a.filter = debounce.New(
		debounce.WithMinLength(cfg.Debounce.MinLength),
		debounce.WithCooldowns(cfg.Debounce.InterruptCooldown, cfg.Debounce.ResponseCooldown),
		debounce.WithLogger(a.logger),
	)

	a.notifier = notify.New(notify.WithLogger(a.logger))
	if !cfg.Notify.Enabled {
		a.notifier = notify.New(notify.WithLogger(a.logger), notify.Disabled())
	}

	if cfg.Mode == config.ModeVoice {
		if err := a.initVoice(); err != nil {
			a.runClosers()
			return nil, err
		}
	}

	a.initSidecar()
	return a, nil
}

// initCascade builds the provider cascade and restores its persisted state.
func (a *App) initCascade() error {
	a.states = cascade.NewStateFile(filepath.Join(a.cfg.Session.StateDir, "providers.json"))

	casc, err := cascade.New(a.providers.Chat,
		cascade.WithLogger(a.logger),
		cascade.WithMetrics(a.metrics),
		cascade.WithCheckpoint(a.saveProviderState),
		cascade.WithTTLs(a.cfg.Cascade.ModelRecheckTTL, a.cfg.Cascade.ModelListTTL, a.cfg.Cascade.QuotaTTL),
		cascade.WithTemperature(a.cfg.Cascade.Temperature),
		cascade.WithMaxTokens(a.cfg.Cascade.MaxTokens),
	)
	if err != nil {
		return fmt.Errorf("app: build cascade: %w", err)
	}
	if states, err := a.states.Load(); err != nil {
		a.logger.Warn("provider state unreadable, starting fresh", "error", err)
	} else if states != nil {
		casc.Seed(states)
	}
	a.cascade = casc
	return nil
}

// initVoice opens the capture streams and builds the recorder, playback
// coordinator, and interrupt ensemble.
func (a *App) initVoice() error {
	if a.providers.STT == nil || a.providers.TTS == nil {
		return errors.New("app: voice mode requires STT and TTS providers")
	}
	if a.providers.OpenFrames == nil {
		return errors.New("app: voice mode requires a microphone")
	}
	if a.providers.Player == nil {
		a.providers.Player = &playback.ExecPlayer{}
	}

	recFrames, err := a.providers.OpenFrames()
	if err != nil {
		return fmt.Errorf("app: open recorder stream: %w", err)
	}
	a.closers = append(a.closers, recFrames.Close)
	a.recorder = listen.NewRecorder(recFrames,
		listen.WithTrailingSilence(a.cfg.Audio.TrailingSilence),
		listen.WithMaxUtterance(a.cfg.Audio.MaxUtterance),
		listen.WithLogger(a.logger),
	)

	a.coord = playback.New(a.providers.Player, a.sess,
		playback.WithLogger(a.logger),
		playback.WithMetrics(a.metrics),
		playback.WithTiming(0, a.cfg.Playback.MaxDuration, a.cfg.Playback.GracePeriod),
	)

	a.ensemble = interrupt.New(a.buildDetectors(), interrupt.WithLogger(a.logger))
	return nil
}

// buildDetectors assembles the interrupt ensemble: keyboard, spoken stop
// word, and voice activity. The audio detectors open their own capture
// stream per playback so they start each turn on live audio instead of the
// backlog that piled up while nobody was reading.
func (a *App) buildDetectors() []interrupt.Detector {
	keys := a.providers.Keys
	if keys == nil {
		keys = interrupt.NoopKeys{}
	}
	detectors := []interrupt.Detector{
		interrupt.NewKeyboard(keys, a.logger, a.metrics),
	}

	vadCfg := interrupt.DefaultVADConfig()
	vadCfg.InitialThreshold = a.cfg.VAD.InitialThreshold
	vadCfg.MidThreshold = a.cfg.VAD.MidThreshold
	vadCfg.FloorThreshold = a.cfg.VAD.FloorThreshold
	vadCfg.ConsecutiveFrames = a.cfg.VAD.ConsecutiveFrames
	detectors = append(detectors,
		interrupt.NewVAD(a.providers.OpenFrames, vadCfg, a.logger, a.metrics),
		interrupt.NewStopWord(
			a.providers.OpenFrames, a.providers.STT, a.cfg.VAD.StopWordWindow, a.logger, a.metrics))

	return detectors
}

// initSidecar starts the diagnostics listener when configured.
func (a *App) initSidecar() {
	if a.cfg.Health.ListenAddr == "" {
		return
	}
	a.sidecar = health.NewServer(a.cfg.Health.ListenAddr,
		health.WithLogger(a.logger),
		health.WithChecks(
			health.Check{Name: "state_dir", Probe: func(context.Context) error {
				return os.MkdirAll(a.cfg.Session.StateDir, 0o755)
			}},
			health.Check{Name: "chat_providers", Probe: a.probeProviders},
		),
	)
	a.sidecar.Start()
	a.closers = append(a.closers, func() error {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return a.sidecar.Shutdown(sctx)
	})
}

// probeProviders reports ready when at least one provider is outside its
// quota window.
func (a *App) probeProviders(context.Context) error {
	states := a.cascade.Snapshot()
	now := time.Now()
	for _, p := range a.providers.Chat {
		st := states[p.Name()]
		if st.QuotaExceededUntil.IsZero() || now.After(st.QuotaExceededUntil) {
			return nil
		}
	}
	return errors.New("every chat provider is quota blocked")
}

func (a *App) saveProviderState(states map[string]cascade.ProviderState) {
	if err := a.states.Save(states); err != nil {
		a.logger.Warn("provider state save failed", "error", err)
	}
}

// Run executes the conversation loop until ctx is cancelled or the user
// says goodbye.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("assistant ready",
		"mode", a.cfg.Mode,
		"language", a.sess.Language(),
		"providers", len(a.providers.Chat))

	a.speak(ctx, lang.Greeting(a.sess.Language()))

	lines := a.textInput(ctx)
	for {
		utterance, err := a.nextUtterance(ctx, lines)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				a.speak(ctx, lang.Farewell(a.sess.Language()))
				return nil
			}
			a.logger.Error("utterance capture failed", "error", err)
			continue
		}
		if utterance == "" {
			continue
		}

		if exitPhrases[strings.ToLower(strings.TrimRight(strings.TrimSpace(utterance), ".!"))] {
			a.speak(ctx, lang.Farewell(a.sess.Language()))
			return nil
		}

		if verdict := a.filter.Check(utterance, a.sess); !verdict.Accept {
			a.metrics.RecordDebounceDiscard(ctx, verdict.Rule)
			continue
		}

		a.runTurn(ctx, utterance)

		if err := a.store.Save(a.sess.Messages()); err != nil {
			a.logger.Warn("conversation save failed", "error", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// runTurn takes one accepted utterance through language detection, the
// cascade, and response delivery.
func (a *App) runTurn(ctx context.Context, utterance string) {
	if detected := lang.Detect(utterance); detected != a.sess.Language() {
		a.logger.Info("language switched", "from", a.sess.Language(), "to", detected)
		a.sess.SetLanguage(detected)
		a.sess.SetSystemPrompt(lang.SystemPrompt(detected))
	}

	a.sess.Append(llm.RoleUser, utterance)

	result, err := a.resolveResponse(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		a.logger.Error("no provider produced a response", "error", err)
		a.metrics.RecordTurn(ctx, "failed")
		a.notifier.Send(ctx, "Daisy", "All chat providers are unavailable.")
		a.speak(ctx, lang.Apology(a.sess.Language()))
		return
	}

	a.sess.Append(llm.RoleAssistant, result.Text)
	a.logger.Debug("response resolved", "provider", result.Provider, "model", result.Model)
	a.notifier.Send(ctx, "Daisy", snippet(result.Text))

	if a.cfg.Mode == config.ModeText || a.coord == nil {
		// Already streamed to the output by resolveResponse.
		a.sess.MarkResponseEnd()
		a.metrics.RecordTurn(ctx, "completed")
		return
	}

	outcome := a.deliver(ctx, voicetext.Clean(result.Text))
	if outcome.Interrupted {
		a.metrics.RecordTurn(ctx, "interrupted")
	} else {
		a.metrics.RecordTurn(ctx, "completed")
	}
}

// resolveResponse runs the cascade, streaming tokens straight to the output
// in text mode.
func (a *App) resolveResponse(ctx context.Context) (*cascade.Result, error) {
	if a.cfg.Mode == config.ModeText {
		result, err := a.cascade.ResolveStream(ctx, a.sess.History(), func(chunk string) {
			fmt.Fprint(a.output, chunk)
		})
		if err == nil {
			fmt.Fprintln(a.output)
		}
		return result, err
	}
	return a.cascade.Resolve(ctx, a.sess.History())
}

// deliver gets the response to the user: synthesized and played under the
// interrupt ensemble in voice mode, printed in text mode.
func (a *App) deliver(ctx context.Context, text string) playback.Outcome {
	if a.cfg.Mode == config.ModeText || a.coord == nil {
		fmt.Fprintln(a.output, text)
		a.sess.MarkResponseEnd()
		return playback.Outcome{}
	}

	start := time.Now()
	artifact, err := a.providers.TTS.Synthesize(ctx, text)
	a.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		a.logger.Error("synthesis failed, falling back to text", "error", err)
		fmt.Fprintln(a.output, text)
		a.sess.MarkResponseEnd()
		return playback.Outcome{}
	}
	defer os.Remove(artifact.Path)

	// Fresh signal before the watchers start, so they hold the channel the
	// coordinator will observe.
	a.sess.Signal().Reset()

	wctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.ensemble.Watch(wctx, a.sess)
	}()

	outcome := a.coord.Play(ctx, artifact)
	cancel()
	wg.Wait()

	if outcome.Interrupted {
		a.logger.Info("response interrupted",
			"source", outcome.Source, "after", outcome.Elapsed)
	}
	return outcome
}

// nextUtterance returns the next thing the user said or typed.
func (a *App) nextUtterance(ctx context.Context, lines <-chan string) (string, error) {
	if a.cfg.Mode == config.ModeText {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return "", io.EOF
			}
			return strings.TrimSpace(line), nil
		}
	}

	clip, err := a.recorder.Record(ctx)
	if err != nil {
		if errors.Is(err, stt.ErrNoSpeech) {
			return "", nil
		}
		return "", err
	}

	start := time.Now()
	transcript, err := a.providers.STT.Transcribe(ctx, clip)
	a.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if errors.Is(err, stt.ErrNoSpeech) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("app: transcribe: %w", err)
	}
	fmt.Fprintln(a.output, "> "+transcript)
	return strings.TrimSpace(transcript), nil
}

// speak delivers a canned phrase, tolerating synthesis failure.
func (a *App) speak(ctx context.Context, text string) {
	if text == "" {
		return
	}
	// Shutdown must not suppress the farewell.
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	a.deliver(ctx, text)
}

// textInput feeds stdin lines through a channel so reads can be abandoned
// on cancellation. Only used in text mode.
func (a *App) textInput(ctx context.Context) <-chan string {
	if a.cfg.Mode != config.ModeText {
		return nil
	}
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(a.input)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// Shutdown tears the subsystems down in reverse construction order and
// writes a final provider state checkpoint.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		if a.coord != nil {
			a.coord.Cancel()
		}
		if a.cascade != nil {
			a.saveProviderState(a.cascade.Snapshot())
		}
		if saveErr := a.store.Save(a.sess.Messages()); saveErr != nil {
			a.logger.Warn("final conversation save failed", "error", saveErr)
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				err = ctx.Err()
				return
			default:
			}
			if closeErr := a.closers[i](); closeErr != nil {
				a.logger.Warn("closer failed", "index", i, "error", closeErr)
			}
		}
		a.logger.Info("shutdown complete")
	})
	return err
}

// snippet shortens a response for a notification banner.
func snippet(text string) string {
	const max = 120
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max-1]) + "…"
}

// runClosers releases already-acquired resources when New fails partway.
func (a *App) runClosers() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}
