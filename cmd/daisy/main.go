// Command daisy is the interruptible voice assistant.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/daisyvoice/daisy/internal/app"
	"github.com/daisyvoice/daisy/internal/config"
	"github.com/daisyvoice/daisy/internal/interrupt"
	"github.com/daisyvoice/daisy/internal/observe"
	"github.com/daisyvoice/daisy/internal/playback"
	"github.com/daisyvoice/daisy/internal/resilience"
	"github.com/daisyvoice/daisy/pkg/audio"
	"github.com/daisyvoice/daisy/pkg/provider/llm/openaicompat"
	"github.com/daisyvoice/daisy/pkg/provider/stt"
	"github.com/daisyvoice/daisy/pkg/provider/stt/whisperapi"
	"github.com/daisyvoice/daisy/pkg/provider/tts"
	"github.com/daisyvoice/daisy/pkg/provider/tts/openaispeech"
	"github.com/daisyvoice/daisy/pkg/provider/tts/piper"
	"github.com/daisyvoice/daisy/pkg/provider/tts/say"
)

const version = "0.3.0"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", defaultConfigPath(), "path to the YAML configuration file")
	textMode := flag.Bool("text", false, "read input from stdin instead of the microphone")
	flag.Parse()

	// API keys come from the environment; a .env beside the binary is a
	// convenience for local use.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "daisy: %v\n", err)
		return 1
	}
	if *textMode {
		cfg.Mode = config.ModeText
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "daisy",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("metrics init failed", "error", err)
		return 1
	}
	defer func() {
		mctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := shutdownMetrics(mctx); err != nil {
			slog.Warn("metrics shutdown failed", "error", err)
		}
	}()

	providers, cleanup, err := buildProviders(cfg)
	if err != nil {
		slog.Error("failed to build providers", "error", err)
		return 1
	}
	defer cleanup()

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, app.WithLogger(logger))
	if err != nil {
		slog.Error("failed to initialise", "error", err)
		return 1
	}

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "error", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		return 1
	}
	return 0
}

// buildProviders instantiates every backend named in the config. The
// returned cleanup closes resources not owned by the app (the keyboard hook).
func buildProviders(cfg *config.Config) (*app.Providers, func(), error) {
	ps := &app.Providers{}
	cleanup := func() {}

	// Chat providers in preference order.
	for _, name := range cfg.Providers.Order {
		entry := cfg.Providers.Entries[name]
		apiKey := os.Getenv(entry.APIKeyEnv)
		if apiKey == "" {
			slog.Warn("provider skipped, API key not set", "provider", name, "env", entry.APIKeyEnv)
			continue
		}
		var opts []openaicompat.Option
		if entry.BaseURL != "" {
			opts = append(opts, openaicompat.WithBaseURL(entry.BaseURL))
		}
		p, err := openaicompat.New(name, apiKey, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("create chat provider %q: %w", name, err)
		}
		ps.Chat = append(ps.Chat, p)
		slog.Info("provider created", "kind", "chat", "name", name)
	}
	if len(ps.Chat) == 0 {
		return nil, nil, errors.New("no chat provider has an API key configured")
	}

	if cfg.Mode == config.ModeText {
		return ps, cleanup, nil
	}

	sttChain, err := buildSTT(cfg)
	if err != nil {
		return nil, nil, err
	}
	ps.STT = sttChain

	ttsChain, err := buildTTS(cfg)
	if err != nil {
		return nil, nil, err
	}
	ps.TTS = ttsChain

	if cfg.Playback.Backend == "speaker" {
		ps.Player = &playback.BeepPlayer{}
	}

	ps.OpenFrames = func() (audio.FrameSource, error) {
		return audio.OpenMic(cfg.Audio.SampleRate, cfg.Audio.FrameSize)
	}

	if keys, err := interrupt.OpenTerminalKeys(); err != nil {
		slog.Warn("keyboard unavailable, interrupt by voice only", "error", err)
	} else {
		ps.Keys = keys
		cleanup = func() { _ = keys.Close() }
	}

	return ps, cleanup, nil
}

// buildSTT assembles the transcription failover chain.
func buildSTT(cfg *config.Config) (stt.Provider, error) {
	var backends []stt.Provider
	for _, name := range cfg.Speech.STT {
		switch name {
		case "groq-whisper":
			apiKey := os.Getenv("GROQ_API_KEY")
			if apiKey == "" {
				slog.Warn("stt backend skipped, GROQ_API_KEY not set", "backend", name)
				continue
			}
			p, err := whisperapi.New(name, apiKey,
				whisperapi.WithBaseURL("https://api.groq.com/openai/v1"),
				whisperapi.WithModel("whisper-large-v3-turbo"),
			)
			if err != nil {
				return nil, fmt.Errorf("create stt backend %q: %w", name, err)
			}
			backends = append(backends, p)
		case "openai-whisper":
			apiKey := os.Getenv("OPENAI_API_KEY")
			if apiKey == "" {
				slog.Warn("stt backend skipped, OPENAI_API_KEY not set", "backend", name)
				continue
			}
			p, err := whisperapi.New(name, apiKey)
			if err != nil {
				return nil, fmt.Errorf("create stt backend %q: %w", name, err)
			}
			backends = append(backends, p)
		}
	}
	if len(backends) == 0 {
		return nil, errors.New("no transcription backend available")
	}

	chain := resilience.NewSTTChain(backends[0], resilience.ChainConfig{})
	for _, b := range backends[1:] {
		chain.Add(b)
	}
	return chain, nil
}

// buildTTS assembles the synthesis failover chain.
func buildTTS(cfg *config.Config) (tts.Provider, error) {
	var engines []tts.Provider
	for _, name := range cfg.Speech.TTS {
		switch name {
		case "piper":
			if cfg.Speech.PiperModel == "" {
				continue
			}
			p, err := piper.New(cfg.Speech.PiperModel)
			if err != nil {
				slog.Warn("piper unavailable", "error", err)
				continue
			}
			engines = append(engines, p)
		case "openai":
			apiKey := os.Getenv("OPENAI_API_KEY")
			if apiKey == "" {
				slog.Warn("tts engine skipped, OPENAI_API_KEY not set", "engine", name)
				continue
			}
			p, err := openaispeech.New(apiKey, openaispeech.WithVoice(cfg.Speech.OpenAIVoice))
			if err != nil {
				return nil, fmt.Errorf("create tts engine %q: %w", name, err)
			}
			engines = append(engines, p)
		case "say":
			if runtime.GOOS != "darwin" {
				continue
			}
			p, err := say.New()
			if err != nil {
				slog.Warn("say unavailable", "error", err)
				continue
			}
			engines = append(engines, p)
		}
	}
	if len(engines) == 0 {
		return nil, errors.New("no synthesis engine available")
	}

	chain := resilience.NewTTSChain(engines[0], resilience.ChainConfig{})
	for _, e := range engines[1:] {
		chain.Add(e)
	}
	return chain, nil
}

func printStartupSummary(cfg *config.Config) {
	fmt.Printf("daisy %s\n", version)
	fmt.Printf("  mode      : %s\n", cfg.Mode)
	fmt.Printf("  language  : %s\n", cfg.Language)
	fmt.Printf("  providers : %v\n", cfg.Providers.Order)
	if cfg.Mode == config.ModeVoice {
		fmt.Printf("  stt       : %v\n", cfg.Speech.STT)
		fmt.Printf("  tts       : %v\n", cfg.Speech.TTS)
	}
	if cfg.Health.ListenAddr != "" {
		fmt.Printf("  metrics   : http://%s/metrics\n", cfg.Health.ListenAddr)
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "daisy.yaml"
	}
	return filepath.Join(home, ".daisy", "daisy.yaml")
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
