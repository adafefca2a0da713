package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

var (
	knownSTT = []string{"groq-whisper", "openai-whisper"}
	knownTTS = []string{"piper", "openai", "say"}
)

// Load reads the YAML file at path on top of [Default] and validates the
// result. A missing file is not an error: the defaults are used as-is.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		return cfg, Validate(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r on top of [Default] and validates the
// result. Unknown keys are rejected so typos fail loudly.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg is coherent, returning a joined error listing
// every failure found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.Mode != "" && !cfg.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("mode %q is invalid; valid values: voice, text", cfg.Mode))
	}
	if cfg.Language != "" && cfg.Language != "en" && cfg.Language != "el" {
		errs = append(errs, fmt.Errorf("language %q is invalid; valid values: en, el", cfg.Language))
	}

	if len(cfg.Providers.Order) == 0 {
		errs = append(errs, errors.New("providers.order must list at least one provider"))
	}
	for _, name := range cfg.Providers.Order {
		entry, ok := cfg.Providers.Entries[name]
		if !ok {
			errs = append(errs, fmt.Errorf("providers.order names %q but providers.entries has no such entry", name))
			continue
		}
		if entry.APIKeyEnv == "" {
			errs = append(errs, fmt.Errorf("providers.entries.%s.api_key_env is required", name))
		}
	}

	for _, name := range cfg.Speech.STT {
		if !slices.Contains(knownSTT, name) {
			errs = append(errs, fmt.Errorf("speech.stt %q is unknown; valid values: %v", name, knownSTT))
		}
	}
	for _, name := range cfg.Speech.TTS {
		if !slices.Contains(knownTTS, name) {
			errs = append(errs, fmt.Errorf("speech.tts %q is unknown; valid values: %v", name, knownTTS))
		}
	}
	if slices.Contains(cfg.Speech.TTS, "piper") && cfg.Speech.PiperModel == "" {
		slog.Warn("speech.piper_model is not set; the piper engine will be skipped")
	}

	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must be positive", cfg.Audio.FrameSize))
	}

	if cfg.VAD.FloorThreshold > cfg.VAD.MidThreshold || cfg.VAD.MidThreshold > cfg.VAD.InitialThreshold {
		errs = append(errs, fmt.Errorf("vad thresholds must not increase over time: initial %.0f >= mid %.0f >= floor %.0f",
			cfg.VAD.InitialThreshold, cfg.VAD.MidThreshold, cfg.VAD.FloorThreshold))
	}
	if cfg.VAD.ConsecutiveFrames <= 0 {
		errs = append(errs, fmt.Errorf("vad.consecutive_frames %d must be positive", cfg.VAD.ConsecutiveFrames))
	}

	if cfg.Debounce.MinLength < 0 {
		errs = append(errs, fmt.Errorf("debounce.min_length %d must not be negative", cfg.Debounce.MinLength))
	}

	if cfg.Playback.Backend != "exec" && cfg.Playback.Backend != "speaker" {
		errs = append(errs, fmt.Errorf("playback.backend %q is invalid; valid values: exec, speaker", cfg.Playback.Backend))
	}

	if cfg.Session.MaxHistory < 2 {
		errs = append(errs, fmt.Errorf("session.max_history %d must be at least 2", cfg.Session.MaxHistory))
	}

	return errors.Join(errs...)
}
