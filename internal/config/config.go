// Package config provides the configuration schema and loader for the Daisy
// voice assistant.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Mode selects how the assistant takes user input.
type Mode string

const (
	// ModeVoice runs the full microphone pipeline.
	ModeVoice Mode = "voice"

	// ModeText reads from stdin and skips audio capture entirely.
	ModeText Mode = "text"
)

// IsValid reports whether m is a recognised input mode.
func (m Mode) IsValid() bool {
	return m == ModeVoice || m == ModeText
}

// Config is the root configuration, typically loaded from YAML via [Load].
type Config struct {
	LogLevel  LogLevel        `yaml:"log_level"`
	Mode      Mode            `yaml:"mode"`
	Language  string          `yaml:"language"`
	Providers ProvidersConfig `yaml:"providers"`
	Speech    SpeechConfig    `yaml:"speech"`
	Audio     AudioConfig     `yaml:"audio"`
	VAD       VADConfig       `yaml:"vad"`
	Debounce  DebounceConfig  `yaml:"debounce"`
	Cascade   CascadeConfig   `yaml:"cascade"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Session   SessionConfig   `yaml:"session"`
	Health    HealthConfig    `yaml:"health"`
	Notify    NotifyConfig    `yaml:"notify"`
}

// ProvidersConfig declares the chat completion backends in preference order.
type ProvidersConfig struct {
	// Order lists provider names most-preferred first.
	Order []string `yaml:"order"`

	// Entries maps provider name to its connection settings.
	Entries map[string]ProviderEntry `yaml:"entries"`
}

// ProviderEntry holds connection settings for one chat backend.
type ProviderEntry struct {
	// APIKeyEnv names the environment variable holding the API key.
	// Keys never live in the config file itself.
	APIKeyEnv string `yaml:"api_key_env"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`
}

// SpeechConfig selects the transcription and synthesis chains.
type SpeechConfig struct {
	// STT lists transcription backends most-preferred first.
	// Recognised names: groq-whisper, openai-whisper.
	STT []string `yaml:"stt"`

	// TTS lists synthesis engines most-preferred first.
	// Recognised names: piper, openai, say.
	TTS []string `yaml:"tts"`

	// PiperModel is the path to the local Piper voice model.
	PiperModel string `yaml:"piper_model"`

	// OpenAIVoice selects the hosted synthesis voice.
	OpenAIVoice string `yaml:"openai_voice"`
}

// AudioConfig holds microphone capture settings.
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	FrameSize  int `yaml:"frame_size"`

	// MaxUtterance caps how long one recorded utterance may run.
	MaxUtterance time.Duration `yaml:"max_utterance"`

	// TrailingSilence ends an utterance after this much quiet.
	TrailingSilence time.Duration `yaml:"trailing_silence"`
}

// VADConfig tunes barge-in energy detection during playback.
type VADConfig struct {
	InitialThreshold  float64       `yaml:"initial_threshold"`
	MidThreshold      float64       `yaml:"mid_threshold"`
	FloorThreshold    float64       `yaml:"floor_threshold"`
	ConsecutiveFrames int           `yaml:"consecutive_frames"`
	StopWordWindow    time.Duration `yaml:"stop_word_window"`
}

// DebounceConfig tunes the transcript filter.
type DebounceConfig struct {
	MinLength         int           `yaml:"min_length"`
	InterruptCooldown time.Duration `yaml:"interrupt_cooldown"`
	ResponseCooldown  time.Duration `yaml:"response_cooldown"`
}

// CascadeConfig tunes model selection and caching.
type CascadeConfig struct {
	ModelRecheckTTL time.Duration `yaml:"model_recheck_ttl"`
	ModelListTTL    time.Duration `yaml:"model_list_ttl"`
	QuotaTTL        time.Duration `yaml:"quota_ttl"`
	Temperature     float64       `yaml:"temperature"`
	MaxTokens       int           `yaml:"max_tokens"`
}

// PlaybackConfig tunes response playback supervision.
type PlaybackConfig struct {
	MaxDuration time.Duration `yaml:"max_duration"`
	GracePeriod time.Duration `yaml:"grace_period"`

	// Backend selects the audio output path: "exec" spawns a player
	// process, "speaker" decodes in-process.
	Backend string `yaml:"backend"`
}

// SessionConfig holds conversation history settings.
type SessionConfig struct {
	MaxHistory int `yaml:"max_history"`

	// StateDir is where history and provider state snapshots are written.
	StateDir string `yaml:"state_dir"`
}

// HealthConfig configures the diagnostics listener.
type HealthConfig struct {
	// ListenAddr is the TCP address for /healthz, /readyz and /metrics.
	// Empty disables the listener.
	ListenAddr string `yaml:"listen_addr"`
}

// NotifyConfig configures desktop notifications.
type NotifyConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns a [Config] with every tunable at its default value.
// Loading applies the file on top of these.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		LogLevel: LogInfo,
		Mode:     ModeVoice,
		Language: "en",
		Providers: ProvidersConfig{
			Order: []string{"groq", "openai"},
			Entries: map[string]ProviderEntry{
				"groq": {
					APIKeyEnv: "GROQ_API_KEY",
					BaseURL:   "https://api.groq.com/openai/v1",
				},
				"openai": {
					APIKeyEnv: "OPENAI_API_KEY",
				},
			},
		},
		Speech: SpeechConfig{
			STT:         []string{"groq-whisper", "openai-whisper"},
			TTS:         []string{"piper", "openai", "say"},
			OpenAIVoice: "nova",
		},
		Audio: AudioConfig{
			SampleRate:      16000,
			FrameSize:       512,
			MaxUtterance:    30 * time.Second,
			TrailingSilence: 900 * time.Millisecond,
		},
		VAD: VADConfig{
			InitialThreshold:  6000,
			MidThreshold:      4500,
			FloorThreshold:    3500,
			ConsecutiveFrames: 3,
			StopWordWindow:    1500 * time.Millisecond,
		},
		Debounce: DebounceConfig{
			MinLength:         3,
			InterruptCooldown: 3 * time.Second,
			ResponseCooldown:  5 * time.Second,
		},
		Cascade: CascadeConfig{
			ModelRecheckTTL: time.Hour,
			ModelListTTL:    time.Hour,
			QuotaTTL:        time.Hour,
			Temperature:     0.7,
			MaxTokens:       1024,
		},
		Playback: PlaybackConfig{
			MaxDuration: 5 * time.Minute,
			GracePeriod: 200 * time.Millisecond,
			Backend:     "exec",
		},
		Session: SessionConfig{
			MaxHistory: 50,
			StateDir:   filepath.Join(home, ".daisy"),
		},
		Health: HealthConfig{
			ListenAddr: "127.0.0.1:8791",
		},
		Notify: NotifyConfig{
			Enabled: true,
		},
	}
}
