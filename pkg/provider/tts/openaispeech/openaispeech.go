// Package openaispeech implements [tts.Provider] against the OpenAI
// /audio/speech endpoint, producing MP3 artifacts.
package openaispeech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/daisyvoice/daisy/pkg/provider/tts"
)

// Provider synthesizes speech via the OpenAI speech API.
type Provider struct {
	apiKey  string
	baseURL string
	model   string
	voice   string
	client  *http.Client
	logger  *slog.Logger
}

var _ tts.Provider = (*Provider)(nil)

type config struct {
	baseURL string
	model   string
	voice   string
	timeout time.Duration
	logger  *slog.Logger
}

// Option is a functional option for [New].
type Option func(*config)

// WithBaseURL overrides the API root for OpenAI-compatible speech backends.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithModel selects the speech model. Default is "gpt-4o-mini-tts".
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithVoice selects the voice. Default is "nova".
func WithVoice(voice string) Option {
	return func(c *config) { c.voice = voice }
}

// WithTimeout sets the HTTP timeout. Default is 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// New constructs a Provider authenticated with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openaispeech: apiKey must not be empty")
	}

	cfg := &config{
		baseURL: "https://api.openai.com/v1",
		model:   "gpt-4o-mini-tts",
		voice:   "nova",
		timeout: 30 * time.Second,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(cfg)
	}

	return &Provider{
		apiKey:  apiKey,
		baseURL: cfg.baseURL,
		model:   cfg.model,
		voice:   cfg.voice,
		client:  &http.Client{Timeout: cfg.timeout},
		logger:  cfg.logger.With("provider", "openai-speech"),
	}, nil
}

// Name implements tts.Provider.
func (p *Provider) Name() string { return "openai-speech" }

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format,omitempty"`
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string) (tts.Artifact, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return tts.Artifact{}, fmt.Errorf("openaispeech: empty text")
	}

	body, err := json.Marshal(speechRequest{
		Model:          p.model,
		Input:          text,
		Voice:          p.voice,
		ResponseFormat: "mp3",
	})
	if err != nil {
		return tts.Artifact{}, fmt.Errorf("openaispeech: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return tts.Artifact{}, fmt.Errorf("openaispeech: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return tts.Artifact{}, fmt.Errorf("openaispeech: speech request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return tts.Artifact{}, fmt.Errorf("openaispeech: speech API status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	tmp, err := os.CreateTemp("", "daisy-speech-*.mp3")
	if err != nil {
		return tts.Artifact{}, fmt.Errorf("openaispeech: create temp file: %w", err)
	}
	n, err := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if err != nil {
		os.Remove(tmp.Name())
		return tts.Artifact{}, fmt.Errorf("openaispeech: write audio: %w", err)
	}
	if closeErr != nil {
		os.Remove(tmp.Name())
		return tts.Artifact{}, fmt.Errorf("openaispeech: close audio file: %w", closeErr)
	}
	if n == 0 {
		os.Remove(tmp.Name())
		return tts.Artifact{}, fmt.Errorf("openaispeech: API returned no audio")
	}

	p.logger.Debug("synthesis complete",
		"bytes", n,
		"duration", time.Since(start))
	return tts.Artifact{Path: tmp.Name(), Format: tts.FormatMP3}, nil
}
