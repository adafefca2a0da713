// Package whisperapi implements [stt.Provider] against the OpenAI-compatible
// /audio/transcriptions endpoint. The same implementation serves OpenAI
// (whisper-1) and Groq (whisper-large-v3) by switching the base URL.
package whisperapi

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/daisyvoice/daisy/pkg/provider/stt"
)

// Provider transcribes speech via an OpenAI-compatible Whisper HTTP API.
type Provider struct {
	name     string
	apiKey   string
	baseURL  string
	model    string
	language string
	client   *http.Client
	logger   *slog.Logger
}

var _ stt.Provider = (*Provider)(nil)

type config struct {
	baseURL  string
	model    string
	language string
	timeout  time.Duration
	logger   *slog.Logger
}

// Option is a functional option for [New].
type Option func(*config)

// WithBaseURL overrides the API root, e.g. "https://api.groq.com/openai/v1".
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithModel selects the transcription model. Default is "whisper-1".
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithLanguage passes an ISO-639-1 language hint to the backend. Empty means
// auto-detect, which is what mixed Greek/English sessions need.
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// WithTimeout sets the HTTP timeout. Default is 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// New constructs a Provider named name using apiKey for bearer auth.
func New(name, apiKey string, opts ...Option) (*Provider, error) {
	if name == "" {
		return nil, fmt.Errorf("whisperapi: name must not be empty")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("whisperapi: apiKey must not be empty")
	}

	cfg := &config{
		baseURL: "https://api.openai.com/v1",
		model:   "whisper-1",
		timeout: 30 * time.Second,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(cfg)
	}

	return &Provider{
		name:     name,
		apiKey:   apiKey,
		baseURL:  cfg.baseURL,
		model:    cfg.model,
		language: cfg.language,
		client:   &http.Client{Timeout: cfg.timeout},
		logger:   cfg.logger.With("provider", name),
	}, nil
}

// Name implements stt.Provider.
func (p *Provider) Name() string { return p.name }

// Transcribe implements stt.Provider. The clip is wrapped in a RIFF/WAVE
// container and uploaded as a multipart form.
func (p *Provider) Transcribe(ctx context.Context, clip stt.Clip) (string, error) {
	if len(clip.PCM) == 0 {
		return "", fmt.Errorf("%s: %w", p.name, stt.ErrNoSpeech)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("%s: create form file: %w", p.name, err)
	}
	if _, err := part.Write(encodeWAV(clip)); err != nil {
		return "", fmt.Errorf("%s: write audio: %w", p.name, err)
	}
	if err := writer.WriteField("model", p.model); err != nil {
		return "", fmt.Errorf("%s: write model field: %w", p.name, err)
	}
	if p.language != "" {
		if err := writer.WriteField("language", p.language); err != nil {
			return "", fmt.Errorf("%s: write language field: %w", p.name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("%s: close multipart writer: %w", p.name, err)
	}

	url := p.baseURL + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", fmt.Errorf("%s: build request: %w", p.name, err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: transcription request: %w", p.name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%s: read response: %w", p.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: transcription API status %d: %s", p.name, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("%s: decode response: %w", p.name, err)
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		return "", fmt.Errorf("%s: %w", p.name, stt.ErrNoSpeech)
	}

	p.logger.Debug("transcription complete",
		"chars", len(text),
		"duration", time.Since(start))
	return text, nil
}

// encodeWAV wraps the clip's samples in a 44-byte RIFF/WAVE header
// (PCM, mono, 16-bit).
func encodeWAV(clip stt.Clip) []byte {
	rate := clip.SampleRate
	if rate == 0 {
		rate = 16000
	}

	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := rate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(clip.PCM) * 2

	buf := make([]byte, 0, 44+dataSize)
	buf = append(buf, "RIFF"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(36+dataSize))
	buf = append(buf, "WAVE"...)

	buf = append(buf, "fmt "...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, 1) // PCM
	buf = binary.LittleEndian.AppendUint16(buf, channels)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(rate))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(byteRate))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(blockAlign))
	buf = binary.LittleEndian.AppendUint16(buf, bitsPerSample)

	buf = append(buf, "data"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(dataSize))
	for _, s := range clip.PCM {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(s))
	}
	return buf
}
