// Package say implements [tts.Provider] using the macOS say command. It is
// the last link of the synthesis fallback chain: no keys, no models, always
// present on darwin.
package say

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/daisyvoice/daisy/pkg/provider/tts"
)

// Provider shells out to say, writing AIFF artifacts.
type Provider struct {
	voice  string
	logger *slog.Logger
}

var _ tts.Provider = (*Provider)(nil)

type config struct {
	voice  string
	logger *slog.Logger
}

// Option is a functional option for [New].
type Option func(*config)

// WithVoice selects a system voice, e.g. "Samantha". Default is the system
// preference.
func WithVoice(voice string) Option {
	return func(c *config) { c.voice = voice }
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// New constructs a Provider. It fails on non-darwin platforms or when the
// say command is missing.
func New(opts ...Option) (*Provider, error) {
	if runtime.GOOS != "darwin" {
		return nil, fmt.Errorf("say: only available on darwin, running on %s", runtime.GOOS)
	}
	if _, err := exec.LookPath("say"); err != nil {
		return nil, fmt.Errorf("say: command not found: %w", err)
	}

	cfg := &config{logger: slog.Default()}
	for _, o := range opts {
		o(cfg)
	}
	return &Provider{voice: cfg.voice, logger: cfg.logger.With("provider", "say")}, nil
}

// Name implements tts.Provider.
func (p *Provider) Name() string { return "say" }

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string) (tts.Artifact, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return tts.Artifact{}, fmt.Errorf("say: empty text")
	}

	tmp, err := os.CreateTemp("", "daisy-say-*.aiff")
	if err != nil {
		return tts.Artifact{}, fmt.Errorf("say: create temp file: %w", err)
	}
	path := tmp.Name()
	tmp.Close()

	args := []string{"-o", path}
	if p.voice != "" {
		args = append(args, "-v", p.voice)
	}
	args = append(args, text)

	cmd := exec.CommandContext(ctx, "say", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(path)
		return tts.Artifact{}, fmt.Errorf("say: synthesis failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	p.logger.Debug("synthesis complete", "chars", len(text))
	return tts.Artifact{Path: path, Format: tts.FormatAIFF}, nil
}
