// Package piper implements [tts.Provider] on top of a local Piper
// installation. Piper is a fast neural TTS engine driven by ONNX voice
// models; synthesis runs fully offline, which makes it the preferred first
// link in the synthesis fallback chain.
package piper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/daisyvoice/daisy/pkg/provider/tts"
)

// Provider shells out to the piper binary for synthesis.
type Provider struct {
	binary string
	model  string
	logger *slog.Logger
}

var _ tts.Provider = (*Provider)(nil)

type config struct {
	binary string
	logger *slog.Logger
}

// Option is a functional option for [New].
type Option func(*config)

// WithBinary sets an explicit piper binary path instead of searching PATH
// and the usual install locations.
func WithBinary(path string) Option {
	return func(c *config) { c.binary = path }
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// New constructs a Provider using the .onnx voice model at modelPath.
// It fails fast when neither the binary nor the model can be found so the
// fallback chain can skip Piper on machines without it.
func New(modelPath string, opts ...Option) (*Provider, error) {
	cfg := &config{logger: slog.Default()}
	for _, o := range opts {
		o(cfg)
	}

	binary := cfg.binary
	if binary == "" {
		var err error
		binary, err = findBinary()
		if err != nil {
			return nil, err
		}
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("piper: voice model: %w", err)
	}

	return &Provider{
		binary: binary,
		model:  modelPath,
		logger: cfg.logger.With("provider", "piper"),
	}, nil
}

// findBinary locates piper in PATH or the common install locations.
func findBinary() (string, error) {
	if path, err := exec.LookPath("piper"); err == nil {
		return path, nil
	}
	home, _ := os.UserHomeDir()
	for _, candidate := range []string{
		filepath.Join(home, ".local/bin/piper"),
		"/usr/local/bin/piper",
		"/opt/homebrew/bin/piper",
	} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("piper: binary not found")
}

// Name implements tts.Provider.
func (p *Provider) Name() string { return "piper" }

// Synthesize implements tts.Provider. Text goes in on stdin; piper writes a
// WAV file to the temp path given with -f.
func (p *Provider) Synthesize(ctx context.Context, text string) (tts.Artifact, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return tts.Artifact{}, fmt.Errorf("piper: empty text")
	}

	tmp, err := os.CreateTemp("", "daisy-piper-*.wav")
	if err != nil {
		return tts.Artifact{}, fmt.Errorf("piper: create temp file: %w", err)
	}
	path := tmp.Name()
	tmp.Close()

	cmd := exec.CommandContext(ctx, p.binary, "--model", p.model, "-f", path)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		os.Remove(path)
		return tts.Artifact{}, fmt.Errorf("piper: synthesis failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		os.Remove(path)
		return tts.Artifact{}, fmt.Errorf("piper: produced no audio")
	}

	p.logger.Debug("synthesis complete",
		"bytes", info.Size(),
		"duration", time.Since(start))
	return tts.Artifact{Path: path, Format: tts.FormatWAV}, nil
}
