// Package openaicompat provides an llm.Provider for any OpenAI-compatible
// chat endpoint. Both of the stock cascade providers are served by this one
// implementation: api.openai.com with its default base URL, and Groq via
// [WithBaseURL] pointed at https://api.groq.com/openai/v1.
package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/daisyvoice/daisy/pkg/provider/llm"
)

// Provider implements [llm.Provider] against an OpenAI-compatible API.
type Provider struct {
	name   string
	client oai.Client
}

// Compile-time interface assertion.
var _ llm.Provider = (*Provider)(nil)

// config holds optional construction parameters.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for [New].
type Option func(*config)

// WithBaseURL points the provider at a non-default OpenAI-compatible endpoint
// (e.g., "https://api.groq.com/openai/v1").
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout. Default is 60s.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs a Provider. name is the cascade-facing identifier ("openai",
// "groq"); it appears in logs and in the persisted cache state.
func New(name, apiKey string, opts ...Option) (*Provider, error) {
	if name == "" {
		return nil, fmt.Errorf("openaicompat: name must not be empty")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openaicompat: apiKey must not be empty")
	}

	cfg := &config{timeout: 60 * time.Second}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}

	return &Provider{name: name, client: oai.NewClient(reqOpts...)}, nil
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return p.name }

// ListModels implements llm.Provider. The backend's original ordering is
// preserved so the cascade's rank sort can use it as the final tiebreaker.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	page, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, classify(p.name, "list models", err)
	}

	var ids []string
	for page != nil {
		for _, m := range page.Data {
			ids = append(ids, m.ID)
		}
		page, err = page.GetNextPage()
		if err != nil {
			return nil, classify(p.name, "list models", err)
		}
	}
	return ids, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.client.Chat.Completions.New(ctx, buildParams(req))
	if err != nil {
		return nil, classify(p.name, "completion", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, fmt.Errorf("%s: completion: %w", p.name, llm.ErrEmptyResponse)
	}
	return &llm.CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
	}, nil
}

// StreamComplete implements llm.Provider.
func (p *Provider) StreamComplete(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	stream := p.client.Chat.Completions.NewStreaming(ctx, buildParams(req))
	if err := stream.Err(); err != nil {
		return nil, classify(p.name, "start stream", err)
	}

	ch := make(chan llm.Chunk, 32)
	go func() {
		defer close(ch)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			out := llm.Chunk{
				Text:         choice.Delta.Content,
				FinishReason: choice.FinishReason,
			}
			select {
			case ch <- out:
			case <-ctx.Done():
				return
			}
		}

		if err := stream.Err(); err != nil {
			select {
			case ch <- llm.Chunk{FinishReason: "error", Text: err.Error()}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

// buildParams converts a CompletionRequest into OpenAI SDK params.
func buildParams(req llm.CompletionRequest) oai.ChatCompletionNewParams {
	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			messages = append(messages, oai.SystemMessage(m.Content))
		case llm.RoleAssistant:
			messages = append(messages, oai.AssistantMessage(m.Content))
		default:
			messages = append(messages, oai.UserMessage(m.Content))
		}
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: messages,
	}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	return params
}

// classify wraps err with the matching llm classification sentinel based on
// the HTTP status code and, for the ambiguous 429 case, the error body.
func classify(name, op string, err error) error {
	var apierr *oai.Error
	if !errors.As(err, &apierr) {
		return fmt.Errorf("%s: %s: %w: %w", name, op, llm.ErrUnavailable, err)
	}

	msg := strings.ToLower(apierr.Error())
	switch {
	case apierr.StatusCode == http.StatusUnauthorized,
		strings.Contains(msg, "insufficient_quota"),
		strings.Contains(msg, "quota"):
		return fmt.Errorf("%s: %s: %w: %w", name, op, llm.ErrQuotaExceeded, err)

	case apierr.StatusCode == http.StatusNotFound,
		strings.Contains(msg, "model_not_found"),
		strings.Contains(msg, "decommissioned"):
		return fmt.Errorf("%s: %s: %w: %w", name, op, llm.ErrModelNotFound, err)

	case apierr.StatusCode == http.StatusTooManyRequests,
		apierr.StatusCode == http.StatusServiceUnavailable:
		return fmt.Errorf("%s: %s: %w: %w", name, op, llm.ErrRateLimited, err)

	case apierr.StatusCode >= 500:
		return fmt.Errorf("%s: %s: %w: %w", name, op, llm.ErrUnavailable, err)

	default:
		return fmt.Errorf("%s: %s: %w", name, op, err)
	}
}
