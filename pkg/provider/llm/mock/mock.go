// Package mock provides a scriptable [llm.Provider] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/daisyvoice/daisy/pkg/provider/llm"
)

// Provider is a test double for llm.Provider. Configure the function fields
// to script behavior; unset fields fall back to benign defaults. All calls
// are recorded and safe for concurrent use.
type Provider struct {
	ProviderName string

	ListModelsFunc     func(ctx context.Context) ([]string, error)
	CompleteFunc       func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
	StreamCompleteFunc func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error)

	mu            sync.Mutex
	listCalls     int
	completeCalls []llm.CompletionRequest
	streamCalls   []llm.CompletionRequest
}

var _ llm.Provider = (*Provider)(nil)

func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	p.listCalls++
	p.mu.Unlock()
	if p.ListModelsFunc != nil {
		return p.ListModelsFunc(ctx)
	}
	return []string{"mock-model"}, nil
}

func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.completeCalls = append(p.completeCalls, req)
	p.mu.Unlock()
	if p.CompleteFunc != nil {
		return p.CompleteFunc(ctx, req)
	}
	return &llm.CompletionResponse{Content: "mock response", Model: req.Model}, nil
}

func (p *Provider) StreamComplete(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.streamCalls = append(p.streamCalls, req)
	p.mu.Unlock()
	if p.StreamCompleteFunc != nil {
		return p.StreamCompleteFunc(ctx, req)
	}
	ch := make(chan llm.Chunk, 1)
	ch <- llm.Chunk{Text: "mock response", FinishReason: "stop"}
	close(ch)
	return ch, nil
}

// ListModelCalls reports how many times ListModels was invoked.
func (p *Provider) ListModelCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.listCalls
}

// CompleteCalls returns a copy of every request passed to Complete.
func (p *Provider) CompleteCalls() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.CompletionRequest(nil), p.completeCalls...)
}

// StreamCalls returns a copy of every request passed to StreamComplete.
func (p *Provider) StreamCalls() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.CompletionRequest(nil), p.streamCalls...)
}

// StreamOf is a helper building a StreamCompleteFunc that emits the given
// texts as chunks and finishes with reason "stop".
func StreamOf(texts ...string) func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
		ch := make(chan llm.Chunk, len(texts)+1)
		for _, t := range texts {
			ch <- llm.Chunk{Text: t}
		}
		ch <- llm.Chunk{FinishReason: "stop"}
		close(ch)
		return ch, nil
	}
}
