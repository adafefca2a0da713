package cascade

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/daisyvoice/daisy/internal/observe"
	"github.com/daisyvoice/daisy/pkg/provider/llm"
	llmmock "github.com/daisyvoice/daisy/pkg/provider/llm/mock"
)

func testMetricsOption(t *testing.T) Option {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	return WithMetrics(m)
}

// scriptedProvider fails or succeeds per model according to outcomes.
func scriptedProvider(name string, models []string, outcomes map[string]error) (*llmmock.Provider, *[]string) {
	attempts := &[]string{}
	var mu sync.Mutex
	return &llmmock.Provider{
		ProviderName: name,
		ListModelsFunc: func(ctx context.Context) ([]string, error) {
			return models, nil
		},
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			mu.Lock()
			*attempts = append(*attempts, req.Model)
			mu.Unlock()
			if err, ok := outcomes[req.Model]; ok && err != nil {
				return nil, err
			}
			return &llm.CompletionResponse{Content: "response from " + req.Model, Model: req.Model}, nil
		},
	}, attempts
}

func history() []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: "you are daisy"},
		{Role: llm.RoleUser, Content: "hello"},
	}
}

func TestResolveSkipsFailedModelOnce(t *testing.T) {
	// Models rank A before B; A fails NotFound, B succeeds. B must be
	// resolved and A never retried within the turn.
	p, attempts := scriptedProvider("groq",
		[]string{"llama-3.3-70b-versatile", "llama-3.1-8b-instant"},
		map[string]error{"llama-3.3-70b-versatile": fmt.Errorf("gone: %w", llm.ErrModelNotFound)})

	c, err := New([]llm.Provider{p}, testMetricsOption(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := c.Resolve(context.Background(), history())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Model != "llama-3.1-8b-instant" {
		t.Errorf("resolved model = %q, want llama-3.1-8b-instant", res.Model)
	}
	want := []string{"llama-3.3-70b-versatile", "llama-3.1-8b-instant"}
	if len(*attempts) != 2 || (*attempts)[0] != want[0] || (*attempts)[1] != want[1] {
		t.Errorf("attempts = %v, want %v", *attempts, want)
	}
}

func TestResolveReusesWorkingModelWithinTTL(t *testing.T) {
	p, attempts := scriptedProvider("groq",
		[]string{"llama-3.3-70b-versatile"}, nil)

	c, err := New([]llm.Provider{p}, testMetricsOption(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := c.Resolve(context.Background(), history()); err != nil {
			t.Fatalf("Resolve %d: %v", i, err)
		}
	}

	// The first resolution fetches the list; later ones ride the cached
	// working model.
	if got := p.ListModelCalls(); got != 1 {
		t.Errorf("ListModels calls = %d, want 1", got)
	}
	if len(*attempts) != 3 {
		t.Errorf("completion attempts = %d, want 3", len(*attempts))
	}
}

func TestResolveRechecksAfterTTL(t *testing.T) {
	p, _ := scriptedProvider("groq", []string{"llama-3.3-70b-versatile"}, nil)

	now := time.Now()
	clock := func() time.Time { return now }
	c, err := New([]llm.Provider{p}, testMetricsOption(t), withClock(clock))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := c.Resolve(context.Background(), history()); err != nil {
		t.Fatalf("first Resolve: %v", err)
	}

	// Past both TTLs: the cached model is stale and the list must be
	// refetched.
	now = now.Add(2 * time.Hour)
	if _, err := c.Resolve(context.Background(), history()); err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if got := p.ListModelCalls(); got != 2 {
		t.Errorf("ListModels calls = %d, want 2", got)
	}
}

func TestResolveQuotaExceededSkipsUntilExpiry(t *testing.T) {
	quotaErr := fmt.Errorf("billing: %w", llm.ErrQuotaExceeded)
	groq, groqAttempts := scriptedProvider("groq",
		[]string{"llama-3.3-70b-versatile"},
		map[string]error{"llama-3.3-70b-versatile": quotaErr})
	openai, _ := scriptedProvider("openai", []string{"gpt-4o"}, nil)

	now := time.Now()
	clock := func() time.Time { return now }
	c, err := New([]llm.Provider{groq, openai}, testMetricsOption(t), withClock(clock))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Turn 1: groq exhausts quota, openai answers.
	res, err := c.Resolve(context.Background(), history())
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if res.Provider != "openai" {
		t.Errorf("turn 1 provider = %q, want openai", res.Provider)
	}
	groqTried := len(*groqAttempts)

	// Turn 2 inside the quota window: groq is not touched at all.
	if _, err := c.Resolve(context.Background(), history()); err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if len(*groqAttempts) != groqTried {
		t.Errorf("groq was retried inside quota window")
	}

	// Turn 3 past expiry: exactly one retry against groq occurs.
	now = now.Add(2 * time.Hour)
	if _, err := c.Resolve(context.Background(), history()); err != nil {
		t.Fatalf("turn 3: %v", err)
	}
	if len(*groqAttempts) != groqTried+1 {
		t.Errorf("groq attempts after expiry = %d, want %d", len(*groqAttempts), groqTried+1)
	}
}

func TestResolveNotFoundInvalidatesCachedModel(t *testing.T) {
	var mu sync.Mutex
	fail := false
	attempts := []string{}
	p := &llmmock.Provider{
		ProviderName: "groq",
		ListModelsFunc: func(ctx context.Context) ([]string, error) {
			return []string{"llama-3.3-70b-versatile", "llama-3.1-8b-instant"}, nil
		},
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			mu.Lock()
			attempts = append(attempts, req.Model)
			mu.Unlock()
			if fail && req.Model == "llama-3.3-70b-versatile" {
				return nil, fmt.Errorf("decommissioned: %w", llm.ErrModelNotFound)
			}
			return &llm.CompletionResponse{Content: "ok", Model: req.Model}, nil
		},
	}

	c, err := New([]llm.Provider{p}, testMetricsOption(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := c.Resolve(context.Background(), history()); err != nil {
		t.Fatalf("turn 1: %v", err)
	}

	// The cached model is now decommissioned; the cascade must clear it,
	// search the list, and land on the fallback without retrying the dead
	// model in the same turn.
	fail = true
	res, err := c.Resolve(context.Background(), history())
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if res.Model != "llama-3.1-8b-instant" {
		t.Errorf("turn 2 model = %q, want llama-3.1-8b-instant", res.Model)
	}

	var deadTries int
	for _, m := range attempts[1:] {
		if m == "llama-3.3-70b-versatile" {
			deadTries++
		}
	}
	if deadTries != 1 {
		t.Errorf("dead model tried %d times in turn 2, want 1", deadTries)
	}
}

func TestResolveUnavailableKeepsCachedModel(t *testing.T) {
	var mu sync.Mutex
	down := map[string]bool{"llama-3.3-70b-versatile": true}
	attempts := []string{}
	p := &llmmock.Provider{
		ProviderName: "groq",
		ListModelsFunc: func(ctx context.Context) ([]string, error) {
			return []string{"llama-3.3-70b-versatile", "llama-3.1-8b-instant"}, nil
		},
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			mu.Lock()
			attempts = append(attempts, req.Model)
			bad := down[req.Model]
			mu.Unlock()
			if bad {
				return nil, fmt.Errorf("503: %w", llm.ErrUnavailable)
			}
			return &llm.CompletionResponse{Content: "ok", Model: req.Model}, nil
		},
	}

	c, err := New([]llm.Provider{p}, testMetricsOption(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Turn 1: the top-ranked model is down, the fallback answers and
	// becomes the cached working model.
	res, err := c.Resolve(context.Background(), history())
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if res.Model != "llama-3.1-8b-instant" {
		t.Fatalf("turn 1 model = %q, want llama-3.1-8b-instant", res.Model)
	}

	// Turn 2: a transient outage takes the cached model down as well. The
	// turn fails, but the cache entry must survive it.
	mu.Lock()
	down["llama-3.1-8b-instant"] = true
	mu.Unlock()
	if _, err := c.Resolve(context.Background(), history()); !errors.Is(err, ErrNoProviderAvailable) {
		t.Fatalf("turn 2 err = %v, want ErrNoProviderAvailable", err)
	}

	// Turn 3 after recovery: the cached model is tried first, not the
	// higher-ranked one a fresh list search would start from.
	mu.Lock()
	down["llama-3.1-8b-instant"] = false
	turn3Start := len(attempts)
	mu.Unlock()
	res, err = c.Resolve(context.Background(), history())
	if err != nil {
		t.Fatalf("turn 3: %v", err)
	}
	if res.Model != "llama-3.1-8b-instant" {
		t.Errorf("turn 3 model = %q, want llama-3.1-8b-instant", res.Model)
	}
	mu.Lock()
	first := attempts[turn3Start]
	mu.Unlock()
	if first != "llama-3.1-8b-instant" {
		t.Errorf("turn 3 first attempt = %q, want the cached llama-3.1-8b-instant", first)
	}
}

func TestResolveNoProviderAvailable(t *testing.T) {
	p, _ := scriptedProvider("groq",
		[]string{"llama-3.1-8b-instant"},
		map[string]error{"llama-3.1-8b-instant": fmt.Errorf("down: %w", llm.ErrUnavailable)})

	c, err := New([]llm.Provider{p}, testMetricsOption(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Resolve(context.Background(), history())
	if !errors.Is(err, ErrNoProviderAvailable) {
		t.Fatalf("err = %v, want ErrNoProviderAvailable", err)
	}
}

func TestResolveStreamAccumulates(t *testing.T) {
	p := &llmmock.Provider{
		ProviderName: "groq",
		ListModelsFunc: func(ctx context.Context) ([]string, error) {
			return []string{"llama-3.3-70b-versatile"}, nil
		},
		StreamCompleteFunc: llmmock.StreamOf("hi ", "there", "!"),
	}

	c, err := New([]llm.Provider{p}, testMetricsOption(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var fragments []string
	res, err := c.ResolveStream(context.Background(), history(), func(f string) {
		fragments = append(fragments, f)
	})
	if err != nil {
		t.Fatalf("ResolveStream: %v", err)
	}
	if res.Text != "hi there!" {
		t.Errorf("text = %q, want %q", res.Text, "hi there!")
	}
	if len(fragments) != 3 {
		t.Errorf("fragments = %v, want 3 entries", fragments)
	}
}

func TestResolveCheckpointFires(t *testing.T) {
	p, _ := scriptedProvider("groq", []string{"llama-3.3-70b-versatile"}, nil)

	var snapshots []map[string]ProviderState
	c, err := New([]llm.Provider{p}, testMetricsOption(t),
		WithCheckpoint(func(s map[string]ProviderState) { snapshots = append(snapshots, s) }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := c.Resolve(context.Background(), history()); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(snapshots) == 0 {
		t.Fatal("checkpoint never fired")
	}
	last := snapshots[len(snapshots)-1]
	if last["groq"].WorkingModel != "llama-3.3-70b-versatile" {
		t.Errorf("snapshot working model = %q", last["groq"].WorkingModel)
	}
}

func TestSeedSkipsDiscovery(t *testing.T) {
	p, _ := scriptedProvider("groq", []string{"llama-3.3-70b-versatile"}, nil)

	c, err := New([]llm.Provider{p}, testMetricsOption(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Seed(map[string]ProviderState{
		"groq": {
			WorkingModel:          "llama-3.3-70b-versatile",
			WorkingModelCheckedAt: time.Now(),
		},
	})

	if _, err := c.Resolve(context.Background(), history()); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := p.ListModelCalls(); got != 0 {
		t.Errorf("ListModels calls = %d, want 0 with seeded state", got)
	}
}
