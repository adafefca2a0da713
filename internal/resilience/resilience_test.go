package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/daisyvoice/daisy/pkg/provider/stt"
	sttmock "github.com/daisyvoice/daisy/pkg/provider/stt/mock"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 3, RetryAfter: time.Hour})
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		if err := b.Do(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("call %d: err = %v, want %v", i, err, boom)
		}
	}
	if !b.Open() {
		t.Error("breaker should be open after 3 consecutive failures")
	}
	err := b.Do(func() error {
		t.Error("fn should not run while breaker is open")
		return nil
	})
	if !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("err = %v, want ErrBreakerOpen", err)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 2, RetryAfter: time.Hour})
	boom := errors.New("boom")

	b.Do(func() error { return boom })
	b.Do(func() error { return nil })
	b.Do(func() error { return boom })

	if b.Open() {
		t.Error("breaker opened even though failures were not consecutive")
	}
}

func TestBreakerProbeClosesAfterRetryWindow(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 1, RetryAfter: 10 * time.Millisecond})
	b.Do(func() error { return errors.New("boom") })
	if !b.Open() {
		t.Fatal("breaker should be open")
	}

	time.Sleep(20 * time.Millisecond)

	ran := false
	if err := b.Do(func() error { ran = true; return nil }); err != nil {
		t.Fatalf("probe call failed: %v", err)
	}
	if !ran {
		t.Error("probe call was not admitted after retry window")
	}
	if b.Open() {
		t.Error("breaker should close after a successful probe")
	}
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 1, RetryAfter: 10 * time.Millisecond})
	b.Do(func() error { return errors.New("boom") })
	time.Sleep(20 * time.Millisecond)

	b.Do(func() error { return errors.New("still down") })
	if !b.Open() {
		t.Error("breaker should re-open after a failed probe")
	}
}

func TestChainFallsThroughToHealthyBackend(t *testing.T) {
	calls := []string{}
	c := NewChain("a", "a", ChainConfig{})
	c.Add("b", "b")

	got, err := Run(context.Background(), c, func(name string) (string, error) {
		calls = append(calls, name)
		if name == "a" {
			return "", errors.New("a is down")
		}
		return "from " + name, nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != "from b" {
		t.Errorf("got %q, want %q", got, "from b")
	}
	if len(calls) != 2 || calls[0] != "a" || calls[1] != "b" {
		t.Errorf("calls = %v, want [a b]", calls)
	}
}

func TestChainExhaustedWrapsLastError(t *testing.T) {
	c := NewChain("a", "a", ChainConfig{})
	c.Add("b", "b")

	_, err := Run(context.Background(), c, func(name string) (string, error) {
		return "", errors.New(name + " failed")
	})
	if !errors.Is(err, ErrChainExhausted) {
		t.Fatalf("err = %v, want ErrChainExhausted", err)
	}
}

func TestChainSkipsOpenBreaker(t *testing.T) {
	c := NewChain("a", "a", ChainConfig{
		Breaker: BreakerConfig{MaxFailures: 1, RetryAfter: time.Hour},
	})
	c.Add("b", "b")

	fail := func(name string) (string, error) {
		if name == "a" {
			return "", errors.New("a is down")
		}
		return "ok", nil
	}
	// First run trips a's breaker.
	Run(context.Background(), c, fail)

	aCalled := false
	got, err := Run(context.Background(), c, func(name string) (string, error) {
		if name == "a" {
			aCalled = true
		}
		return fail(name)
	})
	if err != nil || got != "ok" {
		t.Fatalf("Run = %q, %v", got, err)
	}
	if aCalled {
		t.Error("backend a was called despite an open breaker")
	}
}

func TestSTTChainStopsOnSilence(t *testing.T) {
	primary := &sttmock.Provider{ProviderName: "primary"}
	primary.TranscribeFunc = func(ctx context.Context, clip stt.Clip) (string, error) {
		return "", stt.ErrNoSpeech
	}
	secondary := &sttmock.Provider{ProviderName: "secondary"}
	secondary.TranscribeFunc = func(ctx context.Context, clip stt.Clip) (string, error) {
		t.Error("silence must not fail over to the secondary backend")
		return "ghost", nil
	}

	chain := NewSTTChain(primary, ChainConfig{})
	chain.Add(secondary)

	_, err := chain.Transcribe(context.Background(), stt.Clip{SampleRate: 16000})
	if !errors.Is(err, stt.ErrNoSpeech) {
		t.Errorf("err = %v, want ErrNoSpeech", err)
	}
}

func TestSTTChainFailsOverOnBackendError(t *testing.T) {
	primary := &sttmock.Provider{ProviderName: "primary"}
	primary.TranscribeFunc = func(ctx context.Context, clip stt.Clip) (string, error) {
		return "", errors.New("http 500")
	}
	secondary := &sttmock.Provider{ProviderName: "secondary"}
	secondary.TranscribeFunc = func(ctx context.Context, clip stt.Clip) (string, error) {
		return "hello there", nil
	}

	chain := NewSTTChain(primary, ChainConfig{})
	chain.Add(secondary)

	got, err := chain.Transcribe(context.Background(), stt.Clip{SampleRate: 16000})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "hello there" {
		t.Errorf("transcript = %q, want %q", got, "hello there")
	}
}
