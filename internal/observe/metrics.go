// Package observe provides observability primitives for Daisy: OpenTelemetry
// metrics with a Prometheus exporter bridge so the sidecar HTTP listener can
// serve /metrics.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Daisy metrics.
const meterName = "github.com/daisyvoice/daisy"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms per turn stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// CascadeDuration tracks provider-cascade resolution latency.
	CascadeDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// PlaybackDuration tracks how long responses actually played, including
	// interrupted ones.
	PlaybackDuration metric.Float64Histogram

	// --- Counters ---

	// Turns counts completed turns. Use with attribute:
	//   attribute.String("outcome", "completed"|"interrupted"|"failed")
	Turns metric.Int64Counter

	// Interrupts counts raised cancellations. Use with attribute:
	//   attribute.String("source", "keyboard"|"vad"|"stopword")
	Interrupts metric.Int64Counter

	// DebounceDiscards counts utterances dropped before reaching the
	// cascade. Use with attribute: attribute.String("rule", ...)
	DebounceDiscards metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActivePlayback tracks whether a playback session is live (0 or 1).
	ActivePlayback metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// conversational latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.STTDuration, err = m.Float64Histogram("daisy.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CascadeDuration, err = m.Float64Histogram("daisy.cascade.duration",
		metric.WithDescription("Latency of provider-cascade resolution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("daisy.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlaybackDuration, err = m.Float64Histogram("daisy.playback.duration",
		metric.WithDescription("Wall-clock playback time per response."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Turns, err = m.Int64Counter("daisy.turns",
		metric.WithDescription("Total conversation turns by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Interrupts, err = m.Int64Counter("daisy.interrupts",
		metric.WithDescription("Total cancellations by detector source."),
	); err != nil {
		return nil, err
	}
	if met.DebounceDiscards, err = m.Int64Counter("daisy.debounce.discards",
		metric.WithDescription("Utterances discarded before the cascade, by rule."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("daisy.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("daisy.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.ActivePlayback, err = m.Int64UpDownCounter("daisy.active_playback",
		metric.WithDescription("Whether a playback session is currently live."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordProviderRequest records a provider request with the standard
// attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error with the standard attribute
// set.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordTurn records a completed turn with its outcome.
func (m *Metrics) RecordTurn(ctx context.Context, outcome string) {
	m.Turns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordInterrupt records a cancellation by detector source.
func (m *Metrics) RecordInterrupt(ctx context.Context, source string) {
	m.Interrupts.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordDebounceDiscard records an utterance dropped by the debounce filter.
func (m *Metrics) RecordDebounceDiscard(ctx context.Context, rule string) {
	m.DebounceDiscards.Add(ctx, 1, metric.WithAttributes(attribute.String("rule", rule)))
}
