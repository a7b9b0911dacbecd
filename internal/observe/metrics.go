// Package observe provides application-wide observability primitives for
// Vaani: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Vaani metrics.
const meterName = "github.com/karunya-health/vaani"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// ClassifyDuration tracks intent classification latency, LLM and
	// rule fallback alike.
	ClassifyDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// TurnDuration tracks end-to-end conversation turn latency, from
	// utterance received to response ready.
	TurnDuration metric.Float64Histogram

	// HISDuration tracks hospital backend request latency.
	HISDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// HISRequests counts hospital backend calls. Use with attributes:
	//   attribute.String("method", ...), attribute.String("endpoint", ...), attribute.String("status", ...)
	HISRequests metric.Int64Counter

	// Intents counts classified intents. Use with attributes:
	//   attribute.String("intent", ...), attribute.String("source", ...)
	Intents metric.Int64Counter

	// SafetyBlocks counts turns stopped by the safety layer. Use with
	// attribute: attribute.String("category", ...)
	SafetyBlocks metric.Int64Counter

	// Escalations counts hand-offs to human agents. Use with attribute:
	//   attribute.String("reason", ...)
	Escalations metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live caller sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("vaani.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ClassifyDuration, err = m.Float64Histogram("vaani.classify.duration",
		metric.WithDescription("Latency of intent classification."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("vaani.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("vaani.turn.duration",
		metric.WithDescription("End-to-end conversation turn latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HISDuration, err = m.Float64Histogram("vaani.his.duration",
		metric.WithDescription("Latency of hospital backend requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("vaani.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.HISRequests, err = m.Int64Counter("vaani.his.requests",
		metric.WithDescription("Total hospital backend calls by method, endpoint, and status."),
	); err != nil {
		return nil, err
	}
	if met.Intents, err = m.Int64Counter("vaani.intents",
		metric.WithDescription("Total classified intents by intent and classifier source."),
	); err != nil {
		return nil, err
	}
	if met.SafetyBlocks, err = m.Int64Counter("vaani.safety.blocks",
		metric.WithDescription("Total turns stopped by the safety layer, by category."),
	); err != nil {
		return nil, err
	}
	if met.Escalations, err = m.Int64Counter("vaani.escalations",
		metric.WithDescription("Total hand-offs to human agents by reason."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("vaani.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("vaani.active_sessions",
		metric.WithDescription("Number of live caller sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("vaani.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordHISRequest is a convenience method that records a hospital backend
// call counter increment with the standard attribute set.
func (m *Metrics) RecordHISRequest(ctx context.Context, method, endpoint, status string) {
	m.HISRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("endpoint", endpoint),
			attribute.String("status", status),
		),
	)
}

// RecordIntent is a convenience method that records one classification
// outcome. source is "llm" or "rules".
func (m *Metrics) RecordIntent(ctx context.Context, intent, source string) {
	m.Intents.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("intent", intent),
			attribute.String("source", source),
		),
	)
}

// RecordSafetyBlock is a convenience method that records a safety stop.
func (m *Metrics) RecordSafetyBlock(ctx context.Context, category string) {
	m.SafetyBlocks.Add(ctx, 1,
		metric.WithAttributes(attribute.String("category", category)),
	)
}

// RecordEscalation is a convenience method that records a human hand-off.
func (m *Metrics) RecordEscalation(ctx context.Context, reason string) {
	m.Escalations.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
