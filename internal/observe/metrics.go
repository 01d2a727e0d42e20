// Package observe provides application-wide observability primitives for the
// gesture server: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all gesture metrics.
const meterName = "github.com/harya06/iqro-gesture"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// InferenceDuration tracks gesture classification latency.
	InferenceDuration metric.Float64Histogram

	// TTSDuration tracks pronunciation audio synthesis latency.
	TTSDuration metric.Float64Histogram

	// MessageDuration tracks end-to-end handling time of one landmark
	// message, from decode to queued response.
	MessageDuration metric.Float64Histogram

	// --- Counters ---

	// Predictions counts classifier results by outcome. Use with attributes:
	//   attribute.String("label", ...), attribute.String("outcome", ...)
	// where outcome is "accepted" or "low_confidence".
	Predictions metric.Int64Counter

	// AudioCacheLookups counts pronunciation cache lookups. Use with attribute:
	//   attribute.String("result", ...) — "hit", "miss", or "error"
	AudioCacheLookups metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts classifier and synthesis provider errors. Use
	// with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// MalformedMessages counts inbound websocket messages that failed to
	// decode or validate. Use with attribute:
	//   attribute.String("reason", ...)
	MalformedMessages metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live websocket sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for per-message pipeline latencies.
var latencyBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.InferenceDuration, err = m.Float64Histogram("iqro.inference.duration",
		metric.WithDescription("Latency of gesture classification."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("iqro.tts.duration",
		metric.WithDescription("Latency of pronunciation audio synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.MessageDuration, err = m.Float64Histogram("iqro.message.duration",
		metric.WithDescription("End-to-end handling time of one landmark message."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Predictions, err = m.Int64Counter("iqro.predictions",
		metric.WithDescription("Total classifier results by label and outcome."),
	); err != nil {
		return nil, err
	}
	if met.AudioCacheLookups, err = m.Int64Counter("iqro.audio_cache.lookups",
		metric.WithDescription("Total pronunciation cache lookups by result."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("iqro.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.MalformedMessages, err = m.Int64Counter("iqro.malformed_messages",
		metric.WithDescription("Total inbound messages rejected by decode or validation."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("iqro.active_sessions",
		metric.WithDescription("Number of live websocket sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("iqro.http.request.duration",
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

// RecordPrediction is a convenience method that records a classifier result
// counter increment with the standard attribute set. outcome is "accepted" or
// "low_confidence".
func (m *Metrics) RecordPrediction(ctx context.Context, label, outcome string) {
	m.Predictions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("label", label),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordAudioCacheLookup is a convenience method that records a pronunciation
// cache lookup counter increment. result is "hit", "miss", or "error".
func (m *Metrics) RecordAudioCacheLookup(ctx context.Context, result string) {
	m.AudioCacheLookups.Add(ctx, 1,
		metric.WithAttributes(attribute.String("result", result)),
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

// RecordMalformedMessage is a convenience method that records a rejected
// inbound message counter increment.
func (m *Metrics) RecordMalformedMessage(ctx context.Context, reason string) {
	m.MalformedMessages.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}
