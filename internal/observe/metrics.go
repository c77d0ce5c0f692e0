// Package observe provides application-wide observability primitives for
// Voicebridge: OpenTelemetry metrics, distributed tracing, structured
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
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Voicebridge metrics.
const meterName = "github.com/linguaflow/voicebridge"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// SetupDuration tracks the time from upstream dial to the model's
	// setup-acknowledged signal.
	SetupDuration metric.Float64Histogram

	// MediaForwarded counts client media messages forwarded upstream. Use
	// with [WithKind]: "audio" or "text".
	MediaForwarded metric.Int64Counter

	// PreSetupDropped counts client messages dropped because the upstream
	// setup handshake had not completed. Use with [WithKind].
	PreSetupDropped metric.Int64Counter

	// UpstreamErrors counts upstream dial failures, send failures, and
	// session errors.
	UpstreamErrors metric.Int64Counter

	// MalformedMessages counts discarded unparseable client frames.
	MalformedMessages metric.Int64Counter

	// ActiveSessions tracks the number of live relay sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for interactive voice latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SetupDuration, err = m.Float64Histogram("voicebridge.upstream.setup.duration",
		metric.WithDescription("Time from upstream dial to setup acknowledgement."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.MediaForwarded, err = m.Int64Counter("voicebridge.relay.media.forwarded",
		metric.WithDescription("Client media messages forwarded upstream by kind."),
	); err != nil {
		return nil, err
	}
	if met.PreSetupDropped, err = m.Int64Counter("voicebridge.relay.presetup.dropped",
		metric.WithDescription("Client messages dropped before setup completion by kind."),
	); err != nil {
		return nil, err
	}
	if met.UpstreamErrors, err = m.Int64Counter("voicebridge.upstream.errors",
		metric.WithDescription("Upstream dial, send, and session errors."),
	); err != nil {
		return nil, err
	}
	if met.MalformedMessages, err = m.Int64Counter("voicebridge.relay.malformed_messages",
		metric.WithDescription("Discarded unparseable client frames."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("voicebridge.active_sessions",
		metric.WithDescription("Number of live relay sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("voicebridge.http.request.duration",
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

// WithKind tags a measurement with the standard "kind" attribute.
func WithKind(kind string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("kind", kind))
}
