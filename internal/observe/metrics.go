// Package observe provides application-wide observability primitives for
// personaforge: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
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

// meterName is the instrumentation scope name used for all personaforge metrics.
const meterName = "github.com/MrWong99/personaforge"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// ResolveDuration tracks tag-to-persona resolution latency.
	ResolveDuration metric.Float64Histogram

	// DetectDuration tracks vision tag detection latency. Use with attribute:
	//   attribute.String("detector", ...)
	DetectDuration metric.Float64Histogram

	// --- Counters ---

	// Resolutions counts persona resolutions.
	Resolutions metric.Int64Counter

	// TagsMatched counts input tags that had a rule.
	TagsMatched metric.Int64Counter

	// TagsUnmatched counts input tags without a rule.
	TagsUnmatched metric.Int64Counter

	// Exports counts document exports. Use with attribute:
	//   attribute.String("status", ...)
	Exports metric.Int64Counter

	// BatchSubjects counts batch subjects. Use with attribute:
	//   attribute.String("status", ...)
	BatchSubjects metric.Int64Counter

	// --- Error counters ---

	// DetectorErrors counts failed detections. Use with attribute:
	//   attribute.String("detector", ...)
	DetectorErrors metric.Int64Counter

	// --- Gauges ---

	// RulesLoaded tracks the number of tag rules in the active rule set.
	RulesLoaded metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	rulesMu   sync.Mutex
	rulesLast int64
}

// resolveBuckets covers in-process resolution, which is usually well under
// a millisecond.
var resolveBuckets = []float64{
	0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05, 0.1,
}

// detectBuckets covers remote vision calls.
var detectBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ResolveDuration, err = m.Float64Histogram("personaforge.resolve.duration",
		metric.WithDescription("Latency of tag-to-persona resolution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(resolveBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DetectDuration, err = m.Float64Histogram("personaforge.detect.duration",
		metric.WithDescription("Latency of vision tag detection."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(detectBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Resolutions, err = m.Int64Counter("personaforge.resolve.count",
		metric.WithDescription("Total persona resolutions."),
	); err != nil {
		return nil, err
	}
	if met.TagsMatched, err = m.Int64Counter("personaforge.tags.matched",
		metric.WithDescription("Total input tags with a matching rule."),
	); err != nil {
		return nil, err
	}
	if met.TagsUnmatched, err = m.Int64Counter("personaforge.tags.unmatched",
		metric.WithDescription("Total input tags without a matching rule."),
	); err != nil {
		return nil, err
	}
	if met.Exports, err = m.Int64Counter("personaforge.export.count",
		metric.WithDescription("Total document exports by status."),
	); err != nil {
		return nil, err
	}
	if met.BatchSubjects, err = m.Int64Counter("personaforge.batch.subjects",
		metric.WithDescription("Total batch subjects by status."),
	); err != nil {
		return nil, err
	}

	if met.DetectorErrors, err = m.Int64Counter("personaforge.detector.errors",
		metric.WithDescription("Total failed tag detections by detector."),
	); err != nil {
		return nil, err
	}

	if met.RulesLoaded, err = m.Int64UpDownCounter("personaforge.rules.loaded",
		metric.WithDescription("Number of tag rules in the active rule set."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("personaforge.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// RecordResolution records one resolution with its matched and unmatched
// tag counts.
func (m *Metrics) RecordResolution(ctx context.Context, seconds float64, matched, unmatched int) {
	m.ResolveDuration.Record(ctx, seconds)
	m.Resolutions.Add(ctx, 1)
	if matched > 0 {
		m.TagsMatched.Add(ctx, int64(matched))
	}
	if unmatched > 0 {
		m.TagsUnmatched.Add(ctx, int64(unmatched))
	}
}

// RecordDetection records a detection latency and, when failed, a detector
// error.
func (m *Metrics) RecordDetection(ctx context.Context, detector string, seconds float64, failed bool) {
	attrs := metric.WithAttributes(attribute.String("detector", detector))
	m.DetectDuration.Record(ctx, seconds, attrs)
	if failed {
		m.DetectorErrors.Add(ctx, 1, attrs)
	}
}

// RecordExport records a document export with status "ok" or "error".
func (m *Metrics) RecordExport(ctx context.Context, status string) {
	m.Exports.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordBatchSubject records one batch subject with status "ok" or "failed".
func (m *Metrics) RecordBatchSubject(ctx context.Context, status string) {
	m.BatchSubjects.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// SetRulesLoaded moves the rules gauge to n.
func (m *Metrics) SetRulesLoaded(ctx context.Context, n int) {
	m.rulesMu.Lock()
	delta := int64(n) - m.rulesLast
	m.rulesLast = int64(n)
	m.rulesMu.Unlock()
	if delta != 0 {
		m.RulesLoaded.Add(ctx, delta)
	}
}
