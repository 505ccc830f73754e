// Package observe carries the observability plumbing of the learning
// assistant: OpenTelemetry metric instruments, tracing helpers that tag spans
// and log lines with the session they belong to, and the HTTP middleware
// that ties both to incoming requests.
//
// Instruments are created through the OTel Metrics API and scraped from the
// registry that [Setup] bridges them into. [DefaultMetrics] uses the global
// meter provider; tests should call [NewMetrics] with their own provider.
package observe

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of every instrument.
const meterName = "github.com/MrWong99/edusync"

// Metrics holds the application's instruments. Safe for concurrent use.
type Metrics struct {
	// Stage latencies in seconds.
	STTDuration metric.Float64Histogram
	LLMDuration metric.Float64Histogram // request until the last streamed chunk
	TTSDuration metric.Float64Histogram
	// ReportDuration covers PDF compilation only; the analysis request is
	// part of LLMDuration.
	ReportDuration metric.Float64Histogram

	ProviderRequests metric.Int64Counter // provider, kind, status
	ProviderErrors   metric.Int64Counter // provider, kind
	Turns            metric.Int64Counter // role
	Reports          metric.Int64Counter // status

	ActiveSessions metric.Int64UpDownCounter

	HTTPRequestDuration metric.Float64Histogram // method, path, status
}

// latencyBuckets reach into tens of seconds because completion streams and
// report generation are slow compared to plain HTTP handling.
var latencyBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	met := &Metrics{}
	var errs []error

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.STTDuration, "edusync.stt.duration", "Latency of speech recognition."},
		{&met.LLMDuration, "edusync.llm.duration", "Time from completion request to the last streamed chunk."},
		{&met.TTSDuration, "edusync.tts.duration", "Latency of speech synthesis."},
		{&met.ReportDuration, "edusync.report.duration", "Latency of report PDF compilation."},
		{&met.HTTPRequestDuration, "edusync.http.request.duration", "HTTP request latency by method and route."},
	}
	for _, h := range histograms {
		var err error
		*h.dst, err = meter.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
		errs = append(errs, err)
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.ProviderRequests, "edusync.provider.requests", "Provider API calls by provider, kind and status."},
		{&met.ProviderErrors, "edusync.provider.errors", "Failed provider API calls by provider and kind."},
		{&met.Turns, "edusync.turns", "Conversation turns appended, by role."},
		{&met.Reports, "edusync.reports", "Report generation attempts, by status."},
	}
	for _, c := range counters {
		var err error
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		errs = append(errs, err)
	}

	var err error
	met.ActiveSessions, err = meter.Int64UpDownCounter("edusync.active_sessions",
		metric.WithDescription("Chat sessions currently held in memory."))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a shared [Metrics] built on [otel.GetMeterProvider].
// It panics if the instruments cannot be created.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue { return attribute.String(key, value) }

// RecordProviderRequest counts one provider call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider), Attr("kind", kind), Attr("status", status)))
}

// RecordProviderError counts one failed provider call.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(Attr("provider", provider), Attr("kind", kind)))
}

// RecordTurn counts one appended conversation turn.
func (m *Metrics) RecordTurn(ctx context.Context, role string) {
	m.Turns.Add(ctx, 1, metric.WithAttributes(Attr("role", role)))
}

// RecordReport counts one report generation attempt.
func (m *Metrics) RecordReport(ctx context.Context, status string) {
	m.Reports.Add(ctx, 1, metric.WithAttributes(Attr("status", status)))
}
