package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// recorded creates a Metrics on a manual reader, runs record against it and
// returns everything collected afterwards.
func recorded(t *testing.T, record func(context.Context, *Metrics)) metricdata.ResourceMetrics {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	record(context.Background(), m)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func lookup(rm metricdata.ResourceMetrics, name string) (metricdata.Aggregation, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m.Data, true
			}
		}
	}
	return nil, false
}

func hasAttr(set attribute.Set, key, value string) bool {
	v, ok := set.Value(attribute.Key(key))
	return ok && v.AsString() == value
}

// sumWhere adds up the int64 data points of name whose attribute key equals
// value. An empty key matches every point.
func sumWhere(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	data, ok := lookup(rm, name)
	if !ok {
		t.Fatalf("metric %q not recorded", name)
	}
	sum, ok := data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is %T, want Sum[int64]", name, data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		if key == "" || hasAttr(dp.Attributes, key, value) {
			total += dp.Value
		}
	}
	return total
}

func TestCounters(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		record func(context.Context, *Metrics)
		metric string
		key    string
		value  string
		want   int64
	}{
		{
			name: "provider requests by status",
			record: func(ctx context.Context, m *Metrics) {
				m.RecordProviderRequest(ctx, "groq", "llm", "ok")
				m.RecordProviderRequest(ctx, "groq", "llm", "ok")
				m.RecordProviderRequest(ctx, "groq", "llm", "error")
			},
			metric: "edusync.provider.requests", key: "status", value: "ok", want: 2,
		},
		{
			name: "provider errors by kind",
			record: func(ctx context.Context, m *Metrics) {
				m.RecordProviderError(ctx, "elevenlabs", "tts")
				m.RecordProviderError(ctx, "deepgram", "stt")
			},
			metric: "edusync.provider.errors", key: "kind", value: "tts", want: 1,
		},
		{
			name: "turns by role",
			record: func(ctx context.Context, m *Metrics) {
				m.RecordTurn(ctx, "user")
				m.RecordTurn(ctx, "assistant")
				m.RecordTurn(ctx, "user")
			},
			metric: "edusync.turns", key: "role", value: "user", want: 2,
		},
		{
			name: "reports across statuses",
			record: func(ctx context.Context, m *Metrics) {
				m.RecordReport(ctx, "ok")
				m.RecordReport(ctx, "empty_analysis")
			},
			metric: "edusync.reports", want: 2,
		},
		{
			name: "active sessions go down as well as up",
			record: func(ctx context.Context, m *Metrics) {
				for range 3 {
					m.ActiveSessions.Add(ctx, 1)
				}
				m.ActiveSessions.Add(ctx, -1)
			},
			metric: "edusync.active_sessions", want: 2,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rm := recorded(t, tc.record)
			if got := sumWhere(t, rm, tc.metric, tc.key, tc.value); got != tc.want {
				t.Errorf("%s = %d, want %d", tc.metric, got, tc.want)
			}
		})
	}
}

func TestHistograms(t *testing.T) {
	t.Parallel()
	rm := recorded(t, func(ctx context.Context, m *Metrics) {
		m.STTDuration.Record(ctx, 0.2)
		m.LLMDuration.Record(ctx, 0.4)
		m.LLMDuration.Record(ctx, 0.9)
		m.TTSDuration.Record(ctx, 0.1)
		m.ReportDuration.Record(ctx, 3.5)
		m.HTTPRequestDuration.Record(ctx, 0.05)
	})

	want := map[string]uint64{
		"edusync.stt.duration":          1,
		"edusync.llm.duration":          2,
		"edusync.tts.duration":          1,
		"edusync.report.duration":       1,
		"edusync.http.request.duration": 1,
	}
	for name, count := range want {
		data, ok := lookup(rm, name)
		if !ok {
			t.Errorf("histogram %q not recorded", name)
			continue
		}
		hist, ok := data.(metricdata.Histogram[float64])
		if !ok || len(hist.DataPoints) != 1 {
			t.Errorf("histogram %q: unexpected data %T", name, data)
			continue
		}
		if got := hist.DataPoints[0].Count; got != count {
			t.Errorf("%s count = %d, want %d", name, got, count)
		}
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics should return one shared instance")
	}
}
