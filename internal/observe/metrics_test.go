package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumWhere returns the value of the first Int64 sum data point carrying all
// the given attribute pairs, and whether one was found.
func sumWhere(t *testing.T, rm metricdata.ResourceMetrics, name string, kv ...string) (int64, bool) {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", name)
	}
	for _, dp := range sum.DataPoints {
		matched := true
		for i := 0; i+1 < len(kv); i += 2 {
			v, ok := dp.Attributes.Value(attribute.Key(kv[i]))
			if !ok || v.AsString() != kv[i+1] {
				matched = false
				break
			}
		}
		if matched {
			return dp.Value, true
		}
	}
	return 0, false
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"linguaplay.stt.duration", m.STTDuration},
		{"linguaplay.llm.duration", m.LLMDuration},
		{"linguaplay.word_accuracy", m.WordAccuracy},
		{"linguaplay.character_similarity", m.CharacterSimilarity},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestRecordAttempt(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordAttempt(ctx, "easy", true, 1, 1)
	m.RecordAttempt(ctx, "easy", true, 0.8, 0.9)
	m.RecordAttempt(ctx, "easy", false, 0.2, 0.3)
	m.RecordAttempt(ctx, "hard", false, 0.5, 0.6)

	rm := collect(t, reader)

	tests := []struct {
		tier, verdict string
		want          int64
	}{
		{"easy", VerdictCorrect, 2},
		{"easy", VerdictIncorrect, 1},
		{"hard", VerdictIncorrect, 1},
	}
	for _, tc := range tests {
		got, ok := sumWhere(t, rm, "linguaplay.attempts", "tier", tc.tier, "verdict", tc.verdict)
		if !ok {
			t.Errorf("no data point for tier=%s verdict=%s", tc.tier, tc.verdict)
			continue
		}
		if got != tc.want {
			t.Errorf("attempts{tier=%s,verdict=%s} = %d, want %d", tc.tier, tc.verdict, got, tc.want)
		}
	}
	if _, ok := sumWhere(t, rm, "linguaplay.attempts", "tier", "hard", "verdict", VerdictCorrect); ok {
		t.Error("unexpected data point for tier=hard verdict=correct")
	}

	met := findMetric(rm, "linguaplay.word_accuracy")
	if met == nil {
		t.Fatal("word accuracy metric not found")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	var total uint64
	for _, dp := range hist.DataPoints {
		total += dp.Count
	}
	if total != 4 {
		t.Errorf("word accuracy samples = %d, want 4", total)
	}
}

func TestRecordLevelUp(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordLevelUp(ctx, "fr")
	m.RecordLevelUp(ctx, "fr")
	m.RecordLevelUp(ctx, "de")

	rm := collect(t, reader)
	if got, ok := sumWhere(t, rm, "linguaplay.level_ups", "language", "fr"); !ok || got != 2 {
		t.Errorf("level_ups{language=fr} = %d (found %v), want 2", got, ok)
	}
}

func TestProviderCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "openai", KindLLM, "ok")
	m.RecordProviderRequest(ctx, "openai", KindLLM, "ok")
	m.RecordProviderRequest(ctx, "openai", KindLLM, "error")
	m.RecordProviderError(ctx, "whisper", KindSTT)

	rm := collect(t, reader)
	if got, ok := sumWhere(t, rm, "linguaplay.provider.requests", "status", "ok"); !ok || got != 2 {
		t.Errorf("provider.requests{status=ok} = %d (found %v), want 2", got, ok)
	}
	if got, ok := sumWhere(t, rm, "linguaplay.provider.errors", "provider", "whisper", "kind", KindSTT); !ok || got != 1 {
		t.Errorf("provider.errors{provider=whisper} = %d (found %v), want 1", got, ok)
	}
}

func TestRecordBreakerTransition(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordBreakerTransition(ctx, "openai", "open")
	m.RecordBreakerTransition(ctx, "openai", "half-open")
	m.RecordBreakerTransition(ctx, "openai", "open")

	rm := collect(t, reader)
	if got, ok := sumWhere(t, rm, "linguaplay.provider.breaker_transitions", "provider", "openai", "state", "open"); !ok || got != 2 {
		t.Errorf("breaker_transitions{state=open} = %d (found %v), want 2", got, ok)
	}
}

func TestActiveSessionsGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	// UpDownCounters are additive.
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)

	rm := collect(t, reader)
	if got, ok := sumWhere(t, rm, "linguaplay.active_sessions"); !ok || got != 2 {
		t.Errorf("active_sessions = %d (found %v), want 2", got, ok)
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05,
		metric.WithAttributes(
			attribute.String("method", "GET"),
			attribute.String("path", "/healthz"),
		),
	)

	rm := collect(t, reader)
	met := findMetric(rm, "linguaplay.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := hist.DataPoints[0].Count; got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
