package metrics

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func TestRecorderCounts(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	recorder, err := NewRecorderWithMeter(provider.Meter("test"))
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}

	ctx := context.Background()
	recorder.SpamDetected(ctx)
	recorder.SpamDetected(ctx)
	recorder.CaseWritten(ctx, "warn")
	recorder.Sanction(ctx, "kick", false)
	recorder.Swept(ctx, "ratewindow", 0)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	totals := make(map[string]int64)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, point := range sum.DataPoints {
				totals[m.Name] += point.Value
			}
		}
	}

	if totals["guildwarden.spam.detections"] != 2 {
		t.Fatalf("expected 2 detections, got %d", totals["guildwarden.spam.detections"])
	}
	if totals["guildwarden.cases"] != 1 || totals["guildwarden.sanctions"] != 1 {
		t.Fatalf("unexpected totals %v", totals)
	}
	if _, ok := totals["guildwarden.sweep.evictions"]; ok {
		t.Fatalf("empty sweep should not be recorded")
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var recorder *Recorder
	recorder.SpamDetected(context.Background())
	recorder.CaseWritten(context.Background(), "warn")
}

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{}, zap.NewNop())
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
