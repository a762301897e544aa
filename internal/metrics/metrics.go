package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

const meterName = "guildwarden"

type Config struct {
	Enabled      bool
	OTLPEndpoint string
	Insecure     bool
	Interval     time.Duration
}

// Setup installs an OTLP meter provider as the global provider. When
// disabled the global no-op provider stays in place.
func Setup(ctx context.Context, cfg Config, logger *zap.Logger) (func(context.Context) error, error) {
	if !cfg.Enabled {
		logger.Info("metrics disabled")
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(meterName),
		)),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(provider)
	logger.Info("metrics enabled", zap.String("endpoint", cfg.OTLPEndpoint))
	return provider.Shutdown, nil
}

type Recorder struct {
	spamDetections metric.Int64Counter
	sanctions      metric.Int64Counter
	cases          metric.Int64Counter
	sweeps         metric.Int64Counter
}

// NewRecorder builds counters on the global meter provider.
func NewRecorder() (*Recorder, error) {
	return NewRecorderWithMeter(otel.Meter(meterName))
}

func NewRecorderWithMeter(meter metric.Meter) (*Recorder, error) {
	r := &Recorder{}
	var err error
	if r.spamDetections, err = meter.Int64Counter("guildwarden.spam.detections",
		metric.WithDescription("Messages that pushed a member over the spam threshold"),
		metric.WithUnit("{event}"),
	); err != nil {
		return nil, err
	}
	if r.sanctions, err = meter.Int64Counter("guildwarden.sanctions",
		metric.WithDescription("Sanctions applied on the chat platform"),
		metric.WithUnit("{sanction}"),
	); err != nil {
		return nil, err
	}
	if r.cases, err = meter.Int64Counter("guildwarden.cases",
		metric.WithDescription("Moderation cases written to the ledger"),
		metric.WithUnit("{case}"),
	); err != nil {
		return nil, err
	}
	if r.sweeps, err = meter.Int64Counter("guildwarden.sweep.evictions",
		metric.WithDescription("Entries removed by periodic sweeps"),
		metric.WithUnit("{entry}"),
	); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Recorder) SpamDetected(ctx context.Context) {
	if r == nil {
		return
	}
	r.spamDetections.Add(ctx, 1)
}

func (r *Recorder) Sanction(ctx context.Context, action string, ok bool) {
	if r == nil {
		return
	}
	outcome := "applied"
	if !ok {
		outcome = "failed"
	}
	r.sanctions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	))
}

func (r *Recorder) CaseWritten(ctx context.Context, action string) {
	if r == nil {
		return
	}
	r.cases.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

func (r *Recorder) Swept(ctx context.Context, kind string, count int) {
	if r == nil || count == 0 {
		return
	}
	r.sweeps.Add(ctx, int64(count), metric.WithAttributes(attribute.String("kind", kind)))
}
