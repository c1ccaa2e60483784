package telemetry

import (
	"context"

	"tenant-service/pkg/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

// Setup installs an OTLP trace provider when an endpoint is configured and
// returns its shutdown func. Without an endpoint it is a no-op.
func Setup(ctx context.Context, serviceName string, cfg config.TelemetryConfig, log *zap.Logger) func(context.Context) error {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		log.Warn("OTLP exporter unavailable, tracing disabled", zap.Error(err))
		return func(context.Context) error { return nil }
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		log.Warn("Failed to build telemetry resource", zap.Error(err))
	}

	provider := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	log.Info("Tracing enabled", zap.String("endpoint", cfg.Endpoint))

	return provider.Shutdown
}
