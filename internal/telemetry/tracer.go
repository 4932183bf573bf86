// Package telemetry wires OpenTelemetry tracing for the advisor process.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// InitTracer installs a stdout-exporting trace provider as the global
// provider and returns a shutdown function that flushes buffered spans.
// Spans cover the HTTP surface via otelhttp.
func InitTracer(serviceName string, logger *slog.Logger) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(semconv.ServiceName(serviceName))),
	)
	otel.SetTracerProvider(tp)
	logger.Info("tracing enabled", slog.String("service", serviceName))

	shutdown := func(ctx context.Context) error {
		logger.Info("flushing spans", slog.String("service", serviceName))
		if err := tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown trace provider: %w", err)
		}
		return nil
	}
	return shutdown, nil
}
