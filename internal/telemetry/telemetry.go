// Package telemetry provides OpenTelemetry metrics for the service.
//
// Telemetry is disabled by default (zero runtime overhead when off).
//
// # Configuration
//
//	MEMGRAPH_OTEL_ENABLED=true   enable metrics (default: off)
//	MEMGRAPH_OTEL_STDOUT=true    write metrics to stderr (dev mode)
package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const instrumentationScope = "github.com/zabob/memgraph"

var (
	shutdownFns   []func(context.Context) error
	toolCalls     metric.Int64Counter
	toolErrors    metric.Int64Counter
	toolDurations metric.Float64Histogram
)

// Enabled reports whether telemetry is active.
func Enabled() bool {
	return os.Getenv("MEMGRAPH_OTEL_ENABLED") == "true"
}

// Init configures the meter provider. When MEMGRAPH_OTEL_ENABLED is not
// "true" this installs a no-op provider and returns immediately.
func Init(ctx context.Context, serviceName, version string) error {
	if !Enabled() {
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return initInstruments()
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
		resource.WithProcess(),
	)
	if err != nil {
		return fmt.Errorf("telemetry: resource: %w", err)
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if os.Getenv("MEMGRAPH_OTEL_STDOUT") == "true" {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
		if err != nil {
			return fmt.Errorf("telemetry: stdout exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(30*time.Second))))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)
	shutdownFns = append(shutdownFns, mp.Shutdown)
	return initInstruments()
}

func initInstruments() error {
	meter := otel.Meter(instrumentationScope)
	var err error
	if toolCalls, err = meter.Int64Counter("memgraph.tool.calls",
		metric.WithDescription("Tool invocations by name")); err != nil {
		return err
	}
	if toolErrors, err = meter.Int64Counter("memgraph.tool.errors",
		metric.WithDescription("Tool failures by name and error kind")); err != nil {
		return err
	}
	if toolDurations, err = meter.Float64Histogram("memgraph.tool.duration",
		metric.WithDescription("Tool call duration"), metric.WithUnit("s")); err != nil {
		return err
	}
	return nil
}

// RecordToolCall records one tool invocation.
func RecordToolCall(ctx context.Context, tool string, duration time.Duration, errKind string) {
	if toolCalls == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("tool", tool))
	toolCalls.Add(ctx, 1, attrs)
	toolDurations.Record(ctx, duration.Seconds(), attrs)
	if errKind != "" {
		toolErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("kind", errKind),
		))
	}
}

// Shutdown flushes and stops the providers.
func Shutdown(ctx context.Context) error {
	var firstErr error
	for _, fn := range shutdownFns {
		if err := fn(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	shutdownFns = nil
	return firstErr
}
