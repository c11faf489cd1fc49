package otel

import (
	"context"
	"errors"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Environment variables read by Setup.
const (
	EnvEnabled      = "OPSROOM_OTEL_ENABLED"
	EnvEndpoint     = "OPSROOM_OTEL_ENDPOINT"
	EnvLogsEndpoint = "OPSROOM_OTEL_LOGS_ENDPOINT"
)

// Enabled reports whether telemetry export is configured for this process.
func Enabled() bool {
	if strings.EqualFold(os.Getenv(EnvEnabled), "false") {
		return false
	}
	return os.Getenv(EnvEndpoint) != "" || os.Getenv(EnvLogsEndpoint) != ""
}

// Setup initialises OpenTelemetry tracing and log export for the given service.
//
// Export is opt-in: when both OPSROOM_OTEL_ENDPOINT and
// OPSROOM_OTEL_LOGS_ENDPOINT are empty, or OPSROOM_OTEL_ENABLED is "false",
// Setup returns a no-op shutdown function and no global provider is registered.
// Traces go over OTLP/HTTP; logs go over OTLP/gRPC.
//
// The returned shutdown function flushes pending spans and records and should
// be deferred by the caller.
func Setup(ctx context.Context, serviceName string) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }
	if !Enabled() {
		return noop, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return noop, err
	}

	var shutdowns []func(context.Context) error
	if endpoint := os.Getenv(EnvEndpoint); endpoint != "" {
		exporter, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpointURL(endpoint),
		)
		if err != nil {
			return noop, err
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.TraceContext{})
		shutdowns = append(shutdowns, tp.Shutdown)
	}

	if endpoint := os.Getenv(EnvLogsEndpoint); endpoint != "" {
		exporter, err := otlploggrpc.New(ctx,
			otlploggrpc.WithEndpointURL(endpoint),
		)
		if err != nil {
			return joinShutdowns(shutdowns), err
		}
		lp := sdklog.NewLoggerProvider(
			sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
			sdklog.WithResource(res),
		)
		global.SetLoggerProvider(lp)
		shutdowns = append(shutdowns, lp.Shutdown)
	}

	return joinShutdowns(shutdowns), nil
}

func joinShutdowns(shutdowns []func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdowns {
			if err := fn(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
