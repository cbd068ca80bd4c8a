// Package telemetry initialises optional OpenTelemetry trace, metric, and log
// providers backed by an OTLP gRPC collector. All three providers share a
// single gRPC connection.
//
// Call [Setup] once during startup. The returned [ShutdownFunc] must be called
// before the process exits to flush pending telemetry. [NewSlogHandler] copies
// slog records to the global OTel log provider.
//
// If telemetry is not configured, the global providers remain no-ops.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/njoerd114/countrysync/internal/config"
)

// DefaultServiceName is the service.name used when none is configured.
const DefaultServiceName = "countrysync"

// Config groups all telemetry settings.
type Config struct {
	// OTLPEndpoint is the gRPC host:port of the OTLP collector.
	OTLPEndpoint string

	// Insecure disables TLS for the collector connection.
	Insecure bool

	// ServiceName overrides the service.name resource attribute.
	ServiceName string

	// ServiceVersion is reported as service.version when non-empty.
	ServiceVersion string

	// Headers is sent as gRPC metadata on every OTLP request.
	Headers map[string]string
}

// FromConfig converts the YAML telemetry block. It returns false when the
// block is absent, meaning telemetry stays disabled.
func FromConfig(tc *config.TelemetryConfig, version string) (Config, bool) {
	if tc == nil || tc.OTLPEndpoint == "" {
		return Config{}, false
	}
	return Config{
		OTLPEndpoint:   tc.OTLPEndpoint,
		Insecure:       tc.Insecure,
		ServiceName:    tc.ServiceName,
		ServiceVersion: version,
		Headers:        tc.Headers,
	}, true
}

// ShutdownFunc flushes and closes all OTel providers.
// It must be called with a fresh context (the main context may already be
// cancelled by the time shutdown runs).
type ShutdownFunc func(context.Context) error

// Setup initialises the global OpenTelemetry trace, metric, and log providers.
//
// The returned [ShutdownFunc] is never nil. On error it is a no-op so callers
// can defer it unconditionally.
func Setup(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	res, err := newResource(cfg)
	if err != nil {
		return noopShutdown, err
	}

	conn, err := dial(cfg)
	if err != nil {
		return noopShutdown, err
	}

	// shutdowns run in reverse order of creation; conn.Close comes last.
	shutdowns := []func(context.Context) error{
		wrapShutdown("OTLP gRPC connection", func(context.Context) error { return conn.Close() }),
	}
	cleanup := func() { _ = runShutdowns(ctx, shutdowns) }

	traceExp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithGRPCConn(conn),
		otlptracegrpc.WithHeaders(cfg.Headers),
	)
	if err != nil {
		cleanup()
		return noopShutdown, fmt.Errorf("creating OTLP trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	shutdowns = append(shutdowns, wrapShutdown("trace provider", tp.Shutdown))

	metricExp, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithGRPCConn(conn),
		otlpmetricgrpc.WithHeaders(cfg.Headers),
	)
	if err != nil {
		cleanup()
		return noopShutdown, fmt.Errorf("creating OTLP metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	shutdowns = append(shutdowns, wrapShutdown("metric provider", mp.Shutdown))

	logExp, err := otlploggrpc.New(ctx,
		otlploggrpc.WithGRPCConn(conn),
		otlploggrpc.WithHeaders(cfg.Headers),
	)
	if err != nil {
		cleanup()
		return noopShutdown, fmt.Errorf("creating OTLP log exporter: %w", err)
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	shutdowns = append(shutdowns, wrapShutdown("log provider", lp.Shutdown))

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	global.SetLoggerProvider(lp)

	return func(ctx context.Context) error {
		return runShutdowns(ctx, shutdowns)
	}, nil
}

// newResource describes this service instance. resource.NewSchemaless avoids
// a schema URL conflict between resource.Default and our semconv version.
func newResource(cfg Config) (*resource.Resource, error) {
	name := cfg.ServiceName
	if name == "" {
		name = DefaultServiceName
	}
	attrs := []attribute.KeyValue{semconv.ServiceName(name)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return nil, fmt.Errorf("building OTel resource: %w", err)
	}
	return res, nil
}

// dial opens the gRPC connection shared by all three exporters.
func dial(cfg Config) (*grpc.ClientConn, error) {
	var creds credentials.TransportCredentials
	if cfg.Insecure {
		creds = insecure.NewCredentials()
	} else {
		creds = credentials.NewTLS(nil) // system root CAs
	}
	conn, err := grpc.NewClient(cfg.OTLPEndpoint, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("dialling OTLP collector at %q: %w", cfg.OTLPEndpoint, err)
	}
	return conn, nil
}

func wrapShutdown(name string, fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return fmt.Errorf("%s shutdown: %w", name, err)
		}
		return nil
	}
}

// runShutdowns calls fns last to first and joins their errors.
func runShutdowns(ctx context.Context, fns []func(context.Context) error) error {
	var errs []error
	for i := len(fns) - 1; i >= 0; i-- {
		if err := fns[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// noopShutdown is returned on error so callers can always defer unconditionally.
func noopShutdown(_ context.Context) error { return nil }
