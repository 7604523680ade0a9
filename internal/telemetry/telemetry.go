// Package telemetry configures OpenTelemetry tracing for the tracker.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const ServiceVersion = "0.1.0"

type Options struct {
	ServiceName  string
	CollectorURL string
	// BatchTimeout bounds how long finished spans wait before export.
	BatchTimeout time.Duration
}

// Shutdown flushes pending spans and closes the exporter connection.
type Shutdown func(ctx context.Context) error

func String(key string, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

func Int(key string, value int) attribute.KeyValue {
	return attribute.Int(key, value)
}

// Setup installs a global tracer provider exporting over OTLP/gRPC. With no
// collector URL, tracing stays on the default no-op provider and the
// returned Shutdown does nothing.
func Setup(ctx context.Context, opts Options, logger *zap.Logger) (Shutdown, error) {
	if opts.CollectorURL == "" {
		logger.Info("Trace export disabled")
		return func(context.Context) error { return nil }, nil
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = 5 * time.Second
	}

	conn, err := grpc.DialContext(ctx, opts.CollectorURL, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial collector %s: %w", opts.CollectorURL, err)
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(opts.ServiceName),
			semconv.ServiceVersion(ServiceVersion),
		),
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(opts.BatchTimeout)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	logger.Info("Trace export enabled",
		zap.String("service", opts.ServiceName),
		zap.String("collector", opts.CollectorURL))

	return func(ctx context.Context) error {
		if err := provider.Shutdown(ctx); err != nil {
			_ = conn.Close()
			return fmt.Errorf("shutdown tracer provider: %w", err)
		}
		return conn.Close()
	}, nil
}

// GetTracer returns a tracer from the global provider. Tracers obtained
// before Setup follow the provider installed later.
func GetTracer(name string) trace.Tracer {
	return otel.GetTracerProvider().Tracer(name)
}
