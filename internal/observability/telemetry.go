package observability

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	serviceNamespace   = "mnemo"
	defaultServiceName = "mnemo"
	defaultEnvironment = "development"
)

// Tracing describes the span exporter for one mnemo process.
// The zero value exports nothing.
type Tracing struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	Version     string
	Commit      string
	Environment string
}

// TracingFromEnv reads OTEL_ENABLED, OTEL_SERVICE_NAME and OTEL_ENVIRONMENT.
// The exporter endpoint is left to the otlptracehttp environment variables.
func TracingFromEnv(version, commit string) Tracing {
	enabled := strings.ToLower(strings.TrimSpace(os.Getenv("OTEL_ENABLED")))

	return Tracing{
		Enabled:     enabled == "1" || enabled == "true" || enabled == "yes",
		ServiceName: os.Getenv("OTEL_SERVICE_NAME"),
		Version:     version,
		Commit:      commit,
		Environment: os.Getenv("OTEL_ENVIRONMENT"),
	}
}

// StopTracing flushes pending spans and puts the otel globals back.
type StopTracing func(ctx context.Context) error

// StartTracing installs a batching OTLP/HTTP tracer provider as the otel
// global. Disabled tracing leaves the globals alone.
func StartTracing(ctx context.Context, cfg Tracing) (StopTracing, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(cfg.attributes()...))
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithCompression(otlptracehttp.GzipCompression)}
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create span exporter: %w", err)
	}

	saved := snapshotGlobals()
	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter), sdktrace.WithResource(res))

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	// Export failures stay off the terminal.
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(error) {}))

	return func(stopCtx context.Context) error {
		defer saved.restore()

		if err := provider.Shutdown(stopCtx); err != nil {
			return fmt.Errorf("flush spans: %w", err)
		}

		return nil
	}, nil
}

func (cfg Tracing) attributes() []attribute.KeyValue {
	name := cfg.ServiceName
	if name == "" {
		name = defaultServiceName
	}

	env := cfg.Environment
	if env == "" {
		env = defaultEnvironment
	}

	attrs := []attribute.KeyValue{
		attribute.String("service.name", name),
		attribute.String("service.namespace", serviceNamespace),
		attribute.String("service.version", cfg.Version),
		attribute.String("deployment.environment", env),
	}
	if cfg.Commit != "" {
		attrs = append(attrs, attribute.String("service.commit", cfg.Commit))
	}

	return attrs
}

type otelGlobals struct {
	provider   trace.TracerProvider
	propagator propagation.TextMapPropagator
	handler    otel.ErrorHandler
}

func snapshotGlobals() otelGlobals {
	return otelGlobals{
		provider:   otel.GetTracerProvider(),
		propagator: otel.GetTextMapPropagator(),
		handler:    otel.GetErrorHandler(),
	}
}

func (g otelGlobals) restore() {
	otel.SetTracerProvider(g.provider)
	otel.SetTextMapPropagator(g.propagator)
	otel.SetErrorHandler(g.handler)
}

// Tracer returns a named tracer from the current global provider.
func Tracer(name string) trace.Tracer {
	return otel.GetTracerProvider().Tracer(name)
}
