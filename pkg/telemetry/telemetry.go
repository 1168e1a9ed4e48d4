// Package telemetry wires OpenTelemetry tracing for dexcount runs.
//
// Settings come from the standard OTEL_* environment variables, overlaid by
// the telemetry section of the dexcount config. When tracing is disabled the
// global no-op provider stays in place and spans cost nothing.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/dexcount"

var (
	mu           sync.RWMutex
	activeConfig *Config
)

// ShutdownFunc flushes and stops the TracerProvider.
type ShutdownFunc func(ctx context.Context) error

func noopShutdown(_ context.Context) error {
	return nil
}

// Init installs a global TracerProvider for cfg. A nil cfg is read from the
// environment. With tracing disabled it returns a no-op shutdown.
func Init(ctx context.Context, cfg *Config) (ShutdownFunc, error) {
	if cfg == nil {
		cfg = LoadFromEnv()
	}
	setConfig(cfg)

	if !cfg.Enabled {
		return noopShutdown, nil
	}

	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return noopShutdown, err
	}

	tp := trace.NewTracerProvider(
		trace.WithResource(buildResource(cfg)),
		trace.WithBatcher(exporter),
		trace.WithSampler(createSampler(cfg)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

// Enabled reports whether the last Init turned tracing on.
func Enabled() bool {
	return GetConfig().Enabled
}

// GetConfig returns the configuration passed to Init, or the environment
// configuration if Init has not run.
func GetConfig() *Config {
	mu.RLock()
	cfg := activeConfig
	mu.RUnlock()
	if cfg != nil {
		return cfg
	}
	return LoadFromEnv()
}

func setConfig(cfg *Config) {
	mu.Lock()
	activeConfig = cfg
	mu.Unlock()
}

// StartSpan starts a span on the dexcount tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, oteltrace.WithAttributes(attrs...))
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span oteltrace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
