// Package telemetry wires OpenTelemetry spans and metrics around action
// execution and event delivery. It is off unless ARKA_OTEL_ENABLED=true.
//
//	ARKA_OTEL_ENABLED=true                 turn telemetry on
//	ARKA_OTEL_TRACES=off                   keep metrics, drop span output
//	OTEL_EXPORTER_OTLP_METRICS_ENDPOINT    OTLP/HTTP metrics endpoint
//	OTEL_EXPORTER_OTLP_ENDPOINT            used when the above is unset
//
// Without an endpoint, readings go to stderr. Stdout belongs to the event
// stream.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationScope = "github.com/arkaos/arka"

// Settings is what the environment asks of telemetry.
type Settings struct {
	Enabled         bool
	Traces          bool
	MetricsEndpoint string
	Diagnostics     io.Writer
}

// SettingsFromEnv reads the ARKA_OTEL_* and OTEL_EXPORTER_OTLP_* variables.
func SettingsFromEnv() Settings {
	s := Settings{
		Enabled:     os.Getenv("ARKA_OTEL_ENABLED") == "true",
		Traces:      os.Getenv("ARKA_OTEL_TRACES") != "off",
		Diagnostics: os.Stderr,
	}
	for _, k := range []string{"OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"} {
		if v := os.Getenv(k); v != "" {
			s.MetricsEndpoint = v
			break
		}
	}
	return s
}

// Enabled reports whether the environment turns telemetry on.
func Enabled() bool { return SettingsFromEnv().Enabled }

var (
	mu       sync.Mutex
	shutdown []func(context.Context) error
)

// Init installs global providers according to the environment.
func Init(ctx context.Context, service, version string) error {
	return Setup(ctx, SettingsFromEnv(), service, version)
}

// Setup installs global providers for s. Disabled settings install no-op
// providers so instrumented code never checks.
func Setup(ctx context.Context, s Settings, service, version string) error {
	if !s.Enabled {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return nil
	}
	if s.Diagnostics == nil {
		s.Diagnostics = os.Stderr
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(service),
			semconv.ServiceVersionKey.String(version),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return fmt.Errorf("telemetry resource: %w", err)
	}

	var tp trace.TracerProvider = tracenoop.NewTracerProvider()
	if s.Traces {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(s.Diagnostics), stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("telemetry trace exporter: %w", err)
		}
		sdk := sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
			sdktrace.WithBatcher(exp),
		)
		onShutdown(sdk.Shutdown)
		tp = sdk
	}
	otel.SetTracerProvider(tp)

	mp, err := newMeterProvider(ctx, s, res)
	if err != nil {
		return fmt.Errorf("telemetry metrics: %w", err)
	}
	onShutdown(mp.Shutdown)
	otel.SetMeterProvider(mp)
	return nil
}

func onShutdown(fn func(context.Context) error) {
	mu.Lock()
	shutdown = append(shutdown, fn)
	mu.Unlock()
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Tracer(name)
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Meter(name)
}

// Shutdown flushes pending spans and readings.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	fns := shutdown
	shutdown = nil
	mu.Unlock()
	var errs []error
	for _, fn := range fns {
		errs = append(errs, fn(ctx))
	}
	return errors.Join(errs...)
}
