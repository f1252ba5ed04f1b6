package telemetry

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const (
	otlpInterval   = 30 * time.Second
	stderrInterval = 15 * time.Second
)

// newMeterProvider pushes to the OTLP endpoint when one is set and prints
// to the diagnostics writer otherwise. Runs are short, so most readings
// leave through Shutdown rather than the periodic reader.
func newMeterProvider(ctx context.Context, s Settings, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	var (
		exp      sdkmetric.Exporter
		interval = stderrInterval
		err      error
	)
	if s.MetricsEndpoint != "" {
		exp, err = otlpExporter(ctx, s.MetricsEndpoint)
		interval = otlpInterval
	} else {
		exp, err = stdoutmetric.New(stdoutmetric.WithWriter(s.Diagnostics))
	}
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))),
	), nil
}

// otlpExporter takes a full URL, or host:port for a plaintext collector.
func otlpExporter(ctx context.Context, endpoint string) (sdkmetric.Exporter, error) {
	if strings.Contains(endpoint, "://") {
		return otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(endpoint))
	}
	return otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(endpoint), otlpmetrichttp.WithInsecure())
}
