package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDisabledIsNoop(t *testing.T) {
	t.Setenv("ARKA_OTEL_ENABLED", "")
	require.NoError(t, Init(context.Background(), "arka", "test"))
	assert.False(t, Enabled())

	ctx, span := Tracer("").Start(context.Background(), "arka.action")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	// Instruments must be usable with the no-op provider.
	RecordAction(ctx, "TICKET_CREATE", "success")
	RecordEvent(ctx, "TICKET_CREATED")
	RecordDelivery(ctx, "TICKET_CREATED", "local", "error", 1.5)
	assert.NoError(t, Shutdown(ctx))
}

func TestSettingsFromEnv(t *testing.T) {
	t.Setenv("ARKA_OTEL_ENABLED", "true")
	t.Setenv("ARKA_OTEL_TRACES", "off")
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")

	s := SettingsFromEnv()
	assert.True(t, s.Enabled)
	assert.False(t, s.Traces)
	assert.Equal(t, "collector:4318", s.MetricsEndpoint)

	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "http://metrics:4318/v1/metrics")
	assert.Equal(t, "http://metrics:4318/v1/metrics", SettingsFromEnv().MetricsEndpoint)
}

func TestSetupWritesSpansToDiagnostics(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()
	require.NoError(t, Setup(ctx, Settings{Enabled: true, Traces: true, Diagnostics: &buf}, "arka", "test"))
	t.Cleanup(func() { _ = Setup(ctx, Settings{}, "arka", "test") })

	_, span := Tracer("").Start(ctx, "arka.action")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
	RecordAction(ctx, "TICKET_CREATE", "success")

	require.NoError(t, Shutdown(ctx))
	assert.Contains(t, buf.String(), `"Name": "arka.action"`)
}
