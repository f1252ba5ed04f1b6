package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instruments are the counters recorded by the runner. They are created
// lazily from the current global meter provider.
type Instruments struct {
	Actions          metric.Int64Counter
	EventsDispatched metric.Int64Counter
	DeliveryFailures metric.Int64Counter
	DeliveryDuration metric.Float64Histogram
}

var (
	instOnce sync.Once
	inst     *Instruments
)

// Metrics returns the shared instruments.
func Metrics() *Instruments {
	instOnce.Do(func() {
		m := Meter(instrumentationScope)
		actions, _ := m.Int64Counter("arka.actions",
			metric.WithDescription("Actions executed, by action key and status"),
		)
		events, _ := m.Int64Counter("arka.events.dispatched",
			metric.WithDescription("Events written to the event stream"),
		)
		failures, _ := m.Int64Counter("arka.deliveries.failed",
			metric.WithDescription("Subscriber deliveries that timed out or failed"),
		)
		dur, _ := m.Float64Histogram("arka.delivery.duration",
			metric.WithDescription("Subscriber delivery duration in milliseconds"),
			metric.WithUnit("ms"),
		)
		inst = &Instruments{Actions: actions, EventsDispatched: events, DeliveryFailures: failures, DeliveryDuration: dur}
	})
	return inst
}

// RecordAction counts one finished action.
func RecordAction(ctx context.Context, actionKey, status string) {
	if c := Metrics().Actions; c != nil {
		c.Add(ctx, 1, metric.WithAttributes(
			attribute.String("arka.action_key", actionKey),
			attribute.String("arka.status", status),
		))
	}
}

// RecordEvent counts one dispatched event.
func RecordEvent(ctx context.Context, topic string) {
	if c := Metrics().EventsDispatched; c != nil {
		c.Add(ctx, 1, metric.WithAttributes(attribute.String("arka.event", topic)))
	}
}

// RecordDelivery records the outcome of one subscriber delivery.
func RecordDelivery(ctx context.Context, topic, using, status string, ms float64) {
	attrs := metric.WithAttributes(
		attribute.String("arka.event", topic),
		attribute.String("arka.using", using),
		attribute.String("arka.status", status),
	)
	m := Metrics()
	if m.DeliveryDuration != nil {
		m.DeliveryDuration.Record(ctx, ms, attrs)
	}
	if status != "success" && status != "skipped" && m.DeliveryFailures != nil {
		m.DeliveryFailures.Add(ctx, 1, attrs)
	}
}
