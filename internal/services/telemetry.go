package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/hanko-field/commerce/internal/services"

var tracer = otel.Tracer(instrumentationName)

// serviceMetrics holds the domain counters recorded by services. Instruments
// that fail to register fall back to no-ops.
type serviceMetrics struct {
	ordersPlaced       metric.Int64Counter
	orderFailures      metric.Int64Counter
	reservationsDenied metric.Int64Counter
	transitions        metric.Int64Counter
}

func newServiceMetrics(meter metric.Meter) *serviceMetrics {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	fallback := noop.NewMeterProvider().Meter(instrumentationName)
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			c, _ = fallback.Int64Counter(name)
		}
		return c
	}
	return &serviceMetrics{
		ordersPlaced:       counter("orders.placed", "Orders committed by order assembly"),
		orderFailures:      counter("orders.placement_failures", "Order placements that rolled back"),
		reservationsDenied: counter("inventory.reservations_rejected", "Reservations rejected by the stock guard"),
		transitions:        counter("orders.status_transitions", "Recorded order status changes"),
	}
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err on span and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
