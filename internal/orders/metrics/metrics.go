package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	ordersCreatedTotal     metric.Int64Counter
	orderCreationDuration  metric.Float64Histogram
	confirmationsTotal     metric.Int64Counter
	confirmationDuration   metric.Float64Histogram
	statusTransitionsTotal metric.Int64Counter
	gatewayVerifyDuration  metric.Float64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.ordersCreatedTotal, err = meter.Int64Counter(
		"orders_created_total",
		metric.WithDescription("Total number of orders created"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create orders_created_total counter: %w", err)
	}

	m.orderCreationDuration, err = meter.Float64Histogram(
		"order_creation_duration_seconds",
		metric.WithDescription("Duration of order creation operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create order_creation_duration histogram: %w", err)
	}

	m.confirmationsTotal, err = meter.Int64Counter(
		"payment_confirmations_total",
		metric.WithDescription("Payment confirmation attempts by result"),
		metric.WithUnit("{confirmation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create payment_confirmations_total counter: %w", err)
	}

	m.confirmationDuration, err = meter.Float64Histogram(
		"payment_confirmation_duration_seconds",
		metric.WithDescription("Duration of payment confirmation attempts"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create payment_confirmation_duration histogram: %w", err)
	}

	m.statusTransitionsTotal, err = meter.Int64Counter(
		"order_status_transitions_total",
		metric.WithDescription("Applied order status transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create order_status_transitions_total counter: %w", err)
	}

	m.gatewayVerifyDuration, err = meter.Float64Histogram(
		"gateway_verify_duration_seconds",
		metric.WithDescription("Payment gateway verify call latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create gateway_verify_duration histogram: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordOrderCreated(ctx context.Context, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.ordersCreatedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
}

func (m *Metrics) RecordOrderCreationDuration(ctx context.Context, durationSeconds float64) {
	m.orderCreationDuration.Record(ctx, durationSeconds)
}

// RecordConfirmation counts one confirmation attempt; result is the result kind or "error".
func (m *Metrics) RecordConfirmation(ctx context.Context, result string, durationSeconds float64) {
	attrs := metric.WithAttributes(attribute.String("result", result))
	m.confirmationsTotal.Add(ctx, 1, attrs)
	m.confirmationDuration.Record(ctx, durationSeconds, attrs)
}

func (m *Metrics) RecordStatusTransition(ctx context.Context, from, to, source string) {
	m.statusTransitionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
		attribute.String("source", source),
	))
}

func (m *Metrics) RecordGatewayVerify(ctx context.Context, outcome string, durationSeconds float64) {
	m.gatewayVerifyDuration.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}
