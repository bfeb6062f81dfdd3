package adapters

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dejobratic/shopdash/internal/kafka"
	"github.com/dejobratic/shopdash/internal/orders/domain"
	"github.com/dejobratic/shopdash/internal/orders/ports"
	"github.com/dejobratic/shopdash/internal/telemetry"
)

type ObservableEventBus struct {
	bus     ports.EventBus
	metrics *kafka.Metrics
}

func NewObservableEventBus(bus ports.EventBus, metrics *kafka.Metrics) *ObservableEventBus {
	return &ObservableEventBus{
		bus:     bus,
		metrics: metrics,
	}
}

func (e *ObservableEventBus) PublishOrderCreated(ctx context.Context, order domain.Order) error {
	return e.observe(ctx, "EventBus.PublishOrderCreated", kafka.TopicOrderCreated, order.ID,
		func(ctx context.Context) error { return e.bus.PublishOrderCreated(ctx, order) },
		attribute.String("order.shop_id", order.ShopID),
	)
}

func (e *ObservableEventBus) PublishStatusChanged(ctx context.Context, event ports.StatusChangedEvent) error {
	return e.observe(ctx, "EventBus.PublishStatusChanged", kafka.TopicOrderStatusChanged, event.OrderID,
		func(ctx context.Context) error { return e.bus.PublishStatusChanged(ctx, event) },
		attribute.String("order.from_status", string(event.From)),
		attribute.String("order.to_status", string(event.To)),
		attribute.String("change.source", string(event.Source)),
	)
}

func (e *ObservableEventBus) PublishPaymentConfirmed(ctx context.Context, event ports.PaymentConfirmedEvent) error {
	return e.observe(ctx, "EventBus.PublishPaymentConfirmed", kafka.TopicPaymentConfirmed, event.OrderID,
		func(ctx context.Context) error { return e.bus.PublishPaymentConfirmed(ctx, event) },
		attribute.String("payment.transaction_id", event.TransactionID),
	)
}

func (e *ObservableEventBus) observe(
	ctx context.Context,
	spanName, topic, orderID string,
	publish func(context.Context) error,
	attrs ...attribute.KeyValue,
) error {
	ctx, span := telemetry.StartSpan(ctx, spanName)
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", orderID),
		attribute.String("event.type", topic),
		attribute.String("topic", topic),
	)
	telemetry.AddSpanAttributes(span, attrs...)

	start := time.Now()
	err := publish(ctx)
	duration := time.Since(start).Seconds()

	e.metrics.RecordPublish(ctx, topic, duration, err == nil)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}
