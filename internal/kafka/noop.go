package kafka

import (
	"context"
	"log/slog"

	"github.com/dejobratic/shopdash/internal/orders/domain"
	"github.com/dejobratic/shopdash/internal/orders/ports"
)

// NoopEventBus logs events without sending them to Kafka. Used when no brokers are configured.
type NoopEventBus struct{}

// NewNoopEventBus returns a new no-op event publisher.
func NewNoopEventBus() *NoopEventBus {
	return &NoopEventBus{}
}

func (n *NoopEventBus) PublishOrderCreated(_ context.Context, order domain.Order) error {
	slog.Debug("event::order_created", "order_id", order.ID, "shop_id", order.ShopID)
	return nil
}

func (n *NoopEventBus) PublishStatusChanged(_ context.Context, event ports.StatusChangedEvent) error {
	slog.Debug("event::order_status_changed", "order_id", event.OrderID, "from", event.From, "to", event.To)
	return nil
}

func (n *NoopEventBus) PublishPaymentConfirmed(_ context.Context, event ports.PaymentConfirmedEvent) error {
	slog.Debug("event::payment_confirmed", "order_id", event.OrderID, "transaction_id", event.TransactionID)
	return nil
}
