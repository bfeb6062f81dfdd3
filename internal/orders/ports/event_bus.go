package ports

import (
	"context"
	"time"

	"github.com/dejobratic/shopdash/internal/orders/domain"
)

// StatusChangedEvent is emitted after a status transition is persisted.
type StatusChangedEvent struct {
	OrderID   string              `json:"order_id"`
	ShopID    string              `json:"shop_id"`
	Reference string              `json:"reference"`
	From      domain.OrderStatus  `json:"from"`
	To        domain.OrderStatus  `json:"to"`
	Source    domain.ChangeSource `json:"source"`
	At        time.Time           `json:"at"`
}

// PaymentConfirmedEvent is emitted once per settled (order, transaction) pair.
type PaymentConfirmedEvent struct {
	OrderID       string    `json:"order_id"`
	ShopID        string    `json:"shop_id"`
	TransactionID string    `json:"transaction_id"`
	Amount        int64     `json:"amount"`
	VerifiedAt    time.Time `json:"verified_at"`
}

// EventBus defines the contract for publishing order lifecycle events.
type EventBus interface {
	PublishOrderCreated(ctx context.Context, order domain.Order) error
	PublishStatusChanged(ctx context.Context, event StatusChangedEvent) error
	PublishPaymentConfirmed(ctx context.Context, event PaymentConfirmedEvent) error
}
