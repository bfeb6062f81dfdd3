package app

import (
	"context"
	"encoding/json"
	"iter"
	"log/slog"
	"time"

	"github.com/dejobratic/shopdash/internal/auth"
	"github.com/dejobratic/shopdash/internal/orders/app/commands"
	"github.com/dejobratic/shopdash/internal/orders/app/queries"
	"github.com/dejobratic/shopdash/internal/orders/domain"
	"github.com/dejobratic/shopdash/internal/orders/metrics"
	"github.com/dejobratic/shopdash/internal/orders/ports"
)

// Dependencies are the ports the service is built on.
type Dependencies struct {
	Repository  ports.OrderRepository
	Events      ports.EventBus
	Idempotency ports.IdempotencyStore
	Ledger      ports.PaymentLedger
	Gateway     ports.PaymentGateway
}

// PaymentSettings tune the confirmation flow.
type PaymentSettings struct {
	TransientPolicy commands.TransientPolicy
	GatewayTimeout  time.Duration
}

// Service bundles use cases for handling orders via the API.
type Service struct {
	idemStore           ports.IdempotencyStore
	createOrderHandler  commands.CommandHandler
	updateStatusHandler commands.StatusCommandHandler
	confirmHandler      commands.ConfirmPaymentHandler
	getOrderHandler     *queries.GetOrderQueryHandler
	listOrdersHandler   *queries.ListOrdersQueryHandler
}

// NewService wires required dependencies.
func NewService(
	deps Dependencies,
	payments PaymentSettings,
	logger *slog.Logger,
	metrics *metrics.Metrics,
) *Service {
	createOrder := commands.NewCreateOrderCommandHandler(deps.Repository, deps.Events)
	updateStatus := commands.NewUpdateStatusCommandHandler(deps.Repository, deps.Events)
	confirm := commands.NewConfirmPaymentCommandHandler(
		deps.Repository,
		deps.Ledger,
		deps.Gateway,
		deps.Events,
		commands.WithTransientPolicy(payments.TransientPolicy),
		commands.WithGatewayTimeout(payments.GatewayTimeout),
	)

	return &Service{
		idemStore:           deps.Idempotency,
		createOrderHandler:  commands.NewObservableCommandHandler(createOrder, logger, metrics),
		updateStatusHandler: commands.NewObservableStatusCommandHandler(updateStatus, logger, metrics),
		confirmHandler:      commands.NewObservableConfirmPaymentHandler(confirm, logger, metrics),
		getOrderHandler:     queries.NewGetOrderQueryHandler(deps.Repository),
		listOrdersHandler:   queries.NewListOrdersQueryHandler(deps.Repository),
	}
}

// CreateOrderInput captures payload for creating an order.
type CreateOrderInput struct {
	ShopID             string          `json:"shop_id"`
	Reference          string          `json:"reference"`
	Amount             int64           `json:"amount"`
	Customer           json.RawMessage `json:"customer"`
	OrderableReference string          `json:"orderable_reference"`
}

// CreateOrder orchestrates order creation and event emission.
func (s *Service) CreateOrder(ctx context.Context, session auth.Session, input CreateOrderInput) (*domain.Order, error) {
	return s.createOrderHandler.Handle(ctx, session, commands.CreateOrderCommand{
		ShopID:             input.ShopID,
		Reference:          input.Reference,
		Amount:             input.Amount,
		Customer:           input.Customer,
		OrderableReference: input.OrderableReference,
	})
}

// UpdateStatus applies a manual status change.
func (s *Service) UpdateStatus(ctx context.Context, session auth.Session, orderID, status string) (*domain.Order, error) {
	return s.updateStatusHandler.Handle(ctx, session, commands.UpdateStatusCommand{OrderID: orderID, Status: status})
}

// ConfirmPayment verifies a gateway transaction and settles the order.
func (s *Service) ConfirmPayment(ctx context.Context, session auth.Session, commandeID, transactionID string) (*commands.ConfirmationResult, error) {
	return s.confirmHandler.Handle(ctx, session, commands.ConfirmPaymentCommand{
		CommandeID:    commandeID,
		TransactionID: transactionID,
	})
}

// GetOrder retrieves an order by ID.
func (s *Service) GetOrder(ctx context.Context, session auth.Session, id string) (*domain.Order, error) {
	return s.getOrderHandler.Handle(ctx, session, queries.GetOrderQuery{OrderID: id})
}

// ListOrders returns a lazy listing of a shop's orders.
func (s *Service) ListOrders(ctx context.Context, session auth.Session, shopID string, filter domain.Filter) (iter.Seq2[domain.Order, error], error) {
	return s.listOrdersHandler.Handle(ctx, session, queries.ListOrdersQuery{ShopID: shopID, Filter: filter})
}

// SaveIdempotentResponse writes response details for a key.
func (s *Service) SaveIdempotentResponse(ctx context.Context, key string, response ports.StoredResponse) error {
	return s.idemStore.Save(ctx, key, response)
}

// GetIdempotentResponse retrieves previously stored response data.
func (s *Service) GetIdempotentResponse(ctx context.Context, key string) (*ports.StoredResponse, error) {
	return s.idemStore.Get(ctx, key)
}
