package commands

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dejobratic/shopdash/internal/auth"
	"github.com/dejobratic/shopdash/internal/orders/domain"
	"github.com/dejobratic/shopdash/internal/orders/metrics"
	"github.com/dejobratic/shopdash/internal/telemetry"
)

type ObservableCommandHandler struct {
	handler CommandHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableCommandHandler(handler CommandHandler, logger *slog.Logger, metrics *metrics.Metrics) *ObservableCommandHandler {
	return &ObservableCommandHandler{
		handler: handler,
		logger:  logger,
		metrics: metrics,
	}
}

func (o *ObservableCommandHandler) Handle(ctx context.Context, session auth.Session, cmd CreateOrderCommand) (*domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "CreateOrderCommand.Handle")
	defer span.End()

	telemetry.AddSpanAttributes(span, telemetry.SessionAttributes(session)...)

	start := time.Now()
	var success bool
	defer func() {
		duration := time.Since(start).Seconds()
		o.metrics.RecordOrderCreationDuration(ctx, duration)
		o.metrics.RecordOrderCreated(ctx, success)
	}()

	o.logger.InfoContext(ctx, "creating order",
		"shop_id", cmd.ShopID,
		"amount", cmd.Amount,
	)

	order, err := o.handler.Handle(ctx, session, cmd)

	if err != nil && !(errors.Is(err, ErrEventNotPublished) && order != nil) {
		telemetry.RecordSpanError(span, err)
		o.logger.ErrorContext(ctx, "failed to create order",
			"error", err,
			"shop_id", cmd.ShopID,
		)
		return nil, err
	}
	if err != nil {
		o.logger.WarnContext(ctx, "order created but event was not published",
			"error", err,
			"order_id", order.ID,
		)
	}

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", order.ID),
		attribute.String("order.shop_id", order.ShopID),
		attribute.String("order.reference", order.Reference),
		attribute.Int64("order.amount", order.Amount),
	)

	o.logger.InfoContext(ctx, "order created successfully",
		"order_id", order.ID,
		"reference", order.Reference,
	)

	success = true
	telemetry.SetSpanSuccess(span)

	return order, nil
}
