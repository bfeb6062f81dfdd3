package commands

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dejobratic/shopdash/internal/auth"
	"github.com/dejobratic/shopdash/internal/orders/domain"
	"github.com/dejobratic/shopdash/internal/orders/metrics"
	"github.com/dejobratic/shopdash/internal/telemetry"
)

type ObservableStatusCommandHandler struct {
	handler StatusCommandHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableStatusCommandHandler(handler StatusCommandHandler, logger *slog.Logger, metrics *metrics.Metrics) *ObservableStatusCommandHandler {
	return &ObservableStatusCommandHandler{handler: handler, logger: logger, metrics: metrics}
}

func (o *ObservableStatusCommandHandler) Handle(ctx context.Context, session auth.Session, cmd UpdateStatusCommand) (*domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "UpdateStatusCommand.Handle")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", cmd.OrderID),
		attribute.String("order.requested_status", cmd.Status),
	)
	telemetry.AddSpanAttributes(span, telemetry.SessionAttributes(session)...)

	order, err := o.handler.Handle(ctx, session, cmd)
	if err != nil && !(errors.Is(err, ErrEventNotPublished) && order != nil) {
		telemetry.RecordSpanError(span, err)
		o.logger.WarnContext(ctx, "status update rejected",
			"error", err,
			"order_id", cmd.OrderID,
			"requested_status", cmd.Status,
		)
		return nil, err
	}
	if err != nil {
		o.logger.WarnContext(ctx, "status updated but event was not published",
			"error", err,
			"order_id", order.ID,
		)
	}

	change := order.History[len(order.History)-1]
	o.metrics.RecordStatusTransition(ctx, string(change.From), string(change.To), string(change.Source))

	o.logger.InfoContext(ctx, "order status updated",
		"order_id", order.ID,
		"from", change.From,
		"to", change.To,
		"actor", change.Actor,
	)

	telemetry.SetSpanSuccess(span)
	return order, nil
}
