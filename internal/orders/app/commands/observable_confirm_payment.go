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

type ObservableConfirmPaymentHandler struct {
	handler ConfirmPaymentHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableConfirmPaymentHandler(handler ConfirmPaymentHandler, logger *slog.Logger, metrics *metrics.Metrics) *ObservableConfirmPaymentHandler {
	return &ObservableConfirmPaymentHandler{handler: handler, logger: logger, metrics: metrics}
}

func (o *ObservableConfirmPaymentHandler) Handle(ctx context.Context, session auth.Session, cmd ConfirmPaymentCommand) (*ConfirmationResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "ConfirmPaymentCommand.Handle")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", cmd.CommandeID),
		attribute.String("payment.transaction_id", cmd.TransactionID),
	)
	telemetry.AddSpanAttributes(span, telemetry.SessionAttributes(session)...)

	start := time.Now()
	outcome := "error"
	defer func() {
		o.metrics.RecordConfirmation(ctx, outcome, time.Since(start).Seconds())
	}()

	o.logger.InfoContext(ctx, "confirming payment",
		"commande_id", cmd.CommandeID,
		"transaction_id", cmd.TransactionID,
	)

	result, err := o.handler.Handle(ctx, session, cmd)
	if err != nil && !(errors.Is(err, ErrEventNotPublished) && result != nil) {
		telemetry.RecordSpanError(span, err)
		o.logger.ErrorContext(ctx, "payment confirmation failed",
			"error", err,
			"commande_id", cmd.CommandeID,
			"transaction_id", cmd.TransactionID,
		)
		return nil, err
	}
	if err != nil {
		o.logger.WarnContext(ctx, "payment confirmed but events were not published",
			"error", err,
			"commande_id", cmd.CommandeID,
		)
	}

	outcome = string(result.Kind)
	telemetry.AddSpanAttributes(span,
		attribute.String("payment.result", outcome),
		attribute.String("order.status", string(result.Status)),
	)

	attrs := []any{
		"commande_id", cmd.CommandeID,
		"transaction_id", cmd.TransactionID,
		"result", result.Kind,
		"status", result.Status,
		"detail", result.Detail,
	}
	switch result.Kind {
	case ResultSuccess:
		o.metrics.RecordStatusTransition(ctx, string(domain.StatusPending), string(result.Status), string(domain.SourcePayment))
		o.logger.InfoContext(ctx, "payment confirmed", attrs...)
	case ResultTransientError:
		o.logger.WarnContext(ctx, "payment gateway unavailable", attrs...)
	default:
		o.logger.InfoContext(ctx, "payment confirmation settled", attrs...)
	}

	telemetry.SetSpanSuccess(span)
	return result, nil
}
