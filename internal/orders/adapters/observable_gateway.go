package adapters

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dejobratic/shopdash/internal/orders/metrics"
	"github.com/dejobratic/shopdash/internal/orders/ports"
	"github.com/dejobratic/shopdash/internal/telemetry"
)

type ObservableGateway struct {
	gateway ports.PaymentGateway
	metrics *metrics.Metrics
}

func NewObservableGateway(gateway ports.PaymentGateway, metrics *metrics.Metrics) *ObservableGateway {
	return &ObservableGateway{gateway: gateway, metrics: metrics}
}

func (g *ObservableGateway) Verify(ctx context.Context, transactionID string) (ports.VerificationOutcome, error) {
	ctx, span := telemetry.StartSpan(ctx, "PaymentGateway.Verify")
	defer span.End()

	telemetry.AddSpanAttributes(span, attribute.String("payment.transaction_id", transactionID))

	start := time.Now()
	outcome, err := g.gateway.Verify(ctx, transactionID)
	duration := time.Since(start).Seconds()

	g.metrics.RecordGatewayVerify(ctx, verifyOutcome(outcome, err), duration)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return outcome, err
	}

	telemetry.AddSpanAttributes(span, attribute.String("payment.gateway_status", string(outcome.Status)))
	telemetry.SetSpanSuccess(span)
	return outcome, nil
}

func verifyOutcome(outcome ports.VerificationOutcome, err error) string {
	var gwErr *ports.GatewayError
	switch {
	case err == nil:
		return string(outcome.Status)
	case errors.As(err, &gwErr):
		return "rejected"
	case errors.Is(err, ports.ErrGatewayTimeout):
		return "timeout"
	default:
		return "network_error"
	}
}
