package adapters

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dejobratic/shopdash/internal/database"
	"github.com/dejobratic/shopdash/internal/orders/ports"
	"github.com/dejobratic/shopdash/internal/telemetry"
)

type ObservableLedger struct {
	ledger  ports.PaymentLedger
	metrics *database.Metrics
}

func NewObservableLedger(ledger ports.PaymentLedger, metrics *database.Metrics) *ObservableLedger {
	return &ObservableLedger{ledger: ledger, metrics: metrics}
}

func (l *ObservableLedger) TryClaim(ctx context.Context, commandeID, transactionID string, now time.Time) (ports.ClaimResult, error) {
	var result ports.ClaimResult
	err := l.observe(ctx, "PaymentLedger.TryClaim", "try_claim_payment", commandeID, transactionID, func(ctx context.Context) error {
		var err error
		result, err = l.ledger.TryClaim(ctx, commandeID, transactionID, now)
		return err
	})
	if err == nil {
		// surfaces the claim decision on the caller's span
		telemetry.AddSpanEvent(trace.SpanFromContext(ctx), "payment.claim",
			attribute.String("claim.state", string(result.State)),
			attribute.String("claim.phase", string(result.Claim.Phase)),
		)
	}
	return result, err
}

func (l *ObservableLedger) Finalize(ctx context.Context, claim ports.PaymentClaim, gatewayStatus string, verifiedAt *time.Time) error {
	return l.observe(ctx, "PaymentLedger.Finalize", "finalize_payment_claim", claim.CommandeID, claim.TransactionID, func(ctx context.Context) error {
		return l.ledger.Finalize(ctx, claim, gatewayStatus, verifiedAt)
	})
}

func (l *ObservableLedger) Release(ctx context.Context, claim ports.PaymentClaim) error {
	return l.observe(ctx, "PaymentLedger.Release", "release_payment_claim", claim.CommandeID, claim.TransactionID, func(ctx context.Context) error {
		return l.ledger.Release(ctx, claim)
	})
}

func (l *ObservableLedger) Get(ctx context.Context, commandeID, transactionID string) (*ports.PaymentClaim, error) {
	var claim *ports.PaymentClaim
	err := l.observe(ctx, "PaymentLedger.Get", "get_payment_claim", commandeID, transactionID, func(ctx context.Context) error {
		var err error
		claim, err = l.ledger.Get(ctx, commandeID, transactionID)
		return err
	})
	return claim, err
}

func (l *ObservableLedger) observe(ctx context.Context, spanName, operation, commandeID, transactionID string, call func(context.Context) error) error {
	ctx, span := telemetry.StartSpan(ctx, spanName)
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", commandeID),
		attribute.String("payment.transaction_id", transactionID),
		attribute.String("operation", operation),
	)

	start := time.Now()
	err := call(ctx)
	l.metrics.RecordQuery(ctx, operation, time.Since(start).Seconds(), err)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}
