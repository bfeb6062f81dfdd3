package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dejobratic/shopdash/internal/auth"
	"github.com/dejobratic/shopdash/internal/orders/domain"
	"github.com/dejobratic/shopdash/internal/orders/ports"
)

// ResultKind classifies the outcome of a payment confirmation.
type ResultKind string

const (
	ResultSuccess            ResultKind = "success"
	ResultAlreadyProcessed   ResultKind = "already_processed"
	ResultVerificationFailed ResultKind = "verification_failed"
	ResultTransientError     ResultKind = "transient_error"
)

// TransientPolicy decides what happens to a claim when the gateway cannot be reached.
type TransientPolicy string

const (
	// TransientRelease drops the claim so a later call may retry the pair.
	TransientRelease TransientPolicy = "release"
	// TransientRetain keeps the claim until it expires.
	TransientRetain TransientPolicy = "retain"
)

// ParseTransientPolicy accepts "release" or "retain"; empty means release.
func ParseTransientPolicy(raw string) (TransientPolicy, error) {
	switch TransientPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", TransientRelease:
		return TransientRelease, nil
	case TransientRetain:
		return TransientRetain, nil
	default:
		return "", fmt.Errorf("unknown transient policy %q", raw)
	}
}

type ConfirmPaymentCommand struct {
	CommandeID    string
	TransactionID string
}

func (c ConfirmPaymentCommand) Validate() error {
	if strings.TrimSpace(c.CommandeID) == "" {
		return &domain.ValidationError{Field: "commande_id", Message: "commande_id is required"}
	}
	if strings.TrimSpace(c.TransactionID) == "" {
		return &domain.ValidationError{Field: "transaction_id", Message: "transaction_id is required"}
	}
	return nil
}

// ConfirmationResult is what callers of the confirmation flow get back.
// Status is the order status after the call.
type ConfirmationResult struct {
	Kind          ResultKind         `json:"result"`
	CommandeID    string             `json:"commande_id"`
	TransactionID string             `json:"transaction_id"`
	Status        domain.OrderStatus `json:"status,omitempty"`
	Detail        string             `json:"detail,omitempty"`
}

type ConfirmPaymentHandler interface {
	Handle(ctx context.Context, session auth.Session, cmd ConfirmPaymentCommand) (*ConfirmationResult, error)
}

type ConfirmPaymentCommandHandler struct {
	repo           ports.OrderRepository
	ledger         ports.PaymentLedger
	gateway        ports.PaymentGateway
	events         ports.EventBus
	policy         TransientPolicy
	gatewayTimeout time.Duration
	now            func() time.Time
}

type ConfirmOption func(*ConfirmPaymentCommandHandler)

// WithTransientPolicy overrides the default release policy; an empty policy is ignored.
func WithTransientPolicy(policy TransientPolicy) ConfirmOption {
	return func(h *ConfirmPaymentCommandHandler) {
		if policy != "" {
			h.policy = policy
		}
	}
}

// WithGatewayTimeout bounds each Verify call; zero leaves the caller's deadline alone.
func WithGatewayTimeout(timeout time.Duration) ConfirmOption {
	return func(h *ConfirmPaymentCommandHandler) { h.gatewayTimeout = timeout }
}

func WithClock(now func() time.Time) ConfirmOption {
	return func(h *ConfirmPaymentCommandHandler) { h.now = now }
}

func NewConfirmPaymentCommandHandler(
	repo ports.OrderRepository,
	ledger ports.PaymentLedger,
	gateway ports.PaymentGateway,
	events ports.EventBus,
	opts ...ConfirmOption,
) *ConfirmPaymentCommandHandler {
	h := &ConfirmPaymentCommandHandler{
		repo:    repo,
		ledger:  ledger,
		gateway: gateway,
		events:  events,
		policy:  TransientRelease,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle confirms one (commande, transaction) pair. At most one caller per
// pair reaches the gateway; everyone else observes AlreadyProcessed. A
// transaction bound to another order is rejected before the gateway is asked.
func (h *ConfirmPaymentCommandHandler) Handle(ctx context.Context, session auth.Session, cmd ConfirmPaymentCommand) (*ConfirmationResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	order, err := h.repo.GetByID(ctx, cmd.CommandeID)
	if err != nil {
		return nil, err
	}
	if err := hideForeignOrder(session, session.Authorize(order.ShopID)); err != nil {
		return nil, err
	}

	claimed, err := h.ledger.TryClaim(ctx, cmd.CommandeID, cmd.TransactionID, h.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("claim payment: %w", err)
	}
	switch claimed.State {
	case ports.ClaimStateAlreadyClaimed:
		detail := "transaction already processed"
		if claimed.Claim.Phase == ports.ClaimPhaseInProgress {
			detail = "verification already in progress"
		}
		return h.alreadyProcessed(ctx, cmd, detail)
	case ports.ClaimStateTransactionBound:
		return h.result(ResultVerificationFailed, cmd, order.Status, "transaction belongs to another order"), nil
	}
	claim := claimed.Claim

	// bookkeeping after the claim must finish even if the caller goes away
	bg := context.WithoutCancel(ctx)

	if order.IsTerminal() {
		if err := h.ledger.Finalize(bg, claim, string(ports.VerificationAlreadyProcessed), nil); err != nil {
			return nil, fmt.Errorf("finalize payment claim: %w", err)
		}
		return h.alreadyProcessed(bg, cmd, "order already settled")
	}

	outcome, err := h.verify(ctx, cmd.TransactionID)
	if err != nil {
		var gwErr *ports.GatewayError
		if errors.As(err, &gwErr) {
			if err := h.ledger.Finalize(bg, claim, fmt.Sprintf("rejected_%d", gwErr.StatusCode), nil); err != nil {
				return nil, fmt.Errorf("finalize payment claim: %w", err)
			}
			return h.result(ResultVerificationFailed, cmd, order.Status, gwErr.Message), nil
		}

		if h.policy == TransientRelease {
			if err := h.ledger.Release(bg, claim); err != nil {
				return nil, fmt.Errorf("release payment claim: %w", err)
			}
		}
		return h.result(ResultTransientError, cmd, order.Status, err.Error()), nil
	}

	switch outcome.Status {
	case ports.VerificationSuccess:
		return h.complete(bg, cmd, *order, claim, outcome)
	case ports.VerificationAlreadyProcessed:
		// this ledger never settled the pair, so the payment is not ours to apply
		if err := h.ledger.Finalize(bg, claim, string(ports.VerificationAlreadyProcessed), nil); err != nil {
			return nil, fmt.Errorf("finalize payment claim: %w", err)
		}
		return h.alreadyProcessed(bg, cmd, "transaction already processed by the gateway")
	default:
		if err := h.ledger.Finalize(bg, claim, string(ports.VerificationFailed), nil); err != nil {
			return nil, fmt.Errorf("finalize payment claim: %w", err)
		}
		detail := outcome.Detail
		if detail == "" {
			detail = "payment was not accepted by the gateway"
		}
		return h.result(ResultVerificationFailed, cmd, order.Status, detail), nil
	}
}

func (h *ConfirmPaymentCommandHandler) verify(ctx context.Context, transactionID string) (ports.VerificationOutcome, error) {
	if h.gatewayTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.gatewayTimeout)
		defer cancel()
	}

	outcome, err := h.gateway.Verify(ctx, transactionID)
	if err == nil {
		return outcome, nil
	}

	var gwErr *ports.GatewayError
	switch {
	case errors.As(err, &gwErr), ports.IsTransient(err):
		return outcome, err
	case errors.Is(err, context.DeadlineExceeded):
		return outcome, fmt.Errorf("%w: %w", ports.ErrGatewayTimeout, err)
	default:
		return outcome, fmt.Errorf("%w: %w", ports.ErrGatewayNetwork, err)
	}
}

func (h *ConfirmPaymentCommandHandler) complete(
	ctx context.Context,
	cmd ConfirmPaymentCommand,
	order domain.Order,
	claim ports.PaymentClaim,
	outcome ports.VerificationOutcome,
) (*ConfirmationResult, error) {
	verifiedAt := h.now().UTC()

	next, err := domain.Apply(order, domain.StatusCompleted, domain.StatusChange{
		Source: domain.SourcePayment,
		Actor:  "transaction:" + cmd.TransactionID,
		At:     verifiedAt,
	})
	if err != nil {
		return nil, err
	}
	change := next.History[len(next.History)-1]

	if err := h.repo.UpdateStatus(ctx, order.ShopID, order.ID, change); err != nil {
		if errors.Is(err, ports.ErrConflict) {
			// the order was settled by someone else between our read and write
			if err := h.ledger.Finalize(ctx, claim, string(outcome.Status), &verifiedAt); err != nil {
				return nil, fmt.Errorf("finalize payment claim: %w", err)
			}
			return h.alreadyProcessed(ctx, cmd, "order already settled")
		}
		if releaseErr := h.ledger.Release(ctx, claim); releaseErr != nil {
			err = errors.Join(err, releaseErr)
		}
		return nil, fmt.Errorf("persist payment confirmation: %w", err)
	}

	if err := h.ledger.Finalize(ctx, claim, string(outcome.Status), &verifiedAt); err != nil {
		return nil, fmt.Errorf("finalize payment claim: %w", err)
	}

	result := h.result(ResultSuccess, cmd, next.Status, "payment confirmed")

	publishErr := errors.Join(
		h.events.PublishPaymentConfirmed(ctx, ports.PaymentConfirmedEvent{
			OrderID:       next.ID,
			ShopID:        next.ShopID,
			TransactionID: cmd.TransactionID,
			Amount:        next.Amount,
			VerifiedAt:    verifiedAt,
		}),
		h.events.PublishStatusChanged(ctx, statusChangedEvent(next, change)),
	)
	if publishErr != nil {
		return result, fmt.Errorf("%w: %w", ErrEventNotPublished, publishErr)
	}

	return result, nil
}

func (h *ConfirmPaymentCommandHandler) alreadyProcessed(ctx context.Context, cmd ConfirmPaymentCommand, detail string) (*ConfirmationResult, error) {
	current, err := h.repo.GetByID(ctx, cmd.CommandeID)
	if err != nil {
		return nil, err
	}
	return h.result(ResultAlreadyProcessed, cmd, current.Status, detail), nil
}

func (h *ConfirmPaymentCommandHandler) result(kind ResultKind, cmd ConfirmPaymentCommand, status domain.OrderStatus, detail string) *ConfirmationResult {
	return &ConfirmationResult{
		Kind:          kind,
		CommandeID:    cmd.CommandeID,
		TransactionID: cmd.TransactionID,
		Status:        status,
		Detail:        detail,
	}
}
