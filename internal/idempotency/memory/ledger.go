package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dejobratic/shopdash/internal/orders/ports"
)

// DefaultClaimTTL bounds how long an in-progress claim blocks other callers.
const DefaultClaimTTL = 5 * time.Minute

type claimKey struct {
	commandeID    string
	transactionID string
}

// Ledger is a mutex-guarded PaymentLedger for tests and single-node deployments.
type Ledger struct {
	mu     sync.Mutex
	ttl    time.Duration
	claims map[claimKey]ports.PaymentClaim
}

// NewLedger constructs an empty ledger. A non-positive ttl uses DefaultClaimTTL.
func NewLedger(ttl time.Duration) *Ledger {
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	return &Ledger{ttl: ttl, claims: make(map[claimKey]ports.PaymentClaim)}
}

// TryClaim atomically claims the pair unless a live or finalized claim exists,
// or the transaction is bound to another order.
func (l *Ledger) TryClaim(_ context.Context, commandeID, transactionID string, now time.Time) (ports.ClaimResult, error) {
	now = now.UTC()
	key := claimKey{commandeID: commandeID, transactionID: transactionID}

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.claims[key]; ok && !isStale(existing, now) {
		return ports.ClaimResult{State: ports.ClaimStateAlreadyClaimed, Claim: existing}, nil
	}

	for other, existing := range l.claims {
		if other.transactionID != transactionID || other.commandeID == commandeID {
			continue
		}
		if bindsTransaction(existing, now) {
			return ports.ClaimResult{State: ports.ClaimStateTransactionBound, Claim: existing}, nil
		}
	}

	claim := ports.PaymentClaim{
		CommandeID:    commandeID,
		TransactionID: transactionID,
		Phase:         ports.ClaimPhaseInProgress,
		Token:         ulid.Make().String(),
		ClaimedAt:     now,
		ExpiresAt:     now.Add(l.ttl),
	}
	l.claims[key] = claim
	return ports.ClaimResult{State: ports.ClaimStateClaimed, Claim: claim}, nil
}

func isStale(claim ports.PaymentClaim, now time.Time) bool {
	return claim.Phase == ports.ClaimPhaseInProgress && !now.Before(claim.ExpiresAt)
}

func bindsTransaction(claim ports.PaymentClaim, now time.Time) bool {
	switch claim.Phase {
	case ports.ClaimPhaseFinalized:
		return claim.GatewayStatus == string(ports.VerificationSuccess)
	default:
		return !isStale(claim, now)
	}
}

// Finalize marks the claim completed with the gateway's status.
func (l *Ledger) Finalize(_ context.Context, claim ports.PaymentClaim, gatewayStatus string, verifiedAt *time.Time) error {
	key := claimKey{commandeID: claim.CommandeID, transactionID: claim.TransactionID}

	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.claims[key]
	if !ok || current.Token != claim.Token || current.Phase != ports.ClaimPhaseInProgress {
		return ports.ErrClaimLost
	}

	current.Phase = ports.ClaimPhaseFinalized
	current.GatewayStatus = gatewayStatus
	if verifiedAt != nil {
		at := verifiedAt.UTC()
		current.VerifiedAt = &at
	}
	l.claims[key] = current
	return nil
}

// Release drops an in-progress claim held by the caller.
func (l *Ledger) Release(_ context.Context, claim ports.PaymentClaim) error {
	key := claimKey{commandeID: claim.CommandeID, transactionID: claim.TransactionID}

	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.claims[key]
	if !ok || current.Token != claim.Token || current.Phase != ports.ClaimPhaseInProgress {
		return ports.ErrClaimLost
	}
	delete(l.claims, key)
	return nil
}

// Get returns a copy of the claim record.
func (l *Ledger) Get(_ context.Context, commandeID, transactionID string) (*ports.PaymentClaim, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	claim, ok := l.claims[claimKey{commandeID: commandeID, transactionID: transactionID}]
	if !ok {
		return nil, ports.ErrClaimNotFound
	}
	return &claim, nil
}
