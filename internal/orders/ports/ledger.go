package ports

import (
	"context"
	"errors"
	"time"
)

// ClaimState is the outcome of a TryClaim call.
type ClaimState string

const (
	ClaimStateClaimed          ClaimState = "claimed"
	ClaimStateAlreadyClaimed   ClaimState = "already_claimed"
	// ClaimStateTransactionBound means the transaction settled, or is being
	// verified for, a different order.
	ClaimStateTransactionBound ClaimState = "transaction_bound"
)

// ClaimPhase tracks a claim record's progress.
type ClaimPhase string

const (
	ClaimPhaseInProgress ClaimPhase = "in_progress"
	ClaimPhaseFinalized  ClaimPhase = "finalized"
)

// PaymentClaim is the ledger record for one (commande, transaction) pair.
type PaymentClaim struct {
	CommandeID    string     `json:"commande_id"`
	TransactionID string     `json:"transaction_id"`
	Phase         ClaimPhase `json:"phase"`
	Token         string     `json:"-"`
	GatewayStatus string     `json:"gateway_status,omitempty"`
	ClaimedAt     time.Time  `json:"claimed_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	VerifiedAt    *time.Time `json:"verified_at,omitempty"`
}

// ClaimResult is returned by TryClaim. Claim is the caller's own claim when
// State is Claimed, the existing record for the pair when AlreadyClaimed, and
// the other order's record when TransactionBound.
type ClaimResult struct {
	State ClaimState
	Claim PaymentClaim
}

// PaymentLedger records which (order, transaction) pairs are being or have
// been confirmed. TryClaim must be an atomic check-and-set, and a transaction
// that settled one order, or holds a live claim for it, cannot be claimed for
// another.
type PaymentLedger interface {
	TryClaim(ctx context.Context, commandeID, transactionID string, now time.Time) (ClaimResult, error)
	Finalize(ctx context.Context, claim PaymentClaim, gatewayStatus string, verifiedAt *time.Time) error
	Release(ctx context.Context, claim PaymentClaim) error
	Get(ctx context.Context, commandeID, transactionID string) (*PaymentClaim, error)
}

var (
	// ErrClaimLost is returned when the caller's token no longer owns the claim.
	ErrClaimLost = errors.New("payment claim is no longer held")
	// ErrClaimNotFound is returned by Get for unknown pairs.
	ErrClaimNotFound = errors.New("payment claim not found")
)
