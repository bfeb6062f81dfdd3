package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/dejobratic/shopdash/internal/orders/ports"
)

const defaultClaimTTL = 5 * time.Minute

// Ledger persists payment claims in the payment_claims table. Writes for one
// transaction id serialise on an advisory lock; the claim itself is an upsert
// on the (commande_id, transaction_id) primary key.
type Ledger struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

func NewLedger(pool *pgxpool.Pool, ttl time.Duration) *Ledger {
	if ttl <= 0 {
		ttl = defaultClaimTTL
	}
	return &Ledger{pool: pool, ttl: ttl}
}

func (l *Ledger) TryClaim(ctx context.Context, commandeID, transactionID string, now time.Time) (ports.ClaimResult, error) {
	now = now.UTC()
	token := ulid.Make().String()
	expiresAt := now.Add(l.ttl)

	var result ports.ClaimResult
	err := l.withTransactionLock(ctx, transactionID, func(tx pgx.Tx) error {
		bound, err := selectBindingClaim(ctx, tx, commandeID, transactionID, now)
		if err != nil {
			return err
		}
		if bound != nil {
			result = ports.ClaimResult{State: ports.ClaimStateTransactionBound, Claim: *bound}
			return nil
		}

		// Stale in-progress claims are taken over; finalized ones never are.
		query := `
			INSERT INTO payment_claims (commande_id, transaction_id, phase, token, claimed_at, expires_at)
			VALUES ($1, $2, 'in_progress', $3, $4, $5)
			ON CONFLICT (commande_id, transaction_id) DO UPDATE
			SET token = EXCLUDED.token,
			    claimed_at = EXCLUDED.claimed_at,
			    expires_at = EXCLUDED.expires_at,
			    gateway_status = ''
			WHERE payment_claims.phase = 'in_progress' AND payment_claims.expires_at <= $4
			RETURNING token
		`

		var returned string
		err = tx.QueryRow(ctx, query, commandeID, transactionID, token, now, expiresAt).Scan(&returned)
		switch {
		case err == nil && returned == token:
			result = ports.ClaimResult{
				State: ports.ClaimStateClaimed,
				Claim: ports.PaymentClaim{
					CommandeID:    commandeID,
					TransactionID: transactionID,
					Phase:         ports.ClaimPhaseInProgress,
					Token:         token,
					ClaimedAt:     now,
					ExpiresAt:     expiresAt,
				},
			}
			return nil
		case err != nil && !errors.Is(err, pgx.ErrNoRows):
			return fmt.Errorf("claim payment: %w", err)
		}

		// the lock keeps Release and Finalize out, so the conflicting row is still there
		existing, err := selectClaim(ctx, tx, commandeID, transactionID)
		if err != nil {
			return err
		}
		result = ports.ClaimResult{State: ports.ClaimStateAlreadyClaimed, Claim: *existing}
		return nil
	})
	if err != nil {
		return ports.ClaimResult{}, err
	}
	return result, nil
}

func (l *Ledger) Finalize(ctx context.Context, claim ports.PaymentClaim, gatewayStatus string, verifiedAt *time.Time) error {
	query := `
		UPDATE payment_claims
		SET phase = 'finalized', gateway_status = $1, verified_at = $2
		WHERE commande_id = $3 AND transaction_id = $4 AND token = $5 AND phase = 'in_progress'
	`

	return l.withTransactionLock(ctx, claim.TransactionID, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, query, gatewayStatus, verifiedAt, claim.CommandeID, claim.TransactionID, claim.Token)
		if err != nil {
			return fmt.Errorf("finalize payment claim: %w", err)
		}
		if result.RowsAffected() == 0 {
			return ports.ErrClaimLost
		}
		return nil
	})
}

func (l *Ledger) Release(ctx context.Context, claim ports.PaymentClaim) error {
	query := `
		DELETE FROM payment_claims
		WHERE commande_id = $1 AND transaction_id = $2 AND token = $3 AND phase = 'in_progress'
	`

	return l.withTransactionLock(ctx, claim.TransactionID, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, query, claim.CommandeID, claim.TransactionID, claim.Token)
		if err != nil {
			return fmt.Errorf("release payment claim: %w", err)
		}
		if result.RowsAffected() == 0 {
			return ports.ErrClaimLost
		}
		return nil
	})
}

// withTransactionLock runs fn in a transaction holding an advisory lock on the
// transaction id, so every ledger write for one payment is serialised across orders.
func (l *Ledger) withTransactionLock(ctx context.Context, transactionID string, fn func(pgx.Tx) error) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ledger transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, transactionID); err != nil {
		return fmt.Errorf("lock payment transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger transaction: %w", err)
	}
	return nil
}

// selectBindingClaim returns another order's claim on the transaction that is
// either finalized as a success or still live.
func selectBindingClaim(ctx context.Context, q rowQuerier, commandeID, transactionID string, now time.Time) (*ports.PaymentClaim, error) {
	query := `
		SELECT ` + claimColumns + `
		FROM payment_claims
		WHERE transaction_id = $1 AND commande_id <> $2
		  AND ((phase = 'finalized' AND gateway_status = 'success')
		       OR (phase = 'in_progress' AND expires_at > $3))
		ORDER BY claimed_at
		LIMIT 1
	`

	claim, err := scanClaim(q.QueryRow(ctx, query, transactionID, commandeID, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select binding payment claim: %w", err)
	}
	return claim, nil
}

func (l *Ledger) Get(ctx context.Context, commandeID, transactionID string) (*ports.PaymentClaim, error) {
	return selectClaim(ctx, l.pool, commandeID, transactionID)
}

const claimColumns = `commande_id, transaction_id, phase, token, gateway_status, claimed_at, expires_at, verified_at`

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func selectClaim(ctx context.Context, q rowQuerier, commandeID, transactionID string) (*ports.PaymentClaim, error) {
	query := `
		SELECT ` + claimColumns + `
		FROM payment_claims
		WHERE commande_id = $1 AND transaction_id = $2
	`

	claim, err := scanClaim(q.QueryRow(ctx, query, commandeID, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrClaimNotFound
		}
		return nil, fmt.Errorf("select payment claim: %w", err)
	}
	return claim, nil
}

func scanClaim(row pgx.Row) (*ports.PaymentClaim, error) {
	var claim ports.PaymentClaim
	err := row.Scan(
		&claim.CommandeID,
		&claim.TransactionID,
		&claim.Phase,
		&claim.Token,
		&claim.GatewayStatus,
		&claim.ClaimedAt,
		&claim.ExpiresAt,
		&claim.VerifiedAt,
	)
	if err != nil {
		return nil, err
	}
	return &claim, nil
}
