package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dejobratic/shopdash/internal/idempotency/memory"
	"github.com/dejobratic/shopdash/internal/orders/ports"
)

func TestLedgerTryClaimSingleWinner(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger(time.Minute)
	now := time.Now()

	const callers = 32
	results := make([]ports.ClaimResult, callers)

	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := ledger.TryClaim(ctx, "o-1", "tx-1", now)
			assert.NoError(t, err)
			results[i] = result
		}()
	}
	wg.Wait()

	claimed := 0
	for _, result := range results {
		if result.State == ports.ClaimStateClaimed {
			claimed++
		}
	}
	assert.Equal(t, 1, claimed)
}

func TestLedgerPairsAreIndependent(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger(time.Minute)
	now := time.Now()

	for _, pair := range [][2]string{{"o-1", "tx-1"}, {"o-1", "tx-2"}, {"o-2", "tx-3"}} {
		result, err := ledger.TryClaim(ctx, pair[0], pair[1], now)
		require.NoError(t, err)
		assert.Equal(t, ports.ClaimStateClaimed, result.State, "pair %v", pair)
	}
}

func TestLedgerTransactionBindsToOneOrder(t *testing.T) {
	tests := []struct {
		name      string
		settle    func(t *testing.T, ledger *memory.Ledger, claim ports.PaymentClaim)
		at        time.Duration
		wantState ports.ClaimState
	}{
		{
			name:      "live claim",
			settle:    func(*testing.T, *memory.Ledger, ports.PaymentClaim) {},
			wantState: ports.ClaimStateTransactionBound,
		},
		{
			name:      "stale claim",
			settle:    func(*testing.T, *memory.Ledger, ports.PaymentClaim) {},
			at:        2 * time.Minute,
			wantState: ports.ClaimStateClaimed,
		},
		{
			name: "settled",
			settle: func(t *testing.T, ledger *memory.Ledger, claim ports.PaymentClaim) {
				require.NoError(t, ledger.Finalize(context.Background(), claim, string(ports.VerificationSuccess), nil))
			},
			at:        24 * time.Hour,
			wantState: ports.ClaimStateTransactionBound,
		},
		{
			name: "failed verification",
			settle: func(t *testing.T, ledger *memory.Ledger, claim ports.PaymentClaim) {
				require.NoError(t, ledger.Finalize(context.Background(), claim, string(ports.VerificationFailed), nil))
			},
			wantState: ports.ClaimStateClaimed,
		},
		{
			name: "released",
			settle: func(t *testing.T, ledger *memory.Ledger, claim ports.PaymentClaim) {
				require.NoError(t, ledger.Release(context.Background(), claim))
			},
			wantState: ports.ClaimStateClaimed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			ledger := memory.NewLedger(time.Minute)
			now := time.Now()

			first, err := ledger.TryClaim(ctx, "o-1", "tx-1", now)
			require.NoError(t, err)
			tt.settle(t, ledger, first.Claim)

			other, err := ledger.TryClaim(ctx, "o-2", "tx-1", now.Add(tt.at))
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, other.State)
			if tt.wantState == ports.ClaimStateTransactionBound {
				assert.Equal(t, "o-1", other.Claim.CommandeID)
			}
		})
	}
}

func TestLedgerStaleClaimIsTakenOver(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger(time.Minute)
	now := time.Now()

	first, err := ledger.TryClaim(ctx, "o-1", "tx-1", now)
	require.NoError(t, err)

	blocked, err := ledger.TryClaim(ctx, "o-1", "tx-1", now.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, ports.ClaimStateAlreadyClaimed, blocked.State)
	assert.Equal(t, ports.ClaimPhaseInProgress, blocked.Claim.Phase)

	second, err := ledger.TryClaim(ctx, "o-1", "tx-1", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, ports.ClaimStateClaimed, second.State)
	assert.NotEqual(t, first.Claim.Token, second.Claim.Token)

	// the original holder lost its claim
	assert.ErrorIs(t, ledger.Finalize(ctx, first.Claim, "success", nil), ports.ErrClaimLost)
	assert.ErrorIs(t, ledger.Release(ctx, first.Claim), ports.ErrClaimLost)
}

func TestLedgerFinalize(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger(time.Minute)
	now := time.Now()

	result, err := ledger.TryClaim(ctx, "o-1", "tx-1", now)
	require.NoError(t, err)

	verifiedAt := now.Add(time.Second)
	require.NoError(t, ledger.Finalize(ctx, result.Claim, "success", &verifiedAt))

	stored, err := ledger.Get(ctx, "o-1", "tx-1")
	require.NoError(t, err)
	assert.Equal(t, ports.ClaimPhaseFinalized, stored.Phase)
	assert.Equal(t, "success", stored.GatewayStatus)
	require.NotNil(t, stored.VerifiedAt)
	assert.True(t, stored.VerifiedAt.Equal(verifiedAt))

	// finalized claims never expire
	later, err := ledger.TryClaim(ctx, "o-1", "tx-1", now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, ports.ClaimStateAlreadyClaimed, later.State)
	assert.Equal(t, ports.ClaimPhaseFinalized, later.Claim.Phase)

	assert.ErrorIs(t, ledger.Finalize(ctx, result.Claim, "success", nil), ports.ErrClaimLost)
	assert.ErrorIs(t, ledger.Release(ctx, result.Claim), ports.ErrClaimLost)
}

func TestLedgerRelease(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger(time.Minute)
	now := time.Now()

	result, err := ledger.TryClaim(ctx, "o-1", "tx-1", now)
	require.NoError(t, err)

	forged := result.Claim
	forged.Token = "not-the-token"
	assert.ErrorIs(t, ledger.Release(ctx, forged), ports.ErrClaimLost)

	require.NoError(t, ledger.Release(ctx, result.Claim))

	_, err = ledger.Get(ctx, "o-1", "tx-1")
	assert.ErrorIs(t, err, ports.ErrClaimNotFound)

	again, err := ledger.TryClaim(ctx, "o-1", "tx-1", now)
	require.NoError(t, err)
	assert.Equal(t, ports.ClaimStateClaimed, again.State)
}
