package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dejobratic/shopdash/internal/orders/ports"
)

// DefaultRetention is how long a create-order response stays replayable.
const DefaultRetention = 24 * time.Hour

// Store keeps replayable responses for Idempotency-Key protected create requests.
type Store struct {
	pool      *pgxpool.Pool
	retention time.Duration
}

func NewStore(pool *pgxpool.Pool, retention time.Duration) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Store{pool: pool, retention: retention}
}

func (s *Store) Get(ctx context.Context, key string) (*ports.StoredResponse, error) {
	query := `
		SELECT status_code, body, order_id
		FROM idempotency_keys
		WHERE key = $1 AND created_at > $2
	`

	var resp ports.StoredResponse
	err := s.pool.QueryRow(ctx, query, key, time.Now().UTC().Add(-s.retention)).Scan(
		&resp.StatusCode,
		&resp.Body,
		&resp.OrderID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select idempotency key: %w", err)
	}

	return &resp, nil
}

// Save keeps the first response written for a key; expired keys are overwritten.
func (s *Store) Save(ctx context.Context, key string, response ports.StoredResponse) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO idempotency_keys (key, status_code, body, order_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO UPDATE
		SET status_code = EXCLUDED.status_code,
		    body = EXCLUDED.body,
		    order_id = EXCLUDED.order_id,
		    created_at = EXCLUDED.created_at
		WHERE idempotency_keys.created_at <= $6
	`

	_, err := s.pool.Exec(ctx, query, key, response.StatusCode, response.Body, response.OrderID, now, now.Add(-s.retention))
	if err != nil {
		return fmt.Errorf("insert idempotency key: %w", err)
	}

	return nil
}
