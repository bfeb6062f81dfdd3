package ports

import (
	"context"
	"errors"
	"strings"
)

// MaxIdempotencyKeyLength bounds client-supplied Idempotency-Key values.
const MaxIdempotencyKeyLength = 128

var ErrInvalidIdempotencyKey = errors.New("Idempotency-Key header must be 1-128 characters")

// StoredResponse contains the response data to replay for a reused key.
type StoredResponse struct {
	StatusCode int
	Body       []byte
	OrderID    string
}

// IdempotencyStore ensures create operations can be retried safely.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*StoredResponse, error)
	Save(ctx context.Context, key string, response StoredResponse) error
}

// ScopedIdempotencyKey namespaces a client key by caller, so one caller can
// never replay another's response.
func ScopedIdempotencyKey(subject, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || len(key) > MaxIdempotencyKeyLength {
		return "", ErrInvalidIdempotencyKey
	}
	return subject + ":" + key, nil
}
