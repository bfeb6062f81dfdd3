package ports

import (
	"context"
	"errors"

	"github.com/dejobratic/shopdash/internal/orders/domain"
)

// OrderRepository exposes persistence operations required by the application layer.
type OrderRepository interface {
	Create(ctx context.Context, order domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	// List returns the shop's orders matching the filter, newest first.
	List(ctx context.Context, shopID string, filter domain.Filter) ([]domain.Order, error)
	// UpdateStatus persists change only if the order still belongs to shopID and
	// is still in change.From; otherwise ErrConflict (or ErrNotFound).
	UpdateStatus(ctx context.Context, shopID, id string, change domain.StatusChange) error
}

var (
	// ErrNotFound is returned when the requested order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrConflict is returned when a write loses a race or violates uniqueness.
	ErrConflict = errors.New("order was modified concurrently")
)
