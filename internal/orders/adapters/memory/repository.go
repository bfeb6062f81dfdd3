package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/dejobratic/shopdash/internal/orders/domain"
	"github.com/dejobratic/shopdash/internal/orders/ports"
)

// Repository provides an in-memory store useful for local development and tests.
type Repository struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
}

// NewRepository constructs a new in-memory repository.
func NewRepository() *Repository {
	return &Repository{orders: make(map[string]domain.Order)}
}

// Create stores a new order instance. References are unique per shop.
func (r *Repository) Create(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return ports.ErrConflict
	}
	for _, existing := range r.orders {
		if existing.ShopID == order.ShopID && existing.Reference == order.Reference {
			return ports.ErrConflict
		}
	}
	stored := clone(order)
	stored.Customer = order.Customer.Sanitized()
	r.orders[order.ID] = stored
	return nil
}

// GetByID fetches a single order by identifier.
func (r *Repository) GetByID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	copy := clone(order)
	return &copy, nil
}

// List returns the shop's orders respecting the provided filter. Pagination is 1-based.
func (r *Repository) List(_ context.Context, shopID string, filter domain.Filter) ([]domain.Order, error) {
	filter = filter.Normalize()

	r.mu.RLock()
	var result []domain.Order
	for _, order := range r.orders {
		if order.ShopID != shopID || !filter.Matches(order) {
			continue
		}
		result = append(result, clone(order))
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	start := filter.Offset()
	if start >= len(result) {
		return []domain.Order{}, nil
	}

	end := start + filter.PageSize
	if end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

// UpdateStatus applies the change if the order is still in change.From.
func (r *Repository) UpdateStatus(_ context.Context, shopID, id string, change domain.StatusChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok || order.ShopID != shopID {
		return ports.ErrNotFound
	}
	if order.Status != change.From {
		return ports.ErrConflict
	}

	order.Status = change.To
	order.UpdatedAt = change.At
	order.History = append(slices.Clone(order.History), change)
	r.orders[id] = order
	return nil
}

func clone(order domain.Order) domain.Order {
	order.History = slices.Clone(order.History)
	if order.Customer != nil {
		c := *order.Customer
		order.Customer = &c
	}
	return order
}
