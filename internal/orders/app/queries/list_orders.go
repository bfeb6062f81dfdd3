package queries

import (
	"context"
	"iter"
	"strings"

	"github.com/dejobratic/shopdash/internal/auth"
	"github.com/dejobratic/shopdash/internal/orders/domain"
	"github.com/dejobratic/shopdash/internal/orders/ports"
)

// ListOrdersQuery selects one page of a shop's orders.
type ListOrdersQuery struct {
	ShopID string
	Filter domain.Filter
}

func (q ListOrdersQuery) Validate() error {
	if strings.TrimSpace(q.ShopID) == "" {
		return &domain.ValidationError{Field: "shop_id", Message: "shop_id is required"}
	}
	return nil
}

type ListOrdersQueryHandler struct {
	repo ports.OrderRepository
}

func NewListOrdersQueryHandler(repo ports.OrderRepository) *ListOrdersQueryHandler {
	return &ListOrdersQueryHandler{repo: repo}
}

// Handle authorizes the request up front and returns a lazy sequence. The
// store is queried each time the sequence is ranged over; a store failure is
// yielded once as the final element.
func (h *ListOrdersQueryHandler) Handle(ctx context.Context, session auth.Session, query ListOrdersQuery) (iter.Seq2[domain.Order, error], error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	if err := session.Authorize(query.ShopID); err != nil {
		return nil, err
	}

	filter := query.Filter.Normalize()

	return func(yield func(domain.Order, error) bool) {
		orders, err := h.repo.List(ctx, query.ShopID, filter)
		if err != nil {
			yield(domain.Order{}, err)
			return
		}
		for _, order := range orders {
			// a listing never leaves the requested shop, whatever the store returns
			if order.ShopID != query.ShopID {
				continue
			}
			if !yield(order, nil) {
				return
			}
		}
	}, nil
}

// Collect drains a listing into a slice, stopping at the first error.
func Collect(seq iter.Seq2[domain.Order, error]) ([]domain.Order, error) {
	orders := []domain.Order{}
	for order, err := range seq {
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}
