package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/dejobratic/shopdash/internal/auth"
	"github.com/dejobratic/shopdash/internal/orders/domain"
	"github.com/dejobratic/shopdash/internal/orders/ports"
)

// ErrEventNotPublished marks a state change that was persisted but whose
// event could not be delivered. The returned value is still valid.
var ErrEventNotPublished = errors.New("state saved but event was not published")

type CreateOrderCommand struct {
	ShopID             string
	Reference          string
	Amount             int64
	Customer           json.RawMessage
	OrderableReference string
}

func (c CreateOrderCommand) Validate() error {
	if strings.TrimSpace(c.ShopID) == "" {
		return &domain.ValidationError{Field: "shop_id", Message: "shop_id is required"}
	}
	if c.Amount < 0 {
		return &domain.ValidationError{Field: "amount", Message: "amount must not be negative"}
	}
	return nil
}

type CommandHandler interface {
	Handle(ctx context.Context, session auth.Session, cmd CreateOrderCommand) (*domain.Order, error)
}

type CreateOrderCommandHandler struct {
	repo   ports.OrderRepository
	events ports.EventBus
	now    func() time.Time
}

func NewCreateOrderCommandHandler(
	repo ports.OrderRepository,
	events ports.EventBus,
) *CreateOrderCommandHandler {
	return &CreateOrderCommandHandler{
		repo:   repo,
		events: events,
		now:    time.Now,
	}
}

func (h *CreateOrderCommandHandler) Handle(ctx context.Context, session auth.Session, cmd CreateOrderCommand) (*domain.Order, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	if err := session.AuthorizeManage(cmd.ShopID); err != nil {
		return nil, err
	}

	reference := strings.TrimSpace(cmd.Reference)
	if reference == "" {
		reference = generateReference()
	}

	// an unusable customer payload is stored as absent rather than rejected
	customer, _ := domain.ParseCustomer(cmd.Customer)

	now := h.now().UTC()
	order := domain.Order{
		ID:                 uuid.NewString(),
		Reference:          reference,
		ShopID:             cmd.ShopID,
		Amount:             cmd.Amount,
		Status:             domain.StatusPending,
		Customer:           customer,
		OrderableReference: strings.TrimSpace(cmd.OrderableReference),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := order.Validate(); err != nil {
		return nil, err
	}

	if err := h.repo.Create(ctx, order); err != nil {
		if errors.Is(err, ports.ErrConflict) {
			return nil, &domain.ValidationError{Field: "reference", Message: "reference already exists for this shop"}
		}
		return nil, err
	}

	if err := h.events.PublishOrderCreated(ctx, order); err != nil {
		return &order, fmt.Errorf("%w: %w", ErrEventNotPublished, err)
	}

	return &order, nil
}

// generateReference returns a short code from the random half of a ULID.
func generateReference() string {
	id := ulid.Make().String()
	return "CMD-" + id[len(id)-8:]
}
