package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dejobratic/shopdash/internal/auth"
	"github.com/dejobratic/shopdash/internal/orders/domain"
	"github.com/dejobratic/shopdash/internal/orders/ports"
)

// UpdateStatusCommand is a manual status change requested by shop staff.
type UpdateStatusCommand struct {
	OrderID string
	Status  string
}

func (c UpdateStatusCommand) Validate() error {
	if strings.TrimSpace(c.OrderID) == "" {
		return &domain.ValidationError{Field: "order_id", Message: "order_id is required"}
	}
	if _, err := domain.ParseStatus(c.Status); err != nil {
		return err
	}
	return nil
}

type StatusCommandHandler interface {
	Handle(ctx context.Context, session auth.Session, cmd UpdateStatusCommand) (*domain.Order, error)
}

type UpdateStatusCommandHandler struct {
	repo   ports.OrderRepository
	events ports.EventBus
	now    func() time.Time
}

func NewUpdateStatusCommandHandler(repo ports.OrderRepository, events ports.EventBus) *UpdateStatusCommandHandler {
	return &UpdateStatusCommandHandler{repo: repo, events: events, now: time.Now}
}

// Handle re-validates the transition server side; the client's view of the
// allowed transitions is never trusted.
func (h *UpdateStatusCommandHandler) Handle(ctx context.Context, session auth.Session, cmd UpdateStatusCommand) (*domain.Order, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	requested, _ := domain.ParseStatus(cmd.Status)

	order, err := h.repo.GetByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if err := hideForeignOrder(session, session.AuthorizeManage(order.ShopID)); err != nil {
		return nil, err
	}

	next, err := domain.Apply(*order, requested, domain.StatusChange{
		Source: domain.SourceManual,
		Actor:  session.Subject,
		At:     h.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	change := next.History[len(next.History)-1]

	if err := h.repo.UpdateStatus(ctx, order.ShopID, order.ID, change); err != nil {
		if errors.Is(err, ports.ErrConflict) {
			// someone settled the order first; report against the fresh state
			if current, getErr := h.repo.GetByID(ctx, order.ID); getErr == nil {
				return nil, &domain.InvalidTransitionError{From: current.Status, To: requested}
			}
		}
		return nil, err
	}

	if err := h.events.PublishStatusChanged(ctx, statusChangedEvent(next, change)); err != nil {
		return &next, fmt.Errorf("%w: %w", ErrEventNotPublished, err)
	}

	return &next, nil
}

func statusChangedEvent(order domain.Order, change domain.StatusChange) ports.StatusChangedEvent {
	return ports.StatusChangedEvent{
		OrderID:   order.ID,
		ShopID:    order.ShopID,
		Reference: order.Reference,
		From:      change.From,
		To:        change.To,
		Source:    change.Source,
		At:        change.At,
	}
}

// hideForeignOrder reports a staff scope mismatch as ErrNotFound, so orders of
// other shops look absent. Other roles keep the authorisation error.
func hideForeignOrder(session auth.Session, err error) error {
	if err == nil {
		return nil
	}
	if session.Role == auth.RoleStaff && strings.TrimSpace(session.Subject) != "" {
		return ports.ErrNotFound
	}
	return err
}
