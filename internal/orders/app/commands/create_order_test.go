package commands_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/dejobratic/shopdash/internal/auth"
	"github.com/dejobratic/shopdash/internal/orders/app/commands"
	"github.com/dejobratic/shopdash/internal/orders/domain"
	"github.com/dejobratic/shopdash/internal/orders/ports"
)

var staff = auth.Session{Subject: "staff-1", ShopID: "shop-1", Role: auth.RoleStaff}

type mockRepository struct {
	createFn func(ctx context.Context, order domain.Order) error
}

func (m *mockRepository) Create(ctx context.Context, order domain.Order) error {
	if m.createFn != nil {
		return m.createFn(ctx, order)
	}
	return nil
}

func (m *mockRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return nil, ports.ErrNotFound
}

func (m *mockRepository) List(ctx context.Context, shopID string, filter domain.Filter) ([]domain.Order, error) {
	return nil, nil
}

func (m *mockRepository) UpdateStatus(ctx context.Context, shopID, id string, change domain.StatusChange) error {
	return nil
}

type mockEventBus struct {
	mu sync.Mutex

	publishOrderCreatedFn     func(ctx context.Context, order domain.Order) error
	publishStatusChangedFn    func(ctx context.Context, event ports.StatusChangedEvent) error
	publishPaymentConfirmedFn func(ctx context.Context, event ports.PaymentConfirmedEvent) error

	statusChanged    []ports.StatusChangedEvent
	paymentConfirmed []ports.PaymentConfirmedEvent
}

func (m *mockEventBus) PublishOrderCreated(ctx context.Context, order domain.Order) error {
	if m.publishOrderCreatedFn != nil {
		return m.publishOrderCreatedFn(ctx, order)
	}
	return nil
}

func (m *mockEventBus) PublishStatusChanged(ctx context.Context, event ports.StatusChangedEvent) error {
	m.mu.Lock()
	m.statusChanged = append(m.statusChanged, event)
	m.mu.Unlock()
	if m.publishStatusChangedFn != nil {
		return m.publishStatusChangedFn(ctx, event)
	}
	return nil
}

func (m *mockEventBus) PublishPaymentConfirmed(ctx context.Context, event ports.PaymentConfirmedEvent) error {
	m.mu.Lock()
	m.paymentConfirmed = append(m.paymentConfirmed, event)
	m.mu.Unlock()
	if m.publishPaymentConfirmedFn != nil {
		return m.publishPaymentConfirmedFn(ctx, event)
	}
	return nil
}

func TestCreateOrder(t *testing.T) {
	t.Run("creates pending order with valid input", func(t *testing.T) {
		repo := &mockRepository{}
		events := &mockEventBus{}
		handler := commands.NewCreateOrderCommandHandler(repo, events)

		cmd := commands.CreateOrderCommand{
			ShopID:    "shop-1",
			Reference: "CMD-0001",
			Amount:    15000,
			Customer:  json.RawMessage(`{"name":"Jean Dupont","email":"jean@example.com"}`),
		}

		order, err := handler.Handle(context.Background(), staff, cmd)

		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}

		if order == nil {
			t.Fatal("expected order to be returned, got nil")
		}

		if order.Reference != cmd.Reference {
			t.Errorf("expected reference %s, got %s", cmd.Reference, order.Reference)
		}

		if order.Amount != cmd.Amount {
			t.Errorf("expected amount %d, got %d", cmd.Amount, order.Amount)
		}

		if order.Status != domain.StatusPending {
			t.Errorf("expected status %s, got %s", domain.StatusPending, order.Status)
		}

		if order.ID == "" {
			t.Error("expected order ID to be generated")
		}

		if got := order.CustomerDisplayName(); got != "Jean Dupont" {
			t.Errorf("expected customer name %q, got %q", "Jean Dupont", got)
		}
	})

	t.Run("generates a reference when none is given", func(t *testing.T) {
		handler := commands.NewCreateOrderCommandHandler(&mockRepository{}, &mockEventBus{})

		order, err := handler.Handle(context.Background(), staff, commands.CreateOrderCommand{ShopID: "shop-1", Amount: 100})

		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}

		if !strings.HasPrefix(order.Reference, "CMD-") || len(order.Reference) != 12 {
			t.Errorf("expected generated CMD- reference, got %q", order.Reference)
		}
	})

	t.Run("stores malformed customer as absent", func(t *testing.T) {
		handler := commands.NewCreateOrderCommandHandler(&mockRepository{}, &mockEventBus{})

		order, err := handler.Handle(context.Background(), staff, commands.CreateOrderCommand{
			ShopID:   "shop-1",
			Amount:   100,
			Customer: json.RawMessage(`"not an object"`),
		})

		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}

		if order.Customer != nil {
			t.Errorf("expected nil customer, got %+v", order.Customer)
		}

		if got := order.CustomerDisplayName(); got != domain.UnknownCustomer {
			t.Errorf("expected %q, got %q", domain.UnknownCustomer, got)
		}
	})

	t.Run("returns validation error when shop is empty", func(t *testing.T) {
		handler := commands.NewCreateOrderCommandHandler(&mockRepository{}, &mockEventBus{})

		order, err := handler.Handle(context.Background(), staff, commands.CreateOrderCommand{Amount: 100})

		var validationErr *domain.ValidationError
		if !errors.As(err, &validationErr) {
			t.Fatalf("expected validation error, got: %v", err)
		}

		if validationErr.Field != "shop_id" {
			t.Errorf("expected field shop_id, got %s", validationErr.Field)
		}

		if order != nil {
			t.Errorf("expected nil order, got %+v", order)
		}
	})

	t.Run("returns validation error when amount is negative", func(t *testing.T) {
		handler := commands.NewCreateOrderCommandHandler(&mockRepository{}, &mockEventBus{})

		_, err := handler.Handle(context.Background(), staff, commands.CreateOrderCommand{ShopID: "shop-1", Amount: -100})

		var validationErr *domain.ValidationError
		if !errors.As(err, &validationErr) || validationErr.Field != "amount" {
			t.Fatalf("expected amount validation error, got: %v", err)
		}
	})

	t.Run("rejects sessions scoped to another shop", func(t *testing.T) {
		called := false
		repo := &mockRepository{
			createFn: func(ctx context.Context, order domain.Order) error {
				called = true
				return nil
			},
		}
		handler := commands.NewCreateOrderCommandHandler(repo, &mockEventBus{})

		_, err := handler.Handle(context.Background(), staff, commands.CreateOrderCommand{ShopID: "shop-2", Amount: 100})

		var authErr *domain.AuthorizationError
		if !errors.As(err, &authErr) {
			t.Fatalf("expected authorization error, got: %v", err)
		}

		if called {
			t.Error("expected repository not to be called")
		}
	})

	t.Run("maps duplicate reference to validation error", func(t *testing.T) {
		repo := &mockRepository{
			createFn: func(ctx context.Context, order domain.Order) error {
				return ports.ErrConflict
			},
		}
		handler := commands.NewCreateOrderCommandHandler(repo, &mockEventBus{})

		_, err := handler.Handle(context.Background(), staff, commands.CreateOrderCommand{ShopID: "shop-1", Reference: "CMD-1", Amount: 100})

		var validationErr *domain.ValidationError
		if !errors.As(err, &validationErr) || validationErr.Field != "reference" {
			t.Fatalf("expected reference validation error, got: %v", err)
		}
	})

	t.Run("returns error when repository fails", func(t *testing.T) {
		repoErr := errors.New("database connection failed")
		repo := &mockRepository{
			createFn: func(ctx context.Context, order domain.Order) error {
				return repoErr
			},
		}
		handler := commands.NewCreateOrderCommandHandler(repo, &mockEventBus{})

		order, err := handler.Handle(context.Background(), staff, commands.CreateOrderCommand{ShopID: "shop-1", Amount: 100})

		if !errors.Is(err, repoErr) {
			t.Errorf("expected error to wrap repository error, got: %v", err)
		}

		if order != nil {
			t.Errorf("expected nil order, got %+v", order)
		}
	})

	t.Run("returns order even when event publishing fails", func(t *testing.T) {
		eventErr := errors.New("kafka unavailable")
		events := &mockEventBus{
			publishOrderCreatedFn: func(ctx context.Context, order domain.Order) error {
				return eventErr
			},
		}
		handler := commands.NewCreateOrderCommandHandler(&mockRepository{}, events)

		order, err := handler.Handle(context.Background(), staff, commands.CreateOrderCommand{ShopID: "shop-1", Amount: 100})

		if !errors.Is(err, commands.ErrEventNotPublished) || !errors.Is(err, eventErr) {
			t.Fatalf("expected wrapped publish error, got: %v", err)
		}

		if order == nil {
			t.Fatal("expected order to be returned even on event bus error")
		}
	})
}
