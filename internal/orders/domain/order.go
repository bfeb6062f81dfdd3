package domain

import (
	"strings"
	"time"
)

// OrderStatus captures the lifecycle of an order in the system.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusCompleted OrderStatus = "completed"
	StatusCancelled OrderStatus = "cancelled"
)

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case StatusPending, StatusCompleted, StatusCancelled:
		return status, nil
	default:
		return "", &ValidationError{Field: "status", Message: "status must be one of pending, completed, cancelled"}
	}
}

// ChangeSource identifies who drove a status change.
type ChangeSource string

const (
	SourceManual  ChangeSource = "manual"
	SourcePayment ChangeSource = "payment"
)

// StatusChange is one entry of an order's status history.
type StatusChange struct {
	From   OrderStatus  `json:"from"`
	To     OrderStatus  `json:"to"`
	Source ChangeSource `json:"source"`
	Actor  string       `json:"actor,omitempty"`
	At     time.Time    `json:"at"`
}

// Order represents a customer's purchase against a shop's catalog item.
type Order struct {
	ID                 string         `json:"id"`
	Reference          string         `json:"reference"`
	ShopID             string         `json:"shop_id"`
	Amount             int64          `json:"amount"`
	Status             OrderStatus    `json:"status"`
	Customer           *Customer      `json:"customer"`
	OrderableReference string         `json:"orderable_reference,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	History            []StatusChange `json:"history,omitempty"`
}

// Validate ensures the order adheres to business constraints.
func (o Order) Validate() error {
	if strings.TrimSpace(o.ShopID) == "" {
		return &ValidationError{Field: "shop_id", Message: "shop_id is required"}
	}
	if strings.TrimSpace(o.Reference) == "" {
		return &ValidationError{Field: "reference", Message: "reference is required"}
	}
	if o.Amount < 0 {
		return &ValidationError{Field: "amount", Message: "amount must not be negative"}
	}
	if _, err := ParseStatus(string(o.Status)); err != nil {
		return err
	}
	return nil
}

// IsTerminal indicates whether the order is in a terminal state.
func (o Order) IsTerminal() bool {
	return o.Status.IsTerminal()
}

// IsTerminal reports whether no further transition is permitted from s.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// CustomerDisplayName is what the dashboard shows for the order's customer.
func (o Order) CustomerDisplayName() string {
	return o.Customer.DisplayName()
}
