package domain

import "slices"

var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:   {StatusCompleted, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
}

// CanTransition checks if a transition from `from` to `to` is valid.
func CanTransition(from, to OrderStatus) bool {
	return slices.Contains(transitions[from], to)
}

// AllowedTransitions returns the statuses reachable from the given one.
func AllowedTransitions(from OrderStatus) []OrderStatus {
	return slices.Clone(transitions[from])
}

// Apply validates the requested status against the order's current status and
// returns the next snapshot. The input order is left untouched; persisting the
// result is the caller's job.
func Apply(order Order, requested OrderStatus, change StatusChange) (Order, error) {
	if _, err := ParseStatus(string(requested)); err != nil {
		return Order{}, err
	}
	if !CanTransition(order.Status, requested) {
		return Order{}, &InvalidTransitionError{From: order.Status, To: requested}
	}

	change.From = order.Status
	change.To = requested

	next := order
	next.Status = requested
	if !change.At.IsZero() {
		next.UpdatedAt = change.At
	}
	next.History = append(slices.Clone(order.History), change)

	return next, nil
}
