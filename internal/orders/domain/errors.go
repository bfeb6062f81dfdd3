package domain

import "fmt"

// ValidationError reports malformed input on a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// InvalidTransitionError is returned when a status change is not permitted
// from the order's current state.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

// AuthorizationError is returned when credentials are missing or expired, or
// when the caller's shop scope does not cover the requested resource.
type AuthorizationError struct {
	Reason string
	// Unauthenticated is set when no valid credential was presented at all.
	Unauthenticated bool
}

func (e *AuthorizationError) Error() string {
	return "unauthorized: " + e.Reason
}
