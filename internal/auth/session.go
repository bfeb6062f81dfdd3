package auth

import (
	"context"
	"strings"

	"github.com/dejobratic/shopdash/internal/orders/domain"
)

// Role controls how far a session's shop scope reaches.
type Role string

const (
	// RoleStaff sessions act on a single shop.
	RoleStaff Role = "staff"
	// RoleService sessions belong to trusted backends acting across shops.
	RoleService Role = "service"
	// RoleGatewayCallback is the scope used when the payment gateway redirects
	// a browser back to us. It may only confirm payments.
	RoleGatewayCallback Role = "gateway_callback"
)

// Session is the caller identity passed explicitly into every service call.
type Session struct {
	Subject string
	ShopID  string
	Role    Role
}

// GatewayCallbackSession returns the session used by gateway callback pages.
func GatewayCallbackSession() Session {
	return Session{Subject: "payment-gateway", Role: RoleGatewayCallback}
}

// Authorize fails closed unless the session covers shopID.
func (s Session) Authorize(shopID string) error {
	if strings.TrimSpace(s.Subject) == "" {
		return &domain.AuthorizationError{Reason: "missing credentials", Unauthenticated: true}
	}
	switch s.Role {
	case RoleService, RoleGatewayCallback:
		return nil
	case RoleStaff:
		if s.ShopID != "" && s.ShopID == shopID {
			return nil
		}
		return &domain.AuthorizationError{Reason: "shop scope mismatch"}
	default:
		return &domain.AuthorizationError{Reason: "unknown role"}
	}
}

// AuthorizeManage is Authorize restricted to roles allowed to edit orders.
func (s Session) AuthorizeManage(shopID string) error {
	if s.Role == RoleGatewayCallback {
		return &domain.AuthorizationError{Reason: "gateway callbacks cannot manage orders"}
	}
	return s.Authorize(shopID)
}

type sessionKey struct{}

// WithSession stores the session on the context.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session stored by the middleware.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}
