package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/dejobratic/shopdash/internal/orders/domain"
)

// Claims is the bearer token payload issued by the session service.
type Claims struct {
	ShopID string `json:"shop_id,omitempty"`
	Role   Role   `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 bearer tokens.
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// VerifierOption customises a Verifier.
type VerifierOption func(*Verifier)

// WithClock injects a custom clock, primarily for tests.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewVerifier constructs a verifier for tokens signed with secret. An empty
// issuer disables the issuer check.
func NewVerifier(secret []byte, issuer string, opts ...VerifierOption) *Verifier {
	v := &Verifier{secret: secret, issuer: issuer, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// Verify parses the token and turns it into a Session.
func (v *Verifier) Verify(raw string) (Session, error) {
	if raw == "" {
		return Session{}, &domain.AuthorizationError{Reason: "missing bearer token", Unauthenticated: true}
	}

	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}); err != nil {
		return Session{}, &domain.AuthorizationError{Reason: fmt.Sprintf("invalid bearer token: %v", err), Unauthenticated: true}
	}

	now := v.now()
	if !claims.VerifyExpiresAt(now, true) {
		return Session{}, &domain.AuthorizationError{Reason: "bearer token expired", Unauthenticated: true}
	}
	if !claims.VerifyNotBefore(now, false) {
		return Session{}, &domain.AuthorizationError{Reason: "bearer token not yet valid", Unauthenticated: true}
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return Session{}, &domain.AuthorizationError{Reason: "unexpected token issuer", Unauthenticated: true}
	}

	switch claims.Role {
	case RoleStaff:
		if claims.ShopID == "" {
			return Session{}, &domain.AuthorizationError{Reason: "staff token without shop scope"}
		}
	case RoleService:
	default:
		return Session{}, &domain.AuthorizationError{Reason: "token role not accepted"}
	}

	return Session{Subject: claims.Subject, ShopID: claims.ShopID, Role: claims.Role}, nil
}

// Issue signs a token for the session. Used by tooling and tests.
func (v *Verifier) Issue(s Session, ttl time.Duration) (string, error) {
	if s.Subject == "" {
		return "", errors.New("auth: subject is required")
	}
	now := v.now()
	claims := Claims{
		ShopID: s.ShopID,
		Role:   s.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.Subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
