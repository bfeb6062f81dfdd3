package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dejobratic/shopdash/internal/orders/domain"
)

// Middleware rejects requests without a valid bearer token and stores the
// resulting Session on the request context.
func Middleware(verifier *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := verifier.Verify(bearerToken(r))
			if err != nil {
				status := http.StatusUnauthorized
				var authErr *domain.AuthorizationError
				if errors.As(err, &authErr) && !authErr.Unauthenticated {
					status = http.StatusForbidden
				}
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="shopdash"`)
				w.WriteHeader(status)
				_ = json.NewEncoder(w).Encode(map[string]any{"error": err.Error()})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
