package ports_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/dejobratic/shopdash/internal/orders/ports"
)

func TestScopedIdempotencyKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		want    string
		wantErr bool
	}{
		{name: "scoped by subject", key: "key-1", want: "staff-1:key-1"},
		{name: "trimmed", key: "  key-1 ", want: "staff-1:key-1"},
		{name: "empty", key: "   ", wantErr: true},
		{name: "too long", key: strings.Repeat("k", ports.MaxIdempotencyKeyLength+1), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ports.ScopedIdempotencyKey("staff-1", tt.key)
			if tt.wantErr {
				if !errors.Is(err, ports.ErrInvalidIdempotencyKey) {
					t.Fatalf("expected ErrInvalidIdempotencyKey, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
