package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dejobratic/shopdash/internal/orders/ports"
)

// DefaultRetention is how long a create-order response stays replayable.
const DefaultRetention = 24 * time.Hour

type storedItem struct {
	response ports.StoredResponse
	savedAt  time.Time
}

// Store retains idempotency responses for replaying duplicate create requests.
type Store struct {
	mu        sync.RWMutex
	retention time.Duration
	now       func() time.Time
	items     map[string]storedItem
}

// NewStore creates a new in-memory idempotency store.
func NewStore(retention time.Duration) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Store{retention: retention, now: time.Now, items: make(map[string]storedItem)}
}

// Get returns the stored response for a given key if present and not expired.
func (s *Store) Get(_ context.Context, key string) (*ports.StoredResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[key]
	if !ok || s.expired(item) {
		return nil, nil
	}
	copy := item.response
	return &copy, nil
}

// Save stores the response for a key. The first live write wins.
func (s *Store) Save(_ context.Context, key string, response ports.StoredResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, exists := s.items[key]; exists && !s.expired(item) {
		return nil
	}
	s.items[key] = storedItem{response: response, savedAt: s.now()}
	return nil
}

func (s *Store) expired(item storedItem) bool {
	return s.now().Sub(item.savedAt) >= s.retention
}
