package notify

import (
	"context"
	"sync"

	"github.com/sahaay-app/sahaay/internal/apperr"
)

// MemoryStore is an in-memory notification store for development and
// tests.
type MemoryStore struct {
	mu     sync.RWMutex
	byUser map[string][]*Notification
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byUser: make(map[string][]*Notification)}
}

// Create appends a notification to the user's list.
func (s *MemoryStore) Create(_ context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *n
	s.byUser[n.UserID] = append(s.byUser[n.UserID], &cp)
	return nil
}

// ListByUser returns up to limit notifications, newest first.
func (s *MemoryStore) ListByUser(_ context.Context, userID string, unreadOnly bool, limit int) ([]*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.byUser[userID]
	out := make([]*Notification, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		if unreadOnly && all[i].Read {
			continue
		}
		cp := *all[i]
		out = append(out, &cp)
	}
	return out, nil
}

// MarkRead marks one notification read.
func (s *MemoryStore) MarkRead(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.byUser[userID] {
		if n.ID == id {
			n.Read = true
			return nil
		}
	}
	return apperr.ErrNotFound
}

// MarkAllRead marks every notification read for a user.
func (s *MemoryStore) MarkAllRead(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.byUser[userID] {
		n.Read = true
	}
	return nil
}
