package fraud

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory audit store for demo/development mode.
type MemoryStore struct {
	assessments map[string][]*Assessment
	signals     map[string][]*Signal
	mu          sync.RWMutex
}

// NewMemoryStore creates a new in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assessments: make(map[string][]*Assessment),
		signals:     make(map[string][]*Signal),
	}
}

func (m *MemoryStore) RecordAssessment(ctx context.Context, a *Assessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *a
	m.assessments[a.UserID] = append(m.assessments[a.UserID], &cp)
	return nil
}

func (m *MemoryStore) ListAssessments(ctx context.Context, userID string, limit int) ([]*Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.assessments[userID]
	return newestFirst(all, limit), nil
}

func (m *MemoryStore) RecordSignal(ctx context.Context, s *Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	m.signals[s.UserID] = append(m.signals[s.UserID], &cp)
	return nil
}

func (m *MemoryStore) ListSignals(ctx context.Context, userID string, limit int) ([]*Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.signals[userID]
	return newestFirst(all, limit), nil
}

// newestFirst copies up to limit entries from the tail, reversed.
func newestFirst[T any](all []*T, limit int) []*T {
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]*T, 0, limit)
	for i := len(all) - 1; i >= len(all)-limit; i-- {
		cp := *all[i]
		out = append(out, &cp)
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
