package escrow

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sahaay-app/sahaay/internal/apperr"
)

// MemoryStore is an in-memory escrow store for demo/development mode.
// The byProblem index carries the per-posting uniqueness guarantee.
type MemoryStore struct {
	byID      map[string]*Transaction
	byProblem map[string]string
	mu        sync.RWMutex
}

// NewMemoryStore creates a new in-memory escrow store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:      make(map[string]*Transaction),
		byProblem: make(map[string]string),
	}
}

func (m *MemoryStore) Create(ctx context.Context, t *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byProblem[t.ProblemID]; ok {
		return apperr.Conflictf("escrow already exists for problem %s", t.ProblemID)
	}
	cp := *t
	m.byID[t.ID] = &cp
	m.byProblem[t.ProblemID] = t.ID
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.byID[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) GetByProblem(ctx context.Context, problemID string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byProblem[problemID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *m.byID[id]
	return &cp, nil
}

func (m *MemoryStore) Transition(ctx context.Context, t *Transaction, from Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.byID[t.ID]
	if !ok {
		return apperr.ErrNotFound
	}
	if existing.Status != from {
		return apperr.Preconditionf("escrow is %s, expected %s", existing.Status, from)
	}
	cp := *t
	m.byID[t.ID] = &cp
	return nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Transaction
	for _, t := range m.byID {
		if t.ClientID == userID || t.HelperID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LockedAt.After(out[j].LockedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ListExpired(ctx context.Context, before time.Time, limit int) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Transaction
	for _, t := range m.byID {
		if len(out) >= limit && limit > 0 {
			break
		}
		if t.Status == StatusLocked && t.LockExpiryAt.Before(before) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
