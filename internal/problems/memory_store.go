package problems

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sahaay-app/sahaay/internal/apperr"
	"github.com/sahaay-app/sahaay/internal/pagination"
)

// MemoryStore is an in-memory problems store for demo/development mode.
type MemoryStore struct {
	problems map[string]*Problem
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory problems store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{problems: make(map[string]*Problem)}
}

func (m *MemoryStore) Create(ctx context.Context, p *Problem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.problems[p.ID]; ok {
		return apperr.Conflictf("problem %s already exists", p.ID)
	}
	cp := *p
	m.problems[p.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Problem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.problems[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) ListOpen(ctx context.Context, cursor *pagination.Cursor, limit int) ([]*Problem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Problem
	for _, p := range m.problems {
		if p.Status != StatusOpen {
			continue
		}
		if cursor != nil && !beforeCursor(p, cursor) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// beforeCursor reports whether p sorts strictly after the cursor position
// in the newest-first ordering.
func beforeCursor(p *Problem, c *pagination.Cursor) bool {
	if p.CreatedAt.Equal(c.CreatedAt) {
		return p.ID < c.ID
	}
	return p.CreatedAt.Before(c.CreatedAt)
}

func (m *MemoryStore) Transition(ctx context.Context, id string, from, to Status, helperID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.problems[id]
	if !ok {
		return apperr.ErrNotFound
	}
	if p.Status != from {
		return apperr.Preconditionf("problem is %s, expected %s", p.Status, from)
	}
	p.Status = to
	if helperID != "" {
		p.HelperID = helperID
	}
	p.UpdatedAt = time.Now()
	return nil
}

var _ Store = (*MemoryStore)(nil)
