package trust

import (
	"context"
	"sync"

	"github.com/sahaay-app/sahaay/internal/apperr"
)

// MemoryStore is an in-memory trust store for demo/development mode.
type MemoryStore struct {
	records map[string]*Record
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory trust store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (m *MemoryStore) Get(ctx context.Context, userID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[userID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) Create(ctx context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[rec.UserID]; ok {
		return apperr.Conflictf("trust record for %s already exists", rec.UserID)
	}
	cp := *rec
	m.records[rec.UserID] = &cp
	return nil
}

func (m *MemoryStore) UpdateScore(ctx context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.records[rec.UserID]
	if !ok {
		return apperr.ErrNotFound
	}
	if existing.Version != rec.Version {
		return ErrStaleRecord
	}
	cp := *rec
	cp.Version++
	m.records[rec.UserID] = &cp
	rec.Version = cp.Version
	return nil
}

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
