package users

import (
	"context"
	"sync"

	"github.com/sahaay-app/sahaay/internal/apperr"
)

// Sweep candidates below this trust score surface even without an
// explicit flag or no-show streak. Matches the PostgreSQL store's join.
const sweepLowTrustScore = 30

// MemoryStore is an in-memory users store for demo/development mode.
type MemoryStore struct {
	users       map[string]*User
	trustScores func(ctx context.Context, userID string) (int, bool)
	mu          sync.RWMutex
}

// NewMemoryStore creates a new in-memory users store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*User)}
}

// SetTrustScores installs a trust score lookup so SweepCandidates can
// surface low-trust accounts the way the PostgreSQL store's trust join
// does. Without one, only flagged and no-show state match.
func (m *MemoryStore) SetTrustScores(fn func(ctx context.Context, userID string) (int, bool)) {
	m.trustScores = fn
}

func (m *MemoryStore) lowTrust(ctx context.Context, userID string) bool {
	if m.trustScores == nil {
		return false
	}
	score, ok := m.trustScores(ctx, userID)
	return ok && score < sweepLowTrustScore
}

func (m *MemoryStore) Create(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[u.ID]; ok {
		return apperr.Conflictf("user %s already exists", u.ID)
	}
	for _, existing := range m.users {
		if existing.Phone == u.Phone {
			return apperr.Conflictf("phone number already registered")
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) Update(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[u.ID]; !ok {
		return apperr.ErrNotFound
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MemoryStore) Increment(ctx context.Context, id string, counter Counter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return apperr.ErrNotFound
	}
	switch counter {
	case CounterHelp:
		u.HelpCount++
	case CounterNoShow:
		u.NoShowCount++
	case CounterReport:
		u.ReportCount++
	default:
		return apperr.Validationf("unknown counter %q", counter)
	}
	return nil
}

func (m *MemoryStore) ByDevice(ctx context.Context, fingerprint string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for _, u := range m.users {
		if u.DeviceFingerprint != "" && u.DeviceFingerprint == fingerprint {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

func (m *MemoryStore) CountByIP(ctx context.Context, ip string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, u := range m.users {
		if u.LastIP != "" && u.LastIP == ip {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) UPIOwner(ctx context.Context, upi string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.UPIID != "" && u.UPIID == upi {
			return u.ID, nil
		}
	}
	return "", nil
}

func (m *MemoryStore) SweepCandidates(ctx context.Context, limit int) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*User
	for _, u := range m.users {
		if len(out) >= limit {
			break
		}
		if u.Flagged || u.NoShowCount > 3 || m.lowTrust(ctx, u.ID) {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
